package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/api"
	"github.com/charlesng35/studiofolio/internal/app"
	iauth "github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/cache"
	"github.com/charlesng35/studiofolio/internal/database"
	sharedtestutil "github.com/charlesng35/studiofolio/internal/database/testutil"
	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/handlers"
	"github.com/charlesng35/studiofolio/internal/middleware"
	"github.com/charlesng35/studiofolio/internal/monitoring"
	"github.com/charlesng35/studiofolio/internal/monitoring/checks"
	"github.com/charlesng35/studiofolio/internal/realtime"
	"github.com/charlesng35/studiofolio/internal/services"
	"github.com/charlesng35/studiofolio/internal/storage"
	"github.com/charlesng35/studiofolio/internal/transcode"
	"github.com/charlesng35/studiofolio/pkg/mail"
	"github.com/charlesng35/studiofolio/pkg/response"
)

// Administrator credentials provisioned by NewEnv.
const (
	AdminEmail    = "owner@example.com"
	AdminPassword = "Secret123!"

	SiteURL = "https://studio.test"
	CDNURL  = "https://cdn.test"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	JWT        *iauth.JWTService
	Accounts   *services.AccountService
	Invites    *services.InviteService
	Store      *storage.MemoryStore
	Registry   *gallery.Registry
	Snapshots  *gallery.SnapshotCache
	Hub        *realtime.Hub
	Monitoring *monitoring.Module
	Mailer     *Mailer
	csrfToken  string
	csrfCookie *http.Cookie
}

// NewEnv provisions a fresh handler test environment with the administrator seeded.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{
			Port:      8000,
			RateLimit: app.RateLimitConfig{Requests: 1000, Window: time.Minute, Submissions: 100},
		},
		Media: app.MediaConfig{MaxUploadBytes: 4 << 20},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: "test-suite-super-secret-key-32-bytes!!", Issuer: "test-suite", TTL: time.Hour},
		},
		Site: app.SiteConfig{BaseURL: SiteURL},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	dbStore := cache.NewDatabaseStore(db)
	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewSessionCache(dbStore)
	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, sessionCfg)
	require.NoError(t, err)

	mailer := &Mailer{}
	verification, err := services.NewEmailVerificationService(db, mailer, services.WithVerificationBaseURL(SiteURL))
	require.NoError(t, err)
	accounts, err := services.NewAccountService(db, sessionSvc, mailer,
		services.WithVerification(verification),
		services.WithResetBaseURL(SiteURL),
	)
	require.NoError(t, err)
	require.NoError(t, accounts.Bootstrap(ctx, database.AdminSeed{
		Email:       AdminEmail,
		Password:    AdminPassword,
		DisplayName: "Owner",
	}))

	store := storage.NewMemoryStore(CDNURL)
	transcoder := transcode.New()

	invites, err := services.NewInviteService(db, store, transcoder, services.WithInviteBaseURL(SiteURL))
	require.NoError(t, err)
	testimonials, err := services.NewTestimonialService(db)
	require.NoError(t, err)

	repo := gallery.NewGormRepository(db)
	feed := gallery.NewFeed(repo)
	registry, err := gallery.NewRegistry(feed, repo, store, transcoder)
	require.NoError(t, err)
	require.NoError(t, registry.Start(ctx))
	t.Cleanup(registry.Close)

	snapshots := gallery.NewSnapshotCache(dbStore, feed, time.Hour)

	hub := realtime.NewHub(realtime.WithInitial(realtime.InitialState(snapshots, testimonials, time.Second)))
	t.Cleanup(hub.Close)
	realtime.ForwardSnapshots(feed, hub)

	module := monitoring.NewModule(monitoring.Options{CheckTimeout: time.Second, Gatherer: prometheus.NewRegistry()})
	module.Health().RegisterReadiness(checks.Database(db))
	module.Health().RegisterReadiness(checks.Cache(dbStore, "database"))
	module.Health().RegisterReadiness(checks.Storage(store, "memory"))

	router, err := api.NewRouter(cfg, api.Dependencies{
		JWT:          jwtSvc,
		Sessions:     sessionSvc,
		Accounts:     accounts,
		Verification: verification,
		Invites:      invites,
		Testimonials: testimonials,
		Registry:     registry,
		Snapshots:    snapshots,
		Hub:          hub,
		Monitoring:   module,
		RateStore:    middleware.NewMemoryRateStore(),
		Media:        store,
	})
	require.NoError(t, err)

	return &Env{
		T:          t,
		DB:         db,
		Router:     router,
		JWT:        jwtSvc,
		Accounts:   accounts,
		Invites:    invites,
		Store:      store,
		Registry:   registry,
		Snapshots:  snapshots,
		Hub:        hub,
		Monitoring: module,
		Mailer:     mailer,
	}
}

// Mailer records outgoing messages.
type Mailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

// Send implements mail.Mailer.
func (m *Mailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Sent returns a copy of every message sent so far.
func (m *Mailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken      string    `json:"access_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Persistence      string    `json:"persistence"`

	RefreshCookie *http.Cookie `json:"-"`
}

// Login signs in and returns the access token and refresh cookie.
func (e *Env) Login(email, password, persistence string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"email":       email,
		"password":    password,
		"persistence": persistence,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	result.RefreshCookie = findCookie(w.Result(), handlers.RefreshCookieName)
	require.NotNil(e.T, result.RefreshCookie)

	return result
}

// AdminToken signs the administrator in and returns the access token.
func (e *Env) AdminToken() string {
	e.T.Helper()
	return e.Login(AdminEmail, AdminPassword, "local").AccessToken
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	return e.do(req, token)
}

// File is one part of a multipart upload.
type File struct {
	Field string
	Name  string
	Data  []byte
}

// Upload sends a multipart form with the given fields and files.
func (e *Env) Upload(method, path string, fields map[string]string, files []File, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(e.T, writer.WriteField(name, value))
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.Field, f.Name)
		require.NoError(e.T, err)
		_, err = part.Write(f.Data)
		require.NoError(e.T, err)
	}
	require.NoError(e.T, writer.Close())

	req, err := http.NewRequest(method, path, &buf)
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return e.do(req, token)
}

func (e *Env) do(req *http.Request, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requiresCSRFAttestation(req.Method) {
		e.ensureCSRFToken()
		if e.csrfCookie != nil {
			req.AddCookie(e.csrfCookie)
		}
		if e.csrfToken != "" {
			req.Header.Set(middleware.CSRFHeaderName, e.csrfToken)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	e.captureCSRF(w.Result())
	return w
}

func (e *Env) ensureCSRFToken() {
	if e.csrfToken != "" && e.csrfCookie != nil {
		return
	}
	req, err := http.NewRequest(http.MethodGet, "/api/auth/csrf", nil)
	require.NoError(e.T, err)
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	require.Equal(e.T, http.StatusNoContent, w.Code, w.Body.String())
	e.captureCSRF(w.Result())
}

func (e *Env) captureCSRF(resp *http.Response) {
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	if token := resp.Header.Get(middleware.CSRFHeaderName); token != "" {
		e.csrfToken = token
	}
	if c := findCookie(resp, middleware.CSRFCookieName); c != nil {
		e.csrfCookie = &http.Cookie{Name: c.Name, Value: c.Value}
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func requiresCSRFAttestation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// JPEG encodes a solid w×h image.
func JPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 200, G: 120, B: 40, A: 255}), &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}
