package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/internal/services"
	appErrors "github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/response"
)

const (
	// RefreshCookieName carries the refresh token. It is scoped to the auth routes.
	RefreshCookieName = "studiofolio_refresh"
	RefreshCookiePath = "/api/auth"
)

// CookieOptions control the refresh cookie.
type CookieOptions struct {
	Domain string
	// Secure forces the Secure flag even when the request arrived over plain HTTP.
	Secure bool
}

// AuthHandler manages sign-in, token refresh, sign-out and password recovery.
type AuthHandler struct {
	accounts     *services.AccountService
	sessions     *iauth.SessionService
	verification *services.EmailVerificationService
	cookie       CookieOptions
}

// NewAuthHandler constructs an auth handler. verification may be nil.
func NewAuthHandler(accounts *services.AccountService, sessions *iauth.SessionService, verification *services.EmailVerificationService, cookie CookieOptions) *AuthHandler {
	return &AuthHandler{accounts: accounts, sessions: sessions, verification: verification, cookie: cookie}
}

type loginRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	Persistence string `json:"persistence" validate:"persistence"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type sessionResponse struct {
	AccessToken      string       `json:"access_token"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	Persistence      string       `json:"persistence"`
	User             *models.User `json:"user,omitempty"`
}

func persistenceOf(pair iauth.TokenPair) string {
	if pair.Persistent {
		return string(iauth.PersistenceLocal)
	}
	return string(iauth.PersistenceSession)
}

// setRefreshCookie writes a persistent cookie for "local" sign-ins and a
// browser-session cookie otherwise.
func (h *AuthHandler) setRefreshCookie(c *gin.Context, pair iauth.TokenPair) {
	maxAge := 0
	if pair.Persistent {
		maxAge = int(time.Until(pair.RefreshExpiresAt).Seconds())
		if maxAge <= 0 {
			maxAge = -1
		}
	}
	h.writeCookie(c, pair.RefreshToken, maxAge)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	h.writeCookie(c, "", -1)
}

func (h *AuthHandler) writeCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     RefreshCookiePath,
		Domain:   h.cookie.Domain,
		MaxAge:   maxAge,
		Secure:   h.cookie.Secure || isSecure(c.Request),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, user, err := h.accounts.Authenticate(requestContext(c), services.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		Persistence: iauth.Persistence(req.Persistence),
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.setRefreshCookie(c, pair)
	response.Success(c, http.StatusOK, sessionResponse{
		AccessToken:      pair.AccessToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		Persistence:      persistenceOf(pair),
		User:             user,
	})
}

// Refresh POST /api/auth/refresh. The token comes from the cookie, or from
// the body for clients that cannot hold cookies.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, _ := c.Cookie(RefreshCookieName)
	if strings.TrimSpace(token) == "" {
		var req refreshRequest
		_ = c.ShouldBindJSON(&req)
		token = req.RefreshToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	pair, _, err := h.sessions.RefreshSession(requestContext(c), token)
	if err != nil {
		h.clearRefreshCookie(c)
		respondError(c, err)
		return
	}

	h.setRefreshCookie(c, pair)
	response.Success(c, http.StatusOK, sessionResponse{
		AccessToken:      pair.AccessToken,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		Persistence:      persistenceOf(pair),
	})
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid, ok := sessionIDFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.sessions.RevokeSession(requestContext(c), sid); err != nil {
		respondError(c, err)
		return
	}
	h.clearRefreshCookie(c)
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	user, err := h.accounts.Profile(requestContext(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// ForgotPassword POST /api/auth/password/forgot. The answer does not reveal
// whether the address belongs to an account.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.accounts.SendPasswordReset(requestContext(c), req.Email); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"sent": true})
}

// ResetPassword POST /api/auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.accounts.ResetPassword(requestContext(c), req.Token, req.Password); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

// VerifyEmail POST /api/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if h.verification == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	var req tokenRequest
	if !bindAndValidate(c, &req) {
		return
	}
	record, err := h.verification.VerifyToken(requestContext(c), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"verified": true, "email": record.Email})
}
