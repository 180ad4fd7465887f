package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/middleware"
	"github.com/charlesng35/studiofolio/internal/realtime"
)

func newRealtimeTestHandler(t *testing.T) (*RealtimeHandler, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	return NewRealtimeHandler(hub, jwtSvc, middleware.AdminEmail("owner@example.com")), jwtSvc
}

func serveStream(handler *RealtimeHandler, stream, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{gin.Param{Key: "stream", Value: stream}}
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	handler.Stream(c)
	return rec
}

func TestRealtimeHandlerUnauthorizedWithoutToken(t *testing.T) {
	handler, _ := newRealtimeTestHandler(t)

	rec := serveStream(handler, realtime.StreamInvites, "/ws/invites")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRealtimeHandlerRejectsOtherIdentities(t *testing.T) {
	handler, jwtSvc := newRealtimeTestHandler(t)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1", Email: "visitor@example.com"})
	require.NoError(t, err)

	rec := serveStream(handler, realtime.StreamInvites, "/ws/invites?token="+token)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRealtimeHandlerRejectsUnknownStream(t *testing.T) {
	handler, jwtSvc := newRealtimeTestHandler(t)

	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{UserID: "user-1", Email: "owner@example.com"})
	require.NoError(t, err)

	rec := serveStream(handler, "unknown", "/ws/unknown?token="+token)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// A public stream mixed with an unknown one is still rejected.
	rec = serveStream(handler, realtime.StreamTestimonials, "/ws/testimonials?streams=bogus")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
