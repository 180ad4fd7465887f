package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/studiofolio/internal/handlers/testutil"
)

func linkToken(t *testing.T, body, marker string) string {
	t.Helper()
	start := strings.Index(body, marker)
	require.GreaterOrEqual(t, start, 0, "no link in %q", body)
	token, _, _ := strings.Cut(body[start+len(marker):], "\n")
	return strings.TrimSpace(token)
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/auth/login", map[string]any{"email": " ", "password": ""}, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	decoded := testutil.DecodeResponse(t, resp)
	require.False(t, decoded.Success)
	require.NotNil(t, decoded.Error)
	require.Equal(t, "BAD_REQUEST", decoded.Error.Code)

	resp = env.Request(http.MethodPost, "/api/auth/login", map[string]any{
		"email":    testutil.AdminEmail,
		"password": "wrong-password",
	}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeResponse(t, resp).Error.Code)
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	env := testutil.NewEnv(t)

	// Unknown addresses get the same answer and no mail.
	resp := env.Request(http.MethodPost, "/api/auth/password/forgot", map[string]string{"email": "nobody@example.com"}, "")
	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Empty(t, env.Mailer.Sent())

	resp = env.Request(http.MethodPost, "/api/auth/password/forgot", map[string]string{"email": testutil.AdminEmail}, "")
	require.Equal(t, http.StatusAccepted, resp.Code)
	sent := env.Mailer.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{testutil.AdminEmail}, sent[0].To)
	token := linkToken(t, sent[0].Body, "/reset-password?token=")

	resp = env.Request(http.MethodPost, "/api/auth/password/reset", map[string]string{"token": token, "password": "Brand-new-pass1"}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = env.Request(http.MethodPost, "/api/auth/password/reset", map[string]string{"token": token, "password": "Another-pass22"}, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.Request(http.MethodPost, "/api/auth/login", map[string]string{"email": testutil.AdminEmail, "password": testutil.AdminPassword}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	login := env.Login(testutil.AdminEmail, "Brand-new-pass1", "session")
	require.Equal(t, "session", login.Persistence)
}

func TestProfileHandler_UpdateAndPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AdminToken()

	resp := env.Request(http.MethodPatch, "/api/account/profile", map[string]string{"display_name": "Studio North"}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var user map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &user)
	require.Equal(t, "Studio North", user["display_name"])

	resp = env.Request(http.MethodPost, "/api/account/password", map[string]string{
		"current_password": "not-the-password",
		"new_password":     "Rotated-pass99",
	}, token)
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.Request(http.MethodPost, "/api/account/password", map[string]string{
		"current_password": testutil.AdminPassword,
		"new_password":     "Rotated-pass99",
	}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	env.Login(testutil.AdminEmail, "Rotated-pass99", "local")
}

func TestProfileHandler_EmailChangeMovesAdminIdentity(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.AdminToken()
	const newEmail = "studio@example.com"

	resp := env.Request(http.MethodPost, "/api/account/email", map[string]string{
		"email":    newEmail,
		"password": testutil.AdminPassword,
	}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	sent := env.Mailer.Sent()
	require.NotEmpty(t, sent)
	last := sent[len(sent)-1]
	require.Equal(t, []string{newEmail}, last.To)
	verifyToken := linkToken(t, last.Body, "/verify-email?token=")

	// The old token still names the previous address.
	resp = env.Request(http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.Request(http.MethodPost, "/api/auth/verify-email", map[string]string{"token": verifyToken}, "")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var verified map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &verified)
	require.Equal(t, newEmail, verified["email"])

	fresh := env.Login(newEmail, testutil.AdminPassword, "local")
	resp = env.Request(http.MethodGet, "/api/auth/me", nil, fresh.AccessToken)
	require.Equal(t, http.StatusOK, resp.Code)
}
