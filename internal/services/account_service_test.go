package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/database"
	"github.com/charlesng35/studiofolio/internal/database/testutil"
	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/crypto"
)

const (
	adminEmail    = "owner@studio.test"
	adminPassword = "owner-password"
)

type accountFixture struct {
	db       *gorm.DB
	svc      *AccountService
	sessions *auth.SessionService
	mailer   *recordingMailer
	clock    *testClock
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := newTestClock()

	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: "account-secret", Clock: clock.Now})
	require.NoError(t, err)
	sessions, err := auth.NewSessionService(db, jwtService, auth.SessionConfig{Clock: clock.Now})
	require.NoError(t, err)

	mailer := &recordingMailer{}
	verification, err := NewEmailVerificationService(db, mailer, WithVerificationClock(clock.Now))
	require.NoError(t, err)

	svc, err := NewAccountService(db, sessions, mailer,
		WithAccountClock(clock.Now),
		WithResetBaseURL("https://studio.test"),
		WithVerification(verification),
	)
	require.NoError(t, err)
	require.NoError(t, svc.Bootstrap(context.Background(), database.AdminSeed{
		Email:       " Owner@Studio.test ",
		Password:    adminPassword,
		DisplayName: "Owner",
	}))

	return &accountFixture{db: db, svc: svc, sessions: sessions, mailer: mailer, clock: clock}
}

func (f *accountFixture) admin(t *testing.T) *models.User {
	t.Helper()
	var user models.User
	require.NoError(t, f.db.Where("email = ?", f.svc.AdminEmail()).Take(&user).Error)
	return &user
}

func TestBootstrapKeepsStoredAdminEmail(t *testing.T) {
	f := newAccountFixture(t)
	require.Equal(t, adminEmail, f.svc.AdminEmail())
	require.True(t, f.svc.IsAdmin("OWNER@studio.test"))
	require.False(t, f.svc.IsAdmin("someone@studio.test"))

	require.NoError(t, database.UpsertSystemSetting(context.Background(), f.db, AdminEmailSetting, "moved@studio.test"))
	require.NoError(t, f.svc.Bootstrap(context.Background(), database.AdminSeed{Email: adminEmail, Password: adminPassword}))
	require.Equal(t, "moved@studio.test", f.svc.AdminEmail())
}

func TestAuthenticateAdmin(t *testing.T) {
	f := newAccountFixture(t)

	pair, user, err := f.svc.Authenticate(context.Background(), LoginInput{
		Email:       "OWNER@studio.test",
		Password:    adminPassword,
		Persistence: auth.PersistenceSession,
		IPAddress:   "203.0.113.7",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.False(t, pair.Persistent)
	require.Equal(t, f.clock.Now().Add(auth.DefaultSessionTTL), pair.RefreshExpiresAt)
	require.Equal(t, "203.0.113.7", user.LastLoginIP)

	claims, err := f.sessions.JWT().ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, adminEmail, claims.Email)
}

func TestAuthenticateRejectsWrongPasswordAndOtherAccounts(t *testing.T) {
	f := newAccountFixture(t)

	_, _, err := f.svc.Authenticate(context.Background(), LoginInput{Email: adminEmail, Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = f.svc.Authenticate(context.Background(), LoginInput{Email: "ghost@studio.test", Password: adminPassword})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	hash, err := crypto.HashPassword("assistant-password")
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&models.User{Email: "assistant@studio.test", Password: hash}).Error)

	_, _, err = f.svc.Authenticate(context.Background(), LoginInput{Email: "assistant@studio.test", Password: "assistant-password"})
	require.ErrorIs(t, err, ErrNotAdmin)
}

func TestUpdateProfileAndPassword(t *testing.T) {
	f := newAccountFixture(t)
	user := f.admin(t)

	name := "  Studio Owner "
	updated, err := f.svc.UpdateProfile(context.Background(), user.ID, UpdateProfileInput{DisplayName: &name})
	require.NoError(t, err)
	require.Equal(t, "Studio Owner", updated.DisplayName)

	require.ErrorIs(t, f.svc.UpdatePassword(context.Background(), user.ID, "wrong", "new-password"), ErrInvalidCredentials)
	require.ErrorIs(t, f.svc.UpdatePassword(context.Background(), user.ID, adminPassword, "short"), ErrWeakPassword)
	require.NoError(t, f.svc.UpdatePassword(context.Background(), user.ID, adminPassword, "new-password"))

	_, _, err = f.svc.Authenticate(context.Background(), LoginInput{Email: adminEmail, Password: "new-password"})
	require.NoError(t, err)
}

func TestUpdateEmailMovesAdminIdentity(t *testing.T) {
	f := newAccountFixture(t)
	user := f.admin(t)

	updated, err := f.svc.UpdateEmail(context.Background(), user.ID, adminPassword, "New@Studio.test")
	require.NoError(t, err)
	require.Equal(t, "new@studio.test", updated.Email)
	require.False(t, updated.EmailVerified())
	require.Equal(t, "new@studio.test", f.svc.AdminEmail())

	stored, err := database.GetSystemSetting(context.Background(), f.db, AdminEmailSetting)
	require.NoError(t, err)
	require.Equal(t, "new@studio.test", stored)

	sent := f.mailer.sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{"new@studio.test"}, sent[0].To)

	_, _, err = f.svc.Authenticate(context.Background(), LoginInput{Email: "new@studio.test", Password: adminPassword})
	require.NoError(t, err)
}

func TestUpdateEmailRejectsTakenAddress(t *testing.T) {
	f := newAccountFixture(t)
	user := f.admin(t)
	require.NoError(t, f.db.Create(&models.User{Email: "taken@studio.test", Password: "x"}).Error)

	_, err := f.svc.UpdateEmail(context.Background(), user.ID, adminPassword, "taken@studio.test")
	require.ErrorIs(t, err, ErrEmailTaken)
	require.Equal(t, adminEmail, f.svc.AdminEmail())
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAccountFixture(t)
	user := f.admin(t)

	pair, _, err := f.svc.Authenticate(context.Background(), LoginInput{Email: adminEmail, Password: adminPassword})
	require.NoError(t, err)

	require.NoError(t, f.svc.SendPasswordReset(context.Background(), "nobody@studio.test"))
	require.Empty(t, f.mailer.sent())

	require.NoError(t, f.svc.SendPasswordReset(context.Background(), adminEmail))
	sent := f.mailer.sent()
	require.Len(t, sent, 1)

	var reset models.PasswordResetToken
	require.NoError(t, f.db.Where("user_id = ?", user.ID).Take(&reset).Error)
	token := extractToken(t, sent[0].Body)
	require.True(t, crypto.TokenMatches(token, reset.TokenHash))

	require.ErrorIs(t, f.svc.ResetPassword(context.Background(), token, "short"), ErrWeakPassword)
	require.NoError(t, f.svc.ResetPassword(context.Background(), token, "brand-new-password"))
	require.ErrorIs(t, f.svc.ResetPassword(context.Background(), token, "another-password"), ErrResetTokenInvalid)

	_, _, err = f.sessions.RefreshSession(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, auth.ErrSessionRevoked)

	_, _, err = f.svc.Authenticate(context.Background(), LoginInput{Email: adminEmail, Password: "brand-new-password"})
	require.NoError(t, err)
}

func TestPasswordResetExpires(t *testing.T) {
	f := newAccountFixture(t)

	require.NoError(t, f.svc.SendPasswordReset(context.Background(), adminEmail))
	token := extractToken(t, f.mailer.sent()[0].Body)

	f.clock.Advance(2 * time.Hour)
	require.ErrorIs(t, f.svc.ResetPassword(context.Background(), token, "brand-new-password"), ErrResetTokenInvalid)
}

func extractToken(t *testing.T, body string) string {
	t.Helper()
	const marker = "reset-password?token="
	start := strings.Index(body, marker)
	require.GreaterOrEqual(t, start, 0, "no reset link in %q", body)
	token, _, _ := strings.Cut(body[start+len(marker):], "\n")
	return token
}
