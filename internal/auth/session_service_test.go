package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/cache"
	"github.com/charlesng35/studiofolio/internal/database/testutil"
	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/crypto"
)

func TestParsePersistence(t *testing.T) {
	p, err := ParsePersistence("")
	require.NoError(t, err)
	require.Equal(t, PersistenceLocal, p)

	p, err = ParsePersistence(" SESSION ")
	require.NoError(t, err)
	require.Equal(t, PersistenceSession, p)

	_, err = ParsePersistence("forever")
	require.ErrorIs(t, err, ErrInvalidPersistence)
}

func TestCreateSessionUsesPersistenceTTL(t *testing.T) {
	db, svc, clock := setupSessionService(t, nil)
	user := createTestUser(t, db, "owner@studio.test")
	ctx := context.Background()

	local, session, err := svc.CreateSession(ctx, user.ID, PersistenceLocal, SessionMetadata{
		IPAddress: "10.0.0.1 ",
		UserAgent: "unit-test",
		Email:     user.Email,
	})
	require.NoError(t, err)
	require.NotEmpty(t, local.AccessToken)
	require.NotEmpty(t, local.RefreshToken)
	require.True(t, local.Persistent)
	require.True(t, local.RefreshExpiresAt.Equal(clock.Now().Add(DefaultPersistentTTL)))
	require.Equal(t, "10.0.0.1", session.IPAddress)

	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", session.ID).Error)
	require.Equal(t, crypto.HashToken(local.RefreshToken), stored.RefreshHash)
	require.NotEqual(t, local.RefreshToken, stored.RefreshHash)
	require.True(t, stored.Persistent)

	browser, _, err := svc.CreateSession(ctx, user.ID, PersistenceSession, SessionMetadata{})
	require.NoError(t, err)
	require.False(t, browser.Persistent)
	require.True(t, browser.RefreshExpiresAt.Equal(clock.Now().Add(DefaultSessionTTL)))

	claims, err := svc.JWT().ValidateAccessToken(local.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "owner@studio.test", claims.Email)
	require.Equal(t, session.ID, claims.SessionID)

	_, _, err = svc.CreateSession(ctx, user.ID, Persistence("forever"), SessionMetadata{})
	require.ErrorIs(t, err, ErrInvalidPersistence)
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	db, svc, clock := setupSessionService(t, nil)
	user := createTestUser(t, db, "owner@studio.test")
	ctx := context.Background()

	tokens, session, err := svc.CreateSession(ctx, user.ID, PersistenceSession, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	rotated, updated, err := svc.RefreshSession(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	require.Equal(t, session.ID, updated.ID)
	require.False(t, rotated.Persistent)
	require.True(t, rotated.RefreshExpiresAt.Equal(clock.Now().Add(DefaultSessionTTL)))
	require.True(t, updated.LastUsedAt.Equal(clock.Now()))

	claims, err := svc.JWT().ValidateAccessToken(rotated.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "owner@studio.test", claims.Email)

	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = svc.RefreshSession(ctx, "  ")
	require.ErrorIs(t, err, ErrSessionInvalidToken)
}

func TestRefreshSessionExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t, nil)
	user := createTestUser(t, db, "owner@studio.test")

	tokens, _, err := svc.CreateSession(context.Background(), user.ID, PersistenceSession, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(DefaultSessionTTL)
	_, _, err = svc.RefreshSession(context.Background(), tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestRevokeSessionPreventsRefresh(t *testing.T) {
	db, svc, _ := setupSessionService(t, nil)
	user := createTestUser(t, db, "owner@studio.test")
	ctx := context.Background()

	tokens, session, err := svc.CreateSession(ctx, user.ID, PersistenceLocal, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(ctx, session.ID))
	require.ErrorIs(t, svc.RevokeSession(ctx, session.ID), ErrSessionNotFound)
	require.ErrorIs(t, svc.RevokeSession(ctx, "non-existent"), ErrSessionNotFound)

	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRevokeUserSessionsWithCache(t *testing.T) {
	var store cache.Store
	db, svc, _ := setupSessionService(t, func(db *gorm.DB) SessionCache {
		store = cache.NewDatabaseStore(db)
		return NewSessionCache(store)
	})
	user := createTestUser(t, db, "owner@studio.test")
	ctx := context.Background()

	first, _, err := svc.CreateSession(ctx, user.ID, PersistenceLocal, SessionMetadata{})
	require.NoError(t, err)
	second, _, err := svc.CreateSession(ctx, user.ID, PersistenceSession, SessionMetadata{})
	require.NoError(t, err)

	_, found, err := store.Get(ctx, sessionCacheKey(crypto.HashToken(first.RefreshToken)))
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, svc.RevokeUserSessions(ctx, user.ID))

	_, found, err = store.Get(ctx, sessionCacheKey(crypto.HashToken(first.RefreshToken)))
	require.NoError(t, err)
	require.False(t, found)

	for _, pair := range []TokenPair{first, second} {
		_, _, err := svc.RefreshSession(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrSessionRevoked)
	}
}

func TestRefreshSessionUsesCache(t *testing.T) {
	db, svc, _ := setupSessionService(t, func(db *gorm.DB) SessionCache {
		return NewSessionCache(cache.NewDatabaseStore(db))
	})
	user := createTestUser(t, db, "owner@studio.test")
	ctx := context.Background()

	tokens, _, err := svc.CreateSession(ctx, user.ID, PersistenceLocal, SessionMetadata{})
	require.NoError(t, err)

	rotated, _, err := svc.RefreshSession(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = svc.RefreshSession(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestCleanupExpiredRemovesStaleSessions(t *testing.T) {
	db, svc, clock := setupSessionService(t, nil)
	user := createTestUser(t, db, "owner@studio.test")
	ctx := context.Background()

	_, short, err := svc.CreateSession(ctx, user.ID, PersistenceSession, SessionMetadata{})
	require.NoError(t, err)
	_, revoked, err := svc.CreateSession(ctx, user.ID, PersistenceLocal, SessionMetadata{})
	require.NoError(t, err)
	_, kept, err := svc.CreateSession(ctx, user.ID, PersistenceLocal, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(ctx, revoked.ID))

	clock.Advance(DefaultSessionTTL + time.Minute)

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	var ids []string
	require.NoError(t, db.Model(&models.Session{}).Pluck("id", &ids).Error)
	require.Equal(t, []string{kept.ID}, ids)
	require.NotEqual(t, short.ID, kept.ID)
}

func setupSessionService(t *testing.T, newCache func(*gorm.DB) SessionCache) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}

	jwtService, err := NewJWTService(JWTConfig{
		Secret:         "session-secret",
		AccessTokenTTL: time.Hour,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	cfg := SessionConfig{RefreshLength: 24, Clock: clock.Now}
	if newCache != nil {
		cfg.Cache = newCache(db)
	}
	sessionService, err := NewSessionService(db, jwtService, cfg)
	require.NoError(t, err)

	return db, sessionService, clock
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password")
	require.NoError(t, err)

	user := &models.User{Email: email, Password: hashed, DisplayName: "Owner"}
	require.NoError(t, db.Create(user).Error)
	return user
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
