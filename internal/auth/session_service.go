package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/crypto"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/metrics"
)

const (
	// DefaultPersistentTTL is the refresh lifetime of "local" sessions.
	DefaultPersistentTTL = 30 * 24 * time.Hour
	// DefaultSessionTTL is the refresh lifetime of "session" sessions, which
	// also end when the browser discards its session cookie.
	DefaultSessionTTL = 12 * time.Hour
)

// Persistence selects how long a sign-in survives.
type Persistence string

const (
	PersistenceLocal   Persistence = "local"
	PersistenceSession Persistence = "session"
)

// ErrInvalidPersistence is returned for unknown persistence modes.
var ErrInvalidPersistence = errors.New("session: persistence must be local or session")

// ParsePersistence resolves a persistence mode; empty means local.
func ParsePersistence(value string) (Persistence, error) {
	switch Persistence(strings.ToLower(strings.TrimSpace(value))) {
	case "", PersistenceLocal:
		return PersistenceLocal, nil
	case PersistenceSession:
		return PersistenceSession, nil
	}
	return "", ErrInvalidPersistence
}

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	PersistentTTL time.Duration
	SessionTTL    time.Duration
	RefreshLength int
	Clock         func() time.Time
	Cache         SessionCache
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
	Email     string
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	Persistent       bool
}

var (
	// ErrSessionNotFound indicates that no session matches the provided token or identifier.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks a session that has been revoked.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrSessionExpired signals that a refresh token has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the supplied refresh token is malformed.
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionService manages creation, rotation, and revocation of refresh sessions.
type SessionService struct {
	db            *gorm.DB
	jwt           *JWTService
	persistentTTL time.Duration
	sessionTTL    time.Duration
	tokenLen      int
	now           func() time.Time
	cache         SessionCache
	log           *zap.Logger
}

// NewSessionService constructs a session manager backed by the provided database and JWT service.
func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	persistentTTL := cfg.PersistentTTL
	if persistentTTL <= 0 {
		persistentTTL = DefaultPersistentTTL
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}

	length := cfg.RefreshLength
	if length <= 0 {
		length = 48
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:            db,
		jwt:           jwtService,
		persistentTTL: persistentTTL,
		sessionTTL:    sessionTTL,
		tokenLen:      length,
		now:           clock,
		cache:         cfg.Cache,
		log:           logger.WithModule("auth"),
	}, nil
}

// JWT exposes the token service used to sign access tokens.
func (s *SessionService) JWT() *JWTService {
	return s.jwt
}

func (s *SessionService) ttlFor(persistent bool) time.Duration {
	if persistent {
		return s.persistentTTL
	}
	return s.sessionTTL
}

// CreateSession opens a refresh session and issues a fresh token pair.
func (s *SessionService) CreateSession(ctx context.Context, userID string, persistence Persistence, meta SessionMetadata) (TokenPair, *models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return TokenPair{}, nil, errors.New("session service: user id is required")
	}
	if persistence != PersistenceLocal && persistence != PersistenceSession {
		return TokenPair{}, nil, ErrInvalidPersistence
	}

	refreshToken, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate refresh token: %w", err)
	}

	now := s.now()
	persistent := persistence == PersistenceLocal
	session := &models.Session{
		UserID:      userID,
		RefreshHash: crypto.HashToken(refreshToken),
		Persistent:  persistent,
		IPAddress:   strings.TrimSpace(meta.IPAddress),
		UserAgent:   strings.TrimSpace(meta.UserAgent),
		ExpiresAt:   now.Add(s.ttlFor(persistent)),
		LastUsedAt:  now,
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: create session: %w", err)
	}
	metrics.ActiveSessions.Inc()

	pair, err := s.issue(session, refreshToken, meta.Email)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.cacheSession(ctx, session)
	return pair, session, nil
}

// RefreshSession rotates the refresh token, keeping the session's persistence mode.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string) (TokenPair, *models.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, nil, ErrSessionInvalidToken
	}
	oldHash := crypto.HashToken(refreshToken)

	session, err := s.lookup(ctx, oldHash)
	if err != nil {
		return TokenPair{}, nil, err
	}

	now := s.now()
	if session.RevokedAt != nil {
		return TokenPair{}, nil, ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return TokenPair{}, nil, ErrSessionExpired
	}

	newRefresh, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: generate refresh token: %w", err)
	}
	newHash := crypto.HashToken(newRefresh)
	expiresAt := now.Add(s.ttlFor(session.Persistent))

	// Matching on the old hash makes a concurrent rotation of the same token lose.
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND refresh_hash = ? AND revoked_at IS NULL", session.ID, oldHash).
		Updates(map[string]any{
			"refresh_hash": newHash,
			"expires_at":   expiresAt,
			"last_used_at": now,
		})
	if res.Error != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: update session: %w", res.Error)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, oldHash)
	}
	if res.RowsAffected == 0 {
		return TokenPair{}, nil, ErrSessionNotFound
	}

	session.RefreshHash = newHash
	session.ExpiresAt = expiresAt
	session.LastUsedAt = now

	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "email").Take(&user, "id = ?", session.UserID).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: load user: %w", err)
	}

	pair, err := s.issue(session, newRefresh, user.Email)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.cacheSession(ctx, session)
	return pair, session, nil
}

func (s *SessionService) lookup(ctx context.Context, refreshHash string) (*models.Session, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, refreshHash)
		if err == nil && cached != nil {
			return cached, nil
		}
		if err != nil && !errors.Is(err, errSessionCacheMiss) {
			s.log.Debug("session cache read failed", zap.Error(err))
		}
	}

	var session models.Session
	err := s.db.WithContext(ctx).Where("refresh_hash = ?", refreshHash).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}
	return &session, nil
}

func (s *SessionService) issue(session *models.Session, refreshToken, email string) (TokenPair, error) {
	accessToken, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:     session.UserID,
		SessionID:  session.ID,
		Email:      strings.ToLower(strings.TrimSpace(email)),
		Persistent: session.Persistent,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("session service: generate access token: %w", err)
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: session.ExpiresAt,
		Persistent:       session.Persistent,
	}, nil
}

// cache failures are non-fatal; the database stays authoritative.
func (s *SessionService) cacheSession(ctx context.Context, session *models.Session) {
	if s.cache == nil {
		return
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if err := s.cache.Set(ctx, session, ttl); err != nil {
		s.log.Debug("session cache write failed", zap.Error(err))
	}
}

// RevokeSession marks a session as revoked, preventing further refresh operations.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionInvalidToken
	}

	var session models.Session
	err := s.db.WithContext(ctx).Select("id", "refresh_hash").Take(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("session service: find session: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, session.RefreshHash)
	}
	metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	return nil
}

// RevokeUserSessions revokes every active session belonging to a user.
func (s *SessionService) RevokeUserSessions(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrSessionInvalidToken
	}

	var hashes []string
	if s.cache != nil {
		if err := s.db.WithContext(ctx).
			Model(&models.Session{}).
			Where("user_id = ? AND revoked_at IS NULL", userID).
			Pluck("refresh_hash", &hashes).Error; err != nil {
			hashes = nil
		}
	}

	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke user sessions: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	if s.cache != nil && len(hashes) > 0 {
		_ = s.cache.Delete(ctx, hashes...)
	}
	return nil
}

// CleanupExpired removes expired and revoked sessions.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now()
	stale := s.db.WithContext(ctx).Where("expires_at < ?", now).Or("revoked_at IS NOT NULL")

	var activeExpired int64
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("expires_at < ? AND revoked_at IS NULL", now).
		Count(&activeExpired).Error; err != nil {
		return 0, fmt.Errorf("session service: count expired sessions: %w", err)
	}

	var hashes []string
	if s.cache != nil {
		_ = s.db.WithContext(ctx).Model(&models.Session{}).Where(stale).Pluck("refresh_hash", &hashes).Error
	}

	result := s.db.WithContext(ctx).Where(stale).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	if s.cache != nil && len(hashes) > 0 {
		_ = s.cache.Delete(ctx, hashes...)
	}
	if activeExpired > 0 {
		metrics.ActiveSessions.Sub(float64(activeExpired))
	}
	return result.RowsAffected, nil
}
