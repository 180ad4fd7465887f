package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/studiofolio/internal/cache"
	"github.com/charlesng35/studiofolio/internal/models"
)

const sessionCacheKeyPrefix = "auth:sessions:refresh:"

var errSessionCacheMiss = errors.New("session cache miss")

// SessionCache stores sessions keyed by refresh token digest.
type SessionCache interface {
	Get(ctx context.Context, refreshHash string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, refreshHashes ...string) error
}

// NewSessionCache keeps sessions in store, which may be the database or Redis cache.
func NewSessionCache(store cache.Store) SessionCache {
	if store == nil {
		return nil
	}
	return &storeSessionCache{store: store}
}

type storeSessionCache struct {
	store cache.Store
}

func (c *storeSessionCache) Get(ctx context.Context, refreshHash string) (*models.Session, error) {
	key := sessionCacheKey(refreshHash)
	if key == "" {
		return nil, errSessionCacheMiss
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errSessionCacheMiss
	}

	var cached cachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	return cached.model(), nil
}

func (c *storeSessionCache) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if session == nil {
		return errors.New("session cache: session is nil")
	}
	key := sessionCacheKey(session.RefreshHash)
	if key == "" {
		return errors.New("session cache: refresh hash missing")
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return cache.SetJSON(ctx, c.store, key, newCachedSession(session), ttl)
}

func (c *storeSessionCache) Delete(ctx context.Context, refreshHashes ...string) error {
	keys := make([]string, 0, len(refreshHashes))
	for _, hash := range refreshHashes {
		if key := sessionCacheKey(hash); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

func sessionCacheKey(refreshHash string) string {
	hash := strings.TrimSpace(refreshHash)
	if hash == "" {
		return ""
	}
	return sessionCacheKeyPrefix + hash
}

// cachedSession carries the fields hidden from API JSON on models.Session.
type cachedSession struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	RefreshHash string     `json:"refresh_hash"`
	Persistent  bool       `json:"persistent"`
	IPAddress   string     `json:"ip_address"`
	UserAgent   string     `json:"user_agent"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LastUsedAt  time.Time  `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at"`
}

func newCachedSession(s *models.Session) cachedSession {
	return cachedSession{
		ID:          s.ID,
		UserID:      s.UserID,
		RefreshHash: s.RefreshHash,
		Persistent:  s.Persistent,
		IPAddress:   s.IPAddress,
		UserAgent:   s.UserAgent,
		ExpiresAt:   s.ExpiresAt,
		LastUsedAt:  s.LastUsedAt,
		CreatedAt:   s.CreatedAt,
		RevokedAt:   s.RevokedAt,
	}
}

func (c cachedSession) model() *models.Session {
	return &models.Session{
		ID:          c.ID,
		UserID:      c.UserID,
		RefreshHash: c.RefreshHash,
		Persistent:  c.Persistent,
		IPAddress:   c.IPAddress,
		UserAgent:   c.UserAgent,
		ExpiresAt:   c.ExpiresAt,
		LastUsedAt:  c.LastUsedAt,
		CreatedAt:   c.CreatedAt,
		RevokedAt:   c.RevokedAt,
	}
}
