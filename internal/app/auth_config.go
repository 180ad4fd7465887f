package app

import (
	"strings"

	"github.com/charlesng35/studiofolio/internal/auth"
)

const defaultRefreshLength = 48

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	issuer := strings.TrimSpace(c.JWT.Issuer)
	if issuer == "" {
		issuer = auth.DefaultIssuer
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
// The cache is left for the caller to attach.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	persistent := c.Session.PersistentTTL
	if persistent <= 0 {
		persistent = auth.DefaultPersistentTTL
	}

	session := c.Session.SessionTTL
	if session <= 0 {
		session = auth.DefaultSessionTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = defaultRefreshLength
	}

	return auth.SessionConfig{
		PersistentTTL: persistent,
		SessionTTL:    session,
		RefreshLength: length,
	}
}
