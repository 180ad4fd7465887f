package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/metrics"
	"github.com/charlesng35/studiofolio/pkg/response"
)

// AdminMatcher decides whether a signed-in e-mail belongs to the administrator.
type AdminMatcher interface {
	IsAdmin(email string) bool
}

// AdminEmail matches one fixed address.
type AdminEmail string

// IsAdmin implements AdminMatcher.
func (a AdminEmail) IsAdmin(email string) bool {
	return a != "" && normalizeEmail(email) == normalizeEmail(string(a))
}

// RequireAdmin must run after Auth. Any identity other than the
// administrator receives 403 "No access".
func RequireAdmin(admins AdminMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if admins == nil || !admins.IsAdmin(claims.Email) {
			metrics.AuthAttempts.WithLabelValues("denied").Inc()
			response.Error(c, errors.ErrNoAccess)
			c.Abort()
			return
		}
		c.Next()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
