package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/studiofolio/pkg/crypto"
	"github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/response"
)

const (
	// CSRFCookieName is the cookie used to transport the CSRF token to clients.
	CSRFCookieName = "studiofolio_csrf"
	// CSRFHeaderName is the header clients must present for unsafe HTTP methods.
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenLength  = 48
	csrfCookieMaxAge = 12 * 60 * 60 // 12 hours
)

// CSRFConfig scopes the double-submit token to the refresh cookie it protects.
type CSRFConfig struct {
	// Path and Domain match the refresh cookie; Path defaults to "/".
	Path   string
	Domain string
	Secure bool

	// SessionCookie names the refresh cookie. Routes listed in CookieOnly only
	// need a token when the request carries it; without the cookie the refresh
	// token travels in the body and there is no ambient credential to abuse.
	SessionCookie string
	CookieOnly    []string

	// RotateOn lists routes that start or extend a session. A request that
	// passes validation there receives a fresh token.
	RotateOn []string
}

// CSRF implements the double-submit-cookie pattern for the cookie-carrying
// auth routes. Safe methods receive the token via cookie and header; mutating
// requests must echo it in X-CSRF-Token.
func CSRF(cfg CSRFConfig) gin.HandlerFunc {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	cookieOnly := pathSet(cfg.CookieOnly)
	rotateOn := pathSet(cfg.RotateOn)
	log := logger.WithModule("csrf")

	return func(c *gin.Context) {
		method := c.Request.Method
		if method == http.MethodOptions {
			c.Next()
			return
		}

		route := c.FullPath()
		if !isUnsafeMethod(method) {
			token, err := cfg.ensureCookie(c)
			if err != nil {
				response.Error(c, errors.ErrInternalServer)
				c.Abort()
				return
			}
			c.Header(CSRFHeaderName, token)
			c.Next()
			return
		}

		if _, ok := cookieOnly[route]; ok && !cfg.hasSessionCookie(c) {
			c.Next()
			return
		}

		cookieToken, _ := c.Cookie(CSRFCookieName)
		headerToken := strings.TrimSpace(c.GetHeader(CSRFHeaderName))
		if !constantTimeEqual(cookieToken, headerToken) {
			log.Warn("csrf validation failed",
				zap.String("method", method),
				zap.String("path", route),
				zap.Bool("cookie_present", cookieToken != ""),
			)
			response.Error(c, errors.ErrCSRFInvalid)
			c.Abort()
			return
		}

		if _, ok := rotateOn[route]; ok {
			token, err := cfg.issue(c)
			if err != nil {
				response.Error(c, errors.ErrInternalServer)
				c.Abort()
				return
			}
			c.Header(CSRFHeaderName, token)
		}
		c.Next()
	}
}

func (cfg CSRFConfig) hasSessionCookie(c *gin.Context) bool {
	if cfg.SessionCookie == "" {
		return true
	}
	value, err := c.Cookie(cfg.SessionCookie)
	return err == nil && value != ""
}

func (cfg CSRFConfig) ensureCookie(c *gin.Context) (string, error) {
	if existing, err := c.Cookie(CSRFCookieName); err == nil && existing != "" {
		cfg.setCookie(c, existing)
		return existing, nil
	}
	return cfg.issue(c)
}

func (cfg CSRFConfig) issue(c *gin.Context) (string, error) {
	token, err := crypto.GenerateToken(csrfTokenLength)
	if err != nil {
		return "", err
	}
	cfg.setCookie(c, token)
	return token, nil
}

func (cfg CSRFConfig) setCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		Secure:   cfg.Secure || isSecureRequest(c.Request),
		HttpOnly: false,
		MaxAge:   csrfCookieMaxAge,
		SameSite: http.SameSiteStrictMode,
	})
}

func pathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func constantTimeEqual(a, b string) bool {
	if a == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
