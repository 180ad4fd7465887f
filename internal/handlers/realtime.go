package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/middleware"
	"github.com/charlesng35/studiofolio/internal/realtime"
	"github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into WebSocket streams. Public
// streams need no token; asking for any admin stream requires the
// administrator's access token, after which every admin stream may be joined.
type RealtimeHandler struct {
	hub    *realtime.Hub
	jwt    *iauth.JWTService
	admins middleware.AdminMatcher

	public map[string]struct{}
	admin  map[string]struct{}
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, admins middleware.AdminMatcher) *RealtimeHandler {
	return &RealtimeHandler{
		hub:    hub,
		jwt:    jwt,
		admins: admins,
		public: realtime.StreamSet(realtime.PublicStreams()...),
		admin:  realtime.StreamSet(realtime.AdminStreams()...),
	}
}

// Stream GET /ws/:stream
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	streams := gatherStreams(c)
	if len(streams) == 0 {
		response.Error(c, errors.ErrNotFound)
		return
	}

	needsAdmin := false
	for _, stream := range streams {
		if _, ok := h.public[stream]; ok {
			continue
		}
		if _, ok := h.admin[stream]; !ok {
			response.Error(c, errors.ErrNotFound.WithMessage("unknown stream"))
			return
		}
		needsAdmin = true
	}

	if !needsAdmin {
		h.hub.Serve("", streams, h.public, c.Writer, c.Request)
		return
	}

	claims, ok := h.authenticate(c)
	if !ok {
		return
	}
	h.hub.Serve(claims.UserID, streams, h.admin, c.Writer, c.Request)
}

// authenticate reads the access token from the query (browsers cannot set
// headers on websocket upgrades) or the Authorization header.
func (h *RealtimeHandler) authenticate(c *gin.Context) (*iauth.Claims, bool) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		token, _ = middleware.BearerToken(c)
	}
	if token == "" || h.jwt == nil {
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil || strings.TrimSpace(claims.UserID) == "" {
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}
	if h.admins == nil || !h.admins.IsAdmin(claims.Email) {
		response.Error(c, errors.ErrNoAccess)
		return nil, false
	}
	return claims, true
}

func gatherStreams(c *gin.Context) []string {
	var streams []string

	if pathStream := normalizeStream(c.Param("stream")); pathStream != "" {
		streams = append(streams, pathStream)
	}

	for _, queryStream := range c.QueryArray("stream") {
		if normalized := normalizeStream(queryStream); normalized != "" {
			streams = append(streams, normalized)
		}
	}

	raw := c.Query("streams")
	if raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if normalized := normalizeStream(part); normalized != "" {
				streams = append(streams, normalized)
			}
		}
	}

	return uniqueStreams(streams)
}

func normalizeStream(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := streams[:0]
	for _, stream := range streams {
		if _, ok := seen[stream]; ok {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
