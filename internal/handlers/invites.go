package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/realtime"
	"github.com/charlesng35/studiofolio/internal/services"
	appErrors "github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/response"
)

// Broadcaster delivers realtime messages; *realtime.Hub implements it.
type Broadcaster interface {
	BroadcastStream(stream string, message realtime.Message)
}

func broadcast(b Broadcaster, stream, event string, data any) {
	if b == nil {
		return
	}
	b.BroadcastStream(stream, realtime.Message{Stream: stream, Event: event, Data: data})
}

// InviteHandler lets the administrator issue and track testimonial invites.
type InviteHandler struct {
	invites  *services.InviteService
	events   Broadcaster
	maxBytes int64
}

// NewInviteHandler constructs an invite handler. events may be nil.
func NewInviteHandler(invites *services.InviteService, events Broadcaster, maxBytes int64) *InviteHandler {
	return &InviteHandler{invites: invites, events: events, maxBytes: maxBytes}
}

type createInviteRequest struct {
	ClientName string `form:"client_name" json:"client_name" validate:"notblank,max=120"`
	Event      string `form:"event" json:"event" validate:"notblank,max=120"`
	EventPlace string `form:"event_place" json:"event_place" validate:"max=160"`
	EventDate  string `form:"event_date" json:"event_date" validate:"omitempty,datetime=2006-01-02"`
}

// List GET /api/invites
func (h *InviteHandler) List(c *gin.Context) {
	views, err := h.invites.List(requestContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, views, &response.Meta{Total: len(views)})
}

// Create POST /api/invites (multipart: fields and "avatar")
func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if !bindFormAndValidate(c, &req) {
		return
	}

	fh, err := c.FormFile("avatar")
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("avatar is required"))
		return
	}
	avatar, err := readUpload(fh, h.maxBytes)
	if err != nil {
		respondError(c, err)
		return
	}

	input := services.CreateInviteInput{
		ClientName: req.ClientName,
		Event:      req.Event,
		EventPlace: req.EventPlace,
		Avatar:     avatar,
	}
	if date := strings.TrimSpace(req.EventDate); date != "" {
		parsed, err := time.Parse(time.DateOnly, date)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("event date must be YYYY-MM-DD"))
			return
		}
		input.EventDate = &parsed
	}

	view, err := h.invites.Create(requestContext(c), input)
	if err != nil {
		respondError(c, err)
		return
	}

	broadcast(h.events, realtime.StreamInvites, realtime.EventCreated, view)
	response.Success(c, http.StatusCreated, view)
}
