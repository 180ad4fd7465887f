package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/realtime"
	"github.com/charlesng35/studiofolio/internal/services"
	appErrors "github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/response"
)

const maxPublicTestimonials = 100

// PublicHandler serves the unauthenticated site: gallery snapshots,
// testimonials and the invite submission page.
type PublicHandler struct {
	snapshots    *gallery.SnapshotCache
	invites      *services.InviteService
	testimonials *services.TestimonialService
	events       Broadcaster
}

// NewPublicHandler constructs the public handler. events may be nil.
func NewPublicHandler(snapshots *gallery.SnapshotCache, invites *services.InviteService, testimonials *services.TestimonialService, events Broadcaster) *PublicHandler {
	return &PublicHandler{
		snapshots:    snapshots,
		invites:      invites,
		testimonials: testimonials,
		events:       events,
	}
}

type submitTestimonialRequest struct {
	Stars       int    `json:"stars"`
	Description string `json:"description" validate:"max=4000"`
}

// Gallery GET /api/public/gallery/:kind
func (h *PublicHandler) Gallery(c *gin.Context) {
	kind, err := gallery.ParseKind(c.Param("kind"))
	if err != nil {
		response.Error(c, appErrors.ErrNotFound.WithMessage("unknown collection"))
		return
	}
	snap, err := h.snapshots.Get(requestContext(c), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, snap.Items, &response.Meta{
		Total:    len(snap.Items),
		Capacity: kind.Capacity(),
		Version:  snap.Version,
	})
}

// Testimonials GET /api/public/testimonials
func (h *PublicHandler) Testimonials(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 0)
	if limit > maxPublicTestimonials {
		limit = maxPublicTestimonials
	}
	items, err := h.testimonials.ListPublic(requestContext(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Total: len(items)})
}

// Invite GET /api/public/invites/:token
func (h *PublicHandler) Invite(c *gin.Context) {
	invite, err := h.invites.Lookup(requestContext(c), strings.TrimSpace(c.Param("token")))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, invite)
}

// Submit POST /api/public/invites/:token/testimonial
func (h *PublicHandler) Submit(c *gin.Context) {
	var req submitTestimonialRequest
	if !bindAndValidate(c, &req) {
		return
	}

	testimonial, err := h.testimonials.Submit(requestContext(c), c.Param("token"), services.SubmitInput{
		Stars:       req.Stars,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	broadcast(h.events, realtime.StreamTestimonials, realtime.EventCreated, testimonial)
	broadcast(h.events, realtime.StreamInvites, realtime.EventUpdated, gin.H{
		"token":  testimonial.Token,
		"status": services.InviteDone,
	})
	response.Success(c, http.StatusCreated, testimonial)
}
