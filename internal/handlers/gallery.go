package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/models"
	appErrors "github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/response"
)

// GalleryHandler drives the server-side editing sessions of the admin editor.
type GalleryHandler struct {
	registry *gallery.Registry
	maxBytes int64
}

// NewGalleryHandler constructs a gallery handler. maxBytes bounds each file.
func NewGalleryHandler(registry *gallery.Registry, maxBytes int64) *GalleryHandler {
	return &GalleryHandler{registry: registry, maxBytes: maxBytes}
}

type galleryState struct {
	Kind     gallery.Kind       `json:"kind"`
	Items    []models.MediaItem `json:"items"`
	Busy     []string           `json:"busy"`
	Progress gallery.Progress   `json:"progress"`
	Percent  float64            `json:"percent"`
}

type reorderRequest struct {
	From *int `json:"from" validate:"required,min=0"`
	To   *int `json:"to" validate:"required,min=0"`
}

func (h *GalleryHandler) manager(c *gin.Context) (*gallery.Manager, bool) {
	kind, err := gallery.ParseKind(c.Param("kind"))
	if err != nil {
		response.Error(c, appErrors.ErrNotFound.WithMessage("unknown collection"))
		return nil, false
	}
	m, err := h.registry.Manager(kind)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return m, true
}

func (h *GalleryHandler) respondState(c *gin.Context, status int, m *gallery.Manager) {
	items := m.Items()
	progress := m.Progress()
	response.SuccessWithMeta(c, status, galleryState{
		Kind:     m.Kind(),
		Items:    items,
		Busy:     m.BusyIDs(),
		Progress: progress,
		Percent:  progress.Percent(),
	}, &response.Meta{Total: len(items), Capacity: m.Capacity(), Version: m.Version()})
}

// List GET /api/gallery/:kind
func (h *GalleryHandler) List(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	h.respondState(c, http.StatusOK, m)
}

// Append POST /api/gallery/:kind (multipart "files")
func (h *GalleryHandler) Append(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	files, rejected := readUploads(c, "files", h.maxBytes)
	if len(files) == 0 {
		respondError(c, rejected)
		return
	}

	result, err := m.Append(requestContext(c), files)
	if err != nil {
		respondError(c, err)
		return
	}
	// Files before the rejected one are stored; the rest of the batch is not.
	if rejected != nil && result.Skipped == 0 {
		respondError(c, rejected)
		return
	}
	response.SuccessWithMeta(c, http.StatusCreated, result, &response.Meta{
		Total:    len(m.Items()),
		Capacity: m.Capacity(),
		Version:  m.Version(),
	})
}

// Replace PUT /api/gallery/:kind/:id (multipart "file")
func (h *GalleryHandler) Replace(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("file is required"))
		return
	}
	file, err := readUpload(fh, h.maxBytes)
	if err != nil {
		respondError(c, err)
		return
	}

	item, err := m.Replace(requestContext(c), c.Param("id"), file)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// Delete DELETE /api/gallery/:kind/:id
func (h *GalleryHandler) Delete(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.Delete(requestContext(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	h.respondState(c, http.StatusOK, m)
}

// Reorder POST /api/gallery/:kind/reorder
func (h *GalleryHandler) Reorder(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	var req reorderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := m.Reorder(requestContext(c), *req.From, *req.To); err != nil {
		respondError(c, err)
		return
	}
	h.respondState(c, http.StatusOK, m)
}

// Refresh POST /api/gallery/:kind/refresh
func (h *GalleryHandler) Refresh(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	if err := m.Refresh(requestContext(c)); err != nil {
		respondError(c, err)
		return
	}
	h.respondState(c, http.StatusOK, m)
}
