package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/storage"
	appErrors "github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/response"
)

// MediaSource serves stored objects; storage.MemoryStore implements it.
type MediaSource interface {
	Open(key string) (io.ReadSeeker, storage.Object, string, error)
}

// Media serves objects of the in-memory store under /media/*key.
func Media(source MediaSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		body, obj, cacheControl, err := source.Open(key)
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidKey) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}

		if obj.ContentType != "" {
			c.Header("Content-Type", obj.ContentType)
		}
		if cacheControl != "" {
			c.Header("Cache-Control", cacheControl)
		}
		http.ServeContent(c.Writer, c.Request, obj.Key, obj.LastModified, body)
	}
}
