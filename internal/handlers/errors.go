package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/gallery"
	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/internal/services"
	"github.com/charlesng35/studiofolio/internal/storage"
	"github.com/charlesng35/studiofolio/internal/transcode"
	appErrors "github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/response"
)

// translateError maps domain errors onto the API error catalogue.
func translateError(err error) *appErrors.AppError {
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var (
		inputErr  *services.InputError
		fieldErr  *models.FieldError
		decodeErr *transcode.DecodeError
		uploadErr *gallery.UploadError
	)

	switch {
	case errors.Is(err, storage.ErrStorageUnavailable),
		errors.Is(err, gallery.ErrClosed):
		return appErrors.ErrServiceUnavailable
	case errors.As(err, &uploadErr):
		return appErrors.ErrUploadFailed.WithInternal(err)
	case errors.As(err, &inputErr):
		return appErrors.NewBadRequest(inputErr.Error())
	case errors.As(err, &fieldErr):
		return appErrors.NewBadRequest(fieldErr.Error())
	case errors.As(err, &decodeErr),
		errors.Is(err, services.ErrAvatarNotImage):
		return appErrors.ErrUnsupportedMedia
	case errors.Is(err, services.ErrInvalidRating),
		errors.Is(err, services.ErrDescriptionRequired),
		errors.Is(err, services.ErrAvatarRequired),
		errors.Is(err, services.ErrWeakPassword),
		errors.Is(err, gallery.ErrInvalidPosition),
		errors.Is(err, gallery.ErrNoFiles),
		errors.Is(err, transcode.ErrEmptyInput):
		return appErrors.NewBadRequest(userMessage(err))
	case errors.Is(err, services.ErrInviteNotFound):
		return appErrors.ErrLinkInvalid
	case errors.Is(err, services.ErrInviteUsed):
		return appErrors.ErrAlreadyUsed
	case errors.Is(err, services.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	case errors.Is(err, services.ErrNotAdmin):
		return appErrors.ErrNoAccess
	case errors.Is(err, services.ErrEmailTaken):
		return appErrors.NewConflict("Email already in use")
	case errors.Is(err, services.ErrResetTokenInvalid),
		errors.Is(err, services.ErrVerificationNotFound),
		errors.Is(err, services.ErrVerificationUsed),
		errors.Is(err, services.ErrVerificationExpired),
		errors.Is(err, services.ErrVerificationStale):
		return appErrors.NewBadRequest(userMessage(err))
	case errors.Is(err, iauth.ErrSessionNotFound),
		errors.Is(err, iauth.ErrSessionRevoked),
		errors.Is(err, iauth.ErrSessionExpired),
		errors.Is(err, iauth.ErrSessionInvalidToken):
		return appErrors.ErrSessionEnded
	case errors.Is(err, gallery.ErrUnknownKind),
		errors.Is(err, gallery.ErrNotFound):
		return appErrors.ErrNotFound
	case errors.Is(err, gallery.ErrFull):
		return appErrors.ErrCollectionFull
	case errors.Is(err, gallery.ErrReorderFailed):
		return appErrors.ErrReorderFailed
	case errors.Is(err, gallery.ErrDeleteFailed):
		return appErrors.ErrDeleteFailed.WithInternal(err)
	}
	return appErrors.ErrInternalServer.WithInternal(err)
}

// respondError logs unexpected failures and writes the translated error.
func respondError(c *gin.Context, err error) {
	appErr := translateError(err)
	if appErr.StatusCode >= 500 {
		logger.WithModule("http").Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	response.Error(c, appErr)
}

// userMessage strips the "<package>: " prefix of a sentinel error.
func userMessage(err error) string {
	msg := err.Error()
	if _, rest, ok := strings.Cut(msg, ": "); ok {
		msg = rest
	}
	if msg == "" {
		return "Invalid request"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
