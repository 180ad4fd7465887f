package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the error shape rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a different client message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrNoAccess is returned when a signed-in identity is not the site administrator.
	ErrNoAccess = &AppError{
		Code:       "NO_ACCESS",
		Message:    "No access",
		StatusCode: http.StatusForbidden,
	}

	ErrCSRFInvalid = &AppError{
		Code:       "CSRF_INVALID",
		Message:    "Missing or invalid CSRF token",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "Request conflicts with the current state",
		StatusCode: http.StatusConflict,
	}

	ErrPayloadTooLarge = &AppError{
		Code:       "PAYLOAD_TOO_LARGE",
		Message:    "Upload exceeds the allowed size",
		StatusCode: http.StatusRequestEntityTooLarge,
	}

	ErrUnsupportedMedia = &AppError{
		Code:       "UNSUPPORTED_MEDIA_TYPE",
		Message:    "Only image uploads are supported",
		StatusCode: http.StatusUnsupportedMediaType,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Service temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrSessionEnded = &AppError{
		Code:       "SESSION_ENDED",
		Message:    "Session ended, please sign in again",
		StatusCode: http.StatusUnauthorized,
	}

	ErrCollectionFull = &AppError{
		Code:       "COLLECTION_FULL",
		Message:    "Collection is full",
		StatusCode: http.StatusConflict,
	}

	ErrUploadFailed = &AppError{
		Code:       "UPLOAD_FAILED",
		Message:    "Upload failed",
		StatusCode: http.StatusBadGateway,
	}

	ErrReorderFailed = &AppError{
		Code:       "REORDER_FAILED",
		Message:    "Failed to save new order, please reload",
		StatusCode: http.StatusConflict,
	}

	ErrDeleteFailed = &AppError{
		Code:       "DELETE_FAILED",
		Message:    "Delete failed, changes were reverted",
		StatusCode: http.StatusBadGateway,
	}

	// ErrLinkInvalid and ErrAlreadyUsed are shown on the public testimonial page.
	ErrLinkInvalid = &AppError{
		Code:       "LINK_INVALID",
		Message:    "Link invalid",
		StatusCode: http.StatusNotFound,
	}

	ErrAlreadyUsed = &AppError{
		Code:       "ALREADY_USED",
		Message:    "Already used",
		StatusCode: http.StatusGone,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}
)

// New builds an application error.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an internal AppError while keeping the original for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest builds a 400 error with a client-facing message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}

// NewConflict builds a 409 error with a client-facing message.
func NewConflict(message string) *AppError {
	return ErrConflict.WithMessage(message)
}
