package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/studiofolio/internal/services"
	appErrors "github.com/charlesng35/studiofolio/pkg/errors"
	"github.com/charlesng35/studiofolio/pkg/response"
)

// ProfileHandler exposes administrator account management endpoints.
type ProfileHandler struct {
	accounts *services.AccountService
}

// NewProfileHandler configures a profile handler.
func NewProfileHandler(accounts *services.AccountService) *ProfileHandler {
	return &ProfileHandler{accounts: accounts}
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=128"`
	PhotoURL    *string `json:"photo_url" validate:"omitempty,max=512"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type emailChangeRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Update PATCH /api/account/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var body updateProfileRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.accounts.UpdateProfile(requestContext(c), userID, services.UpdateProfileInput{
		DisplayName: body.DisplayName,
		PhotoURL:    body.PhotoURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// ChangePassword POST /api/account/password
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var body passwordChangeRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.accounts.UpdatePassword(requestContext(c), userID, body.CurrentPassword, body.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// ChangeEmail POST /api/account/email. The current access token keeps the
// old address; clients refresh to pick up the new one.
func (h *ProfileHandler) ChangeEmail(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var body emailChangeRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.accounts.UpdateEmail(requestContext(c), userID, body.Password, body.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// SendVerification POST /api/account/verify-email
func (h *ProfileHandler) SendVerification(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.accounts.SendEmailVerification(requestContext(c), userID); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"sent": true})
}
