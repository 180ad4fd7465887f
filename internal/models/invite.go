package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// InviteTTL is how long an invite link accepts a testimonial.
const InviteTTL = 24 * time.Hour

// Invite grants one client a single, time-limited testimonial submission.
type Invite struct {
	Token      string          `gorm:"primaryKey;size:64" json:"token"`
	ClientName string          `gorm:"not null" json:"client_name"`
	Event      string          `gorm:"not null" json:"event"`
	EventPlace string          `json:"event_place"`
	EventDate  *datatypes.Date `json:"event_date,omitempty"`
	AvatarURL  string          `gorm:"not null" json:"avatar_url"`
	AvatarRef  string          `json:"-"`
	CreatedAt  time.Time       `gorm:"index" json:"created_at"`
	ExpiresAt  time.Time       `gorm:"index" json:"expires_at"`
}

// Validate rejects invites missing the fields the submission page renders.
func (i *Invite) Validate() error {
	const model = "invite"
	if err := required(model, "token", strings.TrimSpace(i.Token)); err != nil {
		return err
	}
	if err := required(model, "client_name", strings.TrimSpace(i.ClientName)); err != nil {
		return err
	}
	if err := required(model, "event", strings.TrimSpace(i.Event)); err != nil {
		return err
	}
	if err := required(model, "avatar_url", strings.TrimSpace(i.AvatarURL)); err != nil {
		return err
	}
	if !i.ExpiresAt.After(i.CreatedAt) {
		return &FieldError{Model: model, Field: "expires_at", Reason: "must follow created_at"}
	}
	return nil
}
