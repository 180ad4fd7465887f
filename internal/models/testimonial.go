package models

import (
	"strings"
	"time"
)

const (
	MinStars = 1
	MaxStars = 5
)

// Testimonial is written once per invite, keyed by the invite token.
type Testimonial struct {
	Token       string    `gorm:"primaryKey;size:64" json:"token"`
	FullName    string    `gorm:"not null" json:"full_name"`
	Event       string    `gorm:"not null" json:"event"`
	Stars       int       `gorm:"not null" json:"stars"`
	Description string    `gorm:"type:text;not null" json:"description"`
	AvatarURL   string    `json:"avatar_url"`
	SubmittedAt time.Time `gorm:"index" json:"submitted_at"`
}

// Validate enforces the rating bound and a non-empty description.
func (t *Testimonial) Validate() error {
	const model = "testimonial"
	if err := required(model, "token", strings.TrimSpace(t.Token)); err != nil {
		return err
	}
	if t.Stars < MinStars || t.Stars > MaxStars {
		return &FieldError{Model: model, Field: "stars", Reason: "must be between 1 and 5"}
	}
	if err := required(model, "description", strings.TrimSpace(t.Description)); err != nil {
		return err
	}
	return nil
}
