package models

import "time"

// EmailVerification stores a pending confirmation of the admin e-mail address.
type EmailVerification struct {
	BaseModel

	UserID     string     `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Email      string     `gorm:"not null" json:"email"`
	TokenHash  string     `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at"`
}
