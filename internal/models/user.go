package models

import "time"

// User is a studio account. Only the configured administrator e-mail may sign in.
type User struct {
	BaseModel

	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`

	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	LastLoginAt     *time.Time `json:"last_login_at"`
	LastLoginIP     string     `json:"last_login_ip"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`
}

// EmailVerified reports whether the current address has been confirmed.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}
