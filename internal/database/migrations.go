package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.PasswordResetToken{},
		&models.EmailVerification{},
		&models.SystemSetting{},
		&models.CacheEntry{},
		&models.MediaItem{},
		&models.Invite{},
		&models.Testimonial{},
	)
}

// AdminSeed describes the single administrator account provisioned at start-up.
type AdminSeed struct {
	Email       string
	Password    string
	DisplayName string
}

// SeedAdmin creates the administrator when no account exists for the configured
// e-mail. Existing accounts are left untouched so password changes survive restarts.
func SeedAdmin(db *gorm.DB, seed AdminSeed) error {
	email := strings.ToLower(strings.TrimSpace(seed.Email))
	if email == "" {
		return nil
	}

	var existing models.User
	err := db.Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup admin: %w", err)
	}
	if seed.Password == "" {
		return errors.New("admin password is required to provision the administrator")
	}

	hash, err := crypto.HashPassword(seed.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()
	admin := models.User{
		Email:           email,
		Password:        hash,
		DisplayName:     strings.TrimSpace(seed.DisplayName),
		EmailVerifiedAt: &now,
	}
	return db.Create(&admin).Error
}
