package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/crypto"
	"github.com/charlesng35/studiofolio/pkg/mail"
)

const (
	defaultVerificationExpiry     = 24 * time.Hour
	defaultVerificationTokenBytes = 32
)

var (
	// ErrVerificationNotFound indicates the token does not exist.
	ErrVerificationNotFound = errors.New("email verification: not found")
	// ErrVerificationExpired indicates the verification token has expired.
	ErrVerificationExpired = errors.New("email verification: expired")
	// ErrVerificationUsed signals that the verification token has already been consumed.
	ErrVerificationUsed = errors.New("email verification: already used")
	// ErrVerificationStale means the account address changed after the token was issued.
	ErrVerificationStale = errors.New("email verification: address changed since the link was sent")
)

// VerificationOption customises the EmailVerificationService.
type VerificationOption func(*EmailVerificationService)

// WithVerificationBaseURL sets the base URL used in verification links.
func WithVerificationBaseURL(url string) VerificationOption {
	return func(s *EmailVerificationService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithVerificationExpiry overrides the token lifetime.
func WithVerificationExpiry(d time.Duration) VerificationOption {
	return func(s *EmailVerificationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithVerificationClock injects a custom time source.
func WithVerificationClock(clock func() time.Time) VerificationOption {
	return func(s *EmailVerificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// EmailVerificationService confirms the administrator's e-mail address.
type EmailVerificationService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	baseURL     string
	expiry      time.Duration
	tokenLength int
	now         func() time.Time
}

// NewEmailVerificationService constructs a verification service with the provided dependencies.
func NewEmailVerificationService(db *gorm.DB, mailer mail.Mailer, opts ...VerificationOption) (*EmailVerificationService, error) {
	if db == nil {
		return nil, errors.New("email verification service: db is required")
	}

	service := &EmailVerificationService{
		db:          db,
		mailer:      mailer,
		expiry:      defaultVerificationExpiry,
		tokenLength: defaultVerificationTokenBytes,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// CreateToken replaces any pending token of the user and mails the new link
// when a mailer is configured. It returns the token and link.
func (s *EmailVerificationService) CreateToken(ctx context.Context, userID, email string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(strings.ToLower(email))
	if userID == "" {
		return "", "", errors.New("email verification service: user id is required")
	}
	if email == "" {
		return "", "", errors.New("email verification service: email is required")
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return "", "", fmt.Errorf("email verification service: generate token: %w", err)
	}

	verification := models.EmailVerification{
		UserID:    userID,
		Email:     email,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: s.now().Add(s.expiry),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.EmailVerification{}).Error; err != nil {
			return fmt.Errorf("cleanup existing: %w", err)
		}
		return tx.Create(&verification).Error
	})
	if err != nil {
		return "", "", fmt.Errorf("email verification service: create token: %w", err)
	}

	link := s.verificationLink(token)
	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "Confirm your studio e-mail address",
			Body:    fmt.Sprintf("Please confirm this address for the studio dashboard by visiting the link below:\n%s\n\nIf you did not request this, you can ignore this message.\n", link),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			return "", "", fmt.Errorf("email verification service: send email: %w", mailErr)
		}
	}

	return token, link, nil
}

// VerifyToken consumes a verification token and marks the user's address verified.
func (s *EmailVerificationService) VerifyToken(ctx context.Context, token string) (*models.EmailVerification, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrVerificationNotFound
	}

	var verification models.EmailVerification
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", crypto.HashToken(token)).
		Take(&verification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVerificationNotFound
		}
		return nil, fmt.Errorf("email verification service: find token: %w", err)
	}

	now := s.now()
	if verification.VerifiedAt != nil {
		return nil, ErrVerificationUsed
	}
	if !now.Before(verification.ExpiresAt) {
		return nil, ErrVerificationExpired
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND email = ?", verification.UserID, verification.Email).
			Update("email_verified_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVerificationStale
		}
		return tx.Model(&verification).Update("verified_at", now).Error
	})
	if errors.Is(err, ErrVerificationStale) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("email verification service: mark verified: %w", err)
	}

	verification.VerifiedAt = &now
	return &verification, nil
}

func (s *EmailVerificationService) verificationLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)
}
