package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/auth"
	"github.com/charlesng35/studiofolio/internal/database"
	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/crypto"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/mail"
	"github.com/charlesng35/studiofolio/pkg/metrics"
)

// AdminEmailSetting holds the current administrator address. It starts as the
// configured address and follows later e-mail changes.
const AdminEmailSetting = "admin.email"

const (
	minPasswordLength      = 8
	defaultResetExpiry     = time.Hour
	defaultResetTokenBytes = 32
)

// LoginInput carries the sign-in form.
type LoginInput struct {
	Email       string
	Password    string
	Persistence auth.Persistence
	IPAddress   string
	UserAgent   string
}

// UpdateProfileInput changes the fields that are set.
type UpdateProfileInput struct {
	DisplayName *string
	PhotoURL    *string
}

// AccountOption customises AccountService behaviour.
type AccountOption func(*AccountService)

// WithAccountClock injects a custom clock primarily for testing.
func WithAccountClock(clock func() time.Time) AccountOption {
	return func(s *AccountService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithResetBaseURL sets the site URL used in password reset links.
func WithResetBaseURL(url string) AccountOption {
	return func(s *AccountService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithResetExpiry overrides the password reset token lifetime.
func WithResetExpiry(d time.Duration) AccountOption {
	return func(s *AccountService) {
		if d > 0 {
			s.resetExpiry = d
		}
	}
}

// WithVerification sends a confirmation link after e-mail changes.
func WithVerification(v *EmailVerificationService) AccountOption {
	return func(s *AccountService) {
		s.verification = v
	}
}

// AccountService manages the single administrator account.
type AccountService struct {
	db           *gorm.DB
	sessions     *auth.SessionService
	mailer       mail.Mailer
	verification *EmailVerificationService
	baseURL      string
	resetExpiry  time.Duration
	now          func() time.Time
	log          *zap.Logger

	mu         sync.RWMutex
	adminEmail string
}

// NewAccountService constructs an AccountService. mailer may be nil.
func NewAccountService(db *gorm.DB, sessions *auth.SessionService, mailer mail.Mailer, opts ...AccountOption) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	if sessions == nil {
		return nil, errors.New("account service: session service is required")
	}
	service := &AccountService{
		db:          db,
		sessions:    sessions,
		mailer:      mailer,
		resetExpiry: defaultResetExpiry,
		now:         time.Now,
		log:         logger.WithModule("auth"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Bootstrap resolves the administrator address and provisions the account
// when it does not exist yet.
func (s *AccountService) Bootstrap(ctx context.Context, seed database.AdminSeed) error {
	candidate := normalizeEmail(seed.Email)
	if candidate == "" {
		return errors.New("account service: admin email is required")
	}
	email, err := database.EnsureSystemSetting(ctx, s.db, AdminEmailSetting, candidate)
	if err != nil {
		return fmt.Errorf("account service: resolve admin email: %w", err)
	}
	seed.Email = email
	if err := database.SeedAdmin(s.db.WithContext(ctx), seed); err != nil {
		return fmt.Errorf("account service: seed admin: %w", err)
	}
	s.setAdminEmail(email)
	if email != candidate {
		s.log.Info("administrator address differs from configuration", zap.String("email", email))
	}
	return nil
}

// AdminEmail is the address allowed to sign in.
func (s *AccountService) AdminEmail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adminEmail
}

// IsAdmin reports whether email belongs to the administrator.
func (s *AccountService) IsAdmin(email string) bool {
	admin := s.AdminEmail()
	return admin != "" && normalizeEmail(email) == admin
}

func (s *AccountService) setAdminEmail(email string) {
	s.mu.Lock()
	s.adminEmail = email
	s.mu.Unlock()
}

// Authenticate signs the administrator in and opens a refresh session.
func (s *AccountService) Authenticate(ctx context.Context, in LoginInput) (auth.TokenPair, *models.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return auth.TokenPair{}, nil, ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return auth.TokenPair{}, nil, ErrInvalidCredentials
	}
	if err != nil {
		return auth.TokenPair{}, nil, fmt.Errorf("account service: find user: %w", err)
	}
	if !crypto.VerifyPassword(user.Password, in.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return auth.TokenPair{}, nil, ErrInvalidCredentials
	}
	if !s.IsAdmin(user.Email) {
		metrics.AuthAttempts.WithLabelValues("denied").Inc()
		s.log.Warn("sign-in refused for non-admin account", zap.String("user_id", user.ID))
		return auth.TokenPair{}, nil, ErrNotAdmin
	}

	persistence := in.Persistence
	if persistence == "" {
		persistence = auth.PersistenceLocal
	}
	pair, _, err := s.sessions.CreateSession(ctx, user.ID, persistence, auth.SessionMetadata{
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Email:     user.Email,
	})
	if err != nil {
		return auth.TokenPair{}, nil, err
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": in.IPAddress,
	}).Error; err != nil {
		s.log.Warn("record last login", zap.Error(err))
	}
	user.LastLoginAt = &now
	user.LastLoginIP = in.IPAddress

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return pair, &user, nil
}

// Profile loads the account of userID.
func (s *AccountService) Profile(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account service: load profile: %w", err)
	}
	return &user, nil
}

// UpdateProfile changes the display name and photo.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*models.User, error) {
	updates := map[string]any{}
	if in.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*in.DisplayName)
	}
	if in.PhotoURL != nil {
		updates["photo_url"] = strings.TrimSpace(*in.PhotoURL)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("account service: update profile: %w", err)
		}
	}
	return s.Profile(ctx, userID)
}

// UpdatePassword replaces the password after checking the current one.
func (s *AccountService) UpdatePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(user.Password, current) {
		return ErrInvalidCredentials
	}
	return s.setPassword(ctx, s.db, user.ID, next)
}

// UpdateEmail moves the account and the administrator identity to a new
// address. The new address starts unverified.
func (s *AccountService) UpdateEmail(ctx context.Context, userID, password, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &InputError{Field: "email", Reason: "must be a valid address"}
	}
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifyPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}
	if email == user.Email {
		return user, nil
	}
	wasAdmin := s.IsAdmin(user.Email)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
			"email":             email,
			"email_verified_at": nil,
		}).Error; err != nil {
			return err
		}
		if wasAdmin {
			return database.UpsertSystemSetting(ctx, tx, AdminEmailSetting, email)
		}
		return nil
	})
	if isUniqueConstraintError(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("account service: update email: %w", err)
	}
	if wasAdmin {
		s.setAdminEmail(email)
	}

	user.Email = email
	user.EmailVerifiedAt = nil
	if s.verification != nil {
		if _, _, err := s.verification.CreateToken(ctx, user.ID, email); err != nil {
			s.log.Warn("send verification after email change", zap.Error(err))
		}
	}
	return user, nil
}

// SendEmailVerification mails a confirmation link for the current address.
func (s *AccountService) SendEmailVerification(ctx context.Context, userID string) error {
	if s.verification == nil {
		return errors.New("account service: email verification is not configured")
	}
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	_, _, err = s.verification.CreateToken(ctx, user.ID, user.Email)
	return err
}

// SendPasswordReset mails a reset link when email belongs to an account.
// Unknown addresses succeed silently.
func (s *AccountService) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("account service: find user: %w", err)
	}

	token, err := crypto.GenerateToken(defaultResetTokenBytes)
	if err != nil {
		return fmt.Errorf("account service: generate reset token: %w", err)
	}
	reset := models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: s.now().Add(s.resetExpiry),
	}
	if err := s.db.WithContext(ctx).Create(&reset).Error; err != nil {
		return fmt.Errorf("account service: store reset token: %w", err)
	}

	if s.mailer == nil {
		s.log.Warn("password reset requested without a mailer")
		return nil
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	msg := mail.Message{
		To:      []string{user.Email},
		Subject: "Reset your studio password",
		Body:    fmt.Sprintf("Use the link below to choose a new password. It expires in %s.\n%s\n\nIf you did not ask for this, ignore this message.\n", s.resetExpiry, link),
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		return fmt.Errorf("account service: send reset email: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and signs the account out everywhere.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrResetTokenInvalid
	}
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}

	var reset models.PasswordResetToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", crypto.HashToken(token)).Take(&reset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrResetTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("account service: find reset token: %w", err)
	}
	now := s.now()
	if !reset.Usable(now) {
		return ErrResetTokenInvalid
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", reset.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrResetTokenInvalid
		}
		return s.setPassword(ctx, tx, reset.UserID, password)
	})
	if err != nil {
		return err
	}

	if err := s.sessions.RevokeUserSessions(ctx, reset.UserID); err != nil {
		s.log.Warn("revoke sessions after password reset", zap.Error(err))
	}
	return nil
}

func (s *AccountService) setPassword(ctx context.Context, db *gorm.DB, userID, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("account service: hash password: %w", err)
	}
	if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("password", hash).Error; err != nil {
		return fmt.Errorf("account service: update password: %w", err)
	}
	return nil
}
