package services

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrInviteNotFound means no invite matches the token ("link invalid").
	ErrInviteNotFound = errors.New("invite: link invalid")
	// ErrInviteUsed means the invite expired or already has a testimonial.
	ErrInviteUsed = errors.New("invite: already used")
	// ErrInvalidRating rejects stars outside 1..5.
	ErrInvalidRating = errors.New("testimonial: stars must be between 1 and 5")
	// ErrDescriptionRequired rejects blank testimonials.
	ErrDescriptionRequired = errors.New("testimonial: description is required")
	// ErrAvatarRequired rejects invites created without an avatar image.
	ErrAvatarRequired = errors.New("invite: avatar image is required")
	// ErrAvatarNotImage rejects avatars that do not sniff as images.
	ErrAvatarNotImage = errors.New("invite: avatar must be an image")

	// ErrInvalidCredentials is returned for unknown e-mails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	// ErrNotAdmin is returned when anyone but the studio administrator signs in.
	ErrNotAdmin = errors.New("account: no access")
	// ErrWeakPassword rejects passwords shorter than minPasswordLength.
	ErrWeakPassword = errors.New("account: password must be at least 8 characters")
	// ErrEmailTaken rejects e-mail changes to an address used by another account.
	ErrEmailTaken = errors.New("account: email already in use")
	// ErrResetTokenInvalid covers unknown, used and expired reset tokens.
	ErrResetTokenInvalid = errors.New("account: reset link is invalid or expired")
)

// InputError reports a missing or malformed field of a service input.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return e.Field + " " + e.Reason
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}

	// sqlite reports "UNIQUE constraint failed: <table>.<column>".
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") || strings.Contains(lower, "duplicate")
}
