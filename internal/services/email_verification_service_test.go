package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/studiofolio/internal/database/testutil"
	"github.com/charlesng35/studiofolio/internal/models"
)

func TestEmailVerificationCreateAndVerify(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAdmin("owner@studio.test", "owner-password"))
	clock := newTestClock()
	mailer := &recordingMailer{}

	var user models.User
	require.NoError(t, db.Where("email = ?", "owner@studio.test").Take(&user).Error)
	require.NoError(t, db.Model(&user).Update("email_verified_at", nil).Error)

	svc, err := NewEmailVerificationService(db, mailer,
		WithVerificationClock(clock.Now),
		WithVerificationExpiry(12*time.Hour),
		WithVerificationBaseURL("https://studio.test"),
	)
	require.NoError(t, err)

	token, link, err := svc.CreateToken(context.Background(), user.ID, "Owner@Studio.test")
	require.NoError(t, err)
	require.Equal(t, "https://studio.test/verify-email?token="+token, link)
	require.Len(t, mailer.sent(), 1)
	require.Contains(t, mailer.sent()[0].Body, link)

	verified, err := svc.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, verified.VerifiedAt)

	require.NoError(t, db.Where("id = ?", user.ID).Take(&user).Error)
	require.True(t, user.EmailVerified())

	_, err = svc.VerifyToken(context.Background(), token)
	require.ErrorIs(t, err, ErrVerificationUsed)
}

func TestEmailVerificationExpiry(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAdmin("owner@studio.test", "owner-password"))
	clock := newTestClock()

	var user models.User
	require.NoError(t, db.Where("email = ?", "owner@studio.test").Take(&user).Error)

	svc, err := NewEmailVerificationService(db, nil,
		WithVerificationClock(clock.Now),
		WithVerificationExpiry(time.Hour),
	)
	require.NoError(t, err)

	token, _, err := svc.CreateToken(context.Background(), user.ID, user.Email)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = svc.VerifyToken(context.Background(), token)
	require.ErrorIs(t, err, ErrVerificationExpired)
}

func TestEmailVerificationReplacesPendingToken(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAdmin("owner@studio.test", "owner-password"))

	var user models.User
	require.NoError(t, db.Where("email = ?", "owner@studio.test").Take(&user).Error)

	svc, err := NewEmailVerificationService(db, nil)
	require.NoError(t, err)

	first, _, err := svc.CreateToken(context.Background(), user.ID, user.Email)
	require.NoError(t, err)
	_, _, err = svc.CreateToken(context.Background(), user.ID, user.Email)
	require.NoError(t, err)

	_, err = svc.VerifyToken(context.Background(), first)
	require.ErrorIs(t, err, ErrVerificationNotFound)
}

func TestEmailVerificationRejectsChangedAddress(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAdmin("owner@studio.test", "owner-password"))

	var user models.User
	require.NoError(t, db.Where("email = ?", "owner@studio.test").Take(&user).Error)

	svc, err := NewEmailVerificationService(db, nil)
	require.NoError(t, err)

	token, _, err := svc.CreateToken(context.Background(), user.ID, user.Email)
	require.NoError(t, err)
	require.NoError(t, db.Model(&user).Update("email", "new@studio.test").Error)

	_, err = svc.VerifyToken(context.Background(), token)
	require.ErrorIs(t, err, ErrVerificationStale)
}
