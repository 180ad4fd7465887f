package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/mail"
	"github.com/charlesng35/studiofolio/pkg/metrics"
)

const defaultPublicTestimonials = 50

// SubmitInput is the client's rating and text.
type SubmitInput struct {
	Stars       int    `json:"stars"`
	Description string `json:"description"`
}

// TestimonialOption customises TestimonialService behaviour.
type TestimonialOption func(*TestimonialService)

// WithTestimonialClock injects a custom clock primarily for testing.
func WithTestimonialClock(clock func() time.Time) TestimonialOption {
	return func(s *TestimonialService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSubmissionNotice e-mails recipients whenever a testimonial is accepted.
func WithSubmissionNotice(mailer mail.Mailer, recipients ...string) TestimonialOption {
	return func(s *TestimonialService) {
		s.mailer = mailer
		s.notify = normaliseAddresses(recipients)
	}
}

// TestimonialService accepts one testimonial per invite.
type TestimonialService struct {
	db     *gorm.DB
	mailer mail.Mailer
	notify []string
	now    func() time.Time
	log    *zap.Logger
}

// NewTestimonialService constructs a TestimonialService.
func NewTestimonialService(db *gorm.DB, opts ...TestimonialOption) (*TestimonialService, error) {
	if db == nil {
		return nil, errors.New("testimonial service: db is required")
	}
	service := &TestimonialService{
		db:  db,
		now: time.Now,
		log: logger.WithModule("invites"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Submit stores the testimonial of the invite identified by token. The invite
// is checked first, so a dead link reports "Link invalid" or "Already used"
// whatever the form contains; the input is validated before anything is written.
func (s *TestimonialService) Submit(ctx context.Context, token string, in SubmitInput) (*models.Testimonial, error) {
	var invite models.Invite
	err := s.db.WithContext(ctx).Where("token = ?", strings.TrimSpace(token)).Take(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.TestimonialSubmissions.WithLabelValues("invalid").Inc()
		return nil, ErrInviteNotFound
	}
	if err != nil {
		metrics.TestimonialSubmissions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("testimonial service: find invite: %w", err)
	}

	now := s.now().UTC()
	if !now.Before(invite.ExpiresAt) {
		metrics.TestimonialSubmissions.WithLabelValues("expired").Inc()
		return nil, ErrInviteUsed
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Testimonial{}).Where("token = ?", invite.Token).Count(&count).Error; err != nil {
		metrics.TestimonialSubmissions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("testimonial service: check existing: %w", err)
	}
	if count > 0 {
		metrics.TestimonialSubmissions.WithLabelValues("used").Inc()
		return nil, ErrInviteUsed
	}

	description := strings.TrimSpace(in.Description)
	if in.Stars < models.MinStars || in.Stars > models.MaxStars {
		metrics.TestimonialSubmissions.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidRating
	}
	if description == "" {
		metrics.TestimonialSubmissions.WithLabelValues("invalid").Inc()
		return nil, ErrDescriptionRequired
	}

	testimonial := models.Testimonial{
		Token:       invite.Token,
		FullName:    invite.ClientName,
		Event:       invite.Event,
		Stars:       in.Stars,
		Description: description,
		AvatarURL:   invite.AvatarURL,
		SubmittedAt: now,
	}
	if err := testimonial.Validate(); err != nil {
		metrics.TestimonialSubmissions.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&testimonial).Error; err != nil {
		if isUniqueConstraintError(err) {
			metrics.TestimonialSubmissions.WithLabelValues("used").Inc()
			return nil, ErrInviteUsed
		}
		metrics.TestimonialSubmissions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("testimonial service: create testimonial: %w", err)
	}

	metrics.TestimonialSubmissions.WithLabelValues("accepted").Inc()
	s.log.Info("testimonial submitted", zap.String("event", testimonial.Event), zap.Int("stars", testimonial.Stars))
	s.sendNotice(ctx, &testimonial)
	return &testimonial, nil
}

func (s *TestimonialService) sendNotice(ctx context.Context, t *models.Testimonial) {
	if s.mailer == nil || len(s.notify) == 0 {
		return
	}
	msg := mail.Message{
		To:      s.notify,
		Subject: fmt.Sprintf("New testimonial from %s", t.FullName),
		Body: fmt.Sprintf("%s left a %d-star testimonial for %s:\n\n%s\n",
			t.FullName, t.Stars, t.Event, t.Description),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("testimonial notice not sent", zap.Error(err))
	}
}

// ListPublic returns the newest testimonials first.
func (s *TestimonialService) ListPublic(ctx context.Context, limit int) ([]models.Testimonial, error) {
	if limit <= 0 {
		limit = defaultPublicTestimonials
	}
	testimonials := []models.Testimonial{}
	if err := s.db.WithContext(ctx).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&testimonials).Error; err != nil {
		return nil, fmt.Errorf("testimonial service: list testimonials: %w", err)
	}
	return testimonials, nil
}
