package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/internal/storage"
	"github.com/charlesng35/studiofolio/internal/transcode"
	"github.com/charlesng35/studiofolio/pkg/crypto"
	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/metrics"
)

const (
	defaultInviteTokenBytes = 24
	avatarPurpose           = "avatar"
)

// InviteStatus is derived on every read, never stored.
type InviteStatus string

const (
	InvitePending InviteStatus = "pending"
	InviteDone    InviteStatus = "done"
	InviteExpired InviteStatus = "expired"
)

// DeriveStatus is done once a testimonial exists, otherwise expired from
// expiresAt on, otherwise pending.
func DeriveStatus(expiresAt time.Time, hasTestimonial bool, now time.Time) InviteStatus {
	switch {
	case hasTestimonial:
		return InviteDone
	case !now.Before(expiresAt):
		return InviteExpired
	default:
		return InvitePending
	}
}

// Transcoder shrinks uploaded avatars.
type Transcoder interface {
	Transcode(ctx context.Context, in transcode.Input) (*transcode.Output, error)
}

// CreateInviteInput describes a new invite. Avatar is the cropped client photo.
type CreateInviteInput struct {
	ClientName string
	Event      string
	EventPlace string
	EventDate  *time.Time
	Avatar     transcode.Input
}

// InviteView is an invite as listed for the administrator.
type InviteView struct {
	models.Invite
	Status InviteStatus `json:"status"`
	Link   string       `json:"link"`
}

// PublicInvite is what the submission page shows the invited client.
type PublicInvite struct {
	Token      string          `json:"token"`
	ClientName string          `json:"client_name"`
	Event      string          `json:"event"`
	EventPlace string          `json:"event_place,omitempty"`
	EventDate  *datatypes.Date `json:"event_date,omitempty"`
	AvatarURL  string          `json:"avatar_url"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Status     InviteStatus    `json:"status"`
}

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteBaseURL configures the public site URL used to build invite links.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteTokenSize adjusts the random token length in bytes.
func WithInviteTokenSize(size int) InviteOption {
	return func(s *InviteService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithAvatarCacheControl sets the Cache-Control stored with avatar objects.
func WithAvatarCacheControl(value string) InviteOption {
	return func(s *InviteService) {
		s.cacheControl = value
	}
}

// InviteService issues testimonial invites and reports their status.
type InviteService struct {
	db           *gorm.DB
	store        storage.ObjectStore
	transcoder   Transcoder
	baseURL      string
	tokenLength  int
	cacheControl string
	now          func() time.Time
	log          *zap.Logger
}

// NewInviteService constructs an InviteService with the provided dependencies.
func NewInviteService(db *gorm.DB, store storage.ObjectStore, transcoder Transcoder, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if store == nil || transcoder == nil {
		return nil, errors.New("invite service: object store and transcoder are required")
	}

	service := &InviteService{
		db:           db,
		store:        store,
		transcoder:   transcoder,
		tokenLength:  defaultInviteTokenBytes,
		cacheControl: "public, max-age=31536000, immutable",
		now:          time.Now,
		log:          logger.WithModule("invites"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create uploads the avatar and then writes the invite; nothing is written
// when the upload fails.
func (s *InviteService) Create(ctx context.Context, in CreateInviteInput) (*InviteView, error) {
	clientName := strings.TrimSpace(in.ClientName)
	event := strings.TrimSpace(in.Event)
	switch {
	case clientName == "":
		return nil, &InputError{Field: "client_name", Reason: "is required"}
	case event == "":
		return nil, &InputError{Field: "event", Reason: "is required"}
	case len(in.Avatar.Data) == 0:
		return nil, ErrAvatarRequired
	case !transcode.IsImage(in.Avatar.Data):
		return nil, ErrAvatarNotImage
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("invite service: generate token: %w", err)
	}

	avatar, err := s.uploadAvatar(ctx, token, in.Avatar)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	invite := models.Invite{
		Token:      token,
		ClientName: clientName,
		Event:      event,
		EventPlace: strings.TrimSpace(in.EventPlace),
		AvatarURL:  avatar.URL,
		AvatarRef:  avatar.Key,
		CreatedAt:  now,
		ExpiresAt:  now.Add(models.InviteTTL),
	}
	if in.EventDate != nil {
		date := datatypes.Date(*in.EventDate)
		invite.EventDate = &date
	}

	if err := invite.Validate(); err != nil {
		s.removeAvatar(ctx, avatar.Key)
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		s.removeAvatar(ctx, avatar.Key)
		return nil, fmt.Errorf("invite service: create invite: %w", err)
	}

	s.log.Info("invite created", zap.String("event", invite.Event), zap.Time("expires_at", invite.ExpiresAt))
	return &InviteView{Invite: invite, Status: InvitePending, Link: s.Link(token)}, nil
}

func (s *InviteService) uploadAvatar(ctx context.Context, token string, in transcode.Input) (storage.Object, error) {
	out, err := s.transcoder.Transcode(ctx, in)
	if err != nil {
		return storage.Object{}, fmt.Errorf("invite service: avatar: %w", err)
	}

	obj, err := s.store.Upload(ctx, storage.AvatarKey(token, storage.NewRevision()), bytes.NewReader(out.Optimized), int64(len(out.Optimized)), storage.UploadOptions{
		ContentType:  out.ContentType,
		CacheControl: s.cacheControl,
	})
	metrics.Uploads.WithLabelValues(avatarPurpose, metrics.Result(err)).Inc()
	if err != nil {
		return storage.Object{}, fmt.Errorf("invite service: upload avatar: %w", err)
	}
	metrics.UploadBytes.WithLabelValues(avatarPurpose).Add(float64(len(out.Optimized)))
	if obj.URL == "" {
		obj.URL = s.store.PublicURL(obj.Key)
	}
	return obj, nil
}

func (s *InviteService) removeAvatar(ctx context.Context, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("remove avatar of unsaved invite", zap.String("key", key), zap.Error(err))
	}
}

// List returns every invite, newest first, with its derived status.
func (s *InviteService) List(ctx context.Context) ([]InviteView, error) {
	var invites []models.Invite
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}
	if len(invites) == 0 {
		return []InviteView{}, nil
	}

	tokens := make([]string, len(invites))
	for i := range invites {
		tokens[i] = invites[i].Token
	}
	var submitted []string
	if err := s.db.WithContext(ctx).Model(&models.Testimonial{}).
		Where("token IN ?", tokens).
		Pluck("token", &submitted).Error; err != nil {
		return nil, fmt.Errorf("invite service: list testimonials: %w", err)
	}
	done := make(map[string]struct{}, len(submitted))
	for _, token := range submitted {
		done[token] = struct{}{}
	}

	now := s.now()
	views := make([]InviteView, len(invites))
	for i, invite := range invites {
		_, hasTestimonial := done[invite.Token]
		views[i] = InviteView{
			Invite: invite,
			Status: DeriveStatus(invite.ExpiresAt, hasTestimonial, now),
			Link:   s.Link(invite.Token),
		}
	}
	return views, nil
}

// Lookup returns the public card of an invite.
func (s *InviteService) Lookup(ctx context.Context, token string) (*PublicInvite, error) {
	invite, err := s.find(ctx, token)
	if err != nil {
		return nil, err
	}
	exists, err := s.hasTestimonial(ctx, invite.Token)
	if err != nil {
		return nil, err
	}
	return &PublicInvite{
		Token:      invite.Token,
		ClientName: invite.ClientName,
		Event:      invite.Event,
		EventPlace: invite.EventPlace,
		EventDate:  invite.EventDate,
		AvatarURL:  invite.AvatarURL,
		ExpiresAt:  invite.ExpiresAt,
		Status:     DeriveStatus(invite.ExpiresAt, exists, s.now()),
	}, nil
}

// Link is the public submission URL of token.
func (s *InviteService) Link(token string) string {
	return s.baseURL + "/testimonials/" + token
}

func (s *InviteService) find(ctx context.Context, token string) (*models.Invite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInviteNotFound
	}
	var invite models.Invite
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}
	return &invite, nil
}

func (s *InviteService) hasTestimonial(ctx context.Context, token string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Testimonial{}).Where("token = ?", token).Count(&count).Error; err != nil {
		return false, fmt.Errorf("invite service: check testimonial: %w", err)
	}
	return count > 0, nil
}
