package services

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/studiofolio/internal/models"
	"github.com/charlesng35/studiofolio/pkg/mail"
)

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

func pngAvatar(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(640, 480, color.NRGBA{B: 180, A: 255})))
	return buf.Bytes()
}

func createInvite(t *testing.T, db *gorm.DB, token string, createdAt time.Time) *models.Invite {
	t.Helper()
	invite := &models.Invite{
		Token:      token,
		ClientName: "Ana & Leo",
		Event:      "Wedding",
		AvatarURL:  "https://cdn.test/avatars/" + token + "/a.jpg",
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(models.InviteTTL),
	}
	require.NoError(t, db.Create(invite).Error)
	return invite
}
