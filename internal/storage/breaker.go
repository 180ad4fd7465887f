package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/charlesng35/studiofolio/pkg/logger"
	"github.com/charlesng35/studiofolio/pkg/metrics"
)

// BreakerConfig tunes the storage circuit breaker.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears failure counts while closed; zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// BreakerStore fails fast with ErrStorageUnavailable once the wrapped store keeps failing.
type BreakerStore struct {
	next ObjectStore
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next with a circuit breaker.
func NewBreakerStore(next ObjectStore, cfg BreakerConfig) *BreakerStore {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}

	log := logger.WithModule("storage")
	settings := gobreaker.Settings{
		Name:        "object-storage",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// Client mistakes say nothing about storage health.
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidKey) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.StorageBreakerState.Set(float64(to))
			log.Warn("storage circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// State reports the current breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) Upload(ctx context.Context, key string, body io.Reader, size int64, opts UploadOptions) (Object, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.Upload(ctx, key, body, size, opts)
	})
	if err != nil {
		return Object{}, translateBreakerErr(err)
	}
	return res.(Object), nil
}

func (b *BreakerStore) PublicURL(key string) string {
	return b.next.PublicURL(key)
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.next.Delete(ctx, key)
	})
	return translateBreakerErr(err)
}

func (b *BreakerStore) ListChildren(ctx context.Context, prefix string) (Listing, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.next.ListChildren(ctx, prefix)
	})
	if err != nil {
		return Listing{}, translateBreakerErr(err)
	}
	return res.(Listing), nil
}

// Ping bypasses the breaker so health checks observe the real backend.
func (b *BreakerStore) Ping(ctx context.Context) error {
	if p, ok := b.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func translateBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrStorageUnavailable
	}
	return err
}
