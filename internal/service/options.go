package service

import (
	"context"
	"time"

	"templeops/internal/clock"
)

const (
	defaultStoreTimeout = 3 * time.Second
	defaultWorkers      = 8
	maxWriteAttempts    = 3
)

type settings struct {
	clock        clock.Clock
	storeTimeout time.Duration
	location     *time.Location
	workers      int
}

// Option configures the managers in this package.
type Option func(*settings)

func WithClock(c clock.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithStoreTimeout bounds every store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *settings) { s.storeTimeout = d }
}

// WithLocation sets the zone used for event calendar days and for daily
// and weekly template boundaries.
func WithLocation(loc *time.Location) Option {
	return func(s *settings) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithWorkers bounds how many templates expand in parallel.
func WithWorkers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.workers = n
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:        clock.Real{},
		storeTimeout: defaultStoreTimeout,
		location:     time.UTC,
		workers:      defaultWorkers,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) now() time.Time {
	return s.clock.Now().UTC()
}

func (s settings) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
