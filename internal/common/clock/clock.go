package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

//go:generate mockgen -package=mocks -destination=mocks/mock_clock.go quizclash/internal/common/clock Clock

// Clock abstracts time so heartbeat, autosave, and grace-period schedules can
// run against a fake clock in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
	NewTimer(d time.Duration) clockwork.Timer
	After(d time.Duration) <-chan time.Time
}

// DefaultClock implements the Clock interface using the system clock
type DefaultClock struct {
	clock clockwork.Clock
}

// New returns a Clock backed by the real system clock
func New() *DefaultClock {
	return &DefaultClock{clock: clockwork.NewRealClock()}
}

// NewFake returns a Clock backed by the given clockwork clock, for tests
func NewFake(c clockwork.Clock) *DefaultClock {
	return &DefaultClock{clock: c}
}

// Now returns the current time
func (c *DefaultClock) Now() time.Time {
	return c.clock.Now()
}

// NewTicker returns a ticker on the underlying clock
func (c *DefaultClock) NewTicker(d time.Duration) clockwork.Ticker {
	return c.clock.NewTicker(d)
}

// NewTimer returns a one-shot timer on the underlying clock
func (c *DefaultClock) NewTimer(d time.Duration) clockwork.Timer {
	return c.clock.NewTimer(d)
}

// After waits for the duration on the underlying clock
func (c *DefaultClock) After(d time.Duration) <-chan time.Time {
	return c.clock.After(d)
}
