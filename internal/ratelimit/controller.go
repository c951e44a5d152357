package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultMargin is added to every computed wait so that an admission
// scheduled exactly at the window boundary cannot lose a race against
// clock granularity and land one tick early.
const DefaultMargin = time.Second

// Config holds the quota parameters for a Controller. Both fields must
// be positive. The config is copied at construction and never mutated.
type Config struct {
	MaxCalls int           // admissions allowed per trailing window
	Window   time.Duration // trailing window length
}

func (c Config) validate() error {
	if c.MaxCalls <= 0 {
		return fmt.Errorf("ratelimit: max calls must be positive, got %d", c.MaxCalls)
	}
	if c.Window <= 0 {
		return fmt.Errorf("ratelimit: window must be positive, got %v", c.Window)
	}
	return nil
}

// Stats is a point-in-time snapshot of controller activity.
type Stats struct {
	InWindow int           // admissions still inside the trailing window
	Waits    int           // number of acquisitions that had to wait
	WaitTime time.Duration // cumulative time spent waiting
}

// Controller guarantees that no more than MaxCalls admissions fall
// within any trailing Window interval. A caller over quota is
// suspended, never rejected, and admissions are granted in the order
// Acquire was called.
//
// One Controller guards one upstream quota: share a single instance by
// reference across every caller that draws from the same credential.
type Controller struct {
	cfg    Config
	margin time.Duration

	// token serializes the check-wait-admit sequence. A capacity-1
	// channel instead of holding the mutex across the sleep: the
	// runtime wakes blocked senders in FIFO order, so the earliest
	// waiter cannot be starved by a later caller that would compute a
	// shorter wait.
	token chan struct{}

	mu       sync.Mutex
	window   []time.Time // admission timestamps, oldest first, len <= MaxCalls
	waits    int
	waitTime time.Duration

	// overridable for tests that drive a simulated clock
	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// New creates a Controller enforcing cfg with the default safety margin.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Controller{
		cfg:    cfg,
		margin: DefaultMargin,
		token:  make(chan struct{}, 1),
		window: make([]time.Time, 0, cfg.MaxCalls),
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config { return c.cfg }

// Acquire blocks until admitting one more call keeps the trailing
// window count within quota, then records the admission timestamp.
//
// The only failure mode is cancellation of ctx; a cancelled caller
// leaves the window exactly as it found it.
func (c *Controller) Acquire(ctx context.Context) error {
	select {
	case c.token <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.token }()

	if wait := c.waitNeeded(); wait > 0 {
		select {
		case <-c.after(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		c.waits++
		c.waitTime += wait
		c.mu.Unlock()
	}

	c.mu.Lock()
	if len(c.window) == c.cfg.MaxCalls {
		// At capacity: the oldest record ages out as the new one lands.
		copy(c.window, c.window[1:])
		c.window = c.window[:len(c.window)-1]
	}
	c.window = append(c.window, c.now())
	c.mu.Unlock()
	return nil
}

// waitNeeded computes how long the caller must sleep before admission
// is within quota. Zero means admit immediately.
func (c *Controller) waitNeeded() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.window) < c.cfg.MaxCalls {
		return 0
	}
	elapsed := c.now().Sub(c.window[0])
	if elapsed >= c.cfg.Window {
		return 0 // the window advanced on its own
	}
	return c.cfg.Window - elapsed + c.margin
}

// Stats returns a snapshot of current activity. It is a pure read:
// calling it any number of times does not change future wait timings.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.cfg.Window)
	inWindow := 0
	for _, ts := range c.window {
		if ts.After(cutoff) {
			inWindow++
		}
	}
	return Stats{InWindow: inWindow, Waits: c.waits, WaitTime: c.waitTime}
}
