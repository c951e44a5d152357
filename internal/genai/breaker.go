package genai

import (
	"sync"
	"sync/atomic"
	"time"
)

// BreakerState represents upstream circuit states.
type BreakerState uint32

const (
	BreakerClosed   BreakerState = iota // normal: calls pass through
	BreakerOpen                         // tripped: fail fast, spend no quota
	BreakerHalfOpen                     // probing: one call tests recovery
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker trips after consecutive upstream generation failures so that
// a dead model endpoint does not keep burning the shared quota window.
//
// Transitions:
//
//	Closed → Open:      after maxFailures consecutive failures
//	Open → Half-Open:   after cooldown
//	Half-Open → Closed: after one successful probe
//	Half-Open → Open:   after one failed probe
type breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu          sync.Mutex
	state       atomic.Uint32 // BreakerState, readable without the lock
	failures    int
	lastFailure time.Time
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	b := &breaker{maxFailures: maxFailures, cooldown: cooldown}
	b.state.Store(uint32(BreakerClosed))
	return b
}

// allow reports whether a call should proceed upstream.
func (b *breaker) allow() bool {
	switch BreakerState(b.state.Load()) {
	case BreakerClosed:
		return true
	case BreakerOpen:
		b.mu.Lock()
		defer b.mu.Unlock()
		if time.Since(b.lastFailure) >= b.cooldown {
			b.state.Store(uint32(BreakerHalfOpen))
			return true // this caller is the probe
		}
		return false
	default: // half-open: probe in flight, everyone else waits
		return false
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if BreakerState(b.state.Load()) == BreakerHalfOpen {
		b.state.Store(uint32(BreakerClosed))
	}
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()

	if BreakerState(b.state.Load()) == BreakerHalfOpen || b.failures >= b.maxFailures {
		b.state.Store(uint32(BreakerOpen))
	}
}

func (b *breaker) current() BreakerState {
	return BreakerState(b.state.Load())
}

// ready reports whether a call stands a chance of reaching upstream.
// Unlike allow it never transitions state, so callers can consult it
// before committing quota. While open it turns true once the cooldown
// elapses, letting the next call through to become the probe.
func (b *breaker) ready() bool {
	if BreakerState(b.state.Load()) != BreakerOpen {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.lastFailure) >= b.cooldown
}
