package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is the inbound-protection limiter. Where the admission
// Controller makes callers wait for the shared upstream quota, the
// bucket rejects immediately: a flooding client gets a 429 before its
// request ever reaches the pipeline.
//
// Tokens refill lazily from elapsed time on each Allow call, so there
// is no background ticker per bucket.
type TokenBucket struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64 // tokens per second
	last   time.Time

	now func() time.Time
}

// NewTokenBucket creates a bucket allowing bursts up to burst requests
// and rate requests per second sustained. Starts full.
func NewTokenBucket(burst int, rate float64) *TokenBucket {
	tb := &TokenBucket{
		tokens: float64(burst),
		burst:  float64(burst),
		rate:   rate,
		now:    time.Now,
	}
	tb.last = tb.now()
	return tb
}

// Allow consumes one token and reports whether the request may
// proceed. When it may not, retryAfter is how long until a token will
// be available.
func (tb *TokenBucket) Allow() (ok bool, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.tokens += now.Sub(tb.last).Seconds() * tb.rate
	if tb.tokens > tb.burst {
		tb.tokens = tb.burst
	}
	tb.last = now

	if tb.tokens < 1 {
		deficit := 1 - tb.tokens
		return false, time.Duration(deficit / tb.rate * float64(time.Second))
	}
	tb.tokens--
	return true, 0
}
