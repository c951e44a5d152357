package genai

import "sync/atomic"

// Counter tallies upstream API calls for one workflow session. It is
// created per session and injected into every component that issues
// calls, so counts never leak across sessions or tests.
type Counter struct {
	n atomic.Int64
}

// Inc records one call and returns the new total.
func (c *Counter) Inc() int64 { return c.n.Add(1) }

// Count returns the calls recorded since the last Reset.
func (c *Counter) Count() int64 { return c.n.Load() }

// Reset zeroes the tally. Call at session start.
func (c *Counter) Reset() { c.n.Store(0) }
