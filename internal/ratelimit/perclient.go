package ratelimit

import (
	"sync"
	"time"
)

// PerClient keys a TokenBucket per client (IP or API key) to keep one
// flooding client from starving the API for everyone else. Buckets
// idle past staleAfter are garbage collected by a background
// goroutine; Close stops it.
type PerClient struct {
	mu         sync.Mutex
	clients    map[string]*clientBucket
	burst      int
	rate       float64
	staleAfter time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type clientBucket struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewPerClient creates a per-client limiter. Each first request from a
// key allocates a fresh bucket with the given burst and rate.
func NewPerClient(burst int, rate float64, staleAfter time.Duration) *PerClient {
	pc := &PerClient{
		clients:    make(map[string]*clientBucket),
		burst:      burst,
		rate:       rate,
		staleAfter: staleAfter,
		stop:       make(chan struct{}),
	}
	go pc.gc()
	return pc
}

// Allow checks the limit for one client key, allocating the bucket on
// first sight.
func (pc *PerClient) Allow(key string) (ok bool, retryAfter time.Duration) {
	pc.mu.Lock()
	entry, exists := pc.clients[key]
	if !exists {
		entry = &clientBucket{bucket: NewTokenBucket(pc.burst, pc.rate)}
		pc.clients[key] = entry
	}
	entry.lastSeen = time.Now()
	pc.mu.Unlock()

	return entry.bucket.Allow()
}

func (pc *PerClient) gc() {
	ticker := time.NewTicker(pc.staleAfter / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-pc.staleAfter)
			pc.mu.Lock()
			for key, entry := range pc.clients {
				if entry.lastSeen.Before(cutoff) {
					delete(pc.clients, key)
				}
			}
			pc.mu.Unlock()
		case <-pc.stop:
			return
		}
	}
}

// Close stops the garbage collection goroutine. Implements io.Closer
// so the server can drain it at shutdown.
func (pc *PerClient) Close() error {
	pc.stopOnce.Do(func() { close(pc.stop) })
	return nil
}
