package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// --- Token Bucket ---

func TestTokenBucketAllowsBurst(t *testing.T) {
	tb := NewTokenBucket(5, 1.0)

	for i := 0; i < 5; i++ {
		if ok, _ := tb.Allow(); !ok {
			t.Fatalf("request %d should be allowed (burst)", i)
		}
	}

	ok, retry := tb.Allow()
	if ok {
		t.Fatal("6th request should be rejected")
	}
	if retry <= 0 {
		t.Fatal("retry-after should be positive")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tb := NewTokenBucket(2, 10.0)
	tb.now = func() time.Time { return now }
	tb.last = now

	tb.Allow()
	tb.Allow()
	if ok, _ := tb.Allow(); ok {
		t.Fatal("should be empty")
	}

	// 10/sec: 150ms buys one token
	now = now.Add(150 * time.Millisecond)
	if ok, _ := tb.Allow(); !ok {
		t.Fatal("should have refilled at least 1 token")
	}
}

func TestTokenBucketDoesNotExceedBurst(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tb := NewTokenBucket(3, 100.0)
	tb.now = func() time.Time { return now }
	tb.last = now

	now = now.Add(time.Minute) // far more refill time than the burst holds

	allowed := 0
	for i := 0; i < 10; i++ {
		if ok, _ := tb.Allow(); ok {
			allowed++
		}
	}
	if allowed != 3 {
		t.Fatalf("expected 3 allowed (burst cap), got %d", allowed)
	}
}

func TestTokenBucketRetryAfterReflectsDeficit(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tb := NewTokenBucket(1, 2.0) // one token back every 500ms
	tb.now = func() time.Time { return now }
	tb.last = now

	tb.Allow()
	_, retry := tb.Allow()
	if retry != 500*time.Millisecond {
		t.Fatalf("expected 500ms retry-after, got %v", retry)
	}
}

func TestTokenBucketConcurrent(t *testing.T) {
	tb := NewTokenBucket(100, 0) // no refill

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := tb.Allow()
			allowed <- ok
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", count)
	}
}

// --- Per-Client ---

func TestPerClientIsolation(t *testing.T) {
	pc := NewPerClient(2, 0, 10*time.Minute)
	defer pc.Close()

	pc.Allow("10.0.0.1")
	pc.Allow("10.0.0.1")
	if ok, _ := pc.Allow("10.0.0.1"); ok {
		t.Fatal("flooding client should be limited")
	}

	if ok, _ := pc.Allow("10.0.0.2"); !ok {
		t.Fatal("second client should be unaffected")
	}
}

func TestPerClientGCRemovesStaleBuckets(t *testing.T) {
	pc := NewPerClient(1, 0, 50*time.Millisecond)
	defer pc.Close()

	pc.Allow("stale")
	if ok, _ := pc.Allow("stale"); ok {
		t.Fatal("bucket should be drained")
	}

	// Idle well past staleAfter so the collector drops the bucket;
	// the client then starts fresh with a full one.
	time.Sleep(500 * time.Millisecond)
	if ok, _ := pc.Allow("stale"); !ok {
		t.Fatal("stale bucket was never collected")
	}
}

func TestPerClientCloseIsIdempotent(t *testing.T) {
	pc := NewPerClient(1, 1.0, time.Minute)
	if err := pc.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := pc.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}
