package api

import (
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("Expected first two requests to pass")
	}
	if rl.Allow("a") {
		t.Fatal("Expected third request inside the window to be rejected")
	}
	if !rl.Allow("b") {
		t.Fatal("Keys must be limited independently")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.Allow("a") {
		t.Fatal("Expected request after the window to pass")
	}
}

func TestRateLimiterEvict(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	rl.Allow("stale")

	now = now.Add(2 * time.Minute)
	rl.Allow("fresh")
	rl.evict()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.requests["stale"]; ok {
		t.Error("Expected stale key to be evicted")
	}
	if _, ok := rl.requests["fresh"]; !ok {
		t.Error("Expected fresh key to survive eviction")
	}
}

func TestRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Stop()
	rl.Stop()
}
