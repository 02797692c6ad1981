package signal

import (
	"testing"
	"time"
)

func TestRateLimiter_Window(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two attempts refused")
	}
	if rl.Allow("a") {
		t.Error("third attempt inside window allowed")
	}
	if !rl.Allow("b") {
		t.Error("other key affected by a's limit")
	}

	now = now.Add(time.Minute + time.Second)
	if !rl.Allow("a") {
		t.Error("attempt after window refused")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.Allow("a") {
			t.Fatalf("attempt %d refused with limit disabled", i)
		}
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }

	rl.Allow("stale")
	now = now.Add(time.Hour)
	for i := 0; i < sweepEvery; i++ {
		rl.Allow("fresh")
	}
	rl.mu.Lock()
	_, ok := rl.history["stale"]
	rl.mu.Unlock()
	if ok {
		t.Error("stale key survived sweep")
	}
}
