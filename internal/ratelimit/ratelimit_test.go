package ratelimit

import (
	"testing"
	"time"
)

func TestAllowConsumesTokenUntilExhausted(t *testing.T) {
	l := New(Config{Capacity: 2, Refill: time.Hour})

	if !l.Allow("caller-1") {
		t.Fatal("expected first request to be allowed")
	}
	if !l.Allow("caller-1") {
		t.Fatal("expected second request to be allowed")
	}
	if l.Allow("caller-1") {
		t.Fatal("expected third request to be throttled")
	}
}

func TestAllowTracksBucketsIndependently(t *testing.T) {
	l := New(Config{Capacity: 1, Refill: time.Hour})

	if !l.Allow("caller-a") {
		t.Fatal("expected caller-a's first request to be allowed")
	}
	if !l.Allow("caller-b") {
		t.Fatal("expected caller-b to have its own bucket")
	}
	if l.Allow("caller-a") {
		t.Fatal("expected caller-a to now be throttled")
	}
}

func TestResetRestoresCapacity(t *testing.T) {
	l := New(Config{Capacity: 1, Refill: time.Hour})
	l.Allow("caller-1")
	if l.Allow("caller-1") {
		t.Fatal("expected caller-1 to be throttled before reset")
	}
	l.Reset("caller-1")
	if !l.Allow("caller-1") {
		t.Fatal("expected a fresh bucket after reset")
	}
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	l := New(Config{Capacity: 5, Refill: time.Minute, Idle: time.Minute})
	l.Allow("stale-caller")

	removed := l.Sweep(time.Now().Add(2 * time.Minute))
	if removed != 1 {
		t.Fatalf("expected 1 bucket evicted, got %d", removed)
	}
	if len(l.buckets) != 0 {
		t.Fatalf("expected buckets map emptied, got %d entries", len(l.buckets))
	}
}

func TestDefaultsAppliedForNonpositiveConfig(t *testing.T) {
	l := New(Config{})
	if l.capacity != 20 || l.refill != 30*time.Second || l.idle != 10*time.Minute {
		t.Fatalf("unexpected defaults: capacity=%d refill=%s idle=%s", l.capacity, l.refill, l.idle)
	}
}
