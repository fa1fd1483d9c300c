package ratelimiter

import (
	"testing"
	"time"
)

func TestTokenBucketBurstThenDeny(t *testing.T) {
	tb := NewTokenBucket(1, 2)

	for i := 0; i < 2; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d denied within burst capacity", i+1)
		}
	}
	if tb.Allow() {
		t.Errorf("request allowed after the bucket drained")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(100, 1)

	if !tb.Allow() {
		t.Fatal("first request denied")
	}
	if tb.Allow() {
		t.Fatal("second request allowed before refill")
	}

	time.Sleep(20 * time.Millisecond)
	if !tb.Allow() {
		t.Errorf("request denied after refill interval")
	}
}

func TestFixedWindowCounterResets(t *testing.T) {
	fwc := NewFixedWindowCounter(2, 20*time.Millisecond)

	if !fwc.Allow() || !fwc.Allow() {
		t.Fatal("requests denied within limit")
	}
	if fwc.Allow() {
		t.Fatal("request allowed above limit")
	}

	time.Sleep(25 * time.Millisecond)
	if !fwc.Allow() {
		t.Errorf("request denied after window reset")
	}
}
