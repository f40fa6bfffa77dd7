package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenBucket_AllowsUpToCapacity(t *testing.T) {
	l := NewTokenBucket(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "a@x.com"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "a@x.com"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("attempt 4: got %v, want ErrRateLimited", err)
	}
}

func TestTokenBucket_IdentifiersIndependent(t *testing.T) {
	l := NewTokenBucket(1, time.Minute)
	ctx := context.Background()

	if err := l.Allow(ctx, "a@x.com"); err != nil {
		t.Fatalf("first identifier: %v", err)
	}
	if err := l.Allow(ctx, "b@x.com"); err != nil {
		t.Errorf("second identifier should have its own bucket: %v", err)
	}
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	l := NewTokenBucket(2, time.Minute)
	now := time.Now().UTC()
	l.nowF = func() time.Time { return now }
	ctx := context.Background()

	_ = l.Allow(ctx, "a@x.com")
	_ = l.Allow(ctx, "a@x.com")
	if err := l.Allow(ctx, "a@x.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("exhausted bucket: got %v, want ErrRateLimited", err)
	}

	// Half a window refills one token.
	now = now.Add(30 * time.Second)
	if err := l.Allow(ctx, "a@x.com"); err != nil {
		t.Errorf("after refill: %v", err)
	}
	if err := l.Allow(ctx, "a@x.com"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("only one token should have refilled: got %v", err)
	}
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	l := NewTokenBucket(2, time.Minute)
	now := time.Now().UTC()
	l.nowF = func() time.Time { return now }
	ctx := context.Background()

	_ = l.Allow(ctx, "a@x.com")

	// A long idle period must not bank more than capacity.
	now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, "a@x.com"); err != nil {
			t.Fatalf("attempt %d after idle: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "a@x.com"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("capacity should cap refill: got %v", err)
	}
}
