// Package ratelimit throttles authentication attempts per contact identifier.
// The service consumes it as a capability; the in-memory implementation here
// serves single-node deployments, a shared-counter store can replace it behind
// the same interface.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned by Allow when the identifier has exhausted its
// attempt budget for the current window.
var ErrRateLimited = errors.New("too many attempts, try again later")

// Limiter grants or denies an authentication attempt for an identifier.
type Limiter interface {
	Allow(ctx context.Context, identifier string) error
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// TokenBucket is an in-memory per-identifier token bucket. Each identifier
// gets `attempts` tokens refilled evenly over `window`.
type TokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	capacity float64
	window   time.Duration
	nowF     func() time.Time
}

// NewTokenBucket returns a limiter allowing attempts per window for each
// identifier.
func NewTokenBucket(attempts int, window time.Duration) *TokenBucket {
	if attempts <= 0 {
		attempts = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &TokenBucket{
		buckets:  make(map[string]*bucket),
		capacity: float64(attempts),
		window:   window,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// Allow consumes one token for the identifier, refilling first based on
// elapsed time. Returns ErrRateLimited when the bucket is empty.
func (t *TokenBucket) Allow(ctx context.Context, identifier string) error {
	now := t.nowF()
	refillPerSec := t.capacity / t.window.Seconds()

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[identifier]
	if !ok {
		b = &bucket{tokens: t.capacity, lastSeen: now}
		t.buckets[identifier] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * refillPerSec
		if b.tokens > t.capacity {
			b.tokens = t.capacity
		}
		b.lastSeen = now
	}

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--

	t.sweepLocked(now)
	return nil
}

// sweepLocked drops buckets idle long enough to have fully refilled; they are
// indistinguishable from fresh ones. Caller holds the mutex.
func (t *TokenBucket) sweepLocked(now time.Time) {
	if len(t.buckets) < 1024 {
		return
	}
	for id, b := range t.buckets {
		if now.Sub(b.lastSeen) > t.window {
			delete(t.buckets, id)
		}
	}
}
