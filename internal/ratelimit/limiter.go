// Package ratelimit implements the per-transport-tag token bucket from
// spec.md §4.4. Refill uses integer arithmetic throughout to avoid the
// float accumulation drift a naive float64-tokens bucket would suffer
// under a long-running process.
//
// Grounded on server/internal/decoy/decoy.go's sweepSURBCtxs: a
// periodically-GC'd map keyed by an opaque peer identifier, the same shape
// this limiter uses to keep bounded memory for transport tags that go
// quiet.
package ratelimit

import (
	"sync"
	"time"
)

// Params configures a Limiter. The server sets BurstCapacity and
// RefillPerSec from NYMQUEST_MESSAGE_BURST_SIZE and
// NYMQUEST_MESSAGE_RATE_LIMIT (spec.md §6).
type Params struct {
	BurstCapacity int64
	RefillPerSec  int64
	IdleGCAfter   time.Duration
}

// DefaultParams matches spec.md §4.4's defaults.
func DefaultParams() Params {
	return Params{
		BurstCapacity: 20,
		RefillPerSec:  10,
		IdleGCAfter:   5 * time.Minute,
	}
}

// bucket tracks one transport tag's remaining tokens in integer
// "milli-tokens" (1/1000 of a token) so fractional refill amounts never
// get truncated away and lost, only ever carried forward.
type bucket struct {
	milliTokens int64
	lastRefill  time.Time
	lastSeen    time.Time
}

// Limiter rate-limits inbound messages per transport tag.
type Limiter struct {
	params Params

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New creates a Limiter with the given params.
func New(params Params) *Limiter {
	return &Limiter{
		params:  params,
		buckets: make(map[string]*bucket),
	}
}

const milliPerToken = 1000

// Allow reports whether a message from tag is admitted at time now,
// consuming one token if so.
func (l *Limiter) Allow(tag string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[tag]
	if !ok {
		b = &bucket{
			milliTokens: l.params.BurstCapacity * milliPerToken,
			lastRefill:  now,
		}
		l.buckets[tag] = b
	}
	b.lastSeen = now
	l.refillLocked(b, now)

	if b.milliTokens < milliPerToken {
		return false
	}
	b.milliTokens -= milliPerToken
	return true
}

func (l *Limiter) refillLocked(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	capMilli := l.params.BurstCapacity * milliPerToken
	gained := elapsed.Milliseconds() * l.params.RefillPerSec
	b.milliTokens += gained
	if b.milliTokens > capMilli {
		b.milliTokens = capMilli
	}
	b.lastRefill = now
}

// GC drops buckets for transport tags idle longer than IdleGCAfter,
// bounding memory for a long-running process with high session churn.
// Call it periodically from the server event loop's reap ticker.
func (l *Limiter) GC(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for tag, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.params.IdleGCAfter {
			delete(l.buckets, tag)
			removed++
		}
	}
	return removed
}

// Remove drops the bucket for tag immediately, e.g. on session teardown.
func (l *Limiter) Remove(tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, tag)
}

// Len reports how many transport tags currently have a tracked bucket.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
