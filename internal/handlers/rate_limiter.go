package handlers

import (
	"math"
	"sync"
	"time"
)

// rateLimiter answers whether the caller identified by key may make one more
// request right now.
type rateLimiter interface {
	Allow(key string) bool
}

// tokenBucketLimiter grants every key a budget of burst requests that refills
// continuously across the window. A checkout wizard produces short bursts of
// calls (field edits, step changes, status refreshes) with quiet stretches in
// between, so a refilling bucket throttles abuse without punishing a customer
// who types fast.
type tokenBucketLimiter struct {
	burst         float64
	refillPerSec  float64
	fullRefillDur time.Duration
	clock         func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

type tokenBucket struct {
	tokens   float64
	lastSeen time.Time
}

func newTokenBucketLimiter(burst int, window time.Duration, clock func() time.Time) rateLimiter {
	if burst <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &tokenBucketLimiter{
		burst:         float64(burst),
		refillPerSec:  float64(burst) / window.Seconds(),
		fullRefillDur: window,
		clock:         clock,
		buckets:       make(map[string]*tokenBucket),
	}
}

func (l *tokenBucketLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		l.dropIdleLocked(now)
		bucket = &tokenBucket{tokens: l.burst, lastSeen: now}
		l.buckets[key] = bucket
	} else {
		if elapsed := now.Sub(bucket.lastSeen).Seconds(); elapsed > 0 {
			bucket.tokens = math.Min(l.burst, bucket.tokens+elapsed*l.refillPerSec)
		}
		bucket.lastSeen = now
	}

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}

// dropIdleLocked evicts buckets that have been quiet for a full window; those
// have refilled completely and are indistinguishable from fresh ones.
func (l *tokenBucketLimiter) dropIdleLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) >= l.fullRefillDur {
			delete(l.buckets, key)
		}
	}
}
