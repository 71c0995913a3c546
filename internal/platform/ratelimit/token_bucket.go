// Package ratelimit implements token bucket rate limiting for ad platform accounts.
//
// The token bucket algorithm allows for bursts up to the bucket capacity while
// keeping the sustained call rate per ad account below the platform's quota.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// TokenBucket implements a thread-safe token bucket rate limiter.
//
// The bucket has a fixed capacity and refills at a constant rate.
// Each call consumes one token. When the bucket is empty, Allow rejects
// and Wait blocks until a token refills.
type TokenBucket struct {
	capacity   int         // Maximum number of tokens the bucket can hold
	tokens     int         // Current number of tokens in the bucket
	refillRate int         // Number of tokens added per second
	lastRefill time.Time   // Last time tokens were added to the bucket
	clock      clock.Clock // Time source, mocked in tests
	mu         sync.Mutex  // Protects all bucket state
	hitCount   int64       // Number of calls that found the bucket empty
	totalCount int64       // Total number of calls processed
}

// NewTokenBucket creates a new token bucket with the specified capacity and refill rate.
// The bucket starts full (with capacity tokens available).
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return NewTokenBucketWithClock(capacity, refillRate, clock.New())
}

// NewTokenBucketWithClock is NewTokenBucket with an explicit time source.
func NewTokenBucketWithClock(capacity, refillRate int, clk clock.Clock) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate < 1 {
		refillRate = 1
	}
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: clk.Now(),
		clock:      clk,
	}
}

// Allow attempts to consume one token from the bucket.
//
// Returns true if a token was available and consumed, false otherwise.
// Tokens are refilled based on the time elapsed since the last refill.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.totalCount++

	now := tb.clock.Now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Seconds() * float64(tb.refillRate))
	if tokensToAdd > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+tokensToAdd)
		tb.lastRefill = now
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	tb.hitCount++
	return false
}

// Wait blocks until a token is available or ctx is done. It reports whether
// the caller had to wait at all.
func (tb *TokenBucket) Wait(ctx context.Context) (bool, error) {
	waited := false
	for {
		if tb.Allow() {
			return waited, nil
		}
		waited = true
		select {
		case <-ctx.Done():
			return waited, ctx.Err()
		case <-tb.clock.After(tb.interval()):
		}
	}
}

// interval is the time it takes to refill a single token.
func (tb *TokenBucket) interval() time.Duration {
	return time.Second / time.Duration(tb.refillRate)
}

// Stats returns the number of rejected calls and the total number of calls.
func (tb *TokenBucket) Stats() (hits, total int64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.hitCount, tb.totalCount
}
