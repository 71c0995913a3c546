package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookgo/clock"

	"github.com/patrickwarner/creativeloop/internal/observability"
)

// AccountLimiter manages rate limiting for multiple ad accounts.
//
// Each account gets its own token bucket, created lazily on first access.
// The limiter reports waits to an injected metrics registry.
//
// Example usage:
//
//	config := Config{Capacity: 20, RefillRate: 5, Enabled: true}
//	limiter := NewAccountLimiter(config, observability.NewPrometheusRegistry())
//
//	if err := limiter.Wait(ctx, "act_123"); err != nil {
//	    return err
//	}
type AccountLimiter struct {
	buckets map[string]*TokenBucket       // Map of account ID to token bucket
	mu      sync.RWMutex                  // Protects the buckets map
	config  Config                        // Rate limiting configuration
	clock   clock.Clock                   // Time source shared by all buckets
	metrics observability.MetricsRegistry // Metrics registry for tracking waits
}

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// NewAccountLimiter creates a new account rate limiter with the given configuration.
func NewAccountLimiter(config Config, metrics observability.MetricsRegistry) *AccountLimiter {
	return NewAccountLimiterWithClock(config, metrics, clock.New())
}

// NewAccountLimiterWithClock is NewAccountLimiter with an explicit time source.
func NewAccountLimiterWithClock(config Config, metrics observability.MetricsRegistry, clk clock.Clock) *AccountLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &AccountLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		clock:   clk,
		metrics: metrics,
	}
}

// Allow reports whether a call for the account may proceed right now.
// If rate limiting is disabled via config, this method always returns true.
func (al *AccountLimiter) Allow(accountID string) bool {
	if !al.config.Enabled {
		return true
	}
	return al.bucket(accountID).Allow()
}

// Wait blocks until a call for the account may proceed or ctx is done.
func (al *AccountLimiter) Wait(ctx context.Context, accountID string) error {
	if !al.config.Enabled {
		return nil
	}
	waited, err := al.bucket(accountID).Wait(ctx)
	if waited {
		al.metrics.IncrementRateLimitWaits(accountID)
	}
	return err
}

func (al *AccountLimiter) bucket(accountID string) *TokenBucket {
	al.mu.RLock()
	bucket, exists := al.buckets[accountID]
	al.mu.RUnlock()
	if exists {
		return bucket
	}

	// Double-checked locking pattern to avoid race conditions
	al.mu.Lock()
	defer al.mu.Unlock()
	bucket, exists = al.buckets[accountID]
	if !exists {
		bucket = NewTokenBucketWithClock(al.config.Capacity, al.config.RefillRate, al.clock)
		al.buckets[accountID] = bucket
	}
	return bucket
}

// GetStats returns rate limiting statistics for all accounts seen so far.
func (al *AccountLimiter) GetStats() map[string]RateLimitStats {
	al.mu.RLock()
	defer al.mu.RUnlock()

	stats := make(map[string]RateLimitStats)
	for accountID, bucket := range al.buckets {
		hits, total := bucket.Stats()
		hitRate := 0.0
		if total > 0 {
			hitRate = float64(hits) / float64(total)
		}
		stats[accountID] = RateLimitStats{
			AccountID: accountID,
			Hits:      hits,
			Total:     total,
			HitRate:   hitRate,
		}
	}
	return stats
}

// RateLimitStats contains statistics about rate limiting for a single account.
type RateLimitStats struct {
	AccountID string  `json:"accountId"`
	Hits      int64   `json:"hits"`    // Number of calls that found the bucket empty
	Total     int64   `json:"total"`   // Total number of calls processed
	HitRate   float64 `json:"hitRate"` // Share of calls that had to wait (0.0-1.0)
}

// String returns a human-readable representation of the rate limit statistics.
func (rls RateLimitStats) String() string {
	return fmt.Sprintf("Account %s: %d/%d hits (%.2f%%)",
		rls.AccountID, rls.Hits, rls.Total, rls.HitRate*100)
}
