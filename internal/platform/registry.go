package platform

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/observability"
	"github.com/patrickwarner/creativeloop/internal/platform/ratelimit"
)

// Factory builds a Gateway for an ad account.
type Factory func(accountID string) (Gateway, error)

// Registry lazily creates and caches one Gateway per ad account. It is owned by
// whoever constructs the engine and is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	clients map[string]Gateway
	factory Factory
}

// NewRegistry creates a registry that builds gateways with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		clients: make(map[string]Gateway),
		factory: factory,
	}
}

// ForAccount returns the cached gateway for accountID, creating it on first use.
func (r *Registry) ForAccount(accountID string) (Gateway, error) {
	if accountID == "" {
		return nil, fmt.Errorf("gateway: empty account id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.clients[accountID]; ok {
		return g, nil
	}
	g, err := r.factory(accountID)
	if err != nil {
		return nil, fmt.Errorf("gateway for account %s: %w", accountID, err)
	}
	r.clients[accountID] = g
	return g, nil
}

// Len returns the number of cached gateways.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// ClientFactory returns a Factory producing Graph API clients. Per-account
// tokens take precedence over the default token.
func ClientFactory(cfg ClientConfig, defaultToken string, tokens map[string]string, limiter *ratelimit.AccountLimiter, logger *zap.Logger, metrics observability.MetricsRegistry) Factory {
	return func(accountID string) (Gateway, error) {
		token := tokens[accountID]
		if token == "" {
			token = defaultToken
		}
		if token == "" {
			return nil, fmt.Errorf("no access token configured")
		}
		return NewClient(cfg, accountID, token, limiter, logger, metrics), nil
	}
}
