package config

import (
	"context"
	"sort"
	"sync"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// MemoryStore is an in-memory Store used by tests and the dev-mode server.
type MemoryStore struct {
	mu       sync.RWMutex
	configs  []gateway.GatewayConfig
	policies map[gateway.PaymentMethod]gateway.FallbackConfig
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[gateway.PaymentMethod]gateway.FallbackConfig),
	}
}

// AddGateway registers a gateway config. Order of insertion breaks priority
// ties, matching the stable ordering of the database query.
func (s *MemoryStore) AddGateway(cfg gateway.GatewayConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, cfg)
}

// SetPolicy registers the fallback policy for a payment method, replacing
// any previous one.
func (s *MemoryStore) SetPolicy(policy gateway.FallbackConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.Method] = policy
}

func (s *MemoryStore) ActiveGateways(ctx context.Context) ([]gateway.GatewayConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []gateway.GatewayConfig
	for _, cfg := range s.configs {
		if cfg.Active {
			active = append(active, cfg)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})
	return active, nil
}

func (s *MemoryStore) FallbackPolicy(ctx context.Context, method gateway.PaymentMethod) (*gateway.FallbackConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[method]
	if !ok {
		return nil, nil
	}
	return &policy, nil
}
