// Package config loads gateway configurations and fallback policies for one
// checkout. Configuration is read fresh on every load so administrative
// changes apply to the next checkout immediately; nothing is cached or
// shared across concurrent checkouts.
package config

import (
	"context"
	"fmt"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// Store is the read-only view of the configuration tables.
type Store interface {
	// ActiveGateways returns the active gateway configs ordered by
	// ascending priority. An empty slice is a valid result.
	ActiveGateways(ctx context.Context) ([]gateway.GatewayConfig, error)

	// FallbackPolicy returns the fallback policy for the payment method,
	// or nil when none is configured.
	FallbackPolicy(ctx context.Context, method gateway.PaymentMethod) (*gateway.FallbackConfig, error)
}

// Snapshot is the configuration captured for a single checkout. One engine
// instance holds one snapshot; no process-wide mutable registry exists.
type Snapshot struct {
	Method  gateway.PaymentMethod
	Configs []gateway.GatewayConfig
	ByType  map[gateway.GatewayType]gateway.GatewayConfig
	Policy  *gateway.FallbackConfig
}

// Load reads the active gateways and the fallback policy for the payment
// method. A disabled policy is treated the same as an absent one except
// that its primary gateway still leads the sequence.
func Load(ctx context.Context, store Store, method gateway.PaymentMethod) (*Snapshot, error) {
	if store == nil {
		return nil, fmt.Errorf("config: store cannot be nil")
	}

	configs, err := store.ActiveGateways(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: loading gateway configs: %w", err)
	}

	policy, err := store.FallbackPolicy(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("config: loading fallback policy for %s: %w", method, err)
	}

	byType := make(map[gateway.GatewayType]gateway.GatewayConfig, len(configs))
	for _, cfg := range configs {
		byType[cfg.Type] = cfg
	}

	return &Snapshot{
		Method:  method,
		Configs: configs,
		ByType:  byType,
		Policy:  policy,
	}, nil
}
