package gateway

import (
	"context"
	"fmt"
)

// Adapter is the interface implemented by each provider integration.
// ProcessPayment translates the normalized request into the provider's wire
// protocol and the provider's response back into a GatewayResponse.
//
// Provider-reported failures (declines, invalid data) must come back as
// Success=false with a normalized error code, not as an error. Only truly
// unexpected conditions (transport failures, malformed response bodies)
// are returned as errors; the engine's failure boundary is the single place
// they are absorbed.
type Adapter interface {
	Type() GatewayType
	ProcessPayment(ctx context.Context, cfg GatewayConfig, req PaymentRequest) (GatewayResponse, error)
}

// Registry is a lookup table of adapters keyed by gateway type. It replaces
// runtime type inspection with open/closed dispatch: adding a provider means
// registering one more Adapter.
type Registry struct {
	adapters map[GatewayType]Adapter
}

// NewRegistry builds a registry from the given adapters. Registering two
// adapters for the same gateway type is a programming error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[GatewayType]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("registry: nil adapter")
		}
		if _, dup := r.adapters[a.Type()]; dup {
			return nil, fmt.Errorf("registry: duplicate adapter for gateway %q", a.Type())
		}
		r.adapters[a.Type()] = a
	}
	return r, nil
}

// Lookup returns the adapter registered for the given gateway type.
func (r *Registry) Lookup(t GatewayType) (Adapter, bool) {
	a, ok := r.adapters[t]
	return a, ok
}
