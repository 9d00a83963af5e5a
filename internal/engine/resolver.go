package engine

import (
	"github.com/yourorg/gateway-fallback/internal/config"
	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// ResolveSequence produces the ordered list of gateways to attempt for one
// checkout.
//
// An explicit fallback policy always overrides priority-based defaults: the
// sequence is [primary] + fallback list, in that literal order. With
// fallback disabled only the primary remains. Without a policy the sequence
// is simply every loaded gateway in ascending priority order.
//
// The resolver does not filter by payment-method capability; an adapter
// that cannot serve the method answers with a terminal UNSUPPORTED_METHOD
// response instead.
func ResolveSequence(snap *config.Snapshot) []gateway.GatewayType {
	if snap.Policy != nil {
		seq := []gateway.GatewayType{snap.Policy.Primary}
		if snap.Policy.Enabled {
			seq = append(seq, snap.Policy.Fallbacks...)
		}
		return seq
	}

	seq := make([]gateway.GatewayType, 0, len(snap.Configs))
	for _, cfg := range snap.Configs {
		seq = append(seq, cfg.Type)
	}
	return seq
}
