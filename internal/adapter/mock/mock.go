// Package mock provides a scriptable gateway adapter for tests and for the
// dev-mode server when no real provider credentials are configured.
package mock

import (
	"context"

	"github.com/google/uuid"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// Adapter is a scriptable implementation of gateway.Adapter. When
// ProcessFunc is unset every payment succeeds with a fresh transaction id.
type Adapter struct {
	GatewayType gateway.GatewayType
	ProcessFunc func(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest) (gateway.GatewayResponse, error)

	// Calls counts ProcessPayment invocations, letting tests assert that
	// short-circuited gateways were never dispatched.
	Calls int
}

func New(t gateway.GatewayType) *Adapter {
	return &Adapter{GatewayType: t}
}

func (m *Adapter) Type() gateway.GatewayType { return m.GatewayType }

func (m *Adapter) ProcessPayment(ctx context.Context, cfg gateway.GatewayConfig, req gateway.PaymentRequest) (gateway.GatewayResponse, error) {
	m.Calls++
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, cfg, req)
	}
	return gateway.GatewayResponse{
		Success:       true,
		TransactionID: uuid.NewString(),
		Status:        gateway.StatusPaid,
	}, nil
}
