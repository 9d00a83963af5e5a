// Package breaker keeps one circuit breaker per gateway so a provider that
// is hard down gets skipped instead of burning the checkout's retry budget
// on guaranteed failures. Only technical failures count against a breaker;
// business declines say nothing about provider health.
package breaker

import (
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	defaultMaxHalfOpen      = 2
)

// Board holds the per-gateway breakers. Breakers are created lazily on
// first use and shared across checkouts; gobreaker handles its own locking.
type Board struct {
	mu       sync.Mutex
	breakers map[gateway.GatewayType]*gobreaker.TwoStepCircuitBreaker
}

func NewBoard() *Board {
	return &Board{breakers: make(map[gateway.GatewayType]*gobreaker.TwoStepCircuitBreaker)}
}

func (b *Board) breakerFor(t gateway.GatewayType) *gobreaker.TwoStepCircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[t]
	if !ok {
		cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        string(t),
			MaxRequests: defaultMaxHalfOpen,
			Timeout:     defaultOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= defaultFailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("breaker: gateway %s moved %s -> %s", name, from, to)
			},
		})
		b.breakers[t] = cb
	}
	return cb
}

// Allow asks whether the gateway may be attempted. When allowed, the
// returned done func must be called with the technical outcome of the
// attempt. When the breaker is open, done is nil and the error non-nil.
func (b *Board) Allow(t gateway.GatewayType) (func(success bool), error) {
	return b.breakerFor(t).Allow()
}
