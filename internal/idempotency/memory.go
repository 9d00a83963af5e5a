package idempotency

import (
	"context"
	"sync"
)

// MemoryGuard is a single-process Guard for tests and dev mode.
type MemoryGuard struct {
	mu    sync.Mutex
	sales map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{sales: make(map[string]string)}
}

func (g *MemoryGuard) Begin(ctx context.Context, saleID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sales[saleID]; exists {
		return false, nil
	}
	g.sales[saleID] = statusInProgress
	return true, nil
}

func (g *MemoryGuard) Complete(ctx context.Context, saleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sales[saleID] = statusCompleted
	return nil
}

func (g *MemoryGuard) Release(ctx context.Context, saleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sales, saleID)
	return nil
}
