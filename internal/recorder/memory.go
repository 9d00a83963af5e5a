package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// MemoryStore keeps attempt records in memory, in insertion order. Used by
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	records []gateway.AttemptRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(ctx context.Context, rec gateway.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) ListBySale(ctx context.Context, saleID string) ([]gateway.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []gateway.AttemptRecord
	for _, rec := range s.records {
		if rec.SaleID == saleID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListRange(ctx context.Context, from, to time.Time) ([]gateway.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []gateway.AttemptRecord
	for _, rec := range s.records {
		if !rec.CreatedAt.Before(from) && rec.CreatedAt.Before(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns every record in insertion order.
func (s *MemoryStore) All() []gateway.AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gateway.AttemptRecord, len(s.records))
	copy(out, s.records)
	return out
}
