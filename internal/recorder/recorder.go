// Package recorder persists one attempt record per gateway invocation. The
// engine appends records in strict attempt order and never updates them;
// they are the audit trail used for reconciliation and dispute handling.
package recorder

import (
	"context"
	"time"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// Recorder appends one attempt record. Implementations must treat records
// as append-only.
type Recorder interface {
	Record(ctx context.Context, rec gateway.AttemptRecord) error
}

// Store is a Recorder that also supports the read side used by reporting.
// The engine itself only ever calls Record.
type Store interface {
	Recorder
	ListBySale(ctx context.Context, saleID string) ([]gateway.AttemptRecord, error)
	ListRange(ctx context.Context, from, to time.Time) ([]gateway.AttemptRecord, error)
}
