package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

const sqliteTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// SQLiteStore is the local/dev attempt store. Writes are serialized with a
// mutex because the sqlite3 driver does not tolerate concurrent writers.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS payment_attempts (
            id TEXT PRIMARY KEY,
            sale_id TEXT NOT NULL,
            gateway_type TEXT NOT NULL,
            payment_method TEXT NOT NULL,
            amount_cents INTEGER NOT NULL,
            attempt_number INTEGER NOT NULL,
            is_fallback INTEGER NOT NULL,
            fallback_from TEXT,
            status TEXT NOT NULL,
            transaction_id TEXT,
            error_code TEXT,
            error_message TEXT,
            raw_response BLOB,
            created_at TEXT NOT NULL
        )
    `)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Record(ctx context.Context, rec gateway.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO payment_attempts
            (id, sale_id, gateway_type, payment_method, amount_cents, attempt_number,
             is_fallback, fallback_from, status, transaction_id, error_code, error_message,
             raw_response, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, rec.ID, rec.SaleID, string(rec.Gateway), string(rec.Method), rec.AmountCents,
		rec.Number, rec.IsFallback, string(rec.FallbackFrom), string(rec.Status),
		rec.TransactionID, string(rec.ErrorCode), rec.ErrorMessage, []byte(rec.Raw),
		rec.CreatedAt.UTC().Format(sqliteTimeLayout))
	return err
}

func (s *SQLiteStore) ListBySale(ctx context.Context, saleID string) ([]gateway.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, sale_id, gateway_type, payment_method, amount_cents, attempt_number,
               is_fallback, fallback_from, status, transaction_id, error_code, error_message,
               raw_response, created_at
        FROM payment_attempts WHERE sale_id = ? ORDER BY attempt_number ASC
    `, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteAttempts(rows)
}

func (s *SQLiteStore) ListRange(ctx context.Context, from, to time.Time) ([]gateway.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, sale_id, gateway_type, payment_method, amount_cents, attempt_number,
               is_fallback, fallback_from, status, transaction_id, error_code, error_message,
               raw_response, created_at
        FROM payment_attempts WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC
    `, from.UTC().Format(sqliteTimeLayout), to.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteAttempts(rows)
}

func scanSQLiteAttempts(rows *sql.Rows) ([]gateway.AttemptRecord, error) {
	var records []gateway.AttemptRecord
	for rows.Next() {
		var rec gateway.AttemptRecord
		var gw, method, fallbackFrom, status, errCode, createdAt string
		var raw []byte
		if err := rows.Scan(&rec.ID, &rec.SaleID, &gw, &method, &rec.AmountCents,
			&rec.Number, &rec.IsFallback, &fallbackFrom, &status, &rec.TransactionID,
			&errCode, &rec.ErrorMessage, &raw, &createdAt); err != nil {
			return nil, err
		}
		rec.Gateway = gateway.GatewayType(gw)
		rec.Method = gateway.PaymentMethod(method)
		rec.FallbackFrom = gateway.GatewayType(fallbackFrom)
		rec.Status = gateway.AttemptStatus(status)
		rec.ErrorCode = gateway.ErrorCode(errCode)
		rec.Raw = raw
		t, err := time.Parse(sqliteTimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		rec.CreatedAt = t
		records = append(records, rec)
	}
	return records, rows.Err()
}
