package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// PostgresStore persists attempt records in the payment_attempts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Record(ctx context.Context, rec gateway.AttemptRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_attempts
			(id, sale_id, gateway_type, payment_method, amount_cents, attempt_number,
			 is_fallback, fallback_from, status, transaction_id, error_code, error_message,
			 raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.ID, rec.SaleID, string(rec.Gateway), string(rec.Method), rec.AmountCents,
		rec.Number, rec.IsFallback, string(rec.FallbackFrom), string(rec.Status),
		rec.TransactionID, string(rec.ErrorCode), rec.ErrorMessage, []byte(rec.Raw), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting payment attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySale(ctx context.Context, saleID string) ([]gateway.AttemptRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, gateway_type, payment_method, amount_cents, attempt_number,
		       is_fallback, fallback_from, status, transaction_id, error_code, error_message,
		       raw_response, created_at
		FROM payment_attempts
		WHERE sale_id = $1
		ORDER BY attempt_number ASC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("querying attempts for sale %s: %w", saleID, err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func (s *PostgresStore) ListRange(ctx context.Context, from, to time.Time) ([]gateway.AttemptRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, gateway_type, payment_method, amount_cents, attempt_number,
		       is_fallback, fallback_from, status, transaction_id, error_code, error_message,
		       raw_response, created_at
		FROM payment_attempts
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying attempts in range: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func scanAttempts(rows pgx.Rows) ([]gateway.AttemptRecord, error) {
	var records []gateway.AttemptRecord
	for rows.Next() {
		var rec gateway.AttemptRecord
		var gw, method, fallbackFrom, status, errCode string
		var raw []byte
		if err := rows.Scan(&rec.ID, &rec.SaleID, &gw, &method, &rec.AmountCents,
			&rec.Number, &rec.IsFallback, &fallbackFrom, &status, &rec.TransactionID,
			&errCode, &rec.ErrorMessage, &raw, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning payment attempt: %w", err)
		}
		rec.Gateway = gateway.GatewayType(gw)
		rec.Method = gateway.PaymentMethod(method)
		rec.FallbackFrom = gateway.GatewayType(fallbackFrom)
		rec.Status = gateway.AttemptStatus(status)
		rec.ErrorCode = gateway.ErrorCode(errCode)
		rec.Raw = raw
		records = append(records, rec)
	}
	return records, rows.Err()
}
