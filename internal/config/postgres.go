package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// PostgresStore reads gateway configs and fallback policies from the
// administrative database. The engine only ever reads these tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ActiveGateways(ctx context.Context) ([]gateway.GatewayConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT gateway_type, api_key, secret_key, sandbox, active, priority
		FROM gateway_configs
		WHERE active = true
		ORDER BY priority ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying gateway_configs: %w", err)
	}
	defer rows.Close()

	var configs []gateway.GatewayConfig
	for rows.Next() {
		var cfg gateway.GatewayConfig
		var gwType string
		if err := rows.Scan(&gwType, &cfg.Credentials.APIKey, &cfg.Credentials.SecretKey,
			&cfg.Sandbox, &cfg.Active, &cfg.Priority); err != nil {
			return nil, fmt.Errorf("scanning gateway config: %w", err)
		}
		cfg.Type = gateway.GatewayType(gwType)
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *PostgresStore) FallbackPolicy(ctx context.Context, method gateway.PaymentMethod) (*gateway.FallbackConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT payment_method, primary_gateway, fallback_gateways, enabled, max_attempts, retry_delay_ms
		FROM fallback_configs
		WHERE payment_method = $1 AND active = true
		LIMIT 1
	`, string(method))
	if err != nil {
		return nil, fmt.Errorf("querying fallback_configs: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var policy gateway.FallbackConfig
	var pm, primary string
	var fallbacks []string
	var delayMs int64
	if err := rows.Scan(&pm, &primary, &fallbacks, &policy.Enabled, &policy.MaxAttempts, &delayMs); err != nil {
		return nil, fmt.Errorf("scanning fallback config: %w", err)
	}
	policy.Method = gateway.PaymentMethod(pm)
	policy.Primary = gateway.GatewayType(primary)
	for _, f := range fallbacks {
		policy.Fallbacks = append(policy.Fallbacks, gateway.GatewayType(f))
	}
	policy.RetryDelay = time.Duration(delayMs) * time.Millisecond
	return &policy, nil
}
