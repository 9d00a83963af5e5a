// Package idempotency guards against the same sale being submitted twice
// while an earlier submission is still in flight. The guard sits at the
// HTTP boundary, in front of the engine: once a sale reaches the engine it
// runs to completion.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusInProgress = "IN_PROGRESS"
	statusCompleted  = "COMPLETED"

	// An in-flight marker expires quickly so a crashed server cannot wedge
	// a sale forever.
	inProgressExpiry = 2 * time.Minute
	completedExpiry  = 24 * time.Hour
)

// Guard is the duplicate-submission check.
type Guard interface {
	// Begin marks the sale as in flight. It returns false when the sale is
	// already in flight or already completed.
	Begin(ctx context.Context, saleID string) (bool, error)
	// Complete marks the sale as settled.
	Complete(ctx context.Context, saleID string) error
	// Release drops the in-flight marker after a failed processing call so
	// the checkout may resubmit.
	Release(ctx context.Context, saleID string) error
}

// RedisGuard implements Guard on a shared redis instance, so the guard
// holds across replicas of this service.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func key(saleID string) string { return "sale:" + saleID }

func (g *RedisGuard) Begin(ctx context.Context, saleID string) (bool, error) {
	// SETNX is the atomic check-and-claim; a plain GET-then-SET would race
	// with a concurrent submission of the same sale.
	set, err := g.client.SetNX(ctx, key(saleID), statusInProgress, inProgressExpiry).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: claiming sale %s: %w", saleID, err)
	}
	return set, nil
}

func (g *RedisGuard) Complete(ctx context.Context, saleID string) error {
	if err := g.client.Set(ctx, key(saleID), statusCompleted, completedExpiry).Err(); err != nil {
		return fmt.Errorf("idempotency: completing sale %s: %w", saleID, err)
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, saleID string) error {
	if err := g.client.Del(ctx, key(saleID)).Err(); err != nil {
		return fmt.Errorf("idempotency: releasing sale %s: %w", saleID, err)
	}
	return nil
}
