package idempotency_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/gateway-fallback/internal/idempotency"
)

func TestMemoryGuardClaimsOnce(t *testing.T) {
	guard := idempotency.NewMemoryGuard()
	ctx := context.Background()

	claimed, err := guard.Begin(ctx, "sale-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = guard.Begin(ctx, "sale-1")
	require.NoError(t, err)
	assert.False(t, claimed, "an in-flight sale must not be claimed twice")
}

func TestMemoryGuardCompleteBlocksResubmission(t *testing.T) {
	guard := idempotency.NewMemoryGuard()
	ctx := context.Background()

	claimed, err := guard.Begin(ctx, "sale-2")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, guard.Complete(ctx, "sale-2"))

	claimed, err = guard.Begin(ctx, "sale-2")
	require.NoError(t, err)
	assert.False(t, claimed, "a settled sale must stay claimed")
}

func TestMemoryGuardReleaseAllowsRetry(t *testing.T) {
	guard := idempotency.NewMemoryGuard()
	ctx := context.Background()

	claimed, err := guard.Begin(ctx, "sale-3")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, guard.Release(ctx, "sale-3"))

	claimed, err = guard.Begin(ctx, "sale-3")
	require.NoError(t, err)
	assert.True(t, claimed, "a released sale may be resubmitted")
}

func TestMemoryGuardIndependentSales(t *testing.T) {
	guard := idempotency.NewMemoryGuard()
	ctx := context.Background()

	claimed, err := guard.Begin(ctx, "sale-a")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = guard.Begin(ctx, "sale-b")
	require.NoError(t, err)
	assert.True(t, claimed)
}
