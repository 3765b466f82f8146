package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/memory"
)

func TestExpirySweeper_ReleasesOnlyExpiredSoftHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 10, 0)
	dates := domain.MustDateRange("2024-01-01", "2024-01-02")

	expired, err := env.holds.CreateSoftHold(ctx, productID, "old", 1, dates)
	require.NoError(t, err)
	hard, err := env.holds.CreateSoftHold(ctx, productID, "paid", 1, dates)
	require.NoError(t, err)
	_, err = env.holds.PromoteSessionToOrder(ctx, "paid", uuid.New())
	require.NoError(t, err)

	env.clock.Advance(20 * time.Minute)
	fresh, err := env.holds.CreateSoftHold(ctx, productID, "new", 1, dates)
	require.NoError(t, err)

	env.clock.Advance(11 * time.Minute)
	stats, err := env.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Released)
	assert.Equal(t, 0, stats.Failed)

	got, err := env.holds.GetHold(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldSoftReleased, got.State)

	got, err = env.holds.GetHold(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldSoftPending, got.State)

	got, err = env.holds.GetHold(ctx, hard.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldHardActive, got.State)

	assert.Contains(t, env.pendingEvents(t), domain.EventHoldsExpired)

	again, err := env.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Total)
}

func TestExpirySweeper_ExpiredHoldsCountUntilSwept(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 2, 0)

	_, err := env.holds.CreateSoftHold(ctx, productID, "sess", 2, domain.MustDateRange("2024-01-01", "2024-01-02"))
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	assert.Equal(t, 0, env.available(t, productID, "2024-01-01", "2024-01-02", ""))

	_, err = env.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, env.available(t, productID, "2024-01-01", "2024-01-02", ""))
}

func TestExpirySweeper_WorksThroughBatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 10, 0)

	for i := 0; i < 5; i++ {
		_, err := env.holds.CreateSoftHold(ctx, productID, uuid.NewString(), 1, domain.MustDateRange("2024-01-01", "2024-01-02"))
		require.NoError(t, err)
	}

	env.clock.Advance(time.Hour)
	stats, err := env.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 5, stats.Released)
	assert.Contains(t, env.cache.Invalidated(), productID)
}

func TestExpirySweeper_ContinuesPastFailingRow(t *testing.T) {
	scope := &failingScope{Store: memory.NewStore()}
	env := newTestEnvWithScope(t, scope)
	ctx := context.Background()
	productID := env.addProduct(t, 10, 0)

	for i := 0; i < 3; i++ {
		_, err := env.holds.CreateSoftHold(ctx, productID, uuid.NewString(), 1, domain.MustDateRange("2024-01-01", "2024-01-02"))
		require.NoError(t, err)
	}

	env.clock.Advance(time.Hour)
	scope.failures.Store(1)

	stats, err := env.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Released)
	assert.Equal(t, 1, stats.Failed)

	retry, err := env.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Released)
}

func TestExpirySweeper_FullBatchOfFailuresDoesNotHideLaterRows(t *testing.T) {
	scope := &failingScope{Store: memory.NewStore()}
	env := newTestEnvWithScope(t, scope)
	ctx := context.Background()
	productID := env.addProduct(t, 10, 0)

	sessions := make([]string, 3)
	for i := range sessions {
		sessions[i] = uuid.NewString()
		_, err := env.holds.CreateSoftHold(ctx, productID, sessions[i], 1, domain.MustDateRange("2024-01-01", "2024-01-02"))
		require.NoError(t, err)
		env.clock.Advance(time.Minute)
	}

	env.clock.Advance(time.Hour)
	scope.failures.Store(2)

	stats, err := env.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Released)
	assert.Equal(t, 2, stats.Failed)

	states := make([]domain.HoldState, len(sessions))
	for i, sess := range sessions {
		holds, err := env.holds.ListBySession(ctx, sess)
		require.NoError(t, err)
		require.Len(t, holds, 1)
		states[i] = holds[0].State
	}
	assert.Equal(t, []domain.HoldState{domain.HoldSoftPending, domain.HoldSoftPending, domain.HoldSoftReleased}, states)
	assert.Equal(t, 8, env.available(t, productID, "2024-01-01", "2024-01-02", ""))

	retry, err := env.sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, retry.Released)
	assert.Equal(t, 10, env.available(t, productID, "2024-01-01", "2024-01-02", ""))
}
