package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/memory"
)

func TestHoldService_NoOversellUnderConcurrency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 5, 0)
	dates := domain.MustDateRange("2024-01-01", "2024-01-03")

	const shoppers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.holds.CreateSoftHold(ctx, productID, fmt.Sprintf("sess-%d", i), 2, dates)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted += 2
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, accepted, 5)
	assert.Equal(t, 4, accepted)
	assert.Equal(t, shoppers-2, rejected)
	assert.Equal(t, 1, env.available(t, productID, "2024-01-01", "2024-01-03", ""))
}

func TestHoldService_TurnaroundBuffering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 1, 2)

	_, err := env.holds.CreateSoftHold(ctx, productID, "sess-a", 1, domain.MustDateRange("2024-01-01", "2024-01-05"))
	require.NoError(t, err)

	_, err = env.holds.CreateSoftHold(ctx, productID, "sess-b", 1, domain.MustDateRange("2024-01-06", "2024-01-07"))
	var shortfall *domain.InsufficientStockError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, 0, shortfall.Available)

	_, err = env.holds.CreateSoftHold(ctx, productID, "sess-b", 1, domain.MustDateRange("2024-01-08", "2024-01-10"))
	assert.NoError(t, err)
}

func TestHoldService_IdempotentRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 5, 0)
	orderID := uuid.New()

	for _, dates := range []domain.DateRange{
		domain.MustDateRange("2024-01-01", "2024-01-05"),
		domain.MustDateRange("2024-01-02", "2024-01-05"),
	} {
		_, err := env.holds.CreateSoftHold(ctx, productID, "sess", 2, dates)
		require.NoError(t, err)
	}
	n, err := env.holds.PromoteSessionToOrder(ctx, "sess", orderID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	first, err := env.holds.ReleaseByOrder(ctx, orderID)
	require.NoError(t, err)
	second, err := env.holds.ReleaseByOrder(ctx, orderID)
	require.NoError(t, err)

	assert.Equal(t, 2, first)
	assert.Equal(t, 0, second)

	holds, err := env.holds.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	for _, h := range holds {
		assert.Equal(t, domain.HoldHardReleased, h.State)
		assert.NotNil(t, h.ReleasedAtUtc)
	}
	assert.Equal(t, 5, env.available(t, productID, "2024-01-01", "2024-01-05", ""))
}

func TestHoldService_PromotionKeepsAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 4, 1)
	orderID := uuid.New()

	_, err := env.holds.CreateSoftHold(ctx, productID, "sess", 3, domain.MustDateRange("2024-02-01", "2024-02-02"))
	require.NoError(t, err)
	before := env.available(t, productID, "2024-02-01", "2024-02-03", "")

	n, err := env.holds.PromoteSessionToOrder(ctx, "sess", orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	bySession, err := env.holds.ListBySession(ctx, "sess")
	require.NoError(t, err)
	assert.Empty(t, bySession)

	byOrder, err := env.holds.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
	assert.Equal(t, domain.HoldHardActive, byOrder[0].State)
	assert.Nil(t, byOrder[0].ExpiresAtUtc)

	assert.Equal(t, before, env.available(t, productID, "2024-02-01", "2024-02-03", ""))
	assert.Equal(t, 1, before)

	again, err := env.holds.PromoteSessionToOrder(ctx, "sess", orderID)
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

func TestHoldService_ExclusionSemantics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 3, 0)

	_, err := env.holds.CreateSoftHold(ctx, productID, "own", 3, domain.MustDateRange("2024-03-01", "2024-03-02"))
	require.NoError(t, err)

	assert.Equal(t, 3, env.available(t, productID, "2024-03-01", "2024-03-02", "own"))
	assert.Equal(t, 0, env.available(t, productID, "2024-03-01", "2024-03-02", ""))
}

func TestHoldService_EndToEndScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 5, 0)

	holdA, err := env.holds.CreateSoftHold(ctx, productID, "sess-a", 3, domain.MustDateRange("2024-01-01", "2024-01-03"))
	require.NoError(t, err)

	_, err = env.holds.CreateSoftHold(ctx, productID, "sess-b", 2, domain.MustDateRange("2024-01-02", "2024-01-04"))
	require.NoError(t, err)

	_, err = env.holds.CreateSoftHold(ctx, productID, "sess-c", 1, domain.MustDateRange("2024-01-03", "2024-01-03"))
	var shortfall *domain.InsufficientStockError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, 0, shortfall.Available)
	assert.Equal(t, 1, shortfall.Requested)

	n, err := env.holds.ReleaseBySession(ctx, holdA.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = env.holds.CreateSoftHold(ctx, productID, "sess-c", 1, domain.MustDateRange("2024-01-03", "2024-01-03"))
	assert.NoError(t, err)
}

func TestHoldService_ReAddingReplacesOwnHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 3, 0)
	dates := domain.MustDateRange("2024-04-01", "2024-04-02")

	first, err := env.holds.CreateSoftHold(ctx, productID, "sess", 2, dates)
	require.NoError(t, err)
	second, err := env.holds.CreateSoftHold(ctx, productID, "sess", 3, dates)
	require.NoError(t, err)

	holds, err := env.holds.ListBySession(ctx, "sess")
	require.NoError(t, err)
	states := map[uuid.UUID]domain.HoldState{}
	for _, h := range holds {
		states[h.ID] = h.State
	}
	assert.Equal(t, domain.HoldSoftReleased, states[first.ID])
	assert.Equal(t, domain.HoldSoftPending, states[second.ID])
	assert.Equal(t, 0, env.available(t, productID, "2024-04-01", "2024-04-02", ""))

	// a failed replacement keeps the original hold
	_, err = env.holds.CreateSoftHold(ctx, productID, "sess", 4, dates)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	kept, err := env.holds.GetHold(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldSoftPending, kept.State)
}

func TestHoldService_CreateSoftHoldValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 3, 0)
	dates := domain.MustDateRange("2024-01-01", "2024-01-02")

	_, err := env.holds.CreateSoftHold(ctx, productID, "sess", 0, dates)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = env.holds.CreateSoftHold(ctx, productID, "sess", 1, domain.DateRange{Start: dates.End, End: dates.Start})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = env.holds.CreateSoftHold(ctx, productID, "", 1, dates)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.holds.CreateSoftHold(ctx, uuid.New(), "sess", 1, dates)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	inactive, err := env.catalog.UpsertProduct(ctx, domain.ProductPayload{ProductID: uuid.New(), StockQuantity: 10})
	require.NoError(t, err)
	_, err = env.holds.CreateSoftHold(ctx, inactive.ProductID, "sess", 1, dates)
	assert.ErrorIs(t, err, domain.ErrInactiveProduct)
}

func TestHoldService_CreateSoftHoldSideEffects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 3, 0)

	hold, err := env.holds.CreateSoftHold(ctx, productID, "sess", 1, domain.MustDateRange("2024-01-01", "2024-01-02"))
	require.NoError(t, err)

	assert.Equal(t, domain.HoldSoftPending, hold.State)
	require.NotNil(t, hold.ExpiresAtUtc)
	assert.Equal(t, env.clock.Now().Add(30*time.Minute), *hold.ExpiresAtUtc)
	assert.Contains(t, env.cache.Invalidated(), productID)
	assert.Equal(t, []string{domain.EventHoldCreated}, env.pendingEvents(t))
}

func TestHoldService_RetriesOnceOnConflict(t *testing.T) {
	t.Run("second attempt succeeds", func(t *testing.T) {
		scope := &conflictingScope{Store: memory.NewStore()}
		scope.conflicts.Store(1)
		env := newTestEnvWithScope(t, scope)
		productID := env.addProduct(t, 5, 0)

		_, err := env.holds.CreateSoftHold(context.Background(), productID, "sess", 2, domain.MustDateRange("2024-01-01", "2024-01-02"))
		assert.NoError(t, err)
	})

	t.Run("second conflict with stock to spare stays a conflict", func(t *testing.T) {
		scope := &conflictingScope{Store: memory.NewStore()}
		scope.conflicts.Store(2)
		env := newTestEnvWithScope(t, scope)
		productID := env.addProduct(t, 5, 0)

		_, err := env.holds.CreateSoftHold(context.Background(), productID, "sess", 2, domain.MustDateRange("2024-01-01", "2024-01-02"))
		require.ErrorIs(t, err, domain.ErrConcurrencyConflict)
		var shortfall *domain.InsufficientStockError
		assert.False(t, errors.As(err, &shortfall))
	})

	t.Run("second conflict without stock surfaces the shortfall", func(t *testing.T) {
		scope := &conflictingScope{Store: memory.NewStore()}
		env := newTestEnvWithScope(t, scope)
		productID := env.addProduct(t, 5, 0)
		dates := domain.MustDateRange("2024-01-01", "2024-01-02")

		_, err := env.holds.CreateSoftHold(context.Background(), productID, "other", 4, dates)
		require.NoError(t, err)

		scope.conflicts.Store(2)
		_, err = env.holds.CreateSoftHold(context.Background(), productID, "sess", 2, dates)
		var shortfall *domain.InsufficientStockError
		require.ErrorAs(t, err, &shortfall)
		assert.Equal(t, 1, shortfall.Available)
		assert.Equal(t, 2, shortfall.Requested)
		assert.NotErrorIs(t, err, domain.ErrConcurrencyConflict)
	})
}

func TestHoldService_AttachThenPromoteOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 5, 0)
	orderID := uuid.New()

	_, err := env.holds.CreateSoftHold(ctx, productID, "sess", 2, domain.MustDateRange("2024-01-01", "2024-01-02"))
	require.NoError(t, err)

	env.clock.Advance(20 * time.Minute)
	n, err := env.holds.AttachSessionToOrder(ctx, "sess", orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	attached, err := env.holds.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, domain.HoldSoftPending, attached[0].State)
	assert.Equal(t, env.clock.Now().Add(30*time.Minute), *attached[0].ExpiresAtUtc)

	n, err = env.holds.PromoteOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = env.holds.PromoteOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = env.holds.CompleteByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = env.holds.ReleaseByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 5, env.available(t, productID, "2024-01-01", "2024-01-02", ""))
}

func TestHoldService_CompleteIsNoOpForSoftHolds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 5, 0)
	orderID := uuid.New()

	_, err := env.holds.CreateSoftHold(ctx, productID, "sess", 2, domain.MustDateRange("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	_, err = env.holds.AttachSessionToOrder(ctx, "sess", orderID)
	require.NoError(t, err)

	n, err := env.holds.CompleteByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestHoldService_ExtendSoftHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 5, 0)

	hold, err := env.holds.CreateSoftHold(ctx, productID, "sess", 1, domain.MustDateRange("2024-01-01", "2024-01-02"))
	require.NoError(t, err)

	t.Run("default extension", func(t *testing.T) {
		env.clock.Advance(10 * time.Minute)
		extended, err := env.holds.ExtendSoftHold(ctx, hold.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, env.clock.Now().Add(30*time.Minute), *extended.ExpiresAtUtc)
	})

	t.Run("shorter extension keeps later expiry", func(t *testing.T) {
		current, err := env.holds.GetHold(ctx, hold.ID)
		require.NoError(t, err)
		extended, err := env.holds.ExtendSoftHold(ctx, hold.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, *current.ExpiresAtUtc, *extended.ExpiresAtUtc)
	})

	t.Run("missing hold", func(t *testing.T) {
		_, err := env.holds.ExtendSoftHold(ctx, uuid.New(), 10)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("hard hold is rejected", func(t *testing.T) {
		_, err := env.holds.PromoteSessionToOrder(ctx, "sess", uuid.New())
		require.NoError(t, err)
		_, err = env.holds.ExtendSoftHold(ctx, hold.ID, 10)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestHoldService_TransitionValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.holds.ReleaseBySession(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = env.holds.ReleaseByOrder(ctx, uuid.Nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = env.holds.PromoteSessionToOrder(ctx, "sess", uuid.Nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	n, err := env.holds.ReleaseBySession(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, env.pendingEvents(t))
}
