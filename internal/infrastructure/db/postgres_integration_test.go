//go:build integration

package db_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/db"
)

func setupScope(t *testing.T) *db.TransactionScope {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("rentals"),
		postgres.WithUsername("rentals"),
		postgres.WithPassword("rentals"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.Open(ctx, db.PoolConfig{DSN: dsn, MaxOpenConns: 20})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.RunMigrations(conn, zaptest.NewLogger(t)))
	return db.NewTransactionScope(conn, 2*time.Second)
}

func TestPostgres_ConcurrentHoldsNeverOversell(t *testing.T) {
	scope := setupScope(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	catalog := application.NewCatalogService(scope, nil, logger)
	holds := application.NewHoldService(scope, nil, application.HoldConfig{}, logger)
	availability := application.NewAvailabilityService(scope, nil, logger)

	item, err := catalog.UpsertProduct(ctx, domain.ProductPayload{
		ProductID:      uuid.New(),
		Sku:            "TENT-6X6",
		StockQuantity:  5,
		TurnaroundDays: 1,
		IsActive:       true,
	})
	require.NoError(t, err)
	dates := domain.MustDateRange("2024-07-10", "2024-07-12")

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := holds.CreateSoftHold(ctx, item.ProductID, uuid.NewString(), 2, dates)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), accepted.Load())
	res, err := availability.CheckAvailability(ctx, domain.AvailabilityQuery{ProductID: item.ProductID, Dates: dates, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AvailableQuantity)

	t.Run("turnaround blocks the following day", func(t *testing.T) {
		res, err := availability.CheckAvailability(ctx, domain.AvailabilityQuery{
			ProductID: item.ProductID,
			Dates:     domain.MustDateRange("2024-07-13", "2024-07-13"),
			Quantity:  1,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.AvailableQuantity)

		res, err = availability.CheckAvailability(ctx, domain.AvailabilityQuery{
			ProductID: item.ProductID,
			Dates:     domain.MustDateRange("2024-07-14", "2024-07-14"),
			Quantity:  5,
		})
		require.NoError(t, err)
		assert.True(t, res.Available)
	})
}

func TestPostgres_HoldLifecycle(t *testing.T) {
	scope := setupScope(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	catalog := application.NewCatalogService(scope, nil, logger)
	holds := application.NewHoldService(scope, nil, application.HoldConfig{}, logger)

	item, err := catalog.UpsertProduct(ctx, domain.ProductPayload{ProductID: uuid.New(), StockQuantity: 3, IsActive: true})
	require.NoError(t, err)
	dates := domain.MustDateRange("2024-08-01", "2024-08-02")
	orderID := uuid.New()

	hold, err := holds.CreateSoftHold(ctx, item.ProductID, "sess-a", 2, dates)
	require.NoError(t, err)

	n, err := holds.AttachSessionToOrder(ctx, "sess-a", orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = holds.PromoteOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = holds.PromoteOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = holds.CompleteByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := holds.GetHold(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldHardCompleted, got.State)
	assert.Equal(t, orderID, got.OrderID)
	assert.Empty(t, got.SessionID)
	assert.NotNil(t, got.CompletedAtUtc)
	assert.Nil(t, got.ExpiresAtUtc)
}

func TestPostgres_PackageAndStandaloneLines(t *testing.T) {
	scope := setupScope(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	catalog := application.NewCatalogService(scope, nil, logger)
	availability := application.NewAvailabilityService(scope, nil, logger)
	holds := application.NewHoldService(scope, nil, application.HoldConfig{}, logger)
	packages := application.NewPackageService(scope, availability, holds, logger)

	plates, err := catalog.UpsertProduct(ctx, domain.ProductPayload{ProductID: uuid.New(), StockQuantity: 20, IsActive: true})
	require.NoError(t, err)
	packageID := uuid.New()
	_, err = catalog.UpsertPackage(ctx, domain.PackageUpsertedPayload{
		PackageID:  packageID,
		Name:       "Dinner",
		IsActive:   true,
		Components: []domain.PackageComponentPayload{{ProductID: plates.ProductID, QuantityPerPerson: 2}},
	})
	require.NoError(t, err)
	dates := domain.MustDateRange("2024-09-01", "2024-09-02")

	standalone, err := holds.CreateSoftHold(ctx, plates.ProductID, "sess", 5, dates)
	require.NoError(t, err)
	packaged, err := packages.ReservePackage(ctx, application.PackageQuery{PackageID: packageID, Persons: 2, Dates: dates}, "sess")
	require.NoError(t, err)
	require.Len(t, packaged, 1)

	got, err := holds.GetHold(ctx, standalone.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldSoftPending, got.State)
	got, err = holds.GetHold(ctx, packaged[0].ID)
	require.NoError(t, err)
	assert.Equal(t, packageID, got.PackageID)

	res, err := availability.CheckAvailability(ctx, domain.AvailabilityQuery{ProductID: plates.ProductID, Dates: dates, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 20-5-4, res.AvailableQuantity)

	// replacing the standalone line writes HoldsReleased then HoldCreated in one transaction
	_, err = holds.CreateSoftHold(ctx, plates.ProductID, "sess", 1, dates)
	require.NoError(t, err)

	pending, err := scope.Outbox().GetPendingBatch(ctx, 5, 100)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pending), 2)
	for i := 1; i < len(pending); i++ {
		assert.Greater(t, pending[i].Seq, pending[i-1].Seq)
	}
	tail := pending[len(pending)-2:]
	assert.Equal(t, domain.EventHoldsReleased, tail[0].Type)
	assert.Equal(t, domain.EventHoldCreated, tail[1].Type)
}

func TestPostgres_SweepPagesThroughTiedExpiries(t *testing.T) {
	scope := setupScope(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	catalog := application.NewCatalogService(scope, nil, logger)
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	holds := application.NewHoldService(scope, nil, application.HoldConfig{Now: func() time.Time { return clock }}, logger)

	item, err := catalog.UpsertProduct(ctx, domain.ProductPayload{ProductID: uuid.New(), StockQuantity: 10, IsActive: true})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := holds.CreateSoftHold(ctx, item.ProductID, uuid.NewString(), 1, domain.MustDateRange("2024-02-01", "2024-02-02"))
		require.NoError(t, err)
	}

	sweeper := application.NewExpirySweeper(scope, nil, application.SweeperConfig{
		BatchSize: 2,
		Now:       func() time.Time { return clock.Add(time.Hour) },
	}, logger)
	stats, err := sweeper.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 5, stats.Released)
}
