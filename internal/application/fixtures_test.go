package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2023, 12, 20, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingCache passes loads through and remembers invalidations.
type recordingCache struct {
	mu          sync.Mutex
	invalidated []uuid.UUID
}

func (c *recordingCache) GetOrLoad(ctx context.Context, q domain.AvailabilityQuery, load AvailabilityLoader) (domain.AvailabilityResult, error) {
	return load(ctx, q)
}

func (c *recordingCache) Invalidate(_ context.Context, productIDs ...uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, productIDs...)
	return nil
}

func (c *recordingCache) Invalidated() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uuid.UUID(nil), c.invalidated...)
}

// conflictingScope fails the first n locked transactions with a conflict.
type conflictingScope struct {
	*memory.Store
	conflicts atomic.Int32
}

func (s *conflictingScope) ExecuteLocked(ctx context.Context, ids []uuid.UUID, fn domain.UnitOfWork) error {
	if s.conflicts.Add(-1) >= 0 {
		return domain.ErrConcurrencyConflict
	}
	return s.Store.ExecuteLocked(ctx, ids, fn)
}

// failingScope fails the first n write transactions.
type failingScope struct {
	*memory.Store
	failures atomic.Int32
}

func (s *failingScope) Execute(ctx context.Context, fn domain.UnitOfWork) error {
	if s.failures.Add(-1) >= 0 {
		return context.DeadlineExceeded
	}
	return s.Store.Execute(ctx, fn)
}

type testEnv struct {
	store        *memory.Store
	clock        *fakeClock
	cache        *recordingCache
	availability *AvailabilityService
	holds        *HoldService
	catalog      *CatalogService
	packages     *PackageService
	sweeper      *ExpirySweeper
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithScope(t, nil)
}

// newTestEnvWithScope wires the services on scope, or on a fresh memory
// store when scope is nil.
func newTestEnvWithScope(t *testing.T, scope domain.TransactionScope) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	switch s := scope.(type) {
	case nil:
		scope = store
	case *conflictingScope:
		store = s.Store
	case *failingScope:
		store = s.Store
	}

	env := &testEnv{store: store, clock: newFakeClock(), cache: &recordingCache{}}
	env.availability = NewAvailabilityService(scope, env.cache, logger)
	env.holds = NewHoldService(scope, env.cache, HoldConfig{Now: env.clock.Now}, logger)
	env.catalog = NewCatalogService(scope, env.cache, logger)
	env.packages = NewPackageService(scope, env.availability, env.holds, logger)
	env.sweeper = NewExpirySweeper(scope, env.cache, SweeperConfig{BatchSize: 2, Now: env.clock.Now}, logger)
	return env
}

func (e *testEnv) addProduct(t *testing.T, stock, turnaround int) uuid.UUID {
	t.Helper()
	item, err := e.catalog.UpsertProduct(context.Background(), domain.ProductPayload{
		ProductID:      uuid.New(),
		Sku:            "SKU-" + uuid.NewString()[:8],
		StockQuantity:  stock,
		TurnaroundDays: turnaround,
		IsActive:       true,
	})
	require.NoError(t, err)
	return item.ProductID
}

func (e *testEnv) available(t *testing.T, productID uuid.UUID, start, end string, exclude string) int {
	t.Helper()
	res, err := e.availability.CheckAvailability(context.Background(), domain.AvailabilityQuery{
		ProductID:        productID,
		Dates:            domain.MustDateRange(start, end),
		Quantity:         1,
		ExcludeSessionID: exclude,
	})
	require.NoError(t, err)
	return res.AvailableQuantity
}

func (e *testEnv) pendingEvents(t *testing.T) []string {
	t.Helper()
	msgs, err := e.store.Outbox().GetPendingBatch(context.Background(), 10, 1000)
	require.NoError(t, err)
	types := make([]string, 0, len(msgs))
	for _, m := range msgs {
		types = append(types, m.Type)
	}
	return types
}
