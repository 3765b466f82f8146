package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

const DefaultSweepBatchSize = 500

// SweepStats contains statistics about one expiry sweep
type SweepStats struct {
	Total       int       `json:"total"`
	Released    int       `json:"released"`
	Failed      int       `json:"failed"`
	ProcessedAt time.Time `json:"processedAt"`
}

type SweeperConfig struct {
	BatchSize int
	Now       func() time.Time
}

// ExpirySweeper reclaims soft holds whose expiry passed. The selection is a
// plain predicate on stored rows, so a sweep after a restart picks up
// whatever earlier sweeps missed.
type ExpirySweeper struct {
	scope     domain.TransactionScope
	cache     AvailabilityCache
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

func NewExpirySweeper(scope domain.TransactionScope, cache AvailabilityCache, cfg SweeperConfig, logger *zap.Logger) *ExpirySweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ExpirySweeper{
		scope:     scope,
		cache:     cache,
		batchSize: cfg.BatchSize,
		now:       cfg.Now,
		logger:    logger,
	}
}

// SweepExpired releases every expired soft hold, one row per transaction.
// A row that fails is logged and counted and the sweep moves on. Pages are
// read after a keyset cursor, so failed rows never hide later ones.
func (s *ExpirySweeper) SweepExpired(ctx context.Context) (SweepStats, error) {
	now := s.now().UTC()
	stats := SweepStats{ProcessedAt: now}
	touched := map[uuid.UUID]struct{}{}
	var cursor *domain.ExpiryCursor

	for {
		if err := ctx.Err(); err != nil {
			s.finish(ctx, stats, touched)
			return stats, err
		}

		var batch []*domain.Reservation
		err := s.scope.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
			var err error
			batch, err = repos.Reservations().FindExpiredSoft(ctx, now, cursor, s.batchSize)
			return err
		})
		if err != nil {
			s.logger.Error("Failed to find expired soft holds", zap.Error(err))
			s.finish(ctx, stats, touched)
			return stats, err
		}

		for _, hold := range batch {
			stats.Total++

			released, err := s.expire(ctx, hold, now)
			if err != nil {
				s.logger.Error("Failed to release expired soft hold",
					zap.String("reservation_id", hold.ID.String()),
					zap.String("product_id", hold.ProductID.String()),
					zap.Error(err))
				stats.Failed++
				continue
			}
			if released {
				stats.Released++
				touched[hold.ProductID] = struct{}{}
			}
		}

		if len(batch) < s.batchSize {
			break
		}
		last := batch[len(batch)-1]
		cursor = &domain.ExpiryCursor{ExpiresAtUtc: *last.ExpiresAtUtc, ID: last.ID}
	}

	s.finish(ctx, stats, touched)
	return stats, nil
}

func (s *ExpirySweeper) expire(ctx context.Context, hold *domain.Reservation, now time.Time) (bool, error) {
	var released bool
	err := s.scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		released, err = repos.Reservations().ExpireSoftHold(ctx, hold.ID, now)
		if err != nil || !released {
			return err
		}
		ev := domain.NewHoldsChangedEvent(domain.EventHoldsExpired, hold.SessionID, hold.OrderID, []domain.HoldRef{hold.Ref()}, ReasonExpired)
		return enqueue(ctx, repos.Outbox(), ev)
	})
	return released, err
}

func (s *ExpirySweeper) finish(ctx context.Context, stats SweepStats, touched map[uuid.UUID]struct{}) {
	productIDs := make([]uuid.UUID, 0, len(touched))
	for id := range touched {
		productIDs = append(productIDs, id)
	}
	invalidate(context.WithoutCancel(ctx), s.cache, s.logger, productIDs)

	if stats.Total == 0 {
		s.logger.Debug("No expired soft holds found")
		return
	}
	s.logger.Info("Completed expiry sweep",
		zap.Int("total", stats.Total),
		zap.Int("released", stats.Released),
		zap.Int("failed", stats.Failed))
}
