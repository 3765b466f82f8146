package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

type AvailabilityLoader func(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilityResult, error)

// AvailabilityCache is a read-through cache of availability answers.
// Invalidate must make every answer cached before the call unreachable.
type AvailabilityCache interface {
	GetOrLoad(ctx context.Context, q domain.AvailabilityQuery, load AvailabilityLoader) (domain.AvailabilityResult, error)
	Invalidate(ctx context.Context, productIDs ...uuid.UUID) error
}

type AvailabilityService struct {
	scope  domain.TransactionScope
	cache  AvailabilityCache
	logger *zap.Logger
}

// NewAvailabilityService accepts a nil cache.
func NewAvailabilityService(scope domain.TransactionScope, cache AvailabilityCache, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		scope:  scope,
		cache:  cache,
		logger: logger,
	}
}

// CheckAvailability answers whether q.Quantity units can be held for
// q.Dates. Unknown and inactive products are reported as unavailable with
// zero units rather than as errors.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilityResult, error) {
	if err := q.Validate(); err != nil {
		return domain.AvailabilityResult{}, err
	}
	if s.cache == nil {
		return s.load(ctx, q)
	}
	return s.cache.GetOrLoad(ctx, q, s.load)
}

func (s *AvailabilityService) load(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilityResult, error) {
	var result domain.AvailabilityResult
	err := s.scope.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		result, err = availabilityOf(ctx, repos, q)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to compute availability",
			zap.String("product_id", q.ProductID.String()),
			zap.Error(err))
		return domain.AvailabilityResult{}, err
	}
	return result, nil
}

// availabilityOf computes availability inside an existing unit of work.
func availabilityOf(ctx context.Context, repos domain.Repositories, q domain.AvailabilityQuery) (domain.AvailabilityResult, error) {
	item, err := repos.Stock().GetByID(ctx, q.ProductID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Unavailable(q, domain.ReasonProductNotFound), nil
	}
	if err != nil {
		return domain.AvailabilityResult{}, err
	}
	if !item.IsActive {
		return domain.Unavailable(q, domain.ReasonProductInactive), nil
	}

	reserved, err := repos.Reservations().ReservedQuantity(ctx, q.ProductID, item.Window(q.Dates), item.TurnaroundDays, q.ExcludeSessionID)
	if err != nil {
		return domain.AvailabilityResult{}, err
	}
	return domain.NewAvailabilityResult(item, q, reserved), nil
}

// invalidate drops cached answers for products whose holds changed. A
// failure leaves entries to expire by TTL.
func invalidate(ctx context.Context, cache AvailabilityCache, logger *zap.Logger, productIDs []uuid.UUID) {
	if cache == nil || len(productIDs) == 0 {
		return
	}
	if err := cache.Invalidate(ctx, productIDs...); err != nil {
		logger.Warn("Failed to invalidate cached availability",
			zap.Int("products", len(productIDs)),
			zap.Error(err))
	}
}
