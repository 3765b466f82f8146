package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

const (
	DefaultSoftHoldTTL = 30 * time.Minute
	DefaultExtension   = 30 * time.Minute
)

// Reasons attached to HoldsChanged events.
const (
	ReasonCartReplaced = "REPLACED"
	ReasonCheckout     = "CHECKOUT"
	ReasonReleased     = "RELEASED"
	ReasonCompleted    = "COMPLETED"
	ReasonExpired      = "EXPIRED"
)

type HoldConfig struct {
	SoftHoldTTL      time.Duration
	DefaultExtension time.Duration
	Now              func() time.Time
}

func (c HoldConfig) withDefaults() HoldConfig {
	if c.SoftHoldTTL <= 0 {
		c.SoftHoldTTL = DefaultSoftHoldTTL
	}
	if c.DefaultExtension <= 0 {
		c.DefaultExtension = DefaultExtension
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// HoldService is the only writer of reservations. Hold creation runs with
// the affected products locked, so the availability it checks cannot change
// before the insert commits.
type HoldService struct {
	scope  domain.TransactionScope
	cache  AvailabilityCache
	cfg    HoldConfig
	logger *zap.Logger
}

func NewHoldService(scope domain.TransactionScope, cache AvailabilityCache, cfg HoldConfig, logger *zap.Logger) *HoldService {
	return &HoldService{
		scope:  scope,
		cache:  cache,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

func (s *HoldService) now() time.Time {
	return s.cfg.Now().UTC()
}

// CreateSoftHold places a time-limited standalone cart hold. A pending
// standalone hold of the same session for the same product and dates is
// replaced, not added to. Package holds of the session are left alone.
func (s *HoldService) CreateSoftHold(ctx context.Context, productID uuid.UUID, sessionID string, quantity int, dates domain.DateRange) (*domain.Reservation, error) {
	holds, err := s.createSoftHolds(ctx, sessionID, uuid.Nil, dates, []domain.ProductDemand{{ProductID: productID, Quantity: quantity}})
	if err != nil {
		return nil, err
	}
	return holds[0], nil
}

// createSoftHolds places every demand of one cart line or none of them.
// packageID is uuid.Nil for a standalone line.
func (s *HoldService) createSoftHolds(ctx context.Context, sessionID string, packageID uuid.UUID, dates domain.DateRange, demands []domain.ProductDemand) ([]*domain.Reservation, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", domain.ErrInvalidArgument)
	}
	if len(demands) == 0 {
		return nil, fmt.Errorf("%w: nothing to hold", domain.ErrInvalidArgument)
	}
	for _, d := range demands {
		q := domain.AvailabilityQuery{ProductID: d.ProductID, Dates: dates, Quantity: d.Quantity}
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}

	productIDs := make([]uuid.UUID, 0, len(demands))
	for _, d := range demands {
		productIDs = append(productIDs, d.ProductID)
	}
	slices.SortFunc(productIDs, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
	productIDs = slices.Compact(productIDs)

	holds, err := s.tryCreateSoftHolds(ctx, sessionID, packageID, dates, demands, productIDs)
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		s.logger.Warn("Hold creation conflicted, retrying once",
			zap.String("session_id", sessionID),
			zap.Error(err))
		holds, err = s.tryCreateSoftHolds(ctx, sessionID, packageID, dates, demands, productIDs)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, s.conflictShortfall(ctx, dates, demands)
		}
	}
	if err != nil {
		return nil, err
	}

	invalidate(ctx, s.cache, s.logger, productIDs)
	for _, h := range holds {
		s.logger.Info("Soft hold created",
			zap.String("reservation_id", h.ID.String()),
			zap.String("product_id", h.ProductID.String()),
			zap.String("session_id", sessionID),
			zap.Int("quantity", h.Quantity),
			zap.Stringer("dates", h.Dates))
	}
	return holds, nil
}

func (s *HoldService) tryCreateSoftHolds(
	ctx context.Context,
	sessionID string,
	packageID uuid.UUID,
	dates domain.DateRange,
	demands []domain.ProductDemand,
	productIDs []uuid.UUID,
) ([]*domain.Reservation, error) {
	var holds []*domain.Reservation
	err := s.scope.ExecuteLocked(ctx, productIDs, func(ctx context.Context, repos domain.Repositories) error {
		holds = holds[:0]
		now := s.now()

		for _, d := range demands {
			line := domain.HoldLine{SessionID: sessionID, PackageID: packageID, ProductID: d.ProductID, Dates: dates}
			replaced, err := repos.Reservations().ReleaseSessionWindow(ctx, line, now)
			if err != nil {
				return err
			}

			q := domain.AvailabilityQuery{ProductID: d.ProductID, Dates: dates, Quantity: d.Quantity}
			result, err := availabilityOf(ctx, repos, q)
			if err != nil {
				return err
			}
			if !result.Available {
				return result.Shortfall()
			}

			hold, err := domain.NewSoftHold(d.ProductID, sessionID, d.Quantity, dates, now, s.cfg.SoftHoldTTL)
			if err != nil {
				return err
			}
			hold.PackageID = packageID
			if err := repos.Reservations().Insert(ctx, hold); err != nil {
				return err
			}

			if len(replaced) > 0 {
				ev := domain.NewHoldsChangedEvent(domain.EventHoldsReleased, sessionID, uuid.Nil, replaced, ReasonCartReplaced)
				if err := enqueue(ctx, repos.Outbox(), ev); err != nil {
					return err
				}
			}
			if err := enqueue(ctx, repos.Outbox(), domain.NewHoldCreatedEvent(hold)); err != nil {
				return err
			}
			holds = append(holds, hold)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return holds, nil
}

// conflictShortfall decides what a caller sees after a retried conflict:
// the first demand that stock can no longer cover, or the conflict itself
// when every demand still fits.
func (s *HoldService) conflictShortfall(ctx context.Context, dates domain.DateRange, demands []domain.ProductDemand) error {
	var shortfall error
	err := s.scope.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		for _, d := range demands {
			q := domain.AvailabilityQuery{ProductID: d.ProductID, Dates: dates, Quantity: d.Quantity}
			result, err := availabilityOf(ctx, repos, q)
			if err != nil {
				return err
			}
			if !result.Available {
				shortfall = result.Shortfall()
				return nil
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to compute availability after conflict", zap.Error(err))
		return fmt.Errorf("create soft holds: %w", domain.ErrConcurrencyConflict)
	}
	if shortfall != nil {
		return shortfall
	}
	return fmt.Errorf("create soft holds: %w", domain.ErrConcurrencyConflict)
}

// PromoteSessionToOrder turns every pending hold of the session into a hard
// hold of the order. Repeating it affects no rows.
func (s *HoldService) PromoteSessionToOrder(ctx context.Context, sessionID string, orderID uuid.UUID) (int, error) {
	if err := requireSession(sessionID); err != nil {
		return 0, err
	}
	if err := requireOrder(orderID); err != nil {
		return 0, err
	}
	return s.transition(ctx, domain.EventHoldsPromoted, sessionID, orderID, ReasonCheckout,
		func(ctx context.Context, repo domain.ReservationRepository, _ time.Time) ([]domain.HoldRef, error) {
			return repo.PromoteSession(ctx, sessionID, orderID)
		})
}

// AttachSessionToOrder ties the session's pending holds to an order at
// checkout without promoting them and pushes their expiry by the TTL.
func (s *HoldService) AttachSessionToOrder(ctx context.Context, sessionID string, orderID uuid.UUID) (int, error) {
	if err := requireSession(sessionID); err != nil {
		return 0, err
	}
	if err := requireOrder(orderID); err != nil {
		return 0, err
	}
	return s.transition(ctx, domain.EventHoldsAttached, sessionID, orderID, ReasonCheckout,
		func(ctx context.Context, repo domain.ReservationRepository, now time.Time) ([]domain.HoldRef, error) {
			return repo.AttachSessionToOrder(ctx, sessionID, orderID, now.Add(s.cfg.SoftHoldTTL))
		})
}

// PromoteOrder promotes pending holds already tied to the order.
func (s *HoldService) PromoteOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	if err := requireOrder(orderID); err != nil {
		return 0, err
	}
	return s.transition(ctx, domain.EventHoldsPromoted, "", orderID, ReasonCheckout,
		func(ctx context.Context, repo domain.ReservationRepository, _ time.Time) ([]domain.HoldRef, error) {
			return repo.PromoteOrder(ctx, orderID)
		})
}

func (s *HoldService) ReleaseBySession(ctx context.Context, sessionID string) (int, error) {
	if err := requireSession(sessionID); err != nil {
		return 0, err
	}
	return s.transition(ctx, domain.EventHoldsReleased, sessionID, uuid.Nil, ReasonReleased,
		func(ctx context.Context, repo domain.ReservationRepository, now time.Time) ([]domain.HoldRef, error) {
			return repo.ReleaseBySession(ctx, sessionID, now)
		})
}

func (s *HoldService) ReleaseByOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	if err := requireOrder(orderID); err != nil {
		return 0, err
	}
	return s.transition(ctx, domain.EventHoldsReleased, "", orderID, ReasonReleased,
		func(ctx context.Context, repo domain.ReservationRepository, now time.Time) ([]domain.HoldRef, error) {
			return repo.ReleaseByOrder(ctx, orderID, now)
		})
}

// CompleteByOrder closes the order's active hard holds. Anything else is left alone.
func (s *HoldService) CompleteByOrder(ctx context.Context, orderID uuid.UUID) (int, error) {
	if err := requireOrder(orderID); err != nil {
		return 0, err
	}
	return s.transition(ctx, domain.EventHoldsCompleted, "", orderID, ReasonCompleted,
		func(ctx context.Context, repo domain.ReservationRepository, now time.Time) ([]domain.HoldRef, error) {
			return repo.CompleteByOrder(ctx, orderID, now)
		})
}

type transitionFunc func(ctx context.Context, repo domain.ReservationRepository, now time.Time) ([]domain.HoldRef, error)

func (s *HoldService) transition(ctx context.Context, kind, sessionID string, orderID uuid.UUID, reason string, op transitionFunc) (int, error) {
	var refs []domain.HoldRef
	err := s.scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		refs, err = op(ctx, repos.Reservations(), s.now())
		if err != nil || len(refs) == 0 {
			return err
		}
		return enqueue(ctx, repos.Outbox(), domain.NewHoldsChangedEvent(kind, sessionID, orderID, refs, reason))
	})
	if err != nil {
		s.logger.Error("Failed to apply hold transition",
			zap.String("event", kind),
			zap.String("session_id", sessionID),
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		return 0, err
	}

	invalidate(ctx, s.cache, s.logger, domain.ProductIDsOf(refs))
	if len(refs) > 0 {
		s.logger.Info("Holds transitioned",
			zap.String("event", kind),
			zap.String("session_id", sessionID),
			zap.String("order_id", orderID.String()),
			zap.Int("count", len(refs)))
	}
	return len(refs), nil
}

// ExtendSoftHold pushes a pending hold's expiry to now+minutes; zero
// minutes means the default extension. Expiry never moves backwards.
func (s *HoldService) ExtendSoftHold(ctx context.Context, id uuid.UUID, minutes int) (*domain.Reservation, error) {
	if minutes < 0 {
		return nil, fmt.Errorf("%w: minutes must not be negative", domain.ErrInvalidArgument)
	}
	extension := s.cfg.DefaultExtension
	if minutes > 0 {
		extension = time.Duration(minutes) * time.Minute
	}

	var hold *domain.Reservation
	err := s.scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Reservations().GetByID(ctx, id)
		if err != nil {
			return err
		}
		ok, err := repos.Reservations().ExtendSoftHold(ctx, id, s.now().Add(extension))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("extend hold %s in state %s: %w", id, current.State, domain.ErrInvalidTransition)
		}
		if hold, err = repos.Reservations().GetByID(ctx, id); err != nil {
			return err
		}
		return enqueue(ctx, repos.Outbox(), domain.NewHoldExtendedEvent(hold))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Soft hold extended",
		zap.String("reservation_id", id.String()),
		zap.Timep("expires_at", hold.ExpiresAtUtc))
	return hold, nil
}

func (s *HoldService) GetHold(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	var hold *domain.Reservation
	err := s.scope.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		hold, err = repos.Reservations().GetByID(ctx, id)
		return err
	})
	return hold, err
}

func (s *HoldService) ListBySession(ctx context.Context, sessionID string) ([]*domain.Reservation, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	var holds []*domain.Reservation
	err := s.scope.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		holds, err = repos.Reservations().ListBySession(ctx, sessionID)
		return err
	})
	return holds, err
}

func (s *HoldService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Reservation, error) {
	if err := requireOrder(orderID); err != nil {
		return nil, err
	}
	var holds []*domain.Reservation
	err := s.scope.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		holds, err = repos.Reservations().ListByOrder(ctx, orderID)
		return err
	})
	return holds, err
}

func requireSession(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrInvalidArgument)
	}
	return nil
}

func requireOrder(orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("%w: order id is required", domain.ErrInvalidArgument)
	}
	return nil
}
