package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

const (
	ReasonPackageInactive = "PACKAGE_INACTIVE"

	packageCheckConcurrency = 8
)

type PackageQuery struct {
	PackageID        uuid.UUID
	Persons          int
	Dates            domain.DateRange
	SelectedOptional []uuid.UUID
	ExcludeSessionID string
}

type PackageAvailability struct {
	PackageID  uuid.UUID
	Persons    int
	Available  bool
	Reason     string
	Components []domain.AvailabilityResult
	// Shortfall is the first unavailable component in catalog order.
	Shortfall *domain.AvailabilityResult
}

type PackageService struct {
	scope        domain.TransactionScope
	availability *AvailabilityService
	holds        *HoldService
	logger       *zap.Logger
}

func NewPackageService(scope domain.TransactionScope, availability *AvailabilityService, holds *HoldService, logger *zap.Logger) *PackageService {
	return &PackageService{
		scope:        scope,
		availability: availability,
		holds:        holds,
		logger:       logger,
	}
}

// CheckPackageAvailability is the AND of the component checks.
func (s *PackageService) CheckPackageAvailability(ctx context.Context, q PackageQuery) (PackageAvailability, error) {
	pkg, err := s.loadPackage(ctx, q.PackageID)
	if err != nil {
		return PackageAvailability{}, err
	}

	result := PackageAvailability{PackageID: pkg.ID, Persons: q.Persons}
	demands, err := pkg.Demands(q.Persons, q.SelectedOptional)
	if err != nil {
		return PackageAvailability{}, err
	}
	if !pkg.IsActive {
		result.Reason = ReasonPackageInactive
		return result, nil
	}

	components := make([]domain.AvailabilityResult, len(demands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(packageCheckConcurrency)
	for i, d := range demands {
		g.Go(func() error {
			r, err := s.availability.CheckAvailability(gctx, domain.AvailabilityQuery{
				ProductID:        d.ProductID,
				Dates:            q.Dates,
				Quantity:         d.Quantity,
				ExcludeSessionID: q.ExcludeSessionID,
			})
			if err != nil {
				return fmt.Errorf("component %s: %w", d.ProductID, err)
			}
			components[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PackageAvailability{}, err
	}

	result.Components = components
	result.Available = true
	for i := range components {
		if !components[i].Available {
			result.Available = false
			result.Reason = components[i].Reason
			result.Shortfall = &components[i]
			break
		}
	}
	return result, nil
}

// ReservePackage holds every component for the session or none of them.
func (s *PackageService) ReservePackage(ctx context.Context, q PackageQuery, sessionID string) ([]*domain.Reservation, error) {
	pkg, err := s.loadPackage(ctx, q.PackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, fmt.Errorf("package %s: %w", pkg.ID, domain.ErrInactiveProduct)
	}

	demands, err := pkg.Demands(q.Persons, q.SelectedOptional)
	if err != nil {
		return nil, err
	}

	holds, err := s.holds.createSoftHolds(ctx, sessionID, pkg.ID, q.Dates, demands)
	if err != nil {
		s.logger.Info("Package reservation rejected",
			zap.String("package_id", pkg.ID.String()),
			zap.String("session_id", sessionID),
			zap.Int("persons", q.Persons),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Package reserved",
		zap.String("package_id", pkg.ID.String()),
		zap.String("session_id", sessionID),
		zap.Int("persons", q.Persons),
		zap.Int("holds", len(holds)))
	return holds, nil
}

func (s *PackageService) loadPackage(ctx context.Context, id uuid.UUID) (*domain.Package, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: package id is required", domain.ErrInvalidArgument)
	}
	var pkg *domain.Package
	err := s.scope.Query(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		pkg, err = repos.Packages().GetByID(ctx, id)
		return err
	})
	return pkg, err
}
