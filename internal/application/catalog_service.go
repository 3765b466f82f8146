package application

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

// CatalogService keeps the local copy of catalog data the engine reads.
type CatalogService struct {
	scope  domain.TransactionScope
	cache  AvailabilityCache
	logger *zap.Logger
}

func NewCatalogService(scope domain.TransactionScope, cache AvailabilityCache, logger *zap.Logger) *CatalogService {
	return &CatalogService{
		scope:  scope,
		cache:  cache,
		logger: logger,
	}
}

func (s *CatalogService) UpsertProduct(ctx context.Context, p domain.ProductPayload) (*domain.StockItem, error) {
	item, err := domain.NewStockItem(p.ProductID, p.Sku, p.StockQuantity, p.TurnaroundDays, p.IsActive)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Stock().Upsert(ctx, item)
	})
	if err != nil {
		s.logger.Error("Failed to upsert stock item",
			zap.String("product_id", p.ProductID.String()),
			zap.Error(err))
		return nil, err
	}

	invalidate(ctx, s.cache, s.logger, []uuid.UUID{item.ProductID})
	s.logger.Info("Stock item upserted",
		zap.String("product_id", item.ProductID.String()),
		zap.String("sku", item.Sku),
		zap.Int("stock_total", item.StockTotal),
		zap.Int("turnaround_days", item.TurnaroundDays),
		zap.Bool("active", item.IsActive))
	return item, nil
}

func (s *CatalogService) UpsertPackage(ctx context.Context, p domain.PackageUpsertedPayload) (*domain.Package, error) {
	components := make([]domain.PackageComponent, 0, len(p.Components))
	for _, c := range p.Components {
		components = append(components, domain.PackageComponent{
			ProductID:         c.ProductID,
			QuantityPerPerson: c.QuantityPerPerson,
			Optional:          c.Optional,
		})
	}
	pkg, err := domain.NewPackage(p.PackageID, p.Name, p.IsActive, components)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return repos.Packages().Upsert(ctx, pkg)
	})
	if err != nil {
		s.logger.Error("Failed to upsert package",
			zap.String("package_id", p.PackageID.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Package upserted",
		zap.String("package_id", pkg.ID.String()),
		zap.Int("components", len(pkg.Components)))
	return pkg, nil
}
