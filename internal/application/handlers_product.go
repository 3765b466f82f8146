package application

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

type EventHandler interface {
	Handle(ctx context.Context, ev primitives.Event) error
}

// decodeEnvelope unpacks an integration envelope of one of the accepted
// types. Anything else is acked without processing.
func decodeEnvelope(logger *zap.Logger, ev primitives.Event, payload any, types ...string) bool {
	env, ok := ev.(*primitives.IntegrationEventEnvelope)
	if !ok {
		logger.Warn("Invalid event type", zap.String("go_type", typeNameOf(ev)))
		return false
	}
	if !slices.Contains(types, env.Type) {
		return false
	}
	if err := json.Unmarshal([]byte(env.PayloadJSON), payload); err != nil {
		logger.Warn("Failed to unmarshal payload",
			zap.String("event", env.Type),
			zap.Error(err))
		return false
	}
	return true
}

// ackInvalid drops events the domain rejects so the broker does not
// redeliver them forever. Infrastructure errors are returned for retry.
func ackInvalid(logger *zap.Logger, event string, err error) error {
	if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidRange) {
		logger.Warn("Rejected event", zap.String("event", event), zap.Error(err))
		return nil
	}
	return err
}

// ProductUpsertedHandler applies ProductCreated and ProductUpdated.
type ProductUpsertedHandler struct {
	catalog *CatalogService
	logger  *zap.Logger
}

func NewProductUpsertedHandler(catalog *CatalogService, logger *zap.Logger) *ProductUpsertedHandler {
	return &ProductUpsertedHandler{catalog: catalog, logger: logger.Named("product-upserted")}
}

func (h *ProductUpsertedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	var payload domain.ProductPayload
	if !decodeEnvelope(h.logger, ev, &payload, "ProductCreated", "ProductUpdated") {
		return nil
	}

	h.logger.Debug("Received product",
		zap.String("product_id", payload.ProductID.String()),
		zap.String("sku", payload.Sku),
		zap.Int("stock_quantity", payload.StockQuantity))

	_, err := h.catalog.UpsertProduct(ctx, payload)
	return ackInvalid(h.logger, "ProductUpserted", err)
}

type PackageUpsertedHandler struct {
	catalog *CatalogService
	logger  *zap.Logger
}

func NewPackageUpsertedHandler(catalog *CatalogService, logger *zap.Logger) *PackageUpsertedHandler {
	return &PackageUpsertedHandler{catalog: catalog, logger: logger.Named("package-upserted")}
}

func (h *PackageUpsertedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	var payload domain.PackageUpsertedPayload
	if !decodeEnvelope(h.logger, ev, &payload, "PackageUpserted") {
		return nil
	}

	_, err := h.catalog.UpsertPackage(ctx, payload)
	return ackInvalid(h.logger, "PackageUpserted", err)
}
