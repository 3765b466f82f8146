package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

func envelope(t *testing.T, eventType string, payload any) *primitives.IntegrationEventEnvelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	env := primitives.NewIntegrationEventEnvelope(eventType, string(raw))
	return &env
}

func TestProductUpsertedHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	h := NewProductUpsertedHandler(env.catalog, zaptest.NewLogger(t))
	productID := uuid.New()

	err := h.Handle(ctx, envelope(t, "ProductCreated", domain.ProductPayload{
		ProductID:      productID,
		Sku:            "PLATE-01",
		StockQuantity:  4,
		TurnaroundDays: 1,
		IsActive:       true,
	}))
	require.NoError(t, err)
	assert.Equal(t, 4, env.available(t, productID, "2024-01-01", "2024-01-01", ""))

	err = h.Handle(ctx, envelope(t, "ProductUpdated", domain.ProductPayload{
		ProductID:     productID,
		Sku:           "PLATE-01",
		StockQuantity: 6,
		IsActive:      true,
	}))
	require.NoError(t, err)
	assert.Equal(t, 6, env.available(t, productID, "2024-01-01", "2024-01-01", ""))

	t.Run("negative stock is acked and ignored", func(t *testing.T) {
		err := h.Handle(ctx, envelope(t, "ProductUpdated", domain.ProductPayload{ProductID: productID, StockQuantity: -1}))
		require.NoError(t, err)
		assert.Equal(t, 6, env.available(t, productID, "2024-01-01", "2024-01-01", ""))
	})

	t.Run("other event types are skipped", func(t *testing.T) {
		err := h.Handle(ctx, envelope(t, "ProductDeleted", domain.ProductPayload{ProductID: productID}))
		assert.NoError(t, err)
	})
}

func TestPaymentHandlers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	productID := env.addProduct(t, 5, 0)
	orderID := uuid.New()

	_, err := env.holds.CreateSoftHold(ctx, productID, "sess", 2, domain.MustDateRange("2024-01-01", "2024-01-02"))
	require.NoError(t, err)

	require.NoError(t, NewCheckoutStartedHandler(env.holds, logger).Handle(ctx,
		envelope(t, "CheckoutStarted", domain.CheckoutStartedPayload{SessionID: "sess", OrderID: orderID})))

	require.NoError(t, NewPaymentSucceededHandler(env.holds, logger).Handle(ctx,
		envelope(t, "PaymentSucceeded", domain.PaymentSucceededPayload{OrderID: orderID})))

	holds, err := env.holds.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, domain.HoldHardActive, holds[0].State)

	require.NoError(t, NewOrderReturnedHandler(env.holds, logger).Handle(ctx,
		envelope(t, "OrderReturned", domain.OrderRefPayload{OrderID: orderID})))

	holds, err = env.holds.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldHardCompleted, holds[0].State)
}

func TestOrderClosedHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	productID := env.addProduct(t, 5, 0)
	orderID := uuid.New()
	h := NewOrderClosedHandler(env.holds, logger)

	_, err := env.holds.CreateSoftHold(ctx, productID, "sess", 5, domain.MustDateRange("2024-01-01", "2024-01-02"))
	require.NoError(t, err)
	_, err = env.holds.PromoteSessionToOrder(ctx, "sess", orderID)
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, envelope(t, "PaymentFailed", domain.OrderRefPayload{OrderID: orderID, Reason: "card declined"})))
	require.NoError(t, h.Handle(ctx, envelope(t, "OrderCancelled", domain.OrderRefPayload{OrderID: orderID})))
	assert.Equal(t, 5, env.available(t, productID, "2024-01-01", "2024-01-02", ""))

	t.Run("missing order id is acked", func(t *testing.T) {
		assert.NoError(t, h.Handle(ctx, envelope(t, "PaymentExpired", map[string]string{})))
	})

	t.Run("malformed payload is acked", func(t *testing.T) {
		raw := primitives.NewIntegrationEventEnvelope("PaymentFailed", "{not json")
		assert.NoError(t, h.Handle(ctx, &raw))
	})
}

func TestCartClearedHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.addProduct(t, 5, 0)

	_, err := env.holds.CreateSoftHold(ctx, productID, "sess", 3, domain.MustDateRange("2024-01-01", "2024-01-02"))
	require.NoError(t, err)

	h := NewCartClearedHandler(env.holds, zaptest.NewLogger(t))
	require.NoError(t, h.Handle(ctx, envelope(t, "CartCleared", domain.CartClearedPayload{SessionID: "sess"})))
	assert.Equal(t, 5, env.available(t, productID, "2024-01-01", "2024-01-02", ""))
}
