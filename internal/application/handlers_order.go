package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

// CheckoutStartedHandler ties the cart's holds to the new order.
type CheckoutStartedHandler struct {
	holds  *HoldService
	logger *zap.Logger
}

func NewCheckoutStartedHandler(holds *HoldService, logger *zap.Logger) *CheckoutStartedHandler {
	return &CheckoutStartedHandler{holds: holds, logger: logger.Named("checkout-started")}
}

func (h *CheckoutStartedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	var payload domain.CheckoutStartedPayload
	if !decodeEnvelope(h.logger, ev, &payload, "CheckoutStarted") {
		return nil
	}

	n, err := h.holds.AttachSessionToOrder(ctx, payload.SessionID, payload.OrderID)
	if err != nil {
		return ackInvalid(h.logger, "CheckoutStarted", err)
	}
	h.logger.Info("Attached cart holds to order",
		zap.String("session_id", payload.SessionID),
		zap.String("order_id", payload.OrderID.String()),
		zap.Int("count", n))
	return nil
}

// PaymentSucceededHandler makes the order's holds durable.
type PaymentSucceededHandler struct {
	holds  *HoldService
	logger *zap.Logger
}

func NewPaymentSucceededHandler(holds *HoldService, logger *zap.Logger) *PaymentSucceededHandler {
	return &PaymentSucceededHandler{holds: holds, logger: logger.Named("payment-succeeded")}
}

func (h *PaymentSucceededHandler) Handle(ctx context.Context, ev primitives.Event) error {
	var payload domain.PaymentSucceededPayload
	if !decodeEnvelope(h.logger, ev, &payload, "PaymentSucceeded") {
		return nil
	}
	if payload.OrderID == uuid.Nil {
		h.logger.Warn("Missing orderId")
		return nil
	}

	promoted := 0
	if payload.SessionID != "" {
		n, err := h.holds.PromoteSessionToOrder(ctx, payload.SessionID, payload.OrderID)
		if err != nil {
			return ackInvalid(h.logger, "PaymentSucceeded", err)
		}
		promoted += n
	}
	n, err := h.holds.PromoteOrder(ctx, payload.OrderID)
	if err != nil {
		return ackInvalid(h.logger, "PaymentSucceeded", err)
	}
	promoted += n

	h.logger.Info("Promoted holds after payment",
		zap.String("order_id", payload.OrderID.String()),
		zap.Int("count", promoted))
	return nil
}

// OrderClosedHandler releases holds of orders that will never be fulfilled:
// failed or expired payments and cancelled orders.
type OrderClosedHandler struct {
	holds  *HoldService
	logger *zap.Logger
}

func NewOrderClosedHandler(holds *HoldService, logger *zap.Logger) *OrderClosedHandler {
	return &OrderClosedHandler{holds: holds, logger: logger.Named("order-closed")}
}

func (h *OrderClosedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	var payload domain.OrderRefPayload
	if !decodeEnvelope(h.logger, ev, &payload, "PaymentFailed", "PaymentExpired", "OrderCancelled") {
		return nil
	}

	n, err := h.holds.ReleaseByOrder(ctx, payload.OrderID)
	if err != nil {
		return ackInvalid(h.logger, "OrderClosed", err)
	}
	h.logger.Info("Released order holds",
		zap.String("order_id", payload.OrderID.String()),
		zap.String("reason", payload.Reason),
		zap.Int("count", n))
	return nil
}

type OrderReturnedHandler struct {
	holds  *HoldService
	logger *zap.Logger
}

func NewOrderReturnedHandler(holds *HoldService, logger *zap.Logger) *OrderReturnedHandler {
	return &OrderReturnedHandler{holds: holds, logger: logger.Named("order-returned")}
}

func (h *OrderReturnedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	var payload domain.OrderRefPayload
	if !decodeEnvelope(h.logger, ev, &payload, "OrderReturned") {
		return nil
	}

	n, err := h.holds.CompleteByOrder(ctx, payload.OrderID)
	if err != nil {
		return ackInvalid(h.logger, "OrderReturned", err)
	}
	h.logger.Info("Completed order holds",
		zap.String("order_id", payload.OrderID.String()),
		zap.Int("count", n))
	return nil
}

type CartClearedHandler struct {
	holds  *HoldService
	logger *zap.Logger
}

func NewCartClearedHandler(holds *HoldService, logger *zap.Logger) *CartClearedHandler {
	return &CartClearedHandler{holds: holds, logger: logger.Named("cart-cleared")}
}

func (h *CartClearedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	var payload domain.CartClearedPayload
	if !decodeEnvelope(h.logger, ev, &payload, "CartCleared") {
		return nil
	}

	n, err := h.holds.ReleaseBySession(ctx, payload.SessionID)
	if err != nil {
		return ackInvalid(h.logger, "CartCleared", err)
	}
	h.logger.Info("Released cart holds",
		zap.String("session_id", payload.SessionID),
		zap.Int("count", n))
	return nil
}
