package messaging

import (
	"context"
	"fmt"

	messaging "github.com/rodolfodevapp/eventshop-messaging-go/rabbitmq"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/application"
)

const (
	CatalogExchange      = "catalog.events"
	OrdersExchange       = "orders.events"
	PaymentsExchange     = "payments.events"
	CartsExchange        = "carts.events"
	ReservationsExchange = "reservations.events"
)

type BusOptions struct {
	URI          string
	QueuePrefix  string
	Prefetch     int
	RetryDelayMs int
}

func (o BusOptions) forExchange(exchange, queuePrefix string) messaging.RabbitMqOptions {
	prefetch := o.Prefetch
	if prefetch <= 0 {
		prefetch = 32
	}
	retryDelay := o.RetryDelayMs
	if retryDelay <= 0 {
		retryDelay = 30000
	}
	return messaging.RabbitMqOptions{
		URI:          o.URI,
		ExchangeName: exchange,
		QueuePrefix:  queuePrefix,
		Prefetch:     prefetch,
		RetryDelayMs: retryDelay,
	}
}

// Buses holds one consumer per upstream exchange plus the producer for
// reservations.events.
type Buses struct {
	Catalog  *messaging.RabbitMqEventBus
	Orders   *messaging.RabbitMqEventBus
	Payments *messaging.RabbitMqEventBus
	Carts    *messaging.RabbitMqEventBus
	Producer *messaging.RabbitMqEventBus
}

func NewBuses(opts BusOptions) Buses {
	consumer := func(exchange string) *messaging.RabbitMqEventBus {
		return messaging.NewRabbitMqEventBus(opts.forExchange(exchange, opts.QueuePrefix), nil, nil)
	}
	return Buses{
		Catalog:  consumer(CatalogExchange),
		Orders:   consumer(OrdersExchange),
		Payments: consumer(PaymentsExchange),
		Carts:    consumer(CartsExchange),
		Producer: messaging.NewRabbitMqEventBus(
			opts.forExchange(ReservationsExchange, opts.QueuePrefix+".dispatcher"), nil, nil),
	}
}

// Handlers are the application handlers bound to incoming events.
type Handlers struct {
	ProductUpserted  application.EventHandler
	PackageUpserted  application.EventHandler
	CheckoutStarted  application.EventHandler
	PaymentSucceeded application.EventHandler
	OrderClosed      application.EventHandler
	OrderReturned    application.EventHandler
	CartCleared      application.EventHandler
}

type subscription struct {
	bus    *messaging.RabbitMqEventBus
	name   string
	events map[string]application.EventHandler
}

// RegisterSubscriptions subscribes every handler and starts the consumers.
func RegisterSubscriptions(ctx context.Context, buses Buses, h Handlers, logger *zap.Logger) error {
	subs := []subscription{
		{buses.Catalog, CatalogExchange, map[string]application.EventHandler{
			"ProductCreated":  h.ProductUpserted,
			"ProductUpdated":  h.ProductUpserted,
			"PackageUpserted": h.PackageUpserted,
		}},
		{buses.Orders, OrdersExchange, map[string]application.EventHandler{
			"CheckoutStarted": h.CheckoutStarted,
			"OrderCancelled":  h.OrderClosed,
			"OrderReturned":   h.OrderReturned,
		}},
		{buses.Payments, PaymentsExchange, map[string]application.EventHandler{
			"PaymentSucceeded": h.PaymentSucceeded,
			"PaymentFailed":    h.OrderClosed,
			"PaymentExpired":   h.OrderClosed,
		}},
		{buses.Carts, CartsExchange, map[string]application.EventHandler{
			"CartCleared": h.CartCleared,
		}},
	}

	for _, s := range subs {
		for event, handler := range s.events {
			s.bus.Subscribe(event, handler)
		}
		if err := s.bus.StartConsumers(ctx); err != nil {
			logger.Error("Error starting consumers", zap.String("exchange", s.name), zap.Error(err))
			return fmt.Errorf("start %s consumers: %w", s.name, err)
		}
		logger.Info("Consumers started",
			zap.String("exchange", s.name),
			zap.Int("events", len(s.events)))
	}
	return nil
}
