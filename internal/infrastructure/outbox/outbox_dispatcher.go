package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/abstractions"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

// Publisher sends one stored event to the broker.
type Publisher interface {
	Publish(ctx context.Context, eventType, payloadJSON string) error
}

// BusPublisher publishes standard integration envelopes routed by event type.
type BusPublisher struct {
	bus abstractions.EventBus
}

func NewBusPublisher(bus abstractions.EventBus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

func (p *BusPublisher) Publish(ctx context.Context, eventType, payloadJSON string) error {
	envelope := primitives.NewIntegrationEventEnvelope(eventType, payloadJSON)
	envelope.SetRoutingKey(eventType)
	return p.bus.Publish(ctx, &envelope)
}

type DispatcherConfig struct {
	MaxRetry  int
	BatchSize int
	// Consecutive publish failures that open the breaker.
	BreakerFailures uint32
	// How long the breaker stays open before letting one publish through.
	BreakerCooldown time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.MaxRetry <= 0 {
		c.MaxRetry = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

type Dispatcher struct {
	repo      domain.OutboxRepository
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]
	cfg       DispatcherConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewDispatcher(
	repo domain.OutboxRepository,
	publisher Publisher,
	cfg DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	cfg = cfg.withDefaults()
	logger = logger.Named("outbox")
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "outbox-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Publish breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		breaker:   breaker,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// DispatchOnce publishes one batch of pending messages and returns how
// many were delivered. An open breaker ends the batch early without
// spending retries.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	msgs, err := d.repo.GetPendingBatch(ctx, d.cfg.MaxRetry, d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	processed := 0
	for i := range msgs {
		msg := &msgs[i]

		if !json.Valid([]byte(msg.PayloadJSON)) {
			d.logger.Error("Outbox payload is not valid JSON",
				zap.String("message_id", msg.ID.String()),
				zap.String("type", msg.Type))
			msg.RetryCount++
			d.save(ctx, msg)
			continue
		}

		_, err := d.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, d.publisher.Publish(ctx, msg.Type, msg.PayloadJSON)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			d.logger.Warn("Broker unavailable, deferring outbox batch",
				zap.Int("remaining", len(msgs)-i))
			break
		}

		if err != nil {
			d.logger.Warn("Failed to publish outbox message",
				zap.String("message_id", msg.ID.String()),
				zap.String("type", msg.Type),
				zap.Int("retry_count", msg.RetryCount+1),
				zap.Error(err))
			msg.RetryCount++
		} else {
			now := d.now().UTC()
			msg.ProcessedAtUtc = &now
			processed++
		}
		d.save(ctx, msg)
	}

	return processed, nil
}

func (d *Dispatcher) save(ctx context.Context, msg *domain.OutboxMessage) {
	if err := d.repo.Save(ctx, *msg); err != nil {
		d.logger.Error("Failed to save outbox message",
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
	}
}
