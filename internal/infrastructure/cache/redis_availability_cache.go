package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

const (
	DefaultTTL       = 30 * time.Second
	defaultKeyPrefix = "rentals:avail"
)

// RedisAvailabilityCache caches availability answers under a per-product
// generation number. Invalidate bumps the generation, so entries written
// before it can no longer be addressed and expire on their own.
//
// Redis failures never fail a request: the answer is computed from the
// store instead.
type RedisAvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
	group  singleflight.Group
}

type Option func(*RedisAvailabilityCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RedisAvailabilityCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(c *RedisAvailabilityCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *RedisAvailabilityCache) {
		c.logger = logger
	}
}

// NewRedisAvailabilityCache uses an existing client; the caller keeps
// ownership of it.
func NewRedisAvailabilityCache(client *redis.Client, opts ...Option) *RedisAvailabilityCache {
	c := &RedisAvailabilityCache{
		client: client,
		ttl:    DefaultTTL,
		prefix: defaultKeyPrefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

var _ application.AvailabilityCache = (*RedisAvailabilityCache)(nil)

func (c *RedisAvailabilityCache) GetOrLoad(
	ctx context.Context,
	q domain.AvailabilityQuery,
	load application.AvailabilityLoader,
) (domain.AvailabilityResult, error) {
	gen, err := c.generation(ctx, q.ProductID)
	if err != nil {
		c.logger.Warn("Availability cache unreachable, reading from store",
			zap.String("product_id", q.ProductID.String()),
			zap.Error(err))
		return load(ctx, q)
	}

	key := c.entryKey(q, gen)
	if res, ok := c.get(ctx, key); ok {
		return res, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := load(ctx, q)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return domain.AvailabilityResult{}, err
	}
	return v.(domain.AvailabilityResult), nil
}

func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, productIDs ...uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, id := range productIDs {
		pipe.Incr(ctx, c.generationKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func (c *RedisAvailabilityCache) generation(ctx context.Context, productID uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(productID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisAvailabilityCache) get(ctx context.Context, key string) (domain.AvailabilityResult, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AvailabilityResult{}, false
	}
	if err != nil {
		c.logger.Warn("Availability cache read failed", zap.String("key", key), zap.Error(err))
		return domain.AvailabilityResult{}, false
	}

	var entry cachedResult
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("Discarding malformed availability cache entry", zap.String("key", key), zap.Error(err))
		return domain.AvailabilityResult{}, false
	}
	return entry.toDomain(), true
}

func (c *RedisAvailabilityCache) set(ctx context.Context, key string, res domain.AvailabilityResult) {
	data, err := json.Marshal(fromDomain(res))
	if err != nil {
		c.logger.Warn("Failed to encode availability cache entry", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Availability cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisAvailabilityCache) generationKey(productID uuid.UUID) string {
	return fmt.Sprintf("%s:gen:%s", c.prefix, productID)
}

func (c *RedisAvailabilityCache) entryKey(q domain.AvailabilityQuery, gen int64) string {
	return fmt.Sprintf("%s:%s:%d:%s:%s:%d:%s",
		c.prefix,
		q.ProductID,
		gen,
		q.Dates.Start.Format(domain.DateLayout),
		q.Dates.End.Format(domain.DateLayout),
		q.Quantity,
		q.ExcludeSessionID,
	)
}

type cachedResult struct {
	ProductID         uuid.UUID `json:"productId"`
	Available         bool      `json:"available"`
	AvailableQuantity int       `json:"availableQuantity"`
	RequestedQuantity int       `json:"requestedQuantity"`
	StockTotal        int       `json:"stockTotal"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	Reason            string    `json:"reason,omitempty"`
}

func fromDomain(r domain.AvailabilityResult) cachedResult {
	return cachedResult{
		ProductID:         r.ProductID,
		Available:         r.Available,
		AvailableQuantity: r.AvailableQuantity,
		RequestedQuantity: r.RequestedQuantity,
		StockTotal:        r.StockTotal,
		ReservedQuantity:  r.ReservedQuantity,
		Reason:            r.Reason,
	}
}

func (c cachedResult) toDomain() domain.AvailabilityResult {
	return domain.AvailabilityResult{
		ProductID:         c.ProductID,
		Available:         c.Available,
		AvailableQuantity: c.AvailableQuantity,
		RequestedQuantity: c.RequestedQuantity,
		StockTotal:        c.StockTotal,
		ReservedQuantity:  c.ReservedQuantity,
		Reason:            c.Reason,
	}
}
