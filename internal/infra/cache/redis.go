package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/boddenberg/selo-amazonia-go/internal/domain"
	"github.com/boddenberg/selo-amazonia-go/internal/infra/observability"
	"github.com/boddenberg/selo-amazonia-go/internal/port"
)

var _ port.CatalogCache = (*RedisCatalog)(nil)

// RedisConfig selects the Redis instance backing the catalog cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCatalog stores the public catalog snapshot as JSON in Redis so every
// API replica sees the same invalidation.
type RedisCatalog struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRedisCatalog connects and pings Redis.
func NewRedisCatalog(ctx context.Context, cfg RedisConfig, metrics *observability.Metrics, logger *zap.Logger) (*RedisCatalog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCatalog{client: client, ttl: ttl, metrics: metrics, logger: logger}, nil
}

// NewRedisCatalogWithClient wraps an existing client (tests, shared pools).
func NewRedisCatalogWithClient(client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *zap.Logger) *RedisCatalog {
	return &RedisCatalog{client: client, ttl: ttl, metrics: metrics, logger: logger}
}

// GetPublic treats any Redis failure as a miss; the store is the source of truth.
func (r *RedisCatalog) GetPublic(ctx context.Context) ([]domain.PublicProduct, bool) {
	raw, err := r.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("catalog cache read failed", zap.Error(err))
		}
		r.metrics.IncrCacheMiss(catalogLabel)
		return nil, false
	}

	var products []domain.PublicProduct
	if err := json.Unmarshal(raw, &products); err != nil {
		r.logger.Warn("catalog cache entry corrupt, dropping", zap.Error(err))
		r.InvalidatePublic(ctx)
		r.metrics.IncrCacheMiss(catalogLabel)
		return nil, false
	}

	r.metrics.IncrCacheHit(catalogLabel)
	return products, true
}

func (r *RedisCatalog) SetPublic(ctx context.Context, products []domain.PublicProduct) {
	raw, err := json.Marshal(products)
	if err != nil {
		r.logger.Warn("catalog cache encode failed", zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, catalogKey, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("catalog cache write failed", zap.Error(err))
	}
}

func (r *RedisCatalog) InvalidatePublic(ctx context.Context) {
	if err := r.client.Del(ctx, catalogKey).Err(); err != nil {
		r.logger.Warn("catalog cache invalidate failed", zap.Error(err))
	}
}

// Ping is used by /readyz.
func (r *RedisCatalog) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisCatalog) Close() error {
	return r.client.Close()
}
