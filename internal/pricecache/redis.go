package pricecache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/borhen68/framatale-sub001/internal/domain/pricing"
)

// Redis is a pricing.Cache backed by a Redis instance, for deployments that
// share the price cache across replicas. Results are stored as JSON with a
// TTL derived from the absolute expiry. All failures are logged and treated
// as cache misses; the cache is best-effort.
type Redis struct {
	client *redis.Client
	lg     *zap.Logger
	now    func() time.Time
}

// NewRedis creates a Redis cache from the given client.
func NewRedis(client *redis.Client, lg *zap.Logger) *Redis {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Redis{client: client, lg: lg, now: time.Now}
}

// Get fetches and decodes the cached result for key.
func (r *Redis) Get(ctx context.Context, key string) (*pricing.Result, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.lg.Warn("price cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var res pricing.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		r.lg.Warn("price cache decode failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &res, true
}

// Set stores the result under key until expiresAt.
func (r *Redis) Set(ctx context.Context, key string, res *pricing.Result, expiresAt time.Time) {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		r.lg.Warn("price cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		r.lg.Warn("price cache set failed", zap.String("key", key), zap.Error(err))
	}
}
