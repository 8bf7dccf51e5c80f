// Package store keeps off-chain bookkeeping of issued quote nonces in Redis.
package store

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seabucks/dealer/metrics"
)

// DefaultKeyPrefix namespaces registry keys.
const DefaultKeyPrefix = "dealer:nonce"

// RedisRegistry reserves issued nonces with SETNX so two quotes in flight never share
// a nonce. It is advisory: the router's consumed set stays authoritative.
type RedisRegistry struct {
	redis  *redis.Client
	prefix string
	logger *zap.Logger
}

// Option configures a RedisRegistry.
type Option func(*RedisRegistry)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(r *RedisRegistry) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *RedisRegistry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRedisRegistry connects to addr and pings it before returning.
func NewRedisRegistry(addr string, db int, opts ...Option) (*RedisRegistry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisRegistryFromClient(rdb, opts...), nil
}

// NewRedisRegistryFromClient wraps an existing client.
func NewRedisRegistryFromClient(rdb *redis.Client, opts ...Option) *RedisRegistry {
	r := &RedisRegistry{redis: rdb, prefix: DefaultKeyPrefix, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRegistry) key(chainID int64, nonce *big.Int) string {
	return fmt.Sprintf("%s:%d:%s", r.prefix, chainID, nonce.String())
}

// Reserve records nonce for chainID until ttl elapses. It reports false when the nonce
// is already held by another quote.
func (r *RedisRegistry) Reserve(ctx context.Context, chainID int64, nonce *big.Int, ttl time.Duration) (bool, error) {
	if nonce == nil {
		return false, fmt.Errorf("nil nonce")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	key := r.key(chainID, nonce)
	ok, err := r.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		metrics.NonceReservationsTotal.WithLabelValues("error").Inc()
		r.logger.Warn("store.reserve_failed", zap.String("key", key), zap.Error(err))
		return false, fmt.Errorf("reserve %s: %w", key, err)
	}
	if !ok {
		metrics.NonceReservationsTotal.WithLabelValues("duplicate").Inc()
		r.logger.Info("store.nonce_taken", zap.String("key", key))
		return false, nil
	}
	metrics.NonceReservationsTotal.WithLabelValues("reserved").Inc()
	return true, nil
}

// IsReserved reports whether nonce is currently held for chainID.
func (r *RedisRegistry) IsReserved(ctx context.Context, chainID int64, nonce *big.Int) (bool, error) {
	n, err := r.redis.Exists(ctx, r.key(chainID, nonce)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HealthCheck pings Redis.
func (r *RedisRegistry) HealthCheck(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

func (r *RedisRegistry) Close() error {
	return r.redis.Close()
}
