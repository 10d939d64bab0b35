// Package cache wraps Redis behind a small JSON get/set interface. The
// engine uses it to memoize geocode lookups and per-user overviews; it is
// never the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"

	apperrors "github.com/dadlink/dadlink/internal/errors"
	"github.com/dadlink/dadlink/internal/telemetry"
)

// ErrCacheMiss is returned when a key is absent.
var ErrCacheMiss = redis.Nil

// Client is the subset of the Redis client the service needs, extracted for
// testing.
type Client interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Service provides JSON caching with TTLs on top of Redis.
type Service struct {
	client Client
}

// NewService connects to Redis using a redis:// URL and instruments the
// client with OpenTelemetry tracing.
func NewService(redisURL string) (*Service, error) {
	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.LogFromContext(ctx).WithField("operation", "redis_connection")

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.MaxRetries = 3

	client := redis.NewClient(opts)
	client.AddHook(redisotel.NewTracingHook())

	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connected")
	return &Service{client: client}, nil
}

// NewServiceWithClient builds a Service on an existing client, used in tests.
func NewServiceWithClient(client Client) *Service {
	return &Service{client: client}
}

// SetJSON marshals value and stores it under key with the given TTL. A zero
// TTL stores without expiry.
func (s *Service) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return apperrors.NewCacheError("marshal", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return apperrors.NewCacheError("set", err)
	}
	return nil
}

// GetJSON loads key into dest. Returns ErrCacheMiss when absent.
func (s *Service) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrCacheMiss
		}
		return apperrors.NewCacheError("get", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return apperrors.NewCacheError("unmarshal", err)
	}
	return nil
}

// Delete removes a key. Missing keys are not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return apperrors.NewCacheError("delete", err)
	}
	return nil
}

// HealthCheck reports whether Redis answers a ping.
func (s *Service) HealthCheck(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// Close releases the underlying connection.
func (s *Service) Close() error {
	return s.client.Close()
}
