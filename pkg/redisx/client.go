package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/danghamo/tourguide/pkg/config"
	"github.com/danghamo/tourguide/pkg/logger"
)

// Client wraps redis.Client with logged JSON helpers
type Client struct {
	*redis.Client
	logger *logger.Logger
}

// NewClient creates a Redis client from a URL and checks the connection
func NewClient(ctx context.Context, redisURL string, log *logger.Logger) (*Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL cannot be empty")
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	redisOptions, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := Wrap(redis.NewClient(redisOptions), log)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	client.logger.Info("Redis client connected",
		zap.String("addr", redisOptions.Addr),
		zap.Int("db", redisOptions.DB),
		zap.Int("pool_size", redisOptions.PoolSize),
	)
	return client, nil
}

// NewClientFromConfig creates a Redis client from the redis config section
func NewClientFromConfig(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	return NewClient(ctx, cfg.URL(), log)
}

// Wrap adapts an existing go-redis client
func Wrap(rdb *redis.Client, log *logger.Logger) *Client {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Client{Client: rdb, logger: log.WithComponent("redisx")}
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.Client.Close()
}

// HealthCheck performs a health check on the Redis connection
func (c *Client) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := c.Ping(ctx).Err()
	duration := time.Since(start)

	if err != nil {
		c.logger.Error("Redis health check failed",
			zap.Error(err),
			zap.Duration("duration", duration),
		)
		return err
	}

	c.logger.Debug("Redis health check passed", zap.Duration("duration", duration))
	return nil
}

// SetJSON stores v as a JSON string
func (c *Client) SetJSON(ctx context.Context, key string, v any, expiration time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	start := time.Now()
	if err := c.Set(ctx, key, data, expiration).Err(); err != nil {
		c.logger.Error("Failed to set key",
			zap.String("key", key),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	c.logger.Debug("Set key", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// GetJSON decodes the JSON string at key into v. found is false when the key is missing.
func (c *Client) GetJSON(ctx context.Context, key string, v any) (found bool, err error) {
	start := time.Now()
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("Key not found", zap.String("key", key))
		return false, nil
	}
	if err != nil {
		c.logger.Error("Failed to get key",
			zap.String("key", key),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}
