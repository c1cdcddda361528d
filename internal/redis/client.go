package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/config"
)

// ScanBatchSize is the number of keys to scan per Redis SCAN iteration.
const ScanBatchSize = 100

// compareAndDeleteScript deletes KEYS[1] only while it holds ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndSwapScript replaces KEYS[1] with ARGV[2] only while it holds
// ARGV[1]. ARGV[3] is the TTL in milliseconds, 0 for none.
var compareAndSwapScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// Client is a Redis client wrapper that implements the Store interface.
// It provides thread-safe access to Redis operations with connection pooling,
// structured logging and automatic error handling.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
// Atomicity: the compare operations run as Lua scripts, so they are atomic
// across every replica sharing the Redis instance.
type Client struct {
	rdb    *redis.Client  // Redis client instance with connection pooling
	logger *logrus.Logger // Structured logger for debugging and monitoring
}

// NewClient creates a new Redis client with the provided configuration.
// The client is configured with connection pooling, timeouts, and retry settings
// from the RedisConfig. It performs an initial connectivity test using Ping()
// and returns an error if the Redis server is unreachable.
func NewClient(cfg *config.RedisConfig, logger *logrus.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password // pragma: allowlist secret
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConn
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolTimeout = cfg.PoolTimeout
	opts.ConnMaxIdleTime = cfg.IdleTimeout

	client := &Client{
		rdb:    redis.NewClient(opts),
		logger: logger,
	}

	if pingErr := client.Ping(context.Background()); pingErr != nil {
		_ = client.rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", pingErr)
	}

	logger.Info("Connected to Redis successfully")

	return client, nil
}

// NewClientFromRedis wraps an existing go-redis client.
func NewClientFromRedis(rdb *redis.Client, logger *logrus.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// Close gracefully shuts down the Redis client and closes all connections in the pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.WithError(err).Error("Failed to close Redis connection")
		return err
	}
	c.logger.Info("Redis connection closed")
	return nil
}

// Ping tests connectivity to the Redis server by sending a PING command.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// GetRedisClient returns the underlying go-redis client for advanced operations
// like rate limiting with redis_rate.
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}

// Get returns the value at key or ErrCacheMiss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// Put stores value at key with the given TTL.
func (c *Client) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// PutIfAbsent stores value with SET NX.
func (c *Client) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes key. This operation is idempotent.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// CompareAndDelete removes key if it still holds expected.
func (c *Client) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, c.rdb, []string{key}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-delete %s: %w", key, err)
	}
	return n == 1, nil
}

// CompareAndSwap replaces the value at key if it still holds expected.
func (c *Client) CompareAndSwap(
	ctx context.Context, key string, expected, value []byte, ttl time.Duration,
) (bool, error) {
	n, err := compareAndSwapScript.Run(ctx, c.rdb, []string{key}, expected, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-swap %s: %w", key, err)
	}
	return n == 1, nil
}

// Scan uses Redis SCAN to find every key starting with prefix.
func (c *Client) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	pattern := prefix + "*"

	for {
		batch, nextCursor, err := c.rdb.Scan(ctx, cursor, pattern, ScanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", pattern, err)
		}

		keys = append(keys, batch...)
		cursor = nextCursor

		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
