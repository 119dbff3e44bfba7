package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/medallion/logger"
)

// Sentinel errors returned by Client.
var (
	ErrNotFound = errors.New("redis: key not found")
	ErrConflict = errors.New("redis: watched key changed")
)

// Client wraps a go-redis client with structured logging.
type Client struct {
	rdb    *goredis.Client
	log    *logger.Logger
	cfg    Config
	closed bool
	mu     sync.Mutex
}

// New creates a new Redis client with the given configuration and logger.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}

	log = logger.OrComponent(log, "redis")
	rdb := goredis.NewClient(cfg.options())

	log.Debug("Redis client created", logger.Fields("addr", cfg.Addr, "db", cfg.DB, "pool_size", cfg.PoolSize))
	return &Client{rdb: rdb, log: log, cfg: cfg}, nil
}

// Ping verifies the Redis connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	pong, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected redis ping response: %s", pong)
	}
	return nil
}

// Get retrieves a value by key. A missing key returns ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

// Set stores a value with a key and expiration.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Watch runs fn in an optimistic transaction watching keys. fn queues its
// writes with tx.TxPipelined; if a watched key changed meanwhile the
// transaction is dropped and ErrConflict returned.
func (c *Client) Watch(ctx context.Context, fn func(tx *goredis.Tx) error, keys ...string) error {
	err := c.rdb.Watch(ctx, fn, keys...)
	if errors.Is(err, goredis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

// Close closes the Redis connection. Safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.rdb.Close()
}

// Unwrap returns the underlying go-redis client for advanced operations.
func (c *Client) Unwrap() *goredis.Client {
	return c.rdb
}
