package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds optimistic-transaction retries in Update.
const maxUpdateRetries = 5

// TypedStore provides typed JSON-serialized get/set operations on Redis.
type TypedStore[C any] struct {
	client    *Client
	keyPrefix string
}

// NewTypedStore creates a TypedStore backed by the given Redis client.
// All keys are prefixed with keyPrefix followed by a colon separator.
func NewTypedStore[C any](client *Client, keyPrefix string) *TypedStore[C] {
	return &TypedStore[C]{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Key returns the full Redis key for key.
func (s *TypedStore[C]) Key(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

// Load deserializes JSON from Redis. Returns (nil, nil) if key doesn't exist.
func (s *TypedStore[C]) Load(ctx context.Context, key string) (*C, error) {
	raw, err := s.client.Get(ctx, s.Key(key))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("typed store load %q: %w", key, err)
	}
	return decode[C](key, raw)
}

// Save serializes to JSON and stores with TTL. TTL of 0 means no expiration.
func (s *TypedStore[C]) Save(ctx context.Context, key string, val *C, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("typed store marshal %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.Key(key), string(data), ttl); err != nil {
		return fmt.Errorf("typed store save %q: %w", key, err)
	}
	return nil
}

// Update reads the current value (nil if absent), passes it to fn and writes
// the result, all under WATCH so a concurrent writer cannot interleave.
// A nil result from fn leaves the key untouched. Conflicts are retried a few
// times before ErrConflict is returned.
func (s *TypedStore[C]) Update(ctx context.Context, key string, fn func(cur *C) (*C, error)) error {
	full := s.Key(key)
	txf := func(tx *goredis.Tx) error {
		var cur *C
		raw, err := tx.Get(ctx, full).Result()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return fmt.Errorf("typed store load %q: %w", key, err)
		default:
			if cur, err = decode[C](key, raw); err != nil {
				return err
			}
		}

		next, err := fn(cur)
		if err != nil || next == nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("typed store marshal %q: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, full, string(data), 0)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxUpdateRetries; i++ {
		err = s.client.Watch(ctx, txf, full)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

// Delete removes the key.
func (s *TypedStore[C]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.Key(key)); err != nil {
		return fmt.Errorf("typed store delete %q: %w", key, err)
	}
	return nil
}

func decode[C any](key, raw string) (*C, error) {
	var val C
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return nil, fmt.Errorf("typed store unmarshal %q: %w", key, err)
	}
	return &val, nil
}
