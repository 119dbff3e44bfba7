package freshness

import (
	"context"

	"github.com/kbukum/medallion/redis"
)

// DefaultKeyPrefix namespaces freshness keys in Redis.
const DefaultKeyPrefix = "medallion:freshness"

// RedisStore keeps one JSON value per unit under <prefix>:<unit>.
// Put merges with the stored value inside a WATCH transaction.
type RedisStore struct {
	records *redis.TypedStore[Record]
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store on client. An empty prefix uses DefaultKeyPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{records: redis.NewTypedStore[Record](client, prefix)}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, unit string) (*Record, error) {
	if err := ValidateUnit(unit); err != nil {
		return nil, readErr(unit, err)
	}
	rec, err := s.records.Load(ctx, unit)
	if err != nil {
		return nil, readErr(unit, err)
	}
	return rec, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return writeErr(rec.Unit, err)
	}
	err := s.records.Update(ctx, rec.Unit, func(cur *Record) (*Record, error) {
		merged := merge(cur, rec)
		return &merged, nil
	})
	if err != nil {
		return writeErr(rec.Unit, err)
	}
	return nil
}
