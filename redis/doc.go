// Package redis provides a Redis client wrapper built on go-redis with
// structured logging, connection pooling, component lifecycle support and
// typed JSON records.
//
//	comp := redis.NewComponent(redis.Config{Addr: "localhost:6379"}, log)
//	registry.Register(comp)
//	...
//	store := redis.NewTypedStore[Record](comp.Client(), "medallion:freshness")
//	err := store.Update(ctx, "eia", func(cur *Record) (*Record, error) { ... })
package redis
