// Package cache keeps the last-known-good order snapshot for cold starts:
// the UI renders the cached order before the live subscription resolves.
package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"courierd/internal/metrics"
	"courierd/internal/order"
	"courierd/internal/types"
)

const redisKeyPrefix = "order:snapshot:"

// Offline is a write-through snapshot cache: an in-process map for the
// synchronous cold-start read, fronting an optional Redis tier that
// survives process restarts. Redis failures degrade to memory-only; the
// next live read overwrites the entry anyway.
//
// No TTL or eviction: one entry per order, overwritten indefinitely.
type Offline struct {
	rdb *redis.Client
	log *zap.Logger

	mu  sync.RWMutex
	mem map[types.ID]*order.Order
}

func NewOffline(rdb *redis.Client, log *zap.Logger) *Offline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Offline{rdb: rdb, log: log, mem: make(map[types.ID]*order.Order)}
}

// Put overwrites the cached snapshot for the order. Called on every
// successful live read.
func (c *Offline) Put(ctx context.Context, o *order.Order) {
	cp := *o
	c.mu.Lock()
	c.mem[o.ID] = &cp
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	buf, err := json.Marshal(o)
	if err != nil {
		c.log.Warn("snapshot encode failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+string(o.ID), buf, 0).Err(); err != nil {
		c.log.Warn("snapshot persistence failed", zap.String("order_id", string(o.ID)), zap.Error(err))
	}
}

// Get returns the cached snapshot for the order, or nil when the id is
// unknown. The memory tier answers synchronously; on a miss the Redis
// tier is consulted and backfilled.
func (c *Offline) Get(ctx context.Context, id types.ID) (*order.Order, bool) {
	c.mu.RLock()
	if o, ok := c.mem[id]; ok {
		cp := *o
		c.mu.RUnlock()
		metrics.CacheHitsTotal.Inc()
		return &cp, true
	}
	c.mu.RUnlock()

	if c.rdb != nil {
		buf, err := c.rdb.Get(ctx, redisKeyPrefix+string(id)).Bytes()
		if err == nil {
			var o order.Order
			if err := json.Unmarshal(buf, &o); err == nil {
				c.mu.Lock()
				c.mem[id] = &o
				c.mu.Unlock()
				cp := o
				metrics.CacheHitsTotal.Inc()
				return &cp, true
			}
		} else if err != redis.Nil {
			c.log.Warn("snapshot read failed", zap.String("order_id", string(id)), zap.Error(err))
		}
	}

	metrics.CacheMissesTotal.Inc()
	return nil, false
}
