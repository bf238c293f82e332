// Package rediscache stores ranked leaderboards in Redis.
//
// Invalidation bumps a generation counter instead of deleting keys. Entries
// are written under the current generation and expire on their TTL, so a
// bump makes every older board unreachable in one round trip.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/warp/points-engine/leaderboard"
)

const DefaultPrefix = "lb"

type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

func New(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, prefix: DefaultPrefix}
}

func (c *Cache) genKey() string { return c.prefix + ":gen" }

func (c *Cache) entryKey(gen int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, key)
}

func (c *Cache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read generation")
	}
	return gen, nil
}

// Get looks key up under the current generation and returns that
// generation for the matching Set.
func (c *Cache) Get(ctx context.Context, key string) ([]leaderboard.RankedRow, int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	data, err := c.client.Get(ctx, c.entryKey(gen, key)).Bytes()
	if err == redis.Nil {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, errors.Wrapf(err, "get %s", key)
	}

	var rows []leaderboard.RankedRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, gen, false, errors.Wrapf(err, "decode %s", key)
	}
	return rows, gen, true, nil
}

// Set writes rows under gen. A board loaded before an Invalidate is written
// to the old generation, where no reader looks any more.
func (c *Cache) Set(ctx context.Context, key string, gen int64, rows []leaderboard.RankedRow) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	if err := c.client.Set(ctx, c.entryKey(gen, key), string(data), c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context) error {
	return errors.Wrap(c.client.Incr(ctx, c.genKey()).Err(), "bump generation")
}
