package worker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisDedup layers a Redis-backed SADD claim in front of the in-process
// map, so two separate invocations against the same output tree (e.g. a
// resumed run after a crash) observe each other's already-claimed records.
// The in-process map stays the fast path inside one run: Redis is only
// consulted on a local miss.
type redisDedup struct {
	local *memDedup
	rdb   *redis.Client
	key   string
}

// NewRedisDedup returns a Dedup backend that additionally gates first
// sightings of each key through a Redis set named
// "bundleextract:dedup:<scope>". Invocations that pass the same scope share
// one set.
func NewRedisDedup(rdb *redis.Client, scope string) Dedup {
	return &redisDedup{
		local: &memDedup{seen: make(map[dedupKey]struct{})},
		rdb:   rdb,
		key:   fmt.Sprintf("bundleextract:dedup:%s", scope),
	}
}

func (d *redisDedup) Claim(key dedupKey) (bool, error) {
	firstLocal, _ := d.local.Claim(key)
	if !firstLocal {
		return false, nil
	}

	member := fmt.Sprintf("%016x:%016x", key.Ext, key.Name)
	added, err := d.rdb.SAdd(context.Background(), d.key, member).Result()
	if err != nil {
		return false, fmt.Errorf("worker: redis dedup check for %s: %w", member, err)
	}
	return added > 0, nil
}

func (d *redisDedup) Count() int {
	return d.local.Count()
}
