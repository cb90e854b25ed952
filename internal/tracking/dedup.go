package tracking

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DedupStore remembers which (observer, key) pairs have fired. Entries never expire.
type DedupStore interface {
	// MarkOnce records key for the observer and reports whether this was the first time.
	MarkOnce(ctx context.Context, obs Observer, key string) (bool, error)
}

// MemoryDedup keeps fired keys for the lifetime of the process.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{seen: make(map[string]map[string]struct{})}
}

func (d *MemoryDedup) MarkOnce(_ context.Context, obs Observer, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys, ok := d.seen[obs.Key()]
	if !ok {
		keys = make(map[string]struct{})
		d.seen[obs.Key()] = keys
	}
	if _, fired := keys[key]; fired {
		return false, nil
	}
	keys[key] = struct{}{}
	return true, nil
}

// RedisDedup shares fired keys between instances with SETNX and no TTL.
type RedisDedup struct {
	client redis.Cmdable
	prefix string
}

func NewRedisDedup(client redis.Cmdable, prefix string) *RedisDedup {
	if prefix == "" {
		prefix = "notif"
	}
	return &RedisDedup{client: client, prefix: prefix}
}

func (d *RedisDedup) markerKey(obs Observer, key string) string {
	return d.prefix + ":" + obs.Key() + ":" + key
}

func (d *RedisDedup) MarkOnce(ctx context.Context, obs Observer, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.markerKey(obs, key), "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("dedup %s: %w", key, err)
	}
	return ok, nil
}
