// Package cache provides the shared Redis-backed key/value cache and its
// tag-based reverse index, used by the route-cache middleware and by the
// browse/search services to short-circuit repeated reads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gallery-core/internal/logging"
	"gallery-core/internal/metrics"
)

// keyPrefix namespaces every cache key so a shared Redis instance can be
// used for other purposes without collision.
const keyPrefix = "gallery:"

// tagPrefix namespaces the reverse-index sets.
const tagPrefix = "gallery:tag:"

// DefaultCeiling is the number of keys a single tag invalidation will walk
// before giving up and falling back to a coarse pattern-delete. Overridden
// per Cache by Options.Ceiling; the value is fixed for the Cache's lifetime.
const DefaultCeiling = 2000

// Cache wraps a Redis client with the get/set/invalidateTags contract.
// All operations degrade gracefully on a Redis error: callers proceed as
// if the cache had missed rather than failing the request.
type Cache struct {
	rdb     *redis.Client
	ceiling int
}

// Options configures a Cache.
type Options struct {
	Addr     string
	Password string
	DB       int
	Ceiling  int // 0 uses DefaultCeiling
}

// New connects to Redis with the exponential-backoff reconnect go-redis
// applies internally, and returns a Cache that degrades to pass-through on
// any subsequent connection error.
func New(opts Options) *Cache {
	ceiling := opts.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	return &Cache{rdb: rdb, ceiling: ceiling}
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Ping reports whether the cache backend is reachable, updating the
// CacheDegraded gauge accordingly.
func (c *Cache) Ping(ctx context.Context) error {
	err := c.rdb.Ping(ctx).Err()
	if err != nil {
		metrics.CacheDegraded.Set(1)
		return err
	}
	metrics.CacheDegraded.Set(0)
	return nil
}

func namespacedKey(key string) string {
	return keyPrefix + key
}

func namespacedTag(tag string) string {
	return tagPrefix + tag
}

// Get fetches a cached value. A genuine miss returns ("", false, nil); a
// Redis error returns ("", false, err) — callers treat both identically as
// a miss, per the cache's graceful-degradation contract. The non-nil error
// is only returned for logging/metrics purposes by callers that want it;
// most callers can ignore it.
func (c *Cache) Get(ctx context.Context, key string) (value string, hit bool, err error) {
	val, getErr := c.rdb.Get(ctx, namespacedKey(key)).Result()
	switch {
	case errors.Is(getErr, redis.Nil):
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return "", false, nil
	case getErr != nil:
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
		logging.Warn("cache get %q failed, degrading to miss: %v", key, getErr)
		return "", false, getErr
	default:
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return val, true, nil
	}
}

// Set stores value under key with the given TTL. A zero TTL means no
// expiry. Errors are logged and returned; a caller that ignores the error
// degrades to "not cached" rather than failing its request.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, namespacedKey(key), value, ttl).Err(); err != nil {
		logging.Warn("cache set %q failed: %v", key, err)
		return err
	}
	return nil
}

// AddTagsToKey records key as a member of every tag's reverse-index set.
// Called whenever a response is cached so a later InvalidateTags can find
// it. Each tag set gets the same TTL as the key so the index can't outlive
// its entries indefinitely.
func (c *Cache) AddTagsToKey(ctx context.Context, key string, tags []string, ttl time.Duration) error {
	if len(tags) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	nsKey := namespacedKey(key)
	for _, tag := range tags {
		pipe.SAdd(ctx, namespacedTag(tag), nsKey)
		if ttl > 0 {
			pipe.Expire(ctx, namespacedTag(tag), ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		logging.Warn("cache addTagsToKey for %q failed: %v", key, err)
	}
	return err
}

// InvalidateTags evicts every key reachable from any of the given tags.
// Keys are collected across all tags in one pipelined read, then deleted
// along with the tag sets themselves in one pipelined write. If the
// combined key count exceeds the configured ceiling, InvalidateTags trips
// CacheCeilingTrips and returns ErrCeilingExceeded instead of deleting
// anything — the caller (the watcher/indexer's invalidation path) is
// expected to fall back to a coarse pattern-delete in that case.
func (c *Cache) InvalidateTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	readPipe := c.rdb.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(tags))
	for i, tag := range tags {
		cmds[i] = readPipe.SMembers(ctx, namespacedTag(tag))
	}
	if _, err := readPipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		logging.Warn("cache invalidateTags read failed: %v", err)
		return err
	}

	seen := make(map[string]struct{})
	for _, cmd := range cmds {
		for _, k := range cmd.Val() {
			seen[k] = struct{}{}
		}
	}

	if len(seen) > c.ceiling {
		metrics.CacheCeilingTrips.Inc()
		logging.Info("tag invalidation ceiling exceeded (%d keys > %d), falling back to coarse delete", len(seen), c.ceiling)
		return ErrCeilingExceeded
	}

	writePipe := c.rdb.Pipeline()
	for k := range seen {
		writePipe.Del(ctx, k)
	}
	for _, tag := range tags {
		writePipe.Del(ctx, namespacedTag(tag))
	}
	_, err := writePipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		logging.Warn("cache invalidateTags write failed: %v", err)
		return err
	}

	metrics.CacheInvalidationsTotal.WithLabelValues("tags").Inc()
	return nil
}

// DeletePattern coarse-deletes every key matching a glob pattern, used as
// the fallback when InvalidateTags trips the ceiling. Scans rather than
// KEYS to avoid blocking Redis on a large keyspace.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	var cursor uint64
	var deleted int64

	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, namespacedKey(pattern), 500).Result()
		if err != nil {
			logging.Warn("cache deletePattern %q failed: %v", pattern, err)
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	metrics.CacheInvalidationsTotal.WithLabelValues("pattern").Inc()
	return deleted, nil
}

// ErrCeilingExceeded is returned by InvalidateTags when the affected key
// set is larger than the configured ceiling.
var ErrCeilingExceeded = fmt.Errorf("cache: tag invalidation ceiling exceeded")

// Stats is a snapshot of cache backend health for the admin stats endpoint.
type Stats struct {
	Keys         int64
	Degraded     bool
	PoolHits     uint32
	PoolMisses   uint32
	PoolTimeouts uint32
	TotalConns   uint32
	IdleConns    uint32
	StaleConns   uint32
}

// GetStats reports the key count of the selected Redis database and
// connection pool health.
// DBSize counts the whole Redis keyspace (shared with any other database
// selected via Options.DB), so it's an approximation when DB is shared.
func (c *Cache) GetStats(ctx context.Context) (Stats, error) {
	n, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		return Stats{Degraded: true}, err
	}
	ps := c.rdb.PoolStats()
	return Stats{
		Keys:         n,
		PoolHits:     ps.Hits,
		PoolMisses:   ps.Misses,
		PoolTimeouts: ps.Timeouts,
		TotalConns:   ps.TotalConns,
		IdleConns:    ps.IdleConns,
		StaleConns:   ps.StaleConns,
	}, nil
}
