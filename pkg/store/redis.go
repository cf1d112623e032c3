package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
	"github.com/redis/go-redis/v9"
)

const layerRedis = "redis"

// DefaultRedisPrefix is the key prefix used when none is configured.
const DefaultRedisPrefix = "offline"

// RedisStore keeps namespaces in Redis.
//
// Layout per prefix:
//
//	<prefix>:namespaces          SET of namespace names
//	<prefix>:seq                 INCR counter ordering every write
//	<prefix>:ns:<name>:entries   HASH key -> encoded entry
//	<prefix>:ns:<name>:order     ZSET key scored by write sequence
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a store backed by redisClient.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Layer implements Store.
func (s *RedisStore) Layer() string { return layerRedis }

// Prefix returns the key prefix of the store.
func (s *RedisStore) Prefix() string { return s.prefix }

func (s *RedisStore) namesKey() string { return s.prefix + ":namespaces" }
func (s *RedisStore) seqKey() string   { return s.prefix + ":seq" }

func (s *RedisStore) entriesKey(name string) string {
	return fmt.Sprintf("%s:ns:%s:entries", s.prefix, name)
}

func (s *RedisStore) orderKey(name string) string {
	return fmt.Sprintf("%s:ns:%s:order", s.prefix, name)
}

// Open implements Store.
func (s *RedisStore) Open(ctx context.Context, name string) (Namespace, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.redis.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
		cache.CacheErrors.WithLabelValues(layerRedis, "open").Inc()
		return nil, fmt.Errorf("redis sadd: %w", err)
	}
	return &redisNamespace{store: s, name: name}, nil
}

// Names implements Store.
func (s *RedisStore) Names(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerRedis, "names").Inc()
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Drop implements Store.
func (s *RedisStore) Drop(ctx context.Context, name string) (bool, error) {
	pipe := s.redis.TxPipeline()
	removed := pipe.SRem(ctx, s.namesKey(), name)
	pipe.Del(ctx, s.entriesKey(name), s.orderKey(name))
	if _, err := pipe.Exec(ctx); err != nil {
		cache.CacheErrors.WithLabelValues(layerRedis, "drop").Inc()
		return false, fmt.Errorf("redis drop namespace: %w", err)
	}
	return removed.Val() > 0, nil
}

type redisNamespace struct {
	store *RedisStore
	name  string
}

func (n *redisNamespace) Name() string { return n.name }

func (n *redisNamespace) Put(ctx context.Context, key cache.Key, entry *cache.Entry) error {
	data, err := cache.Encode(entry)
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerRedis, "put").Inc()
		return err
	}

	seq, err := n.store.redis.Incr(ctx, n.store.seqKey()).Result()
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerRedis, "put").Inc()
		return fmt.Errorf("redis incr: %w", err)
	}

	k := key.String()
	pipe := n.store.redis.TxPipeline()
	pipe.SAdd(ctx, n.store.namesKey(), n.name)
	pipe.HSet(ctx, n.store.entriesKey(n.name), k, data)
	pipe.ZAdd(ctx, n.store.orderKey(n.name), redis.Z{Score: float64(seq), Member: k})
	if _, err := pipe.Exec(ctx); err != nil {
		cache.CacheErrors.WithLabelValues(layerRedis, "put").Inc()
		return fmt.Errorf("redis put: %w", err)
	}

	cache.CacheWrites.WithLabelValues(layerRedis).Inc()
	cache.CacheBytesWritten.WithLabelValues(layerRedis).Add(float64(len(data)))
	return nil
}

func (n *redisNamespace) Match(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	data, err := n.store.redis.HGet(ctx, n.store.entriesKey(n.name), key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cache.CacheMisses.WithLabelValues(layerRedis).Inc()
			return nil, cache.ErrCacheMiss
		}
		cache.CacheErrors.WithLabelValues(layerRedis, "match").Inc()
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	entry, err := cache.Decode(data)
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerRedis, "match").Inc()
		return nil, err
	}

	cache.CacheHits.WithLabelValues(layerRedis).Inc()
	return entry, nil
}

func (n *redisNamespace) Delete(ctx context.Context, key cache.Key) (bool, error) {
	k := key.String()
	pipe := n.store.redis.TxPipeline()
	removed := pipe.HDel(ctx, n.store.entriesKey(n.name), k)
	pipe.ZRem(ctx, n.store.orderKey(n.name), k)
	if _, err := pipe.Exec(ctx); err != nil {
		cache.CacheErrors.WithLabelValues(layerRedis, "delete").Inc()
		return false, fmt.Errorf("redis delete: %w", err)
	}

	if removed.Val() == 0 {
		return false, nil
	}
	cache.CacheDeletes.WithLabelValues(layerRedis).Inc()
	return true, nil
}

func (n *redisNamespace) Keys(ctx context.Context) ([]cache.Key, error) {
	members, err := n.store.redis.ZRange(ctx, n.store.orderKey(n.name), 0, -1).Result()
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerRedis, "keys").Inc()
		return nil, fmt.Errorf("redis zrange: %w", err)
	}

	keys := make([]cache.Key, 0, len(members))
	for _, m := range members {
		key, err := cache.ParseKey(m)
		if err != nil {
			cache.CacheErrors.WithLabelValues(layerRedis, "keys").Inc()
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
