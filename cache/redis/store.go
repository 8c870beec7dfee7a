package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/veggydawson/frappe/cache"
	serrors "github.com/veggydawson/frappe/errors"
)

// Store implements cache.Store on Redis. All keys carry a deployment prefix
// so several sites can share one Redis instance.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore creates a new Redis-backed [cache.Store].
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
	}
}

// redisKey returns the Redis key for a namespaced key.
func (s *Store) redisKey(key string, ns cache.Namespace) string {
	return fmt.Sprintf("%s:%s", s.prefix, ns.Key(key))
}

// Get implements cache.Store.Get. Backend failures are reported as
// cache-unavailable so read paths can degrade to the durable store.
func (s *Store) Get(ctx context.Context, key string, ns cache.Namespace) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.redisKey(key, ns)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, serrors.NewCacheUnavailable(err)
	}
	return val, true, nil
}

// Set implements cache.Store.Set. Entries carry no Redis TTL; the lifecycle
// manager owns expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ns cache.Namespace) error {
	if err := s.client.Set(ctx, s.redisKey(key, ns), value, 0).Err(); err != nil {
		return serrors.NewCacheUnavailable(err)
	}
	return nil
}

// Delete implements cache.Store.Delete.
func (s *Store) Delete(ctx context.Context, key string, ns cache.Namespace) error {
	if err := s.client.Del(ctx, s.redisKey(key, ns)).Err(); err != nil {
		return serrors.NewCacheUnavailable(err)
	}
	return nil
}

// DeleteByPrefix implements cache.Store.DeleteByPrefix using SCAN so large
// namespaces are cleared without blocking the server.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string, ns cache.Namespace) error {
	pattern := s.redisKey(prefix, ns) + "*"
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return serrors.NewCacheUnavailable(err)
		}

		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return serrors.NewCacheUnavailable(err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping implements cache.Store.Ping.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return serrors.NewCacheUnavailable(err)
	}
	return nil
}

var _ cache.Store = (*Store)(nil)
