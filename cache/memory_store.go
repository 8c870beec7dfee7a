package cache

import (
	"context"
	"strings"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore implements Store in-process using ttlcache. Session entries
// have no TTL of their own (expiry is enforced by the lifecycle manager), so
// items live until deleted. Suitable for tests and single-node deployments.
type MemoryStore struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	c := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)

	// Start the cleanup process
	go c.Start()

	return &MemoryStore{cache: c}
}

// Get implements Store.Get. A memory store is never unavailable.
func (s *MemoryStore) Get(_ context.Context, key string, ns Namespace) ([]byte, bool, error) {
	item := s.cache.Get(ns.Key(key))
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

// Set implements Store.Set.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ns Namespace) error {
	s.cache.Set(ns.Key(key), value, ttlcache.NoTTL)
	return nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, key string, ns Namespace) error {
	s.cache.Delete(ns.Key(key))
	return nil
}

// DeleteByPrefix implements Store.DeleteByPrefix.
func (s *MemoryStore) DeleteByPrefix(_ context.Context, prefix string, ns Namespace) error {
	full := ns.Key(prefix)
	for _, key := range s.cache.Keys() {
		if strings.HasPrefix(key, full) {
			s.cache.Delete(key)
		}
	}
	return nil
}

// Ping implements Store.Ping.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close releases the underlying cache.
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}

var _ Store = (*MemoryStore)(nil)
