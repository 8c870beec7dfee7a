package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veggydawson/frappe/cache"
)

// setupRedisStoreTest connects to a real Redis instance and returns a store
// with a test-unique prefix plus a cleanup func.
func setupRedisStoreTest(t *testing.T) (*Store, func()) {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis integration tests: TEST_REDIS_ADDR not set")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to ping Redis at %s: %v", addr, err)
	}

	prefix := fmt.Sprintf("test_sessions_%d", time.Now().UnixNano())
	store := NewStore(client, prefix)

	cleanup := func() {
		_ = store.DeleteByPrefix(context.Background(), "", cache.Global)
		_ = store.DeleteByPrefix(context.Background(), "", cache.User("alice"))
		_ = store.DeleteByPrefix(context.Background(), "", cache.User("bob"))
		_ = client.Close()
	}
	return store, cleanup
}

func TestRedisStore_Integration(t *testing.T) {
	store, cleanup := setupRedisStoreTest(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("RoundTrip", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "missing", cache.Global)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.Set(ctx, "k", []byte("v"), cache.Global))
		val, ok, err := store.Get(ctx, "k", cache.Global)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("v"), val)

		require.NoError(t, store.Delete(ctx, "k", cache.Global))
		_, ok, err = store.Get(ctx, "k", cache.Global)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DeleteByPrefixScopedToNamespace", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "session:s1", []byte("1"), cache.User("alice")))
		require.NoError(t, store.Set(ctx, "bootinfo", []byte("2"), cache.User("alice")))
		require.NoError(t, store.Set(ctx, "session:s2", []byte("3"), cache.User("bob")))

		require.NoError(t, store.DeleteByPrefix(ctx, "session:", cache.User("alice")))

		_, ok, err := store.Get(ctx, "session:s1", cache.User("alice"))
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = store.Get(ctx, "bootinfo", cache.User("alice"))
		require.NoError(t, err)
		assert.True(t, ok)
		_, ok, err = store.Get(ctx, "session:s2", cache.User("bob"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ClearUserNamespace", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "a", []byte("1"), cache.User("alice")))
		require.NoError(t, store.Set(ctx, "b", []byte("2"), cache.User("alice")))

		require.NoError(t, store.DeleteByPrefix(ctx, "", cache.User("alice")))

		_, ok, err := store.Get(ctx, "a", cache.User("alice"))
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = store.Get(ctx, "b", cache.User("alice"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
