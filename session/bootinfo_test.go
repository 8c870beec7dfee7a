package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veggydawson/frappe/cache"
)

func newBootFixture(t *testing.T) (Deps, *BootService, *fakeSessionRepo, *fakeUserRepo, *cache.MemoryStore) {
	t.Helper()
	deps, _, repo, users, store := newTestDeps()
	inv := NewInvalidator(store, repo, users, "", "Administrator")
	boot := NewBootService(store, &StaticBootInfoBuilder{Users: users}, inv, false)
	return deps, boot, repo, users, store
}

func TestBootInfoCachedOnSecondRead(t *testing.T) {
	deps, boot, _, users, _ := newBootFixture(t)
	ctx := context.Background()
	users.fullNames["alice"] = "Alice Liddell"

	sess, err := Start(ctx, deps, "alice", "203.0.113.7", "Alice Liddell")
	require.NoError(t, err)

	first, err := boot.Get(ctx, sess)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, "alice", first.User)
	assert.Equal(t, "Alice Liddell", first.FullName)
	assert.NotEmpty(t, first.MetadataVersion)

	second, err := boot.Get(ctx, sess)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.MetadataVersion, second.MetadataVersion,
		"metadata version is generated once and then served from cache")
}

func TestBootInfoDisabledCacheAlwaysBuilds(t *testing.T) {
	deps, _, repo, users, store := newTestDeps()
	inv := NewInvalidator(store, repo, users, "", "Administrator")
	boot := NewBootService(store, &StaticBootInfoBuilder{Users: users}, inv, true)
	ctx := context.Background()

	sess, err := Start(ctx, deps, "alice", "203.0.113.7", "")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		info, err := boot.Get(ctx, sess)
		require.NoError(t, err)
		assert.False(t, info.FromCache)
	}
}

func TestBootInfoDegradedCacheAppendsWarning(t *testing.T) {
	deps, _, repo, users, _ := newTestDeps()
	deps.Cache = downStore{}
	inv := NewInvalidator(downStore{}, repo, users, "", "Administrator")
	boot := NewBootService(downStore{}, &StaticBootInfoBuilder{Users: users}, inv, false)
	ctx := context.Background()

	sess, err := Start(ctx, deps, "alice", "203.0.113.7", "")
	require.NoError(t, err)

	info, err := boot.Get(ctx, sess)
	require.NoError(t, err, "cache unavailability degrades, it does not fail the call")
	assert.False(t, info.FromCache)
	assert.Contains(t, info.Messages, degradedCacheMessage)
	assert.NotEmpty(t, info.MetadataVersion)
}

func TestClearForcesDurableWriteAndEmptiesCaches(t *testing.T) {
	deps, boot, repo, users, store := newBootFixture(t)
	ctx := context.Background()

	sess, err := Start(ctx, deps, "alice", "203.0.113.7", "")
	require.NoError(t, err)

	_, err = boot.Get(ctx, sess)
	require.NoError(t, err)

	msg, err := boot.Clear(ctx, sess, "")
	require.NoError(t, err)
	assert.Equal(t, "Cache Cleared", msg)
	assert.Equal(t, 1, repo.updateCount, "clear persists the session durably first")

	_, ok, _ := store.Get(ctx, bootInfoKey, cache.User("alice"))
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, metadataVersionKey, cache.Global)
	assert.False(t, ok)
	assert.Contains(t, users.clearedDefaults, "alice")
	assert.True(t, users.clearedGlobal)
}

func TestGuestBootInfo(t *testing.T) {
	deps, boot, _, _, _ := newBootFixture(t)
	ctx := context.Background()

	sess, err := Resume(ctx, deps, "", "203.0.113.7")
	require.NoError(t, err)

	info, err := boot.Get(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "Guest", info.User)
	assert.Equal(t, "Guest", info.SessionID)
}
