package cachestore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ ms uint64 }

func (c *fakeClock) NowMS() uint64 { return c.ms }

func TestFreshStaleExpiredLifecycle(t *testing.T) {
	clock := &fakeClock{ms: 0}
	store := NewMemStore(clock)

	store.Set("t1:q:users:abc", []byte("data"), 1000, 5000, "shard_0")

	e, ok := store.Get("t1:q:users:abc")
	require.True(t, ok)

	clock.ms = 500
	assert.True(t, store.IsFresh(e))
	assert.False(t, store.IsStaleButRevalidatable(e))
	assert.False(t, store.IsExpired(e))

	clock.ms = 2000
	assert.False(t, store.IsFresh(e))
	assert.True(t, store.IsStaleButRevalidatable(e))
	assert.False(t, store.IsExpired(e))

	clock.ms = 6000
	assert.False(t, store.IsFresh(e))
	assert.False(t, store.IsStaleButRevalidatable(e))
	assert.True(t, store.IsExpired(e))
}

// TestFreshnessMonotonicity checks that if an entry is
// fresh at t2 it must have been fresh at any t1 < t2.
func TestFreshnessMonotonicity(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	store := NewMemStore(clock)
	store.Set("k", []byte("v"), 1000, 5000, "shard_0")
	e, _ := store.Get("k")

	for t2 := uint64(1000); t2 <= 2000; t2 += 100 {
		clock.ms = t2
		fresh2 := store.IsFresh(e)
		if fresh2 {
			for t1 := uint64(1000); t1 < t2; t1 += 100 {
				clock.ms = t1
				assert.True(t, store.IsFresh(e), "fresh at %d but not at earlier %d", t2, t1)
			}
			clock.ms = t2
		}
	}
}

func TestDeleteByPatternPrefix(t *testing.T) {
	store := NewMemStore(&fakeClock{})
	store.Set("t1:q:users:aaa", []byte("1"), 1000, 5000, "shard_0")
	store.Set("t1:q:users:bbb", []byte("2"), 1000, 5000, "shard_0")
	store.Set("t1:q:orders:ccc", []byte("3"), 1000, 5000, "shard_0")
	store.Set("t2:q:users:ddd", []byte("4"), 1000, 5000, "shard_0")

	store.DeleteByPattern(TableInvalidationPattern("t1", "users"))

	_, ok := store.Get("t1:q:users:aaa")
	assert.False(t, ok)
	_, ok = store.Get("t1:q:users:bbb")
	assert.False(t, ok)
	_, ok = store.Get("t1:q:orders:ccc")
	assert.True(t, ok)
	_, ok = store.Get("t2:q:users:ddd")
	assert.True(t, ok)
}

func TestDeleteByPatternTenantWide(t *testing.T) {
	store := NewMemStore(&fakeClock{})
	store.Set("t1:q:users:aaa", []byte("1"), 1000, 5000, "shard_0")
	store.Set("t1:q:orders:bbb", []byte("2"), 1000, 5000, "shard_0")
	store.Set("t2:q:users:ccc", []byte("3"), 1000, 5000, "shard_0")

	store.DeleteByPattern(TenantInvalidationPattern("t1"))

	_, ok := store.Get("t1:q:users:aaa")
	assert.False(t, ok)
	_, ok = store.Get("t1:q:orders:bbb")
	assert.False(t, ok)
	_, ok = store.Get("t2:q:users:ccc")
	assert.True(t, ok)
}

func TestMaterializedHelpers(t *testing.T) {
	store := NewMemStore(&fakeClock{})
	params := []interface{}{1, "a"}

	_, ok := store.GetMaterialized("t1", "users", "SELECT * FROM users WHERE id = ?", params)
	assert.False(t, ok)

	store.SetMaterialized("t1", "users", "SELECT * FROM users WHERE id = ?", params, []byte("row"), 1000, 5000, "shard_0")

	e, ok := store.GetMaterialized("t1", "users", "SELECT * FROM users WHERE id = ?", params)
	require.True(t, ok)
	assert.Equal(t, []byte("row"), e.Data)
}

func TestKeySchemes(t *testing.T) {
	assert.Equal(t, "t:users:id:42", EntityKey("users", "42"))
	assert.Equal(t, "idx:users:email:a@example.com", IndexKey("users", "email", "a@example.com"))
	assert.Equal(t, "t1:q:users:*", TableInvalidationPattern("t1", "users"))
	assert.Equal(t, "t1:q:*", TenantInvalidationPattern("t1"))
	assert.Equal(t, "idemp:batch:t1:key-9", IdempotencyKey("t1", "key-9"))
}

func TestQueryKeyDeterministic(t *testing.T) {
	params := []interface{}{1, "x"}
	k1 := QueryKey("t1", "users", "SELECT 1", params)
	k2 := QueryKey("t1", "users", "SELECT 1", params)
	assert.Equal(t, k1, k2)

	k3 := QueryKey("t1", "users", "SELECT 2", params)
	assert.NotEqual(t, k1, k3)
}
