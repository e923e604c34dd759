package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := New(context.Background(), Config{Addr: s.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestStore_GetSetDelete(t *testing.T) {
	store, s := newTestStore(t)
	ctx := context.Background()

	t.Run("Missing key is nil without error", func(t *testing.T) {
		v, err := store.Get(ctx, "convo:missing")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("Set then Get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "convo:a", []byte(`[{"role":"memory","content":"x"}]`)))
		v, err := store.Get(ctx, "convo:a")
		require.NoError(t, err)
		assert.Equal(t, `[{"role":"memory","content":"x"}]`, string(v))
		assert.Zero(t, s.TTL("convo:a"), "no expiry set")
	})

	t.Run("Delete removes key", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "convo:a"))
		assert.False(t, s.Exists("convo:a"))
		require.NoError(t, store.Delete(ctx, "convo:a"), "deleting twice is fine")
	})
}

func TestStore_KeysScansPrefix(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"convo:1", "convo:2", "convo:3", "other:1"} {
		require.NoError(t, store.Set(ctx, k, []byte("[]")))
	}

	keys, err := store.Keys(ctx, "convo:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"convo:1", "convo:2", "convo:3"}, keys)
}

func TestStore_ErrorsWhenServerDown(t *testing.T) {
	s := miniredis.RunT(t)
	store := NewWithClient(goredis.NewClient(&goredis.Options{Addr: s.Addr(), MaxRetries: -1}))
	t.Cleanup(func() { _ = store.Close() })
	s.Close()

	_, err := store.Get(context.Background(), "convo:a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get")
}

func TestNew_FailsWithoutServer(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := New(context.Background(), Config{Addr: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}
