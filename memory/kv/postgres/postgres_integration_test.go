//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := New(ctx, databaseURL)
	require.NoError(t, err)
	defer store.Close()

	prefix := "test-" + uuid.NewString() + ":"
	key := prefix + "a"
	t.Cleanup(func() { _ = store.Delete(context.Background(), key) })

	v, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, store.Set(ctx, key, []byte("[1]")))
	require.NoError(t, store.Set(ctx, key, []byte("[2]")))

	v, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "[2]", string(v))

	keys, err := store.Keys(ctx, prefix)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	require.NoError(t, store.Delete(ctx, key))
	v, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, v)
}
