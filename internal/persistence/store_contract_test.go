package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/pocketflow/pkg/api"
)

// runStoreContract exercises the api.Store contract against an empty store.
// Values are compared in their JSON form since persistent backends decode
// numbers as float64.
func runStoreContract(t *testing.T, store api.Store) {
	t.Helper()
	ctx := context.Background()

	n, err := store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "name", "alice"))
	require.NoError(t, store.Set(ctx, "count", 3))
	require.NoError(t, store.Set(ctx, "ready", true))
	require.NoError(t, store.Set(ctx, "profile", map[string]any{"age": 30, "tags": []any{"a", "b"}}))

	v, ok, err := store.Get(ctx, "name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", v)

	count, ok, err := api.GetAs[int](ctx, store, "count")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, count)

	type profile struct {
		Age  int      `json:"age"`
		Tags []string `json:"tags"`
	}
	p, ok, err := api.GetAs[profile](ctx, store, "profile")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, profile{Age: 30, Tags: []string{"a", "b"}}, p)

	has, err := store.ContainsKey(ctx, "ready")
	require.NoError(t, err)
	require.True(t, has)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"name", "count", "ready", "profile"}, keys)

	// Overwrite keeps a single entry.
	require.NoError(t, store.Set(ctx, "name", "bob"))
	n, err = store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	old, ok, err := store.Remove(ctx, "name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bob", old)

	_, ok, err = store.Remove(ctx, "name")
	require.NoError(t, err)
	require.False(t, ok)

	has, err = store.ContainsKey(ctx, "name")
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, store.Clear(ctx))
	n, err = store.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	require.Empty(t, keys)
}
