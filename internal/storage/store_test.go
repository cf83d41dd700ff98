package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igusev/launchq/internal/handler"
	"github.com/igusev/launchq/internal/usage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s1.ActivationLog().Append(context.Background(), usage.Activation{
		ExtensionID: "apps", ItemID: "firefox", Time: time.Now(),
	}))
	require.NoError(t, s1.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	acts, err := s2.ActivationLog().Activations(context.Background())
	require.NoError(t, err)
	assert.Len(t, acts, 1)
}

func TestActivationLog_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	log := setupTestStore(t).ActivationLog()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "a"} {
		require.NoError(t, log.Append(ctx, usage.Activation{
			ExtensionID: "apps", ItemID: id, Time: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	acts, err := log.Activations(ctx)
	require.NoError(t, err)
	require.Len(t, acts, 3)
	assert.Equal(t, "a", acts[0].ItemID)
	assert.Equal(t, "b", acts[1].ItemID)
	assert.True(t, acts[2].Time.Equal(base.Add(2*time.Minute)))
}

func TestActivationLog_PruneAndClear(t *testing.T) {
	ctx := context.Background()
	log := setupTestStore(t).ActivationLog()
	now := time.Now()

	require.NoError(t, log.Append(ctx, usage.Activation{ExtensionID: "x", ItemID: "old", Time: now.Add(-200 * 24 * time.Hour)}))
	require.NoError(t, log.Append(ctx, usage.Activation{ExtensionID: "x", ItemID: "new", Time: now}))

	removed, err := log.Prune(ctx, now.Add(-100*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	acts, err := log.Activations(ctx)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "new", acts[0].ItemID)

	require.NoError(t, log.Clear(ctx))
	acts, err = log.Activations(ctx)
	require.NoError(t, err)
	assert.Empty(t, acts)
}

func TestActivationLog_FeedsScoring(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	scoring, err := usage.New(usage.DefaultConfig(), store.ActivationLog())
	require.NoError(t, err)
	require.NoError(t, scoring.Record(ctx, "apps", "firefox"))

	reloaded, err := usage.New(usage.DefaultConfig(), store.ActivationLog())
	require.NoError(t, err)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1.0, reloaded.Snapshot().Score(usage.Key{ExtensionID: "apps", ItemID: "firefox"}))
}

func TestKVStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	settings := store.Settings("websearch")

	_, err := settings.Get(ctx, "engine")
	assert.ErrorIs(t, err, handler.ErrNotFound)

	require.NoError(t, settings.Set(ctx, "engine", "ddg"))
	require.NoError(t, settings.Set(ctx, "engine", "kagi"))
	v, err := settings.Get(ctx, "engine")
	require.NoError(t, err)
	assert.Equal(t, "kagi", v, "Set overwrites")

	_, err = store.State("websearch").Get(ctx, "engine")
	assert.ErrorIs(t, err, handler.ErrNotFound, "state is a separate namespace")
	_, err = store.Settings("apps").Get(ctx, "engine")
	assert.ErrorIs(t, err, handler.ErrNotFound, "extensions are isolated")

	require.NoError(t, settings.Set(ctx, "alpha", "1"))
	keys, err := settings.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "engine"}, keys)

	require.NoError(t, settings.Delete(ctx, "alpha"))
	keys, err = settings.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"engine"}, keys)
}
