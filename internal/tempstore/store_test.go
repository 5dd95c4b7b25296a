package tempstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type backend struct {
	name    string
	factory func(t *testing.T, opts ...Option) Factory
}

func backends() []backend {
	return []backend{
		{name: "memory", factory: func(t *testing.T, opts ...Option) Factory {
			return NewMemoryFactory(opts...)
		}},
		{name: "sqlite", factory: func(t *testing.T, opts ...Option) Factory {
			f, err := OpenSQLite(filepath.Join(t.TempDir(), "tempstore.db"), opts...)
			require.NoError(t, err)
			t.Cleanup(func() { f.Close() })
			return f
		}},
		{name: "redis", factory: func(t *testing.T, opts ...Option) Factory {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisFactory(client, "test:", opts...)
		}},
	}
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.factory(t).Get("wizard")

			got, err := store.Get(ctx, "m1")
			require.NoError(t, err)
			assert.Nil(t, got, "absent key reads as nil")

			require.NoError(t, store.Set(ctx, "m1", map[string]any{"id": "m1", "one": "A"}))
			got, err = store.Get(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"id": "m1", "one": "A"}, got)

			require.NoError(t, store.Set(ctx, "m1", map[string]any{"id": "m1", "two": "B"}))
			got, err = store.Get(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"id": "m1", "two": "B"}, got, "set replaces the whole value")

			require.NoError(t, store.Delete(ctx, "m1"))
			got, err = store.Get(ctx, "m1")
			require.NoError(t, err)
			assert.Nil(t, got)

			require.NoError(t, store.Delete(ctx, "never-set"), "deleting an absent key is fine")
		})
	}
}

func TestSetIfNotExistsNeverOverwrites(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.factory(t).Get("wizard")

			ok, err := store.SetIfNotExists(ctx, "m1", map[string]any{"label": "first"})
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.SetIfNotExists(ctx, "m1", map[string]any{"label": "second"})
			require.NoError(t, err)
			assert.False(t, ok)

			got, err := store.Get(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, "first", got["label"])
		})
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			f := b.factory(t)

			require.NoError(t, f.Get("a").Set(ctx, "k", map[string]any{"from": "a"}))
			got, err := f.Get("b").Get(ctx, "k")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestMetadataRecordsOwner(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newFakeClock()
			store := b.factory(t, WithOwner("default-owner"), WithClock(clock.Now)).Get("wizard")

			meta, err := store.Metadata(context.Background(), "m1")
			require.NoError(t, err)
			assert.Nil(t, meta)

			require.NoError(t, store.Set(context.Background(), "m1", map[string]any{"id": "m1"}))
			meta, err = store.Metadata(context.Background(), "m1")
			require.NoError(t, err)
			require.NotNil(t, meta)
			assert.Equal(t, "default-owner", meta.Owner)
			assert.True(t, clock.Now().Equal(meta.Updated))

			ctx := ContextWithOwner(context.Background(), "alice")
			require.NoError(t, store.Set(ctx, "m1", map[string]any{"id": "m1"}))
			meta, err = store.Metadata(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, "alice", meta.Owner)
		})
	}
}

func TestValuesRoundTripAsJSONShapes(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			store := b.factory(t).Get("wizard")

			require.NoError(t, store.Set(ctx, "m1", map[string]any{
				"count":      3,
				"conditions": []map[string]any{{"id": "node_type"}},
			}))
			got, err := store.Get(ctx, "m1")
			require.NoError(t, err)
			assert.Equal(t, float64(3), got["count"])
			assert.Equal(t, []any{map[string]any{"id": "node_type"}}, got["conditions"])
		})
	}
}

func TestMemoryEntriesExpire(t *testing.T) {
	clock := newFakeClock()
	f := NewMemoryFactory(WithExpire(time.Hour), WithClock(clock.Now))
	store := f.Get("wizard")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "m1", map[string]any{"id": "m1"}))
	assert.Equal(t, 1, f.Len("wizard"))

	clock.Advance(time.Hour)
	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, f.Len("wizard"))

	ok, err := store.SetIfNotExists(ctx, "m1", map[string]any{"id": "fresh"})
	require.NoError(t, err)
	assert.True(t, ok, "expired entries do not block a new seed")
}

func TestMemoryValuesAreCopied(t *testing.T) {
	store := NewMemoryFactory().Get("wizard")
	ctx := context.Background()

	value := map[string]any{"one": "A"}
	require.NoError(t, store.Set(ctx, "m1", value))
	value["one"] = "mutated"

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	got["two"] = "B"

	again, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"one": "A"}, again)
}

func TestSQLiteExpiryAndPurge(t *testing.T) {
	clock := newFakeClock()
	f, err := OpenSQLite(filepath.Join(t.TempDir(), "tempstore.db"), WithExpire(time.Minute), WithClock(clock.Now))
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	store := f.Get("wizard")
	require.NoError(t, store.Set(ctx, "m1", map[string]any{"id": "m1"}))
	require.NoError(t, store.Set(ctx, "m2", map[string]any{"id": "m2"}))

	clock.Advance(2 * time.Minute)
	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := store.SetIfNotExists(ctx, "m1", map[string]any{"id": "fresh"})
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := f.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the stale m2 row is purged")
}

func TestSQLiteReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tempstore.db")
	ctx := context.Background()

	f, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, f.Get("wizard").Set(ctx, "m1", map[string]any{"one": "A"}))
	require.NoError(t, f.Close())

	f, err = OpenSQLite(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := f.Get("wizard").Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "A", got["one"])
}

func TestRedisKeysUseTTLAndPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := NewRedisFactory(client, "fw:", WithExpire(time.Minute))
	ctx := context.Background()
	require.NoError(t, f.Get("wizard").Set(ctx, "m1", map[string]any{"id": "m1"}))

	assert.True(t, mr.Exists("fw:wizard:m1"))
	assert.Equal(t, time.Minute, mr.TTL("fw:wizard:m1"))

	mr.FastForward(2 * time.Minute)
	got, err := f.Get("wizard").Get(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisUnavailableIsStoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	f := NewRedisFactory(client, "fw:")
	mr.Close()

	_, err := f.Get("wizard").Get(context.Background(), "m1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_UNAVAILABLE")
}
