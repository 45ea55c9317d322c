package store

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bookwright/book"
)

// countingStore wraps a ProjectStore and counts Get calls against the backing.
type countingStore struct {
	ProjectStore
	gets atomic.Int32
}

func (c *countingStore) Get(ctx context.Context, id string) (*book.Project, error) {
	c.gets.Add(1)
	return c.ProjectStore.Get(ctx, id)
}

func newCachedTestStore(t *testing.T) (*CachedStore, *countingStore) {
	t.Helper()
	backing := &countingStore{ProjectStore: openTestStore(t)}
	return NewCachedStore(backing), backing
}

func TestCachedGetHitsBackingOnce(t *testing.T) {
	cached, backing := newCachedTestStore(t)
	ctx := context.Background()

	require.NoError(t, cached.Save(ctx, sampleProject()))

	for i := 0; i < 3; i++ {
		p, err := cached.Get(ctx, "proj-1")
		require.NoError(t, err)
		assert.Equal(t, "The Glass Harbor", p.Title)
	}

	assert.Equal(t, int32(0), backing.gets.Load(), "Save primes the cache")
}

func TestCachedGetFallsThroughOnMiss(t *testing.T) {
	backing := &countingStore{ProjectStore: openTestStore(t)}
	ctx := context.Background()

	// Write directly to the backing so the cache starts cold.
	require.NoError(t, backing.Save(ctx, sampleProject()))

	cached := NewCachedStore(backing)
	_, err := cached.Get(ctx, "proj-1")
	require.NoError(t, err)
	_, err = cached.Get(ctx, "proj-1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), backing.gets.Load(), "second read served from cache")
}

func TestCachedGetNotFound(t *testing.T) {
	cached, _ := newCachedTestStore(t)

	_, err := cached.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedGetReturnsIsolatedCopies(t *testing.T) {
	cached, _ := newCachedTestStore(t)
	ctx := context.Background()

	require.NoError(t, cached.Save(ctx, sampleProject()))

	first, err := cached.Get(ctx, "proj-1")
	require.NoError(t, err)
	first.Title = "Mutated"

	second, err := cached.Get(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "The Glass Harbor", second.Title, "callers cannot mutate the cached copy")
}

func TestCachedDeleteEvicts(t *testing.T) {
	cached, backing := newCachedTestStore(t)
	ctx := context.Background()

	require.NoError(t, cached.Save(ctx, sampleProject()))
	require.NoError(t, cached.Delete(ctx, "proj-1"))

	_, err := cached.Get(ctx, "proj-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), backing.gets.Load(), "miss after eviction goes to the backing store")
}

func TestCachedPassThroughs(t *testing.T) {
	cached, _ := newCachedTestStore(t)
	ctx := context.Background()

	require.NoError(t, cached.Save(ctx, sampleProject()))
	require.NoError(t, cached.SaveChapter(ctx, &book.Chapter{
		ProjectID: "proj-1", Number: 1, Title: "Arrival", WordCount: 4800, Status: "drafted",
	}))

	chapters, err := cached.ListChapters(ctx, "proj-1")
	require.NoError(t, err)
	assert.Len(t, chapters, 1)

	summaries, err := cached.ListSummaries(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}
