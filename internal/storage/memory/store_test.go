package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

func TestStateStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStateStore()

	_, err := store.Get(ctx, "https://example.org/a")
	require.ErrorIs(t, err, crawler.ErrStateNotFound)

	st := crawler.CrawlState{URL: "https://example.org/a", ETag: `"v1"`, ContentHash: "abc", ChunkCount: 2}
	require.NoError(t, store.Put(ctx, st))
	got, err := store.Get(ctx, st.URL)
	require.NoError(t, err)
	require.Equal(t, st, got)

	st.ETag = `"v2"`
	require.NoError(t, store.Put(ctx, st))
	got, err = store.Get(ctx, st.URL)
	require.NoError(t, err)
	require.Equal(t, `"v2"`, got.ETag)
	require.Equal(t, 1, store.Len())
	require.NoError(t, store.Close())
}

func TestStateStoreConcurrentKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStateStore()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Put(ctx, crawler.CrawlState{URL: crawler.ChunkID("https://example.org/p", i)})
		}()
	}
	wg.Wait()
	require.Equal(t, 50, store.Len())
}

func TestVectorIndexUpsertDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := NewVectorIndex(2)
	require.NoError(t, idx.Provision(ctx))

	values := []float32{1, 2}
	require.NoError(t, idx.Upsert(ctx, []crawler.VectorRecord{
		{ID: "b", Values: values},
		{ID: "a", Values: []float32{3, 4}},
	}))
	values[0] = 99
	rec, ok := idx.Record("b")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2}, rec.Values)
	require.Equal(t, []string{"a", "b"}, idx.IDs())

	err := idx.Upsert(ctx, []crawler.VectorRecord{{ID: "c", Values: []float32{1}}})
	require.ErrorContains(t, err, "dimension 1")
	require.Equal(t, []string{"a", "b"}, idx.IDs())

	require.NoError(t, idx.Delete(ctx, []string{"a", "zzz"}))
	require.Equal(t, []string{"b"}, idx.IDs())
	require.NoError(t, idx.Close())
}
