package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingopad/lexsync/pkg/adapters/localfs"
	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/ledger"
)

func TestAddDrop(t *testing.T) {
	s := ledger.New()

	s.Add(core.KindNote, "daily")
	s.Add(core.KindNote, "daily")
	s.Add(core.KindNote, "weekly")

	assert.Equal(t, 3, s.Counts[core.KindNote])
	assert.Equal(t, 2, s.GroupCount(core.KindNote, "daily"))

	s.Drop(core.KindNote, "daily")
	assert.Equal(t, 2, s.Counts[core.KindNote])
	assert.Equal(t, 1, s.GroupCount(core.KindNote, "daily"))

	// Last member leaving removes the group entirely.
	s.Drop(core.KindNote, "daily")
	_, exists := s.Groups[core.KindNote]["daily"]
	assert.False(t, exists)

	// Dropping the final record removes the kind too.
	s.Drop(core.KindNote, "weekly")
	_, exists = s.Counts[core.KindNote]
	assert.False(t, exists)
	_, exists = s.Groups[core.KindNote]
	assert.False(t, exists)
}

func TestRecomputeSkipsTombstones(t *testing.T) {
	records := []core.Record{
		{ID: "a", Kind: core.KindNote, ParentRef: "daily"},
		{ID: "b", Kind: core.KindNote, ParentRef: "daily", Deleted: true},
		{ID: "c", Kind: core.KindWord, ParentRef: "verbs"},
	}

	s := ledger.New()
	s.MarkSynced(core.KindNote, time.Now())
	s.Recompute(records)

	assert.Equal(t, 1, s.Counts[core.KindNote])
	assert.Equal(t, 1, s.Counts[core.KindWord])
	assert.Equal(t, 1, s.GroupCount(core.KindNote, "daily"))
	// Sync timestamps survive a rebuild.
	assert.False(t, s.LastSyncedAt[core.KindNote].IsZero())
}

func TestConsistentWith(t *testing.T) {
	records := []core.Record{
		{ID: "a", Kind: core.KindNote, ParentRef: "daily"},
		{ID: "b", Kind: core.KindWord, ParentRef: "verbs"},
	}

	s := ledger.New()
	s.Recompute(records)
	assert.Empty(t, s.ConsistentWith(records))

	s.Add(core.KindNote, "phantom")
	discrepancy := s.ConsistentWith(records)
	assert.NotEmpty(t, discrepancy)
}

func TestCache_LoadMutateFlush(t *testing.T) {
	store, err := localfs.New(localfs.Config{Root: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	cache := ledger.NewCache(store)
	require.NoError(t, cache.Load(ctx))

	cache.Mutate(func(s *ledger.Summary) {
		s.Add(core.KindChat, "lesson-1")
	})
	require.NoError(t, cache.Flush(ctx))

	// A fresh cache over the same store sees the persisted summary.
	reloaded := ledger.NewCache(store)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.Snapshot().Counts[core.KindChat])
}

func TestCache_SelfHealsCorruptDocument(t *testing.T) {
	store, err := localfs.New(localfs.Config{Root: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, ledger.CacheKey, []byte("{not json")))

	cache := ledger.NewCache(store)
	require.NoError(t, cache.Load(ctx))
	assert.Empty(t, cache.Snapshot().Counts)
}
