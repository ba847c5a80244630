package platform_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingopad/lexsync/internal/platform"
	"github.com/lingopad/lexsync/pkg/core"
)

type wordPayload struct {
	Term        string `json:"term"`
	Translation string `json:"translation"`
}

func newEngine(t *testing.T) *platform.TypedView[wordPayload] {
	t.Helper()
	eng, err := platform.New(context.Background(), t.TempDir(), platform.WithUser("u1"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	return platform.NewTypedView[wordPayload](eng, core.KindWord)
}

func TestTypedView_SaveAndGet(t *testing.T) {
	view := newEngine(t)
	ctx := context.Background()

	saved, err := view.Save(ctx, &platform.RecordModel[wordPayload]{
		ParentRef: "lesson-1",
		Payload:   wordPayload{Term: "bonjour", Translation: "hello"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.False(t, saved.UpdatedAt.IsZero())

	got, err := view.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", got.Payload.Term)
	assert.Equal(t, "hello", got.Payload.Translation)
	assert.Equal(t, "lesson-1", got.ParentRef)
}

func TestTypedView_ListIsScopedToGroup(t *testing.T) {
	view := newEngine(t)
	ctx := context.Background()

	for _, w := range []wordPayload{
		{Term: "un", Translation: "one"},
		{Term: "deux", Translation: "two"},
	} {
		_, err := view.Save(ctx, &platform.RecordModel[wordPayload]{ParentRef: "lesson-1", Payload: w})
		require.NoError(t, err)
	}
	_, err := view.Save(ctx, &platform.RecordModel[wordPayload]{
		ParentRef: "lesson-2",
		Payload:   wordPayload{Term: "trois", Translation: "three"},
	})
	require.NoError(t, err)

	words, err := view.List(ctx, "lesson-1")
	require.NoError(t, err)
	assert.Len(t, words, 2)
}

func TestTypedView_Delete(t *testing.T) {
	view := newEngine(t)
	ctx := context.Background()

	saved, err := view.Save(ctx, &platform.RecordModel[wordPayload]{
		ParentRef: "lesson-1",
		Payload:   wordPayload{Term: "quatre", Translation: "four"},
	})
	require.NoError(t, err)

	require.NoError(t, view.Delete(ctx, saved.ID))

	_, err = view.Get(ctx, saved.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTypedView_UpdatePreservesIdentity(t *testing.T) {
	view := newEngine(t)
	ctx := context.Background()

	saved, err := view.Save(ctx, &platform.RecordModel[wordPayload]{
		ParentRef: "lesson-1",
		Payload:   wordPayload{Term: "cinq", Translation: "fiev"},
	})
	require.NoError(t, err)

	saved.Payload.Translation = "five"
	updated, err := view.Save(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, saved.CreatedAt, updated.CreatedAt)

	words, err := view.List(ctx, "lesson-1")
	require.NoError(t, err)
	require.Len(t, words, 1)
	assert.Equal(t, "five", words[0].Payload.Translation)
}
