package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/normalize"
)

func TestNormalize_RejectsMissingIdentity(t *testing.T) {
	_, err := normalize.Normalize(map[string]any{"ownerId": "u1"}, core.KindNote)
	require.Error(t, err)
	assert.True(t, core.IsInvalidRecord(err))

	_, err = normalize.Normalize(map[string]any{"id": "a"}, core.KindNote)
	require.Error(t, err)
	assert.True(t, core.IsInvalidRecord(err))

	_, err = normalize.Normalize(map[string]any{"id": "a", "ownerId": "u1"}, core.Kind("bogus"))
	require.Error(t, err)
	assert.True(t, core.IsInvalidRecord(err))
}

func TestNormalize_TimestampDefaults(t *testing.T) {
	t.Run("both missing", func(t *testing.T) {
		rec, err := normalize.Normalize(map[string]any{"id": "a", "ownerId": "u1"}, core.KindNote)
		require.NoError(t, err)
		assert.False(t, rec.CreatedAt.IsZero())
		assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
	})

	t.Run("updated missing copies created", func(t *testing.T) {
		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		rec, err := normalize.Normalize(map[string]any{
			"id": "a", "ownerId": "u1", "createdAt": created,
		}, core.KindNote)
		require.NoError(t, err)
		assert.Equal(t, created, rec.UpdatedAt)
	})

	t.Run("updated before created is clamped", func(t *testing.T) {
		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		rec, err := normalize.Normalize(map[string]any{
			"id": "a", "ownerId": "u1",
			"createdAt": created,
			"updatedAt": created.Add(-time.Hour),
		}, core.KindNote)
		require.NoError(t, err)
		assert.Equal(t, created, rec.UpdatedAt)
	})
}

func TestNormalize_TimestampCoercions(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	cases := map[string]any{
		"rfc3339":      "2026-03-01T12:30:00Z",
		"epoch millis": want.UnixMilli(),
		"epoch sec":    want.Unix(),
		"float millis": float64(want.UnixMilli()),
		"native time":  want,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := normalize.Normalize(map[string]any{
				"id": "a", "ownerId": "u1", "updatedAt": value,
			}, core.KindWord)
			require.NoError(t, err)
			assert.True(t, rec.UpdatedAt.Equal(want), "got %s", rec.UpdatedAt)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := map[string]any{
		"id":        "a",
		"ownerId":   "u1",
		"parentRef": "daily",
		"payload":   map[string]any{"text": "hi"},
		"createdAt": "2026-03-01T08:00:00Z",
		"updatedAt": "2026-03-01T09:00:00Z",
		"deleted":   false,
	}
	first, err := normalize.Normalize(raw, core.KindNote)
	require.NoError(t, err)

	again := normalize.Canonical(first)
	assert.Equal(t, first, again)
}

func TestDocumentRoundTrip(t *testing.T) {
	synced := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := core.Record{
		ID:           "a",
		OwnerID:      "u1",
		Kind:         core.KindChat,
		ParentRef:    "lesson-4",
		Payload:      core.Payload{"role": "assistant", "text": "bonjour"},
		CreatedAt:    synced.Add(-time.Hour),
		UpdatedAt:    synced,
		LastSyncedAt: &synced,
	}

	doc := core.Document{Path: rec.RemotePath(), Fields: normalize.ToDocument(rec)}
	back, err := normalize.FromDocument(doc, core.KindChat)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, back.ID)
	assert.Equal(t, rec.OwnerID, back.OwnerID)
	assert.Equal(t, rec.ParentRef, back.ParentRef)
	assert.True(t, rec.UpdatedAt.Equal(back.UpdatedAt))
	assert.Equal(t, "bonjour", back.Payload["text"])
	require.NotNil(t, back.LastSyncedAt)
	assert.True(t, synced.Equal(*back.LastSyncedAt))
}

func TestFromDocument_PathSuppliesIdentity(t *testing.T) {
	doc := core.Document{
		Path:   "users/u1/notes/n-9",
		Fields: map[string]any{"updatedAt": "2026-03-01T12:00:00Z"},
	}
	rec, err := normalize.FromDocument(doc, core.KindNote)
	require.NoError(t, err)
	assert.Equal(t, "n-9", rec.ID)
	assert.Equal(t, "u1", rec.OwnerID)
}
