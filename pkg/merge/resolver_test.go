package merge_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/merge"
)

func rec(id string, updated time.Time, deleted bool) core.Record {
	return core.Record{
		ID:        id,
		OwnerID:   "u1",
		Kind:      core.KindNote,
		ParentRef: "daily",
		Payload:   core.Payload{"text": "hello"},
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
		Deleted:   deleted,
	}
}

func TestResolve_OneSideOnly(t *testing.T) {
	now := time.Now().UTC()
	local := rec("a", now, false)
	remote := rec("a", now, false)

	res := merge.Resolve(&local, nil)
	assert.Equal(t, merge.KeepLocal, res.Action)
	assert.Equal(t, local.ID, res.Winner.ID)

	res = merge.Resolve(nil, &remote)
	assert.Equal(t, merge.KeepRemote, res.Action)
}

func TestResolve_LaterWriteWins(t *testing.T) {
	base := time.Now().UTC()
	older := rec("a", base, false)
	newer := rec("a", base.Add(time.Second), false)

	res := merge.Resolve(&newer, &older)
	assert.Equal(t, merge.KeepLocal, res.Action)

	res = merge.Resolve(&older, &newer)
	assert.Equal(t, merge.KeepRemote, res.Action)
}

func TestResolve_TieGoesToRemote(t *testing.T) {
	now := time.Now().UTC()
	local := rec("a", now, false)
	remote := rec("a", now, false)
	remote.Payload = core.Payload{"text": "remote copy"}

	res := merge.Resolve(&local, &remote)
	assert.Equal(t, merge.KeepRemote, res.Action)
	assert.Equal(t, "remote copy", res.Winner.Payload["text"])
}

func TestResolve_WinningTombstoneDeletes(t *testing.T) {
	base := time.Now().UTC()
	live := rec("a", base, false)
	tombstone := rec("a", base.Add(time.Minute), true)

	res := merge.Resolve(&tombstone, &live)
	assert.Equal(t, merge.Delete, res.Action)

	// A losing tombstone must not delete: the later live edit revives.
	res = merge.Resolve(&live, &tombstone)
	require.Equal(t, merge.Delete, res.Action, "tombstone is newer here, it wins")

	revived := rec("a", base.Add(2*time.Minute), false)
	res = merge.Resolve(&revived, &tombstone)
	assert.Equal(t, merge.KeepLocal, res.Action)
	assert.False(t, res.Winner.Deleted)
}

func TestResolve_Deterministic(t *testing.T) {
	base := time.Now().UTC()
	local := rec("a", base.Add(time.Second), false)
	remote := rec("a", base, false)

	first := merge.Resolve(&local, &remote)
	for i := 0; i < 10; i++ {
		again := merge.Resolve(&local, &remote)
		assert.Equal(t, first.Action, again.Action)
		assert.Equal(t, first.Winner, again.Winner)
	}
}

func TestResolve_PanicsOnTwoNils(t *testing.T) {
	assert.Panics(t, func() { merge.Resolve(nil, nil) })
}
