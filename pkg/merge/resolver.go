// Package merge decides which version of a logical record wins when the
// local and remote stores disagree. The policy is last-write-wins on
// updatedAt at whole-record granularity: there is no field-level merging,
// concurrent offline edits to the same record lose the earlier edit.
package merge

import "github.com/lingopad/lexsync/pkg/core"

// Action describes what the orchestrator should do with the winner.
type Action string

const (
	// KeepLocal: the local copy wins and should be pushed remotely.
	KeepLocal Action = "keep-local"
	// KeepRemote: the remote copy wins and should replace the local one.
	KeepRemote Action = "keep-remote"
	// Delete: the winning side is a tombstone; the record must go away
	// everywhere.
	Delete Action = "delete"
)

// Resolution carries the outcome plus both inputs, so callers can audit a
// decision (and a future field-level merge could slot in without changing
// call sites).
type Resolution struct {
	Winner core.Record
	Action Action
	Local  *core.Record
	Remote *core.Record
}

// Resolve picks the winning version of a record. Pure function: identical
// inputs always produce identical resolutions.
//
//   - If exactly one side exists, it wins.
//   - If both exist, the strictly later updatedAt wins; an exact tie goes to
//     the remote copy, the durable source of truth for multi-device
//     convergence.
//   - A winning tombstone turns the resolution into Delete.
//
// Resolve panics only on the programming error of two nil inputs.
func Resolve(local, remote *core.Record) Resolution {
	if local == nil && remote == nil {
		panic("merge: resolve called with no versions")
	}

	res := Resolution{Local: local, Remote: remote}
	switch {
	case remote == nil:
		res.Winner = local.Clone()
		res.Action = KeepLocal
	case local == nil:
		res.Winner = remote.Clone()
		res.Action = KeepRemote
	case local.UpdatedAt.After(remote.UpdatedAt):
		res.Winner = local.Clone()
		res.Action = KeepLocal
	default:
		// Remote wins strict-later and ties.
		res.Winner = remote.Clone()
		res.Action = KeepRemote
	}

	if res.Winner.Deleted {
		res.Action = Delete
	}
	return res
}
