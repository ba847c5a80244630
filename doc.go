// Package lexsync is the Composition Root for the lexsync library.
//
// It connects the sync domain (records, conflict resolution, the metadata
// ledger) with the infrastructure adapters (local key-value stores, the
// remote document API, cross-context broadcast) behind a single engine.
//
// Philosophy:
//
// lexsync treats the local store as the source of truth the user interacts
// with, and the remote store as the durable copy shared across devices.
// Every write lands locally first and always succeeds offline; a durable
// queue pushes it remotely when connectivity allows, and last-write-wins
// resolution keeps both sides convergent without user-facing conflicts.
//
// Features:
//
//   - **Offline First**: Saves and deletes never block on the network.
//   - **Durable Queue**: Pending work survives restarts and drains in batches.
//   - **Last-Write-Wins**: Deterministic whole-record conflict resolution.
//   - **Live Subscriptions**: Group views refresh from local, sibling-context
//     and remote changes alike.
//   - **Metadata Ledger**: Cheap per-kind counts without full collection reads.
//   - **Pluggable Storage**: Filesystem and SQLite local adapters out of the
//     box; any backend via core.LocalStore and core.RemoteStore.
//
// Usage:
//
//	// Initialize the engine with functional options
//	eng, err := lexsync.New(ctx, "./data",
//		lexsync.WithRemote("https://sync.example.com", token),
//		lexsync.WithUser("u1"),
//	)
//
//	// Save a note
//	rec, err := eng.SaveRecord(ctx, lexsync.KindNote, map[string]any{
//		"parentRef": "daily",
//		"payload":   map[string]any{"text": "hello"},
//	})
package lexsync
