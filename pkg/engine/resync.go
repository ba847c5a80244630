package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/ledger"
	"github.com/lingopad/lexsync/pkg/merge"
	"github.com/lingopad/lexsync/pkg/normalize"
)

// ForceFullResync reconciles a kind end to end: every remote document is
// fetched, resolved against the local view per record id, and both sides
// are brought to the winning copy. Local records that were synced before
// but no longer exist remotely were deleted elsewhere and are dropped;
// local records that never synced are queued for push. The recovery path
// for "counts look wrong" support cases.
func (e *Engine) ForceFullResync(ctx context.Context, kind core.Kind) error {
	if !kind.Valid() {
		return &core.InvalidRecordError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	if !e.online(ctx) {
		return core.ErrOffline
	}
	owner := e.owner()

	var docs []core.Document
	err := e.withRetry(ctx, func() error {
		var queryErr error
		docs, queryErr = e.remote.Query(ctx, core.Query{Path: fmt.Sprintf("users/%s/%s", owner, kind)})
		return queryErr
	})
	if err != nil {
		e.setDegraded(true)
		return fmt.Errorf("resync %s: %w", kind, err)
	}

	remoteByID := make(map[string]core.Record, len(docs))
	for _, doc := range docs {
		rec, err := normalize.FromDocument(doc, kind)
		if err != nil {
			e.logWarn("skipping malformed remote document", "path", doc.Path, "error", err)
			continue
		}
		remoteByID[rec.ID] = rec
	}

	localByID, err := e.loadKind(ctx, kind)
	if err != nil {
		return fmt.Errorf("resync %s: %w", kind, err)
	}

	now := time.Now().UTC()
	winners := make(map[string][]core.Record)

	ids := make(map[string]struct{}, len(remoteByID)+len(localByID))
	for id := range remoteByID {
		ids[id] = struct{}{}
	}
	for id := range localByID {
		ids[id] = struct{}{}
	}

	for id := range ids {
		var localPtr, remotePtr *core.Record
		if local, ok := localByID[id]; ok {
			localCopy := local
			localPtr = &localCopy
		}
		if remote, ok := remoteByID[id]; ok {
			remoteCopy := remote
			remotePtr = &remoteCopy
		}

		switch {
		case remotePtr == nil:
			// Local only. Synced before means it was deleted on another
			// device; never synced means it still needs its first push.
			if localPtr.Deleted {
				if err := e.queue.enqueue(ctx, pendingOp{Op: opDelete, Kind: kind, ID: id, ParentRef: localPtr.ParentRef}); err != nil {
					return err
				}
				continue
			}
			if localPtr.LastSyncedAt != nil {
				continue
			}
			if err := e.queue.enqueue(ctx, pendingOp{Op: opUpsert, Kind: kind, ID: id, ParentRef: localPtr.ParentRef}); err != nil {
				return err
			}
			winners[localPtr.ParentRef] = append(winners[localPtr.ParentRef], *localPtr)
		default:
			res := merge.Resolve(localPtr, remotePtr)
			if res.Action == merge.Delete {
				localWon := localPtr != nil && localPtr.UpdatedAt.After(remotePtr.UpdatedAt)
				if localWon && localPtr.Pending() {
					if err := e.queue.enqueue(ctx, pendingOp{Op: opDelete, Kind: kind, ID: id, ParentRef: localPtr.ParentRef}); err != nil {
						return err
					}
				}
				continue
			}
			winner := res.Winner
			if res.Action == merge.KeepRemote {
				synced := now
				winner.LastSyncedAt = &synced
			} else if winner.Pending() {
				if err := e.queue.enqueue(ctx, pendingOp{Op: opUpsert, Kind: kind, ID: id, ParentRef: winner.ParentRef}); err != nil {
					return err
				}
			}
			winners[winner.ParentRef] = append(winners[winner.ParentRef], winner)
		}
	}

	// Rewrite the kind's buckets wholesale to the resolved state.
	existing, err := e.local.GetAll(ctx, string(kind)+":")
	if err != nil {
		return fmt.Errorf("resync %s: %w", kind, err)
	}
	for key := range existing {
		if _, keep := winners[parentRefFromKey(key, kind)]; !keep {
			if err := e.local.Remove(ctx, key); err != nil {
				return fmt.Errorf("resync %s: %w", kind, err)
			}
		}
	}
	for parentRef, records := range winners {
		if err := e.saveBucket(ctx, kind, parentRef, records); err != nil {
			return fmt.Errorf("resync %s: %w", kind, err)
		}
	}

	// Rebuild the ledger from the reconciled records so drift cannot
	// survive a resync.
	all, err := e.allRecords(ctx)
	if err != nil {
		return fmt.Errorf("resync %s: %w", kind, err)
	}
	e.ledger.Mutate(func(s *ledger.Summary) {
		last := s.LastSyncedAt
		s.Recompute(all)
		for k, t := range last {
			s.LastSyncedAt[k] = t
		}
		s.LastSyncedAt[kind] = now
	})
	if err := e.ledger.Flush(ctx); err != nil {
		e.logWarn("ledger flush failed", "error", err)
	}

	e.mu.Lock()
	e.lastFlush[kind] = now
	e.mu.Unlock()
	e.setDegraded(false)

	if err := e.FlushPending(ctx, kind); err != nil {
		return err
	}
	// One refresh event per reconciled group; subscribers re-read the
	// whole group anyway.
	for parentRef := range winners {
		e.announce(core.EventUpdated, core.Record{Kind: kind, ParentRef: parentRef})
	}
	return nil
}

// Verify cross-checks the ledger against the actual local records and
// returns a human-readable discrepancy, or "" when consistent.
func (e *Engine) Verify(ctx context.Context) (string, error) {
	all, err := e.allRecords(ctx)
	if err != nil {
		return "", err
	}
	summary := e.ledger.Snapshot()
	return summary.ConsistentWith(all), nil
}

// RepairLedger rebuilds the ledger from the local records, the fix paired
// with Verify.
func (e *Engine) RepairLedger(ctx context.Context) error {
	all, err := e.allRecords(ctx)
	if err != nil {
		return err
	}
	e.ledger.Mutate(func(s *ledger.Summary) {
		last := s.LastSyncedAt
		s.Recompute(all)
		for k, t := range last {
			s.LastSyncedAt[k] = t
		}
	})
	return e.ledger.Flush(ctx)
}
