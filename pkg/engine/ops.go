package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/ledger"
	"github.com/lingopad/lexsync/pkg/normalize"
)

// SaveRecord normalizes and persists a record locally, queues it for remote
// push, and announces the change. The local write is the source of truth:
// the call succeeds even when the remote store is unreachable.
func (e *Engine) SaveRecord(ctx context.Context, kind core.Kind, raw map[string]any) (core.Record, error) {
	if !kind.Valid() {
		return core.Record{}, &core.InvalidRecordError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	if raw == nil {
		return core.Record{}, &core.InvalidRecordError{Field: "record", Reason: "record is nil"}
	}

	// The caller's map is never touched; id and owner backfill happen on a
	// copy.
	fields := make(map[string]any, len(raw)+2)
	for k, v := range raw {
		fields[k] = v
	}
	if s, _ := fields["id"].(string); s == "" {
		fields["id"] = uuid.NewString()
	}
	if s, _ := fields["ownerId"].(string); s == "" {
		if owner := e.owner(); owner != "" {
			fields["ownerId"] = owner
		}
	}

	rec, err := normalize.Normalize(fields, kind)
	if err != nil {
		return core.Record{}, err
	}

	release := e.locks.lock(rec.ID)
	defer release()

	prior, priorRef, err := e.upsertLocal(ctx, rec)
	if err != nil {
		return core.Record{}, fmt.Errorf("save %s/%s: %w", kind, rec.ID, err)
	}
	created := prior == nil || prior.Deleted

	e.ledger.Mutate(func(s *ledger.Summary) {
		switch {
		case prior == nil || prior.Deleted:
			s.Add(rec.Kind, rec.ParentRef)
		case priorRef != rec.ParentRef:
			s.Drop(rec.Kind, priorRef)
			s.Add(rec.Kind, rec.ParentRef)
		}
	})
	if err := e.ledger.Flush(ctx); err != nil {
		e.logWarn("ledger flush failed", "error", err)
	}

	if err := e.queue.enqueue(ctx, pendingOp{Op: opUpsert, Kind: rec.Kind, ID: rec.ID, ParentRef: rec.ParentRef}); err != nil {
		return core.Record{}, fmt.Errorf("queue %s/%s: %w", kind, rec.ID, err)
	}

	if created {
		e.announce(core.EventCreated, rec)
	} else {
		e.announce(core.EventUpdated, rec)
	}
	e.NotifyOnline()
	return rec, nil
}

// DeleteRecord tombstones a record locally so the deletion survives offline
// periods, queues the remote delete, and announces it. Deleting an unknown
// id is a no-op.
func (e *Engine) DeleteRecord(ctx context.Context, kind core.Kind, id string) error {
	if !kind.Valid() {
		return &core.InvalidRecordError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	if id == "" {
		return &core.InvalidRecordError{Field: "id", Reason: "id is required"}
	}

	release := e.locks.lock(id)
	defer release()

	rec, _, err := e.findRecord(ctx, kind, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", kind, id, err)
	}
	if rec == nil {
		return nil
	}
	alreadyGone := rec.Deleted

	rec.Deleted = true
	rec.UpdatedAt = time.Now().UTC()
	if _, _, err := e.upsertLocal(ctx, *rec); err != nil {
		return fmt.Errorf("delete %s/%s: %w", kind, id, err)
	}

	if !alreadyGone {
		e.ledger.Mutate(func(s *ledger.Summary) {
			s.Drop(rec.Kind, rec.ParentRef)
		})
		if err := e.ledger.Flush(ctx); err != nil {
			e.logWarn("ledger flush failed", "error", err)
		}
	}

	if err := e.queue.enqueue(ctx, pendingOp{Op: opDelete, Kind: kind, ID: id, ParentRef: rec.ParentRef}); err != nil {
		return fmt.Errorf("queue delete %s/%s: %w", kind, id, err)
	}

	e.announce(core.EventDeleted, *rec)
	e.NotifyOnline()
	return nil
}

// ListRecords returns the live records of a group, newest-first. Tombstones
// are filtered out; a record that moved between groups is reported only in
// its current one. An empty parentRef lists the whole kind.
func (e *Engine) ListRecords(ctx context.Context, kind core.Kind, parentRef string) ([]core.Record, error) {
	if !kind.Valid() {
		return nil, &core.InvalidRecordError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}

	byID, err := e.loadKind(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	records := make([]core.Record, 0, len(byID))
	for _, rec := range byID {
		if rec.Deleted {
			continue
		}
		if parentRef != "" && rec.ParentRef != parentRef {
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records, nil
}

// GetRecord fetches a single live record by id.
func (e *Engine) GetRecord(ctx context.Context, kind core.Kind, id string) (core.Record, error) {
	if !kind.Valid() {
		return core.Record{}, &core.InvalidRecordError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	rec, _, err := e.findRecord(ctx, kind, id)
	if err != nil {
		return core.Record{}, err
	}
	if rec == nil || rec.Deleted {
		return core.Record{}, fmt.Errorf("record %s/%s: %w", kind, id, core.ErrNotFound)
	}
	return *rec, nil
}
