package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/ledger"
	"github.com/lingopad/lexsync/pkg/normalize"
)

// FlushPending pushes a kind's queued records to the remote store in
// batches. Records that fail transiently stay queued for the next cycle;
// a partial batch failure acknowledges exactly the ids the remote accepted.
// When offline the queue is left untouched and ErrOffline is returned.
func (e *Engine) FlushPending(ctx context.Context, kind core.Kind) error {
	if !kind.Valid() {
		return &core.InvalidRecordError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	if !e.online(ctx) {
		return core.ErrOffline
	}

	ops := e.queue.take(kind)
	if len(ops) == 0 {
		return e.mirrorLedger(ctx)
	}

	for start := 0; start < len(ops); start += e.policy.BatchSize {
		end := start + e.policy.BatchSize
		if end > len(ops) {
			end = len(ops)
		}
		if err := e.flushBatch(ctx, kind, ops[start:end]); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	e.ledger.Mutate(func(s *ledger.Summary) {
		s.MarkSynced(kind, now)
	})
	if err := e.ledger.Flush(ctx); err != nil {
		e.logWarn("ledger flush failed", "error", err)
	}

	e.mu.Lock()
	e.lastFlush[kind] = now
	e.mu.Unlock()
	e.setDegraded(false)
	return e.mirrorLedger(ctx)
}

// FlushAll flushes every kind, returning the first error.
func (e *Engine) FlushAll(ctx context.Context) error {
	for _, kind := range core.Kinds {
		if err := e.FlushPending(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

// pushedOp pairs a queued op with the UpdatedAt of the record copy that was
// actually written to the wire. Acknowledgement compares against it so an
// edit saved while the batch was in flight stays pending.
type pushedOp struct {
	op        pendingOp
	updatedAt time.Time
}

func (e *Engine) flushBatch(ctx context.Context, kind core.Kind, ops []pendingOp) error {
	writes, pushed, skipped, err := e.buildWrites(ctx, kind, ops)
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		if err := e.queue.acknowledgeOps(ctx, kind, skipped); err != nil {
			return err
		}
	}
	if len(writes) == 0 {
		return nil
	}

	err = e.withRetry(ctx, func() error {
		return e.remote.BatchWrite(ctx, writes)
	})

	var partial *core.PartialBatchError
	switch {
	case err == nil:
		return e.settleBatch(ctx, kind, pushed, nil)
	case errors.As(err, &partial):
		failed := make(map[string]bool, len(partial.FailedIDs))
		for _, id := range partial.FailedIDs {
			failed[id] = true
		}
		if settleErr := e.settleBatch(ctx, kind, pushed, failed); settleErr != nil {
			return settleErr
		}
		e.logWarn("partial batch failure", "kind", kind, "failed", len(partial.FailedIDs))
		return e.queue.fail(ctx, kind, partial.FailedIDs)
	default:
		e.setDegraded(true)
		ids := make([]string, 0, len(ops))
		for _, op := range ops {
			ids = append(ids, op.ID)
		}
		if failErr := e.queue.fail(ctx, kind, ids); failErr != nil {
			return failErr
		}
		return fmt.Errorf("flush %s: %w", kind, err)
	}
}

// buildWrites materializes queued ops against the current local state.
// An upsert whose record was tombstoned in the meantime becomes a delete;
// an op whose record vanished entirely is skipped and acknowledged.
func (e *Engine) buildWrites(ctx context.Context, kind core.Kind, ops []pendingOp) ([]core.WriteOp, []pushedOp, []pendingOp, error) {
	owner := e.owner()
	writes := make([]core.WriteOp, 0, len(ops))
	pushed := make([]pushedOp, 0, len(ops))
	var skipped []pendingOp

	for _, op := range ops {
		rec, _, err := e.findRecord(ctx, kind, op.ID)
		if err != nil {
			return nil, nil, nil, err
		}

		switch {
		case op.Op == opDelete || (rec != nil && rec.Deleted):
			path := core.Record{ID: op.ID, OwnerID: owner, Kind: kind}.RemotePath()
			p := pushedOp{op: op}
			if rec != nil {
				path = rec.RemotePath()
				p.updatedAt = rec.UpdatedAt
			}
			writes = append(writes, core.WriteOp{Kind: core.WriteDelete, Path: path})
			pushed = append(pushed, p)
		case rec == nil:
			skipped = append(skipped, op)
		case !rec.Pending():
			// Already confirmed by a prior flush or the remote watch.
			skipped = append(skipped, op)
		default:
			writes = append(writes, core.WriteOp{
				Kind:   core.WriteSet,
				Path:   rec.RemotePath(),
				Fields: normalize.ToDocument(*rec),
			})
			pushed = append(pushed, pushedOp{op: op, updatedAt: rec.UpdatedAt})
		}
	}
	return writes, pushed, skipped, nil
}

// settleBatch acknowledges accepted ops and stamps their records as synced.
// For deletes the tombstone is purged locally once the remote confirms. The
// synced stamp is the UpdatedAt of the copy that went over the wire, not the
// wall clock: a record edited while the batch was in flight keeps
// UpdatedAt > LastSyncedAt and stays pending for the next cycle.
func (e *Engine) settleBatch(ctx context.Context, kind core.Kind, pushed []pushedOp, failed map[string]bool) error {
	accepted := make([]pendingOp, 0, len(pushed))

	for _, p := range pushed {
		if failed[p.op.ID] {
			continue
		}
		accepted = append(accepted, p.op)

		release := e.locks.lock(p.op.ID)
		rec, ref, err := e.findRecord(ctx, kind, p.op.ID)
		if err != nil {
			release()
			return err
		}
		switch {
		case rec == nil:
		case rec.Deleted:
			if err := e.removeFromBucket(ctx, kind, ref, p.op.ID); err != nil {
				release()
				return err
			}
		default:
			synced := p.updatedAt
			if rec.LastSyncedAt == nil || synced.After(*rec.LastSyncedAt) {
				rec.LastSyncedAt = &synced
				if _, _, err := e.upsertLocal(ctx, *rec); err != nil {
					release()
					return err
				}
			}
		}
		release()
	}
	return e.queue.acknowledgeOps(ctx, kind, accepted)
}

// mirrorLedger pushes the local ledger summary onto the owner's remote
// document. Failure is non-fatal: the mirror retries on the next flush.
func (e *Engine) mirrorLedger(ctx context.Context) error {
	owner := e.owner()
	if owner == "" || e.remote == nil {
		return nil
	}
	summary := e.ledger.Snapshot()
	err := e.withRetry(ctx, func() error {
		return e.remote.Set(ctx, core.OwnerPath(owner), summary.Fields(), true)
	})
	if err != nil {
		e.logWarn("ledger mirror failed", "error", err)
	}
	return nil
}

// withRetry runs fn under the engine's backoff policy, retrying transient
// failures up to MaxAttempts. Permanent errors abort immediately.
func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.policy.InitialBackoff
	policy.MaxInterval = e.policy.MaxBackoff
	policy.MaxElapsedTime = 0

	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !core.IsTransient(err) || attempt >= e.policy.MaxAttempts {
			return err
		}
		delay := policy.NextBackOff()
		e.logWarn("transient failure, retrying", "attempt", attempt, "delay", delay.String(), "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
