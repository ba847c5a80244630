package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/ledger"
	"github.com/lingopad/lexsync/pkg/merge"
	"github.com/lingopad/lexsync/pkg/normalize"
)

// Subscribe delivers the current records of a group, then re-delivers the
// full group whenever it changes: from local writes in this context, writes
// announced by sibling contexts, or remote changes streamed by the watch.
// When the remote watch cannot be established the subscription degrades to
// local polling until connectivity returns.
func (e *Engine) Subscribe(ctx context.Context, kind core.Kind, parentRef string, onUpdate func([]core.Record)) (core.CancelFunc, error) {
	if !kind.Valid() {
		return nil, &core.InvalidRecordError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
	if onUpdate == nil {
		return nil, fmt.Errorf("subscribe %s: onUpdate is required", kind)
	}

	subCtx, cancel := context.WithCancel(ctx)
	var once sync.Once

	stop := func() {
		once.Do(func() {
			cancel()
			e.mu.Lock()
			e.subscriptions--
			e.mu.Unlock()
		})
	}

	e.mu.Lock()
	e.subscriptions++
	e.mu.Unlock()

	deliver := func() {
		records, err := e.ListRecords(subCtx, kind, parentRef)
		if err != nil {
			e.logWarn("subscription refresh failed", "kind", kind, "error", err)
			return
		}
		onUpdate(records)
	}
	deliver()

	// Local and cross-context changes arrive through the broker.
	events, brokerCancel := e.broker.Subscribe(subscribeFilter(kind, parentRef))
	lifecycle.Go(subCtx, func(ctx context.Context) error {
		defer brokerCancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-events:
				if !ok {
					return nil
				}
				deliver()
			}
		}
	})

	var down atomic.Bool
	var watch core.CancelFunc
	if e.online(subCtx) {
		watch = e.watchRemote(subCtx, kind, deliver, &down)
	}
	e.maintainRemoteWatch(subCtx, kind, parentRef, deliver, watch, &down)
	return stop, nil
}

// maintainRemoteWatch keeps one remote watch alive per subscription. While
// no watch is up (offline at subscribe time, or the stream died) the loop
// falls back to polling the local store, and re-attempts the watch on every
// tick so a reconnect restores remote changes without re-subscribing.
func (e *Engine) maintainRemoteWatch(ctx context.Context, kind core.Kind, parentRef string, deliver func(), watch core.CancelFunc, down *atomic.Bool) {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer func() {
			if watch != nil {
				watch()
			}
		}()

		ticker := time.NewTicker(e.policy.PollInterval)
		defer ticker.Stop()
		var lastSig string
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if watch != nil && down.Load() {
					watch()
					watch = nil
					down.Store(false)
				}
				if watch == nil && e.online(ctx) {
					watch = e.watchRemote(ctx, kind, deliver, down)
				}
				if watch != nil {
					continue
				}
				// Offline fallback: surface cross-context writes that
				// bypassed the broker.
				records, err := e.ListRecords(ctx, kind, parentRef)
				if err != nil {
					continue
				}
				sig := listSignature(records)
				if sig != lastSig {
					lastSig = sig
					deliver()
				}
			}
		}
	})
}

// watchRemote streams the owner's collection and folds each change into the
// local view before refreshing the subscriber. A stream error flips down so
// the maintain loop tears the watch down and retries.
func (e *Engine) watchRemote(ctx context.Context, kind core.Kind, deliver func(), down *atomic.Bool) core.CancelFunc {
	owner := e.owner()
	path := fmt.Sprintf("users/%s/%s", owner, kind)
	cancel, err := e.remote.Subscribe(ctx, path,
		func(change core.DocChange) {
			if err := e.applyRemoteChange(ctx, kind, change); err != nil {
				e.logWarn("remote change not applied", "kind", kind, "path", change.Document.Path, "error", err)
				return
			}
			deliver()
		},
		func(err error) {
			e.setDegraded(true)
			down.Store(true)
			e.logWarn("remote watch interrupted", "kind", kind, "error", err)
		},
	)
	if err != nil {
		e.setDegraded(true)
		e.logWarn("remote watch unavailable, polling locally", "kind", kind, "error", err)
		return nil
	}
	return cancel
}

// applyRemoteChange merges one streamed remote document into the local
// view. Local unpushed edits win over older remote copies and stay queued;
// remote wins are stamped as synced and announced to other contexts.
func (e *Engine) applyRemoteChange(ctx context.Context, kind core.Kind, change core.DocChange) error {
	rec, err := normalize.FromDocument(change.Document, kind)
	if err != nil {
		return err
	}

	release := e.locks.lock(rec.ID)
	defer release()

	local, localRef, err := e.findRecord(ctx, kind, rec.ID)
	if err != nil {
		return err
	}

	if change.Type == core.ChangeRemoved {
		if local == nil {
			return nil
		}
		if local.Pending() && !local.Deleted {
			// Our unpushed edit outlives the remote removal; the next
			// flush recreates the document.
			return nil
		}
		if err := e.removeFromBucket(ctx, kind, localRef, rec.ID); err != nil {
			return err
		}
		if !local.Deleted {
			e.ledger.Mutate(func(s *ledger.Summary) { s.Drop(kind, localRef) })
			if err := e.ledger.Flush(ctx); err != nil {
				e.logWarn("ledger flush failed", "error", err)
			}
			e.announce(core.EventDeleted, *local)
		}
		return nil
	}

	res := merge.Resolve(local, &rec)
	switch res.Action {
	case merge.KeepLocal:
		return nil
	case merge.Delete:
		if local != nil && local.UpdatedAt.After(rec.UpdatedAt) {
			// The local tombstone is newer; the queued delete still has
			// to reach the remote store.
			return nil
		}
		if local != nil {
			if err := e.removeFromBucket(ctx, kind, localRef, rec.ID); err != nil {
				return err
			}
			if !local.Deleted {
				e.ledger.Mutate(func(s *ledger.Summary) { s.Drop(kind, localRef) })
				if err := e.ledger.Flush(ctx); err != nil {
					e.logWarn("ledger flush failed", "error", err)
				}
				e.announce(core.EventDeleted, rec)
			}
		}
		return e.queue.acknowledge(ctx, kind, []string{rec.ID})
	}

	synced := time.Now().UTC()
	rec.LastSyncedAt = &synced
	prior, priorRef, err := e.upsertLocal(ctx, rec)
	if err != nil {
		return err
	}

	e.ledger.Mutate(func(s *ledger.Summary) {
		switch {
		case prior == nil || prior.Deleted:
			s.Add(kind, rec.ParentRef)
		case priorRef != rec.ParentRef:
			s.Drop(kind, priorRef)
			s.Add(kind, rec.ParentRef)
		}
	})
	if err := e.ledger.Flush(ctx); err != nil {
		e.logWarn("ledger flush failed", "error", err)
	}

	if prior == nil || prior.Deleted {
		e.announce(core.EventCreated, rec)
	} else {
		e.announce(core.EventUpdated, rec)
	}
	// A stale queued upsert for this id would clobber the fresher remote
	// copy, and the winner is already synced.
	return e.queue.acknowledge(ctx, kind, []string{rec.ID})
}

func subscribeFilter(kind core.Kind, parentRef string) string {
	if parentRef == "" {
		return string(kind) + "/**"
	}
	return string(kind) + "/" + parentRef
}

func listSignature(records []core.Record) string {
	sig := fmt.Sprintf("%d", len(records))
	for _, rec := range records {
		sig += "|" + rec.ID + "@" + rec.UpdatedAt.Format(time.RFC3339Nano)
	}
	return sig
}
