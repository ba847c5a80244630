package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lingopad/lexsync/pkg/core"
)

// queueKeyPrefix namespaces the durable queue inside the local store,
// alongside the record buckets.
const queueKeyPrefix = "pending:"

// opUpsert and opDelete are the two shapes of pending remote work.
const (
	opUpsert = "upsert"
	opDelete = "delete"
)

// pendingOp is one queued remote write. The payload is not captured here:
// upserts re-read the current local record at flush time so a record edited
// five times while offline is pushed once, with its latest content.
type pendingOp struct {
	Op        string    `json:"op"`
	Kind      core.Kind `json:"kind"`
	ID        string    `json:"id"`
	ParentRef string    `json:"parentRef"`
	QueuedAt  time.Time `json:"queuedAt"`
	Attempts  int       `json:"attempts"`
}

// pendingQueue is a durable per-kind queue persisted in the local store, so
// offline work survives process restarts. At most one op per record id is
// held: a later op replaces the earlier one.
type pendingQueue struct {
	store core.LocalStore

	mu  sync.Mutex
	ops map[core.Kind]map[string]pendingOp
}

func newPendingQueue(store core.LocalStore) *pendingQueue {
	ops := make(map[core.Kind]map[string]pendingOp, len(core.Kinds))
	for _, kind := range core.Kinds {
		ops[kind] = make(map[string]pendingOp)
	}
	return &pendingQueue{store: store, ops: ops}
}

// load restores queued ops from the local store. A corrupt queue entry is
// discarded rather than wedging startup; the periodic consistency check
// re-detects anything lost.
func (q *pendingQueue) load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, kind := range core.Kinds {
		raw, err := q.store.Get(ctx, q.key(kind))
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load pending queue %s: %w", kind, err)
		}
		var ops []pendingOp
		if err := json.Unmarshal(raw, &ops); err != nil {
			continue
		}
		for _, op := range ops {
			q.ops[kind][op.ID] = op
		}
	}
	return nil
}

// enqueue records a pending op, replacing any earlier op for the same id,
// and persists the kind's queue.
func (q *pendingQueue) enqueue(ctx context.Context, op pendingOp) error {
	if op.QueuedAt.IsZero() {
		op.QueuedAt = time.Now().UTC()
	}
	q.mu.Lock()
	q.ops[op.Kind][op.ID] = op
	q.mu.Unlock()
	return q.persist(ctx, op.Kind)
}

// take returns the kind's queued ops oldest-first without removing them;
// ops leave the queue only on acknowledge.
func (q *pendingQueue) take(kind core.Kind) []pendingOp {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := make([]pendingOp, 0, len(q.ops[kind]))
	for _, op := range q.ops[kind] {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].QueuedAt.Before(ops[j].QueuedAt) })
	return ops
}

// acknowledgeOps drops pushed ops, leaving any id whose queue entry was
// replaced while the batch was in flight; the replacement op still has work
// to do.
func (q *pendingQueue) acknowledgeOps(ctx context.Context, kind core.Kind, ops []pendingOp) error {
	q.mu.Lock()
	for _, op := range ops {
		if cur, ok := q.ops[kind][op.ID]; ok && cur.QueuedAt.Equal(op.QueuedAt) {
			delete(q.ops[kind], op.ID)
		}
	}
	q.mu.Unlock()
	return q.persist(ctx, kind)
}

// acknowledge unconditionally drops ids whose remote state is known current,
// used when a fresher remote copy supersedes whatever was queued.
func (q *pendingQueue) acknowledge(ctx context.Context, kind core.Kind, ids []string) error {
	q.mu.Lock()
	for _, id := range ids {
		delete(q.ops[kind], id)
	}
	q.mu.Unlock()
	return q.persist(ctx, kind)
}

// fail bumps the attempt counter on ids that could not be pushed; they stay
// queued for the next flush cycle.
func (q *pendingQueue) fail(ctx context.Context, kind core.Kind, ids []string) error {
	q.mu.Lock()
	for _, id := range ids {
		if op, ok := q.ops[kind][id]; ok {
			op.Attempts++
			q.ops[kind][id] = op
		}
	}
	q.mu.Unlock()
	return q.persist(ctx, kind)
}

func (q *pendingQueue) depth(kind core.Kind) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops[kind])
}

func (q *pendingQueue) persist(ctx context.Context, kind core.Kind) error {
	q.mu.Lock()
	ops := make([]pendingOp, 0, len(q.ops[kind]))
	for _, op := range q.ops[kind] {
		ops = append(ops, op)
	}
	q.mu.Unlock()

	if len(ops) == 0 {
		return q.store.Remove(ctx, q.key(kind))
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].QueuedAt.Before(ops[j].QueuedAt) })
	raw, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("encode pending queue %s: %w", kind, err)
	}
	return q.store.Set(ctx, q.key(kind), raw)
}

func (q *pendingQueue) key(kind core.Kind) string {
	return queueKeyPrefix + string(kind)
}
