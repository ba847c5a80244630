// Package engine hosts the sync orchestrator: the single writer that keeps
// the profile-local store and the shared remote store convergent for every
// record kind. All public operations are idempotent and safe to retry; the
// engine is constructed once per process and injected everywhere, there is
// no package-level instance.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"

	"github.com/lingopad/lexsync/pkg/broadcast"
	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/ledger"
)

// Policy bundles the engine's sync constants. The source of this design had
// a different ad hoc policy per call site; here one policy rules them all.
type Policy struct {
	// BatchSize caps operations per remote batch commit.
	BatchSize int
	// MaxAttempts bounds retries within one flush; exhausted records stay
	// pending for the next tick.
	MaxAttempts int
	// InitialBackoff and MaxBackoff shape the exponential retry delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// SyncInterval is the background flush cadence.
	SyncInterval time.Duration
	// PollInterval drives the local-only subscription fallback.
	PollInterval time.Duration
}

// DefaultPolicy mirrors the remote store's published limits.
func DefaultPolicy() Policy {
	return Policy{
		BatchSize:      500,
		MaxAttempts:    5,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		SyncInterval:   30 * time.Second,
		PollInterval:   2 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.BatchSize <= 0 {
		p.BatchSize = def.BatchSize
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.SyncInterval <= 0 {
		p.SyncInterval = def.SyncInterval
	}
	if p.PollInterval <= 0 {
		p.PollInterval = def.PollInterval
	}
	return p
}

// Config wires the engine's collaborators. Local store and broker are
// required; a nil remote store or identity keeps the engine permanently
// local-only (useful in tests and signed-out profiles).
type Config struct {
	Local    core.LocalStore
	Remote   core.RemoteStore
	Identity core.Identity
	Broker   *broadcast.Broker
	Spool    *broadcast.Spool
	Logger   *slog.Logger
	Policy   Policy
}

// Engine is the sync orchestrator. It is the sole writer of lastSyncedAt
// and the only component allowed to mutate the metadata ledger.
type Engine struct {
	local    core.LocalStore
	remote   core.RemoteStore
	identity core.Identity
	broker   *broadcast.Broker
	spool    *broadcast.Spool
	logger   *slog.Logger
	policy   Policy

	ledger *ledger.Cache
	queue  *pendingQueue
	locks  *keyedLocks

	ticker *tickWorker
	kick   chan struct{}

	mu            sync.Mutex
	started       bool
	closed        bool
	degraded      bool
	lastFlush     map[core.Kind]time.Time
	subscriptions int
}

// New assembles an engine. It loads the durable pending queue and ledger
// cache so work interrupted by a previous shutdown resumes.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Local == nil {
		return nil, fmt.Errorf("engine: local store is required")
	}
	if cfg.Broker == nil {
		return nil, fmt.Errorf("engine: broadcast broker is required")
	}

	e := &Engine{
		local:     cfg.Local,
		remote:    cfg.Remote,
		identity:  cfg.Identity,
		broker:    cfg.Broker,
		spool:     cfg.Spool,
		logger:    cfg.Logger,
		policy:    cfg.Policy.withDefaults(),
		ledger:    ledger.NewCache(cfg.Local),
		queue:     newPendingQueue(cfg.Local),
		locks:     newKeyedLocks(),
		kick:      make(chan struct{}, 1),
		lastFlush: make(map[core.Kind]time.Time),
	}

	if err := e.ledger.Load(ctx); err != nil {
		return nil, err
	}
	if err := e.queue.load(ctx); err != nil {
		return nil, err
	}
	e.ticker = newTickWorker(e)
	return e, nil
}

// Start launches the background sync tick and, when configured, the
// cross-context spool watcher.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	if e.spool != nil {
		if err := e.spool.Start(ctx); err != nil {
			return fmt.Errorf("start spool: %w", err)
		}
	}
	return e.ticker.Start(ctx)
}

// Close stops background work. Pending records survive in the durable
// queue and are flushed on the next start.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	e.mu.Unlock()

	if !started {
		return nil
	}
	var firstErr error
	if err := e.ticker.Stop(ctx); err != nil {
		firstErr = err
	}
	if e.spool != nil {
		if err := e.spool.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NotifyOnline wakes the sync tick immediately, used on connectivity or
// sign-in transitions so pending records drain without waiting a full
// interval.
func (e *Engine) NotifyOnline() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// online reports whether remote operations may proceed: a remote store is
// wired, an identity exists, and the session could be refreshed. False is
// the "operate local-only" signal, never an error.
func (e *Engine) online(ctx context.Context) bool {
	if e.remote == nil || e.identity == nil {
		return false
	}
	if e.identity.CurrentUserID() == "" {
		return false
	}
	ok, err := e.identity.EnsureValidSession(ctx)
	if err != nil {
		e.logWarn("session refresh failed", "error", err)
		return false
	}
	return ok
}

// owner resolves the acting user id.
func (e *Engine) owner() string {
	if e.identity == nil {
		return ""
	}
	return e.identity.CurrentUserID()
}

// announce fans an event out to this context's subscribers and to every
// other context via the spool.
func (e *Engine) announce(eventType core.EventType, rec core.Record) {
	event := core.Event{
		EventID:   uuid.NewString(),
		Type:      eventType,
		Kind:      rec.Kind,
		ID:        rec.ID,
		ParentRef: rec.ParentRef,
	}
	e.broker.Publish(event)
	if e.spool != nil {
		if err := e.spool.Publish(event); err != nil {
			e.logWarn("cross-context publish failed", "event", event.String(), "error", err)
		}
	}
}

func (e *Engine) logInfo(msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Info(msg, args...)
}

func (e *Engine) logWarn(msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Warn(msg, args...)
}

func (e *Engine) setDegraded(degraded bool) {
	e.mu.Lock()
	changed := e.degraded != degraded
	e.degraded = degraded
	e.mu.Unlock()
	if changed && degraded {
		e.logInfo("remote degraded, changes will sync when reconnected")
	}
}

// Degraded reports whether the last remote interaction failed; the
// presentation layer renders this as the persistent "changes will sync when
// reconnected" indicator.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

// EngineState is the introspection snapshot.
type EngineState struct {
	Pending       map[core.Kind]int        `json:"pending"`
	LastFlush     map[core.Kind]time.Time  `json:"last_flush,omitempty"`
	Degraded      bool                     `json:"degraded"`
	Subscriptions int                      `json:"subscriptions"`
	Ledger        map[core.Kind]int        `json:"ledger_counts"`
}

// State implements introspection.Introspectable.
func (e *Engine) State() any {
	pending := make(map[core.Kind]int)
	for _, kind := range core.Kinds {
		pending[kind] = e.queue.depth(kind)
	}
	summary := e.ledger.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()
	last := make(map[core.Kind]time.Time, len(e.lastFlush))
	for k, v := range e.lastFlush {
		last[k] = v
	}
	return EngineState{
		Pending:       pending,
		LastFlush:     last,
		Degraded:      e.degraded,
		Subscriptions: e.subscriptions,
		Ledger:        summary.Counts,
	}
}

// ComponentType implements introspection.Component.
func (e *Engine) ComponentType() string { return "sync-engine" }

var _ introspection.Introspectable = (*Engine)(nil)
var _ introspection.Component = (*Engine)(nil)

// keyedLocks serializes operations against the same record id so that
// concurrent saves and deletes observe each other's writes in order.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*entryLock)}
}

// lock acquires the per-id lock and returns its release func.
func (k *keyedLocks) lock(id string) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &entryLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
