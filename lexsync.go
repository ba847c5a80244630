package lexsync

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lingopad/lexsync/internal/platform"
	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/engine"
)

// --- Types ---

// Engine is the sync orchestrator returned by New.
type Engine = engine.Engine

// Policy bundles the engine's sync constants.
type Policy = engine.Policy

// Record is the normalized envelope shared by every synced kind.
type Record = core.Record

// Kind identifies a record collection.
type Kind = core.Kind

// The synced collections.
const (
	KindNote = core.KindNote
	KindWord = core.KindWord
	KindChat = core.KindChat
)

// Event describes one record change broadcast to subscribers.
type Event = core.Event

// RecordModel is a public alias for the typed record model.
type RecordModel[T any] = platform.RecordModel[T]

// TypedView is a public alias for the typed kind view.
type TypedView[T any] = platform.TypedView[T]

// NewTypedView creates a type-safe view over one kind.
func NewTypedView[T any](e *Engine, kind Kind) *TypedView[T] {
	return platform.NewTypedView[T](e, kind)
}

// --- Configuration ---

// Option defines a functional option for configuring the engine.
type Option = platform.Option

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithLocalStore injects a custom local store adapter.
func WithLocalStore(store core.LocalStore) Option {
	return platform.WithLocalStore(store)
}

// WithAdapter selects the local storage adapter by name ("fs" or "sqlite").
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithRemoteStore injects a custom remote store adapter.
func WithRemoteStore(store core.RemoteStore) Option {
	return platform.WithRemoteStore(store)
}

// WithRemote configures the built-in HTTP remote adapter.
func WithRemote(baseURL, token string) Option {
	return platform.WithRemote(baseURL, token)
}

// WithHTTPClient overrides the HTTP client used by the remote adapter.
func WithHTTPClient(client *http.Client) Option {
	return platform.WithHTTPClient(client)
}

// WithIdentity injects the identity provider.
func WithIdentity(identity core.Identity) Option {
	return platform.WithIdentity(identity)
}

// WithUser configures a static identity with an always valid session.
func WithUser(userID string) Option {
	return platform.WithUser(userID)
}

// WithEventBuffer sets the broadcast buffer size per subscriber.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithSpoolDir enables cross-process change propagation through a shared
// spool directory.
func WithSpoolDir(dir string) Option {
	return platform.WithSpoolDir(dir)
}

// WithPolicy overrides the sync policy.
func WithPolicy(policy Policy) Option {
	return platform.WithPolicy(policy)
}

// --- Constructor ---

// New assembles a sync engine. The uri is adapter-specific: a directory
// for the "fs" adapter, a database file for "sqlite".
//
//	eng, err := lexsync.New(ctx, "./data",
//		lexsync.WithRemote("https://sync.example.com", token),
//		lexsync.WithUser("u1"),
//	)
func New(ctx context.Context, uri string, opts ...Option) (*Engine, error) {
	return platform.New(ctx, uri, opts...)
}
