package core

import "context"

// LocalStore is the key/value persistence scoped to one browser profile. It
// doubles as the offline cache and the write-ahead buffer: a Set must be
// durable before it returns, and a failed write leaves the prior value
// intact (no observable partial states).
//
// Implementations surface ErrStorageUnavailable when the backing storage is
// inaccessible and ErrNotFound for absent keys.
type LocalStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error

	// GetAll returns every entry whose key starts with prefix.
	GetAll(ctx context.Context, prefix string) (map[string][]byte, error)

	Close() error
}

// Document is a remote store document: its path plus its fields.
type Document struct {
	Path   string
	Fields map[string]any
}

// WriteKind discriminates batch operations.
type WriteKind string

const (
	WriteSet    WriteKind = "set"
	WriteDelete WriteKind = "delete"
)

// WriteOp is one operation inside a BatchWrite.
type WriteOp struct {
	Kind   WriteKind
	Path   string
	Fields map[string]any
	Merge  bool
}

// Query selects documents under a collection path.
type Query struct {
	// Path is the collection, e.g. "users/u1/notes".
	Path string
	// Filters are field equality constraints.
	Filters map[string]any
	// OrderBy optionally names a field to sort by, descending when
	// Descending is set.
	OrderBy    string
	Descending bool
	Limit      int
}

// DocChange is one element of a subscription stream. The initial snapshot
// arrives as a sequence of Added changes, then incremental changes follow in
// the server's commit order.
type DocChange struct {
	Type     ChangeType
	Document Document
}

// ChangeType tags subscription changes.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// CancelFunc tears down a subscription. Safe to call more than once.
type CancelFunc func()

// RemoteStore is the document-oriented multi-device store, path-addressed as
// users/{ownerId}/{kind}/{id}. BatchWrite is all-or-nothing up to the
// server's ceiling; beyond that adapters report PartialBatchError.
//
// Failure contract: ErrPermissionDenied is surfaced (re-authentication
// needed), TransientError is retried with backoff by callers, ErrNotFound
// means "document absent".
type RemoteStore interface {
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, fields map[string]any, merge bool) error
	Delete(ctx context.Context, path string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	BatchWrite(ctx context.Context, ops []WriteOp) error
	Subscribe(ctx context.Context, path string, onChange func(DocChange), onError func(error)) (CancelFunc, error)
}

// Identity is the external identity provider. The engine only ever consumes
// these two capabilities; token refresh and login flows live outside.
type Identity interface {
	// CurrentUserID returns the stable user id, or "" when signed out.
	CurrentUserID() string

	// EnsureValidSession refreshes credentials if needed. False means the
	// engine must operate local-only.
	EnsureValidSession(ctx context.Context) (bool, error)
}
