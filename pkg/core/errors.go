package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors forming the failure taxonomy of the engine.
var (
	// ErrStorageUnavailable means the local store is inaccessible. Non-fatal:
	// callers retry with backoff, they never crash the caller's surface.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrPermissionDenied means the identity/session is invalid. It is
	// surfaced to the presentation layer, never retried blindly.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound means a record or document is absent. Adapters return it
	// instead of inventing empty values; most call sites treat it as
	// "record absent", not a failure.
	ErrNotFound = errors.New("not found")

	// ErrOffline means the engine decided to operate local-only, either
	// because there is no identity or the session could not be refreshed.
	ErrOffline = errors.New("operating local-only")
)

// TransientError wraps a remote failure that is safe to retry (timeouts,
// unavailable backend, throttling).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient remote failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// InvalidRecordError is returned by normalization when a raw value cannot
// become a canonical record. It is surfaced immediately and never written.
type InvalidRecordError struct {
	Field  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	if e.Field == "" {
		return "invalid record: " + e.Reason
	}
	return fmt.Sprintf("invalid record: field %q: %s", e.Field, e.Reason)
}

// IsInvalidRecord reports whether err is a normalization rejection.
func IsInvalidRecord(err error) bool {
	var ie *InvalidRecordError
	return errors.As(err, &ie)
}

// PartialBatchError reports a batch commit where only some operations
// landed. FailedIDs lets the orchestrator re-enqueue exactly the remainder.
type PartialBatchError struct {
	FailedIDs []string
	Err       error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("partial batch failure (%d ops: %s): %v",
		len(e.FailedIDs), strings.Join(e.FailedIDs, ","), e.Err)
}

func (e *PartialBatchError) Unwrap() error { return e.Err }
