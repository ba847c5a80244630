// Package core defines the domain model of the sync engine: records, the
// events they emit, and the ports (local store, remote store, identity) that
// adapters implement. It is agnostic to any concrete storage or transport.
package core

import (
	"fmt"
	"time"
)

// Kind identifies one of the record collections managed by the engine.
type Kind string

const (
	KindNote Kind = "notes"
	KindWord Kind = "words"
	KindChat Kind = "chats"
)

// Kinds lists every collection the engine manages, in sync order.
var Kinds = []Kind{KindNote, KindWord, KindChat}

// Valid reports whether k is one of the known collections.
func (k Kind) Valid() bool {
	switch k {
	case KindNote, KindWord, KindChat:
		return true
	}
	return false
}

// Payload holds the kind-specific content of a record (note text, word and
// translation pair, message list). The engine treats it as opaque.
type Payload map[string]any

// Record is the generic envelope shared by notes, words and chat
// conversations. Records are value objects: components read them and ask the
// engine for mutations, they never mutate one in place.
type Record struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Kind      Kind      `json:"kind"`
	ParentRef string    `json:"parentRef,omitempty"`
	Payload   Payload   `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// LastSyncedAt is set only after a successful remote write. Nil means
	// the record is local-only and still pending. Only the engine writes it.
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`

	// Deleted marks a tombstone: the user removed the record but the remote
	// deletion has not been confirmed yet.
	Deleted bool `json:"deleted,omitempty"`
}

// Pending reports whether the record still awaits a remote acknowledgement.
func (r Record) Pending() bool {
	return r.LastSyncedAt == nil || (r.LastSyncedAt != nil && r.UpdatedAt.After(*r.LastSyncedAt))
}

// Clone returns a deep copy. Payload values are copied one level deep, which
// is enough for the whole-record replacement model (payloads are replaced,
// never patched).
func (r Record) Clone() Record {
	out := r
	if r.Payload != nil {
		out.Payload = make(Payload, len(r.Payload))
		for k, v := range r.Payload {
			out.Payload[k] = v
		}
	}
	if r.LastSyncedAt != nil {
		ts := *r.LastSyncedAt
		out.LastSyncedAt = &ts
	}
	return out
}

// RemotePath returns the document path of the record in the remote store,
// following the users/{ownerId}/{kind}/{id} layout.
func (r Record) RemotePath() string {
	return fmt.Sprintf("users/%s/%s/%s", r.OwnerID, r.Kind, r.ID)
}

// OwnerPath returns the path of the per-user summary document that carries
// the ledger fields.
func OwnerPath(ownerID string) string {
	return "users/" + ownerID
}

// LocalKey returns the local store entry a record belongs to. Records are
// grouped per kind and parentRef: "{kind}:{parentRef}". Records without a
// parent share the "{kind}:" entry.
func LocalKey(kind Kind, parentRef string) string {
	return string(kind) + ":" + parentRef
}
