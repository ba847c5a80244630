// Package normalize converts the raw shapes both stores produce into
// canonical records. It is pure: no I/O, deterministic output, and
// normalizing an already-normalized record is a no-op.
package normalize

import (
	"strings"
	"time"

	"github.com/lingopad/lexsync/pkg/core"
)

// Normalize builds a canonical record from a raw field map, regardless of
// which store produced it. Timestamps in epoch millis, ISO-8601 strings or
// native time values all collapse into UTC time.Time; a missing updatedAt
// defaults to createdAt. Records without an id or ownerId are rejected with
// an InvalidRecordError rather than a panic.
func Normalize(raw map[string]any, kind core.Kind) (core.Record, error) {
	if !kind.Valid() {
		return core.Record{}, &core.InvalidRecordError{Field: "kind", Reason: "unknown record kind " + string(kind)}
	}

	rec := core.Record{Kind: kind}

	rec.ID = stringField(raw, "id")
	if rec.ID == "" {
		return core.Record{}, &core.InvalidRecordError{Field: "id", Reason: "missing"}
	}
	rec.OwnerID = stringField(raw, "ownerId")
	if rec.OwnerID == "" {
		return core.Record{}, &core.InvalidRecordError{Field: "ownerId", Reason: "missing"}
	}
	rec.ParentRef = stringField(raw, "parentRef")

	if p, ok := raw["payload"].(map[string]any); ok {
		rec.Payload = core.Payload(p)
	} else if p, ok := raw["payload"].(core.Payload); ok {
		rec.Payload = p
	}

	created, createdOK := CoerceTime(raw["createdAt"])
	updated, updatedOK := CoerceTime(raw["updatedAt"])
	switch {
	case !createdOK && !updatedOK:
		created = time.Now().UTC()
		updated = created
	case createdOK && !updatedOK:
		updated = created
	case !createdOK && updatedOK:
		created = updated
	}
	// updatedAt >= createdAt must hold after normalization.
	if updated.Before(created) {
		updated = created
	}
	rec.CreatedAt = created.UTC()
	rec.UpdatedAt = updated.UTC()

	if ts, ok := CoerceTime(raw["lastSyncedAt"]); ok {
		ts = ts.UTC()
		rec.LastSyncedAt = &ts
	}

	if deleted, ok := raw["deleted"].(bool); ok {
		rec.Deleted = deleted
	}

	return rec, nil
}

// Canonical re-normalizes an already-typed record: UTC timestamps, updatedAt
// clamped to createdAt. It never errors on a record that passed Normalize.
func Canonical(rec core.Record) core.Record {
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.LastSyncedAt != nil {
		ts := rec.LastSyncedAt.UTC()
		rec.LastSyncedAt = &ts
	}
	return rec
}

// ToDocument renders the remote wire shape of a record. Timestamps travel as
// ISO-8601 strings so heterogeneous clients agree on the encoding.
func ToDocument(rec core.Record) map[string]any {
	fields := map[string]any{
		"id":        rec.ID,
		"ownerId":   rec.OwnerID,
		"kind":      string(rec.Kind),
		"createdAt": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt": rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.ParentRef != "" {
		fields["parentRef"] = rec.ParentRef
	}
	if rec.Payload != nil {
		fields["payload"] = map[string]any(rec.Payload)
	}
	if rec.LastSyncedAt != nil {
		fields["lastSyncedAt"] = rec.LastSyncedAt.UTC().Format(time.RFC3339Nano)
	}
	if rec.Deleted {
		fields["deleted"] = true
	}
	return fields
}

// FromDocument normalizes a remote document into a record. The document path
// supplies id and owner when the fields omit them (users/{owner}/{kind}/{id}).
func FromDocument(doc core.Document, kind core.Kind) (core.Record, error) {
	raw := make(map[string]any, len(doc.Fields)+2)
	for k, v := range doc.Fields {
		raw[k] = v
	}
	if owner, id, ok := splitRecordPath(doc.Path); ok {
		if stringField(raw, "id") == "" {
			raw["id"] = id
		}
		if stringField(raw, "ownerId") == "" {
			raw["ownerId"] = owner
		}
	}
	return Normalize(raw, kind)
}

func splitRecordPath(path string) (owner, id string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "users" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}
