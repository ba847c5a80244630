package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/engine"
)

// RecordModel wraps the raw core.Record with a typed Payload field.
// It is the generic equivalent of core.Record.
type RecordModel[T any] struct {
	ID        string
	ParentRef string
	Payload   T
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TypedView wraps the engine to provide type-safe access to one record
// kind, converting between raw payload maps and typed structs at the edge.
type TypedView[T any] struct {
	engine *engine.Engine
	kind   core.Kind
}

// NewTypedView creates a type-safe view over one kind. T is the struct
// shape of the kind's payload.
func NewTypedView[T any](e *engine.Engine, kind core.Kind) *TypedView[T] {
	return &TypedView[T]{engine: e, kind: kind}
}

// Save persists a typed record. The Payload struct is marshaled through
// JSON so its tags decide the stored field names.
func (v *TypedView[T]) Save(ctx context.Context, model *RecordModel[T]) (*RecordModel[T], error) {
	payloadBytes, err := json.Marshal(model.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal typed payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("convert typed payload to map: %w", err)
	}

	raw := map[string]any{
		"id":        model.ID,
		"parentRef": model.ParentRef,
		"payload":   payload,
	}
	if !model.CreatedAt.IsZero() {
		raw["createdAt"] = model.CreatedAt
	}
	if !model.UpdatedAt.IsZero() {
		raw["updatedAt"] = model.UpdatedAt
	}

	rec, err := v.engine.SaveRecord(ctx, v.kind, raw)
	if err != nil {
		return nil, err
	}
	return v.fromRecord(rec)
}

// Get retrieves one record unmarshaled into the typed payload.
func (v *TypedView[T]) Get(ctx context.Context, id string) (*RecordModel[T], error) {
	rec, err := v.engine.GetRecord(ctx, v.kind, id)
	if err != nil {
		return nil, err
	}
	return v.fromRecord(rec)
}

// List returns a group's records converted to the typed model.
func (v *TypedView[T]) List(ctx context.Context, parentRef string) ([]*RecordModel[T], error) {
	records, err := v.engine.ListRecords(ctx, v.kind, parentRef)
	if err != nil {
		return nil, err
	}
	result := make([]*RecordModel[T], 0, len(records))
	for _, rec := range records {
		model, err := v.fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		result = append(result, model)
	}
	return result, nil
}

// Delete removes a record by id.
func (v *TypedView[T]) Delete(ctx context.Context, id string) error {
	return v.engine.DeleteRecord(ctx, v.kind, id)
}

func (v *TypedView[T]) fromRecord(rec core.Record) (*RecordModel[T], error) {
	payloadBytes, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("process record payload: %w", err)
	}
	var payload T
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload into %T: %w", new(T), err)
	}
	return &RecordModel[T]{
		ID:        rec.ID,
		ParentRef: rec.ParentRef,
		Payload:   payload,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
