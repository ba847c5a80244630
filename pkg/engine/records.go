package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lingopad/lexsync/pkg/core"
	"github.com/lingopad/lexsync/pkg/merge"
)

// Records are stored locally in one bucket per (kind, parentRef) group: a
// JSON array under the key "{kind}:{parentRef}". The bucket is the unit of
// read and write, matching how the presentation layer consumes them.

func (e *Engine) loadBucket(ctx context.Context, kind core.Kind, parentRef string) ([]core.Record, error) {
	raw, err := e.local.Get(ctx, core.LocalKey(kind, parentRef))
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []core.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode bucket %s: %w", core.LocalKey(kind, parentRef), err)
	}
	return records, nil
}

// saveBucket persists a group ordered newest-first, or removes the key
// entirely when the group emptied out.
func (e *Engine) saveBucket(ctx context.Context, kind core.Kind, parentRef string, records []core.Record) error {
	key := core.LocalKey(kind, parentRef)
	if len(records) == 0 {
		return e.local.Remove(ctx, key)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode bucket %s: %w", key, err)
	}
	return e.local.Set(ctx, key, raw)
}

// loadKind reads every bucket of a kind and collapses it into a map keyed
// by record id. A record whose parentRef moved can transiently appear in
// two buckets; the resolver picks the current copy.
func (e *Engine) loadKind(ctx context.Context, kind core.Kind) (map[string]core.Record, error) {
	buckets, err := e.local.GetAll(ctx, string(kind)+":")
	if err != nil {
		return nil, err
	}
	byID := make(map[string]core.Record)
	for key, raw := range buckets {
		var records []core.Record
		if err := json.Unmarshal(raw, &records); err != nil {
			e.logWarn("skipping undecodable bucket", "key", key, "error", err)
			continue
		}
		for _, rec := range records {
			if existing, ok := byID[rec.ID]; ok {
				res := merge.Resolve(&existing, &rec)
				byID[rec.ID] = res.Winner
				continue
			}
			byID[rec.ID] = rec
		}
	}
	return byID, nil
}

// findRecord locates a record by id across all of a kind's buckets. The
// second return is the parentRef of the bucket it was found in.
func (e *Engine) findRecord(ctx context.Context, kind core.Kind, id string) (*core.Record, string, error) {
	buckets, err := e.local.GetAll(ctx, string(kind)+":")
	if err != nil {
		return nil, "", err
	}
	var found *core.Record
	var foundRef string
	for key, raw := range buckets {
		var records []core.Record
		if err := json.Unmarshal(raw, &records); err != nil {
			continue
		}
		for i := range records {
			if records[i].ID != id {
				continue
			}
			candidate := records[i]
			if found == nil || candidate.UpdatedAt.After(found.UpdatedAt) {
				found = &candidate
				foundRef = parentRefFromKey(key, kind)
			}
		}
	}
	return found, foundRef, nil
}

// upsertLocal replaces the record's copy in its group bucket, evicting any
// stale copy left in a previous group when the parentRef changed. It
// returns the prior local copy (nil when the id was new) and the group it
// previously lived in.
func (e *Engine) upsertLocal(ctx context.Context, rec core.Record) (*core.Record, string, error) {
	prior, priorRef, err := e.findRecord(ctx, rec.Kind, rec.ID)
	if err != nil {
		return nil, "", err
	}
	if prior != nil && priorRef != rec.ParentRef {
		if err := e.removeFromBucket(ctx, rec.Kind, priorRef, rec.ID); err != nil {
			return nil, "", err
		}
	}

	records, err := e.loadBucket(ctx, rec.Kind, rec.ParentRef)
	if err != nil {
		return nil, "", err
	}
	replaced := false
	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	if err := e.saveBucket(ctx, rec.Kind, rec.ParentRef, records); err != nil {
		return nil, "", err
	}
	return prior, priorRef, nil
}

func (e *Engine) removeFromBucket(ctx context.Context, kind core.Kind, parentRef, id string) error {
	records, err := e.loadBucket(ctx, kind, parentRef)
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, rec := range records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return nil
	}
	return e.saveBucket(ctx, kind, parentRef, kept)
}

// allRecords loads every kind's local view, used by the ledger rebuild and
// the consistency check.
func (e *Engine) allRecords(ctx context.Context) ([]core.Record, error) {
	var out []core.Record
	for _, kind := range core.Kinds {
		byID, err := e.loadKind(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, rec := range byID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func parentRefFromKey(key string, kind core.Kind) string {
	return strings.TrimPrefix(key, string(kind)+":")
}
