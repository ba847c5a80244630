// Package ledger maintains the per-owner summary of the record collections:
// totals per kind, per-group (parentRef) counts, and the last successful
// sync time. It is allowed to be briefly stale but must always be
// recomputable from the records themselves; Recompute is the authority.
package ledger

import (
	"time"

	"github.com/lingopad/lexsync/pkg/core"
)

// Summary is the ledger document. Only the sync engine mutates it.
type Summary struct {
	// Counts holds the total number of live (non-tombstoned) records per
	// kind.
	Counts map[core.Kind]int `json:"counts"`

	// Groups maps kind -> parentRef -> live record count. A group with zero
	// remaining records must not appear.
	Groups map[core.Kind]map[string]int `json:"groups"`

	// LastSyncedAt records, per kind, when a sync cycle last completed
	// against the remote store.
	LastSyncedAt map[core.Kind]time.Time `json:"lastSyncedAt"`
}

// New returns an empty summary.
func New() *Summary {
	return &Summary{
		Counts:       make(map[core.Kind]int),
		Groups:       make(map[core.Kind]map[string]int),
		LastSyncedAt: make(map[core.Kind]time.Time),
	}
}

// Clone deep-copies the summary.
func (s *Summary) Clone() *Summary {
	out := New()
	for k, v := range s.Counts {
		out.Counts[k] = v
	}
	for k, groups := range s.Groups {
		dst := make(map[string]int, len(groups))
		for ref, n := range groups {
			dst[ref] = n
		}
		out.Groups[k] = dst
	}
	for k, v := range s.LastSyncedAt {
		out.LastSyncedAt[k] = v
	}
	return out
}

// Add registers one live record under its group.
func (s *Summary) Add(kind core.Kind, parentRef string) {
	s.Counts[kind]++
	groups := s.Groups[kind]
	if groups == nil {
		groups = make(map[string]int)
		s.Groups[kind] = groups
	}
	groups[parentRef]++
}

// Drop unregisters one record. Zero-count groups are removed so the ledger
// never references an empty group.
func (s *Summary) Drop(kind core.Kind, parentRef string) {
	if s.Counts[kind] > 0 {
		s.Counts[kind]--
	}
	if s.Counts[kind] == 0 {
		delete(s.Counts, kind)
	}
	groups := s.Groups[kind]
	if groups == nil {
		return
	}
	if groups[parentRef] > 0 {
		groups[parentRef]--
	}
	if groups[parentRef] <= 0 {
		delete(groups, parentRef)
	}
	if len(groups) == 0 {
		delete(s.Groups, kind)
	}
}

// MarkSynced stamps the kind's last successful sync time.
func (s *Summary) MarkSynced(kind core.Kind, at time.Time) {
	s.LastSyncedAt[kind] = at.UTC()
}

// GroupCount returns the live count for one group.
func (s *Summary) GroupCount(kind core.Kind, parentRef string) int {
	return s.Groups[kind][parentRef]
}

// Recompute rebuilds counts and groups from the authoritative record set,
// skipping tombstones. Sync timestamps survive; incremental counters do
// not — this is the self-healing path used by a full resync.
func (s *Summary) Recompute(records []core.Record) {
	s.Counts = make(map[core.Kind]int)
	s.Groups = make(map[core.Kind]map[string]int)
	for _, rec := range records {
		if rec.Deleted {
			continue
		}
		s.Add(rec.Kind, rec.ParentRef)
	}
}

// ConsistentWith checks the superset-consistency invariant against a record
// set: every live record reachable from its group entry, no zero-count
// groups. It returns the first discrepancy found, or "" when consistent.
func (s *Summary) ConsistentWith(records []core.Record) string {
	expect := New()
	expect.Recompute(records)

	for kind, n := range expect.Counts {
		if s.Counts[kind] != n {
			return "count mismatch for kind " + string(kind)
		}
	}
	for kind, n := range s.Counts {
		if expect.Counts[kind] != n {
			return "stale count for kind " + string(kind)
		}
	}
	for kind, groups := range expect.Groups {
		for ref, n := range groups {
			if s.GroupCount(kind, ref) != n {
				return "group mismatch " + string(kind) + "/" + ref
			}
		}
	}
	for kind, groups := range s.Groups {
		for ref, n := range groups {
			if n == 0 {
				return "zero-count group " + string(kind) + "/" + ref
			}
			if expect.GroupCount(kind, ref) != n {
				return "orphaned group " + string(kind) + "/" + ref
			}
		}
	}
	return ""
}

// Fields renders the summary as remote document fields for the
// users/{ownerId} document.
func (s *Summary) Fields() map[string]any {
	counts := make(map[string]any, len(s.Counts))
	for k, v := range s.Counts {
		counts[string(k)] = v
	}
	groups := make(map[string]any, len(s.Groups))
	for k, g := range s.Groups {
		inner := make(map[string]any, len(g))
		for ref, n := range g {
			inner[ref] = n
		}
		groups[string(k)] = inner
	}
	synced := make(map[string]any, len(s.LastSyncedAt))
	for k, t := range s.LastSyncedAt {
		synced[string(k)] = t.UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{
		"counts":       counts,
		"groups":       groups,
		"lastSyncedAt": synced,
	}
}
