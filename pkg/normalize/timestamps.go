package normalize

import (
	"encoding/json"
	"time"
)

// epochMillisCutoff separates epoch seconds from epoch millis when a bare
// number arrives. Anything above ~Nov 2001 in millis is below it in seconds,
// so values >= cutoff are read as millis.
const epochMillisCutoff = int64(1e11)

// CoerceTime accepts the timestamp representations seen in the wild —
// time.Time, RFC3339/ISO-8601 strings, epoch millis or seconds as int,
// float or json.Number — and returns a UTC time. ok is false when the value
// is absent or unrecognizable.
func CoerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		return parseTimeString(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return fromEpoch(i), true
		}
		if f, err := t.Float64(); err == nil {
			return fromEpoch(int64(f)), true
		}
		return time.Time{}, false
	case int64:
		return fromEpoch(t), true
	case int:
		return fromEpoch(int64(t)), true
	case float64:
		if t == 0 {
			return time.Time{}, false
		}
		return fromEpoch(int64(t)), true
	}
	return time.Time{}, false
}

func parseTimeString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func fromEpoch(n int64) time.Time {
	if n >= epochMillisCutoff {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
