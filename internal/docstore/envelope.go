package docstore

import (
	"math"
	"time"
)

// Envelope fields stamped on every document written through Upsert.
const (
	FieldAddedISO   = "addedIso"
	FieldUpdatedISO = "updatedIso"

	// Raw epoch-millisecond fields converted into the envelope when present.
	FieldAddedEpoch   = "added"
	FieldUpdatedEpoch = "updated"
)

// ISOLayout is the timestamp layout of envelope fields. Times are always UTC.
const ISOLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatISO renders t in ISOLayout.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// needsStored reports whether the envelope of doc depends on the document
// already stored under its id: addedIso is carried over from it, and a raw
// updated field must not move updatedIso backwards.
func needsStored(doc map[string]any) bool {
	if !hasString(doc, FieldAddedISO) {
		return true
	}
	_, ok := doc[FieldUpdatedEpoch]
	return ok
}

// applyEnvelope returns a shallow copy of doc with addedIso and updatedIso
// set. addedIso is written once: the document's own value wins, then the
// value already stored under the same id, then the raw epoch field, then now.
// updatedIso is the raw epoch field when present, otherwise now, but never
// earlier than the stored updatedIso.
func applyEnvelope(doc, stored map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	nowISO := FormatISO(now)

	switch {
	case hasString(doc, FieldAddedISO):
	case hasString(stored, FieldAddedISO):
		out[FieldAddedISO] = stored[FieldAddedISO]
	default:
		if t, ok := epochMillis(doc[FieldAddedEpoch]); ok {
			out[FieldAddedISO] = FormatISO(t)
		} else {
			out[FieldAddedISO] = nowISO
		}
	}

	updated, ok := epochMillis(doc[FieldUpdatedEpoch])
	if !ok {
		updated = now
	}
	if prev, ok := parseISO(stored[FieldUpdatedISO]); ok && prev.After(updated) {
		updated = prev
	}
	out[FieldUpdatedISO] = FormatISO(updated)
	return out
}

func parseISO(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(ISOLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func hasString(m map[string]any, key string) bool {
	s, ok := m[key].(string)
	return ok && s != ""
}

type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
}

// epochMillis interprets v as milliseconds since the Unix epoch.
func epochMillis(v any) (time.Time, bool) {
	var ms int64
	switch n := v.(type) {
	case int:
		ms = int64(n)
	case int64:
		ms = n
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return time.Time{}, false
		}
		ms = int64(n)
	case number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return time.Time{}, false
			}
			i = int64(f)
		}
		ms = i
	default:
		return time.Time{}, false
	}
	if ms < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
