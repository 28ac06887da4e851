// Package audit computes the diffs and snapshots that go into the audit
// ledger.  Diffing happens in application code inside the same transaction
// as the mutation it describes.
package audit

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// Snapshot captures the auditable state of a record: every fixed field,
// the extras bag under "extras", the flags and the bookkeeping columns.
func Snapshot(rec model.Reservation) map[string]any {
	snap := rec.Core.Values()
	extras := make(map[string]any, len(rec.Extras))
	for k, v := range rec.Extras {
		extras[k] = v
	}
	snap["extras"] = extras
	snap["flags"] = map[string]any{
		"missing":   rec.Flags.Missing,
		"ambiguous": rec.Flags.Ambiguous,
	}
	snap["lock_version"] = rec.LockVersion
	snap["is_deleted"] = rec.IsDeleted
	return snap
}

// Tracked returns the subset of a record that update diffs cover: fixed
// fields and extras.  Flags and bookkeeping columns are derived and stay
// out of the diff.
func Tracked(core model.Core, extras map[string]any) map[string]any {
	m := core.Values()
	e := make(map[string]any, len(extras))
	for k, v := range extras {
		e[k] = v
	}
	m["extras"] = e
	return m
}

// Flatten expands nested maps into dotted keys, so {"extras": {"a": 1}}
// becomes {"extras.a": 1}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	flattenInto(out, "", m)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// Diff compares two states and returns only the paths whose values
// differ.  Nested maps are flattened first so one flat diff fully
// describes the change.
func Diff(before, after map[string]any) model.Diff {
	b := Flatten(before)
	a := Flatten(after)
	diff := model.Diff{}
	for k, old := range b {
		nv, ok := a[k]
		if !ok {
			nv = nil
		}
		if !Equal(k, old, nv) {
			diff[k] = model.Change{Old: old, New: nv}
		}
	}
	for k, nv := range a {
		if _, seen := b[k]; seen {
			continue
		}
		if nv != nil {
			diff[k] = model.Change{Old: nil, New: nv}
		}
	}
	return diff
}

// Equal compares two values of the field named by path.  Money compares
// at cent precision; everything else by canonical JSON encoding so []any
// read back from the database equals the []string that was written.
func Equal(path string, a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if model.MoneyFields[path] {
		fa, okA := a.(float64)
		fb, okB := b.(float64)
		if okA && okB {
			return model.MoneyEqual(fa, fb)
		}
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// Fields returns the diff's paths in sorted order.
func Fields(d model.Diff) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
