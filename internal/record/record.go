// Package record defines the schema-less record and document model shared by
// every storage backend.
package record

import (
	"time"

	"github.com/google/uuid"
)

// Reserved field names managed by the storage layer. Caller-supplied values
// for these are ignored on create and cannot be altered by an update.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// DefaultCollections are pre-seeded on a fresh document. Any other collection
// is auto-created on first write.
var DefaultCollections = []string{"users", "posts", "comments"}

// Record is a single schema-less entity: arbitrary JSON-representable fields
// plus the reserved id/createdAt/updatedAt fields.
type Record map[string]any

// Document maps collection name to an ordered list of records. It is the unit
// of atomicity for the file backend.
type Document map[string][]Record

// NewID returns a fresh collision-free record identifier.
func NewID() string {
	return uuid.NewString()
}

// Timestamp returns the current time formatted the way records store it.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// New builds a stored record from caller-supplied data: reserved fields from
// the caller are dropped, a fresh id is assigned and both timestamps are set
// to the same instant.
func New(data Record) Record {
	r := make(Record, len(data)+3)
	for k, v := range data {
		if k == FieldID || k == FieldCreatedAt || k == FieldUpdatedAt {
			continue
		}
		r[k] = copyValue(v)
	}
	now := Timestamp()
	r[FieldID] = NewID()
	r[FieldCreatedAt] = now
	r[FieldUpdatedAt] = now
	return r
}

// ID returns the record's identifier, or "" when unset.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = copyValue(v)
	}
	return out
}

// ApplyPatch returns a copy of r with patch fields shallow-merged on top.
// id and createdAt keep their original values, updatedAt is refreshed.
func (r Record) ApplyPatch(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		if k == FieldID || k == FieldCreatedAt || k == FieldUpdatedAt {
			continue
		}
		out[k] = copyValue(v)
	}
	out[FieldUpdatedAt] = Timestamp()
	return out
}

// CloneCollection deep-copies a collection, preserving order.
func CloneCollection(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}

// Clone deep-copies the whole document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for name, recs := range d {
		out[name] = CloneCollection(recs)
	}
	return out
}

// Counts returns the per-collection record counts.
func (d Document) Counts() map[string]int {
	counts := make(map[string]int, len(d))
	for name, recs := range d {
		counts[name] = len(recs)
	}
	return counts
}

// TotalRecords sums the record counts over all collections.
func (d Document) TotalRecords() int {
	total := 0
	for _, recs := range d {
		total += len(recs)
	}
	return total
}

// Seed returns a fresh document holding the default empty collections.
func Seed() Document {
	d := make(Document, len(DefaultCollections))
	for _, name := range DefaultCollections {
		d[name] = []Record{}
	}
	return d
}

// copyValue deep-copies the JSON-representable value shapes produced by
// encoding/json (maps, slices, scalars).
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = copyValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = copyValue(vv)
		}
		return out
	default:
		return v
	}
}
