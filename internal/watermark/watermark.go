// Package watermark tracks, per source, the point up to which its feed has
// already been harvested.
package watermark

import (
	"context"
	"errors"
	"time"
)

// Seed is the watermark of a source that has never been harvested.
var Seed = time.Date(2000, time.May, 1, 0, 0, 0, 0, time.UTC)

// ErrNotFound is returned by a Backend when no table has been saved yet.
var ErrNotFound = errors.New("watermark table not found")

// Backend loads and saves a watermark table.
type Backend interface {
	Load(ctx context.Context) (*Table, error)
	Save(ctx context.Context, t *Table) error
}

// Table maps source keys to their last download date, remembering the order
// in which sources were added. It is not safe for concurrent use.
type Table struct {
	order []string
	marks map[string]time.Time
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{marks: make(map[string]time.Time)}
}

// Get returns the watermark of source, or Seed when the source is unknown.
func (t *Table) Get(source string) time.Time {
	if ts, ok := t.marks[source]; ok {
		return ts
	}
	return Seed
}

// Has reports whether source is present in the table.
func (t *Table) Has(source string) bool {
	_, ok := t.marks[source]
	return ok
}

// Add inserts source with the Seed watermark. It returns false if the source
// was already present.
func (t *Table) Add(source string) bool {
	if t.Has(source) {
		return false
	}
	t.order = append(t.order, source)
	t.marks[source] = Seed
	return true
}

// Advance moves the watermark of source to ts unless the stored value is
// already later, and returns the resulting watermark. Unknown sources are
// added first.
func (t *Table) Advance(source string, ts time.Time) time.Time {
	t.Add(source)
	if ts.After(t.marks[source]) {
		t.marks[source] = ts
	}
	return t.marks[source]
}

// put records a loaded row. Repeated rows for a source keep the latest date.
func (t *Table) put(source string, ts time.Time) {
	prev, ok := t.marks[source]
	if !ok {
		t.order = append(t.order, source)
		t.marks[source] = ts
		return
	}
	if ts.After(prev) {
		t.marks[source] = ts
	}
}

// Sources returns the source keys in insertion order.
func (t *Table) Sources() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of sources.
func (t *Table) Len() int {
	return len(t.order)
}
