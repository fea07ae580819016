// Package batch implements the immutable columnar batch model of
// spec.md §3/§4.3: a fixed-schema, bounded-capacity container built by a
// single producer (Builder), sealed into a read-only, wait-free Batch, and
// read through a Row accessor.
package batch

import (
	"fmt"
	"sync/atomic"

	"github.com/nebula-analytics/nebula/types"
)

// Row is the name-keyed input record Builder.Add reads from; a missing key
// is treated as a null.
type Row map[string]interface{}

// BloomConfig selects which columns get a bloom filter and at what false
// positive rate, per spec.md §4.3 ("optionally, a bloom filter").
type BloomConfig struct {
	Columns           map[string]bool
	FalsePositiveRate float64
}

// Builder accumulates rows into column vectors up to a fixed capacity.
// Builder.Add is not safe for concurrent use: "each batch is built by a
// single producer" (spec.md §4.3).
type Builder struct {
	schema   types.Schema
	capacity int
	columns  []*column
	rowCount int
}

// NewBuilder allocates a Builder for schema with room for capacity rows.
func NewBuilder(schema types.Schema, capacity int, bloom BloomConfig) *Builder {
	cols := make([]*column, len(schema.Columns))
	for i, c := range schema.Columns {
		withBloom := bloom.Columns != nil && bloom.Columns[c.Name]
		fp := bloom.FalsePositiveRate
		cols[i] = newColumn(c.Type, capacity, withBloom, fp)
	}
	return &Builder{schema: schema, capacity: capacity, columns: cols}
}

// Add appends one row, reading each field by column name (spec.md §4.3).
// It returns an error once the builder is at capacity, rather than
// growing past it (spec.md §3 invariant: "row count ≤ capacity").
func (b *Builder) Add(row Row) error {
	if b.rowCount >= b.capacity {
		return fmt.Errorf("batch: capacity %d exceeded", b.capacity)
	}
	for i, c := range b.schema.Columns {
		if err := b.columns[i].appendValue(row[c.Name]); err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
	}
	b.rowCount++
	return nil
}

// Len reports the number of rows appended so far.
func (b *Builder) Len() int { return b.rowCount }

// Seal converts the in-progress builder into a read-only Batch and
// releases builder-only state, per spec.md §4.3 ("releases builder-only
// memory"). The Builder must not be used after Seal.
func (b *Builder) Seal() *Batch {
	bat := &Batch{
		schema:   b.schema,
		rowCount: b.rowCount,
		columns:  b.columns,
		sealed:   true,
	}
	b.columns = nil
	return bat
}

// Batch is an immutable columnar container for a bounded number of rows of
// a fixed schema (spec.md §3). Once sealed, reads are wait-free and the
// batch may be shared across any number of concurrent readers.
type Batch struct {
	schema   types.Schema
	rowCount int
	columns  []*column
	sealed   bool
}

func (bt *Batch) Schema() types.Schema { return bt.schema }
func (bt *Batch) RowCount() int        { return bt.rowCount }
func (bt *Batch) Sealed() bool         { return bt.sealed }

// RawSize reports the batch's total byte footprint: every column's vector
// (or offsets+bytes) plus its null bitmap plus, where configured, its
// bloom filter (SPEC_FULL.md §3).
func (bt *Batch) RawSize() int64 {
	var n int64
	for _, c := range bt.columns {
		n += c.bytes()
	}
	return n
}

// Probably probes the named column's bloom filter, per spec.md §4.3;
// returns true (no bloom filter configured) if the column lacks one, since
// the absence of evidence cannot prune a block.
func (bt *Batch) Probably(columnName string, v interface{}) bool {
	idx := bt.schema.IndexOf(columnName)
	if idx < 0 {
		return true
	}
	c := bt.columns[idx]
	if c.bloom == nil {
		return true
	}
	enc := EncodeValue(v)
	if enc == nil {
		return true
	}
	return c.bloom.Probably(enc)
}

// Accessor returns a Row cursor over the batch, positioned before row 0.
func (bt *Batch) Accessor() *Accessor {
	return &Accessor{batch: bt, row: -1}
}

// Ref is a reference-counted, immutable handle to a sealed Batch, shared
// across concurrent block-phase workers without copying the underlying
// columns (SPEC_FULL.md §4.3: "Immutable shared ownership").
type Ref struct {
	batch *Batch
	count *int32
}

// NewRef wraps a sealed batch in a fresh reference-counted handle with an
// initial count of 1.
func NewRef(b *Batch) Ref {
	c := int32(1)
	return Ref{batch: b, count: &c}
}

func (r Ref) Batch() *Batch { return r.batch }

// Retain increments the reference count and returns the same handle, for
// callers about to hand the batch to another concurrent reader.
func (r Ref) Retain() Ref {
	atomic.AddInt32(r.count, 1)
	return r
}

// Release decrements the reference count, returning the count remaining.
func (r Ref) Release() int32 {
	return atomic.AddInt32(r.count, -1)
}
