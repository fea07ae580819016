package batch

import "fmt"

// Accessor is a cursor over a sealed Batch exposing typed readers by
// column name, per spec.md §4.3. Seek is O(1) for fixed-width columns and
// O(1) to the offset table plus O(length) to copy out bytes for VARCHAR.
type Accessor struct {
	batch *Batch
	row   int
}

// Seek positions the cursor at row i.
func (a *Accessor) Seek(i int) { a.row = i }

// Next advances the cursor by one row, returning false once past the last
// row (the "hasNext/next" cursor contract of spec.md §9).
func (a *Accessor) Next() bool {
	a.row++
	return a.row < a.batch.rowCount
}

// Row returns the accessor's current row index.
func (a *Accessor) Row() int { return a.row }

// IsNull reports whether column name is null at the current row.
func (a *Accessor) IsNull(name string) bool {
	idx := a.batch.schema.IndexOf(name)
	if idx < 0 {
		return true
	}
	return a.batch.columns[idx].nulls.Get(a.row)
}

// Get returns the current row's value for column name, or nil if null.
func (a *Accessor) Get(name string) (interface{}, error) {
	idx := a.batch.schema.IndexOf(name)
	if idx < 0 {
		return nil, fmt.Errorf("no such column %q", name)
	}
	return a.batch.columns[idx].get(a.row), nil
}

// GetByIndex is the positional counterpart to Get, used by evaluators that
// have already resolved a column reference to a schema index.
func (a *Accessor) GetByIndex(idx int) interface{} {
	return a.batch.columns[idx].get(a.row)
}

// IsNullByIndex is the positional counterpart to IsNull.
func (a *Accessor) IsNullByIndex(idx int) bool {
	return a.batch.columns[idx].nulls.Get(a.row)
}
