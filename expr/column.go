package expr

import (
	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/types"
)

// Column is a reference to a named column of the row's schema.
type Column struct {
	Name string
	Typ  types.Type
}

func NewColumn(name string, t types.Type) *Column { return &Column{Name: name, Typ: t} }

func (c *Column) Type() types.Type { return c.Typ }

func (c *Column) Eval(row *batch.Accessor) (interface{}, error) {
	return row.Get(c.Name)
}

func (c *Column) String() string { return c.Name }

// TimeColumn is the well-known column name carrying a block's time
// dimension. WHERE clauses _time_ >= t and _time_ < t (t a time.Time
// literal) are rewritten into plan window bounds rather than evaluated
// per-row (spec.md §4.1); other comparisons on it are evaluated per row.
const TimeColumn = "_time_"
