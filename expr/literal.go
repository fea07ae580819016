package expr

import (
	"fmt"

	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/types"
)

// Literal is a constant value node.
type Literal struct {
	Value interface{}
	Typ   types.Type
}

func NewLiteral(v interface{}, t types.Type) *Literal { return &Literal{Value: v, Typ: t} }

func (l *Literal) Type() types.Type { return l.Typ }

func (l *Literal) Eval(row *batch.Accessor) (interface{}, error) { return l.Value, nil }

func (l *Literal) String() string { return fmt.Sprintf("%v", l.Value) }
