package expr

import (
	"fmt"
	"strings"

	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/types"
)

// LogicalOp is one of AND, OR, NOT (spec.md §3).
type LogicalOp uint8

const (
	And LogicalOp = iota
	Or
	Not
)

func (o LogicalOp) String() string {
	switch o {
	case And:
		return "AND"
	case Or:
		return "OR"
	case Not:
		return "NOT"
	default:
		return "?"
	}
}

// Logical combines BOOL operands: AND/OR take two or more, NOT exactly one.
type Logical struct {
	Op       LogicalOp
	Operands []Expression
}

func NewLogical(op LogicalOp, operands ...Expression) (*Logical, error) {
	if op == Not && len(operands) != 1 {
		return nil, errs.InvalidQuery.New("NOT takes exactly one operand")
	}
	if op != Not && len(operands) < 2 {
		return nil, errs.InvalidQuery.New(fmt.Sprintf("%s requires at least two operands", op))
	}
	for _, o := range operands {
		if o.Type().Kind != types.Bool {
			return nil, errs.TypeMismatch.New("logical", "operand is not BOOL")
		}
	}
	return &Logical{Op: op, Operands: operands}, nil
}

func (l *Logical) Type() types.Type { return types.Scalar(types.Bool) }

func (l *Logical) String() string {
	parts := make([]string, len(l.Operands))
	for i, o := range l.Operands {
		parts[i] = o.String()
	}
	if l.Op == Not {
		return fmt.Sprintf("NOT(%s)", parts[0])
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, fmt.Sprintf(" %s ", l.Op)))
}

func (l *Logical) Eval(row *batch.Accessor) (interface{}, error) {
	if l.Op == Not {
		v, err := l.Operands[0].Eval(row)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		return !v.(bool), nil
	}

	allNull := true
	for _, o := range l.Operands {
		v, err := o.Eval(row)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		allNull = false
		b := v.(bool)
		if l.Op == And && !b {
			return false, nil
		}
		if l.Op == Or && b {
			return true, nil
		}
	}
	if allNull {
		return nil, nil
	}
	return l.Op == And, nil
}
