package expr

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/types"
)

// ArithOp is one of the four arithmetic operators of spec.md §3.
type ArithOp uint8

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
)

func (o ArithOp) String() string {
	switch o {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mul:
		return "*"
	case Div:
		return "/"
	default:
		return "?"
	}
}

// Arithmetic evaluates left OP right, promoting operand types along the
// INT->BIGINT->DOUBLE lattice (spec.md §4.1).
type Arithmetic struct {
	Op          ArithOp
	Left, Right Expression
	Typ         types.Type
}

// NewArithmetic builds an Arithmetic node, inferring its output type via
// types.Promote and failing with a TypeMismatch error if the operands
// aren't numeric.
func NewArithmetic(op ArithOp, left, right Expression) (*Arithmetic, error) {
	k, err := types.Promote(left.Type().Kind, right.Type().Kind)
	if err != nil {
		return nil, errs.TypeMismatch.New("arithmetic", err.Error())
	}
	return &Arithmetic{Op: op, Left: left, Right: right, Typ: types.Scalar(k)}, nil
}

func (a *Arithmetic) Type() types.Type { return a.Typ }

func (a *Arithmetic) String() string {
	return fmt.Sprintf("(%s %s %s)", a.Left.String(), a.Op.String(), a.Right.String())
}

func (a *Arithmetic) Eval(row *batch.Accessor) (interface{}, error) {
	lv, err := a.Left.Eval(row)
	if err != nil {
		return nil, err
	}
	rv, err := a.Right.Eval(row)
	if err != nil {
		return nil, err
	}
	if lv == nil || rv == nil {
		return nil, nil
	}
	if a.Typ.Kind == types.Double || a.Typ.Kind == types.Real {
		l, err := cast.ToFloat64E(lv)
		if err != nil {
			return nil, err
		}
		r, err := cast.ToFloat64E(rv)
		if err != nil {
			return nil, err
		}
		return applyFloat(a.Op, l, r)
	}
	l, err := cast.ToInt64E(lv)
	if err != nil {
		return nil, err
	}
	r, err := cast.ToInt64E(rv)
	if err != nil {
		return nil, err
	}
	return applyInt(a.Op, l, r)
}

func applyFloat(op ArithOp, l, r float64) (interface{}, error) {
	switch op {
	case Add:
		return l + r, nil
	case Sub:
		return l - r, nil
	case Mul:
		return l * r, nil
	case Div:
		if r == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return l / r, nil
	default:
		return nil, fmt.Errorf("unknown arithmetic op %v", op)
	}
}

func applyInt(op ArithOp, l, r int64) (interface{}, error) {
	switch op {
	case Add:
		return l + r, nil
	case Sub:
		return l - r, nil
	case Mul:
		return l * r, nil
	case Div:
		if r == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return l / r, nil
	default:
		return nil, fmt.Errorf("unknown arithmetic op %v", op)
	}
}
