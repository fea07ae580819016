package expr

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/types"
)

// CompareOp is one of the six comparison operators of spec.md §3.
type CompareOp uint8

const (
	EQ CompareOp = iota
	NEQ
	LT
	LE
	GT
	GE
)

func (o CompareOp) String() string {
	return [...]string{"=", "!=", "<", "<=", ">", ">="}[o]
}

// Comparison evaluates left OP right, always yielding BOOL (spec.md §4.1).
type Comparison struct {
	Op          CompareOp
	Left, Right Expression
}

func NewComparison(op CompareOp, left, right Expression) (*Comparison, error) {
	if types.IsNumeric(left.Type().Kind) != types.IsNumeric(right.Type().Kind) {
		return nil, errs.TypeMismatch.New("comparison", "operands are not comparable")
	}
	return &Comparison{Op: op, Left: left, Right: right}, nil
}

func (c *Comparison) Type() types.Type { return types.Scalar(types.Bool) }

func (c *Comparison) String() string {
	return fmt.Sprintf("(%s %s %s)", c.Left.String(), c.Op.String(), c.Right.String())
}

func (c *Comparison) Eval(row *batch.Accessor) (interface{}, error) {
	lv, err := c.Left.Eval(row)
	if err != nil {
		return nil, err
	}
	rv, err := c.Right.Eval(row)
	if err != nil {
		return nil, err
	}
	if lv == nil || rv == nil {
		return nil, nil
	}
	cmp, err := compareValues(lv, rv)
	if err != nil {
		return nil, err
	}
	switch c.Op {
	case EQ:
		return cmp == 0, nil
	case NEQ:
		return cmp != 0, nil
	case LT:
		return cmp < 0, nil
	case LE:
		return cmp <= 0, nil
	case GT:
		return cmp > 0, nil
	case GE:
		return cmp >= 0, nil
	default:
		return nil, fmt.Errorf("unknown comparison op %v", c.Op)
	}
}

func compareValues(lv, rv interface{}) (int, error) {
	if ls, ok := lv.(string); ok {
		rs := cast.ToString(rv)
		switch {
		case ls < rs:
			return -1, nil
		case ls > rs:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if lb, ok := lv.([]byte); ok {
		lv = string(lb)
		return compareValues(lv, rv)
	}
	if rb, ok := rv.([]byte); ok {
		rv = string(rb)
		return compareValues(lv, rv)
	}
	lf, err := cast.ToFloat64E(lv)
	if err != nil {
		return 0, err
	}
	rf, err := cast.ToFloat64E(rv)
	if err != nil {
		return 0, err
	}
	switch {
	case lf < rf:
		return -1, nil
	case lf > rf:
		return 1, nil
	default:
		return 0, nil
	}
}
