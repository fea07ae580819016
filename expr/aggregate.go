package expr

import (
	"fmt"

	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/types"
)

// AggKind is the closed set of UDAFs of spec.md §3: SUM, COUNT, MIN, MAX,
// AVG.
type AggKind uint8

const (
	SumKind AggKind = iota
	CountKind
	MinKind
	MaxKind
	AvgKind
)

func (k AggKind) String() string {
	return [...]string{"SUM", "COUNT", "MIN", "MAX", "AVG"}[k]
}

// Aggregate is an expression expressed as a (fold, merge) pair per
// spec.md §4.2, so the block phase can emit running state and the final
// phase can merge across blocks with the same merge function
// (associativity/commutativity required per spec.md §5/§8 invariant 1).
type Aggregate interface {
	Expression
	AggKind() AggKind
	// Children are the aggregate's operand expressions, used by Fields
	// for predicate-pushdown field collection.
	Children() []Expression
	// NewState returns the identity state for an empty partition.
	NewState() interface{}
	// Fold folds one row into state.
	Fold(state interface{}, row *batch.Accessor) (interface{}, error)
	// Merge combines two partition states.
	Merge(a, b interface{}) (interface{}, error)
	// Finalize converts merged state into the aggregate's output value.
	Finalize(state interface{}) (interface{}, error)
}

// avgState is AVG's running (sum, count) pair.
type avgState struct {
	sum   float64
	count int64
}

// ---- COUNT ----

// Count implements COUNT(*) when Inner is nil, or COUNT(col) when Inner is
// a column reference — in which case null values of that column are
// skipped rather than counted (spec.md §4.2, SPEC_FULL.md §4.2 resolving
// open question 9(ii)).
type Count struct {
	Inner Expression
}

func NewCount(inner Expression) *Count { return &Count{Inner: inner} }

func (c *Count) AggKind() AggKind      { return CountKind }
func (c *Count) Type() types.Type      { return types.Scalar(types.BigInt) }
func (c *Count) String() string {
	if c.Inner == nil {
		return "COUNT(*)"
	}
	return fmt.Sprintf("COUNT(%s)", c.Inner.String())
}
func (c *Count) Children() []Expression {
	if c.Inner == nil {
		return nil
	}
	return []Expression{c.Inner}
}
func (c *Count) Eval(row *batch.Accessor) (interface{}, error) { return nil, fmt.Errorf("COUNT cannot be evaluated row-wise; use Fold") }
func (c *Count) NewState() interface{}                         { return int64(0) }

func (c *Count) Fold(state interface{}, row *batch.Accessor) (interface{}, error) {
	s := state.(int64)
	if _, ok := c.Inner.(*Column); ok {
		v, err := c.Inner.Eval(row)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return s, nil
		}
	}
	return s + 1, nil
}

func (c *Count) Merge(a, b interface{}) (interface{}, error) { return a.(int64) + b.(int64), nil }
func (c *Count) Finalize(state interface{}) (interface{}, error) { return state.(int64), nil }

// ---- SUM ----

// Sum yields BIGINT for an integer inner expression and DOUBLE for a real
// one (spec.md §4.1).
type Sum struct {
	Inner Expression
	Typ   types.Type
}

func NewSum(inner Expression) (*Sum, error) {
	if !types.IsNumeric(inner.Type().Kind) {
		return nil, errs.TypeMismatch.New("SUM", "operand is not numeric")
	}
	out := types.Scalar(types.BigInt)
	if inner.Type().Kind == types.Real || inner.Type().Kind == types.Double {
		out = types.Scalar(types.Double)
	}
	return &Sum{Inner: inner, Typ: out}, nil
}

func (s *Sum) AggKind() AggKind        { return SumKind }
func (s *Sum) Type() types.Type        { return s.Typ }
func (s *Sum) String() string          { return fmt.Sprintf("SUM(%s)", s.Inner.String()) }
func (s *Sum) Children() []Expression  { return []Expression{s.Inner} }
func (s *Sum) Eval(row *batch.Accessor) (interface{}, error) {
	return nil, fmt.Errorf("SUM cannot be evaluated row-wise; use Fold")
}

func (s *Sum) NewState() interface{} {
	if s.Typ.Kind == types.Double {
		return float64(0)
	}
	return int64(0)
}

func (s *Sum) Fold(state interface{}, row *batch.Accessor) (interface{}, error) {
	v, err := s.Inner.Eval(row)
	if err != nil || v == nil {
		return state, err
	}
	if s.Typ.Kind == types.Double {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return state.(float64) + f, nil
	}
	n, err := toInt(v)
	if err != nil {
		return nil, err
	}
	return state.(int64) + n, nil
}

func (s *Sum) Merge(a, b interface{}) (interface{}, error) {
	if s.Typ.Kind == types.Double {
		return a.(float64) + b.(float64), nil
	}
	return a.(int64) + b.(int64), nil
}

func (s *Sum) Finalize(state interface{}) (interface{}, error) { return state, nil }

// ---- MIN / MAX ----

type minMax struct {
	Inner Expression
	isMax bool
}

func NewMin(inner Expression) *minMax { return &minMax{Inner: inner, isMax: false} }
func NewMax(inner Expression) *minMax { return &minMax{Inner: inner, isMax: true} }

func (m *minMax) AggKind() AggKind {
	if m.isMax {
		return MaxKind
	}
	return MinKind
}
func (m *minMax) Type() types.Type { return m.Inner.Type() }
func (m *minMax) String() string {
	if m.isMax {
		return fmt.Sprintf("MAX(%s)", m.Inner.String())
	}
	return fmt.Sprintf("MIN(%s)", m.Inner.String())
}
func (m *minMax) Children() []Expression { return []Expression{m.Inner} }
func (m *minMax) Eval(row *batch.Accessor) (interface{}, error) {
	return nil, fmt.Errorf("MIN/MAX cannot be evaluated row-wise; use Fold")
}
func (m *minMax) NewState() interface{} { return nil }

func (m *minMax) Fold(state interface{}, row *batch.Accessor) (interface{}, error) {
	v, err := m.Inner.Eval(row)
	if err != nil || v == nil {
		return state, err
	}
	if state == nil {
		return v, nil
	}
	cmp, err := compareValues(state, v)
	if err != nil {
		return nil, err
	}
	if (m.isMax && cmp < 0) || (!m.isMax && cmp > 0) {
		return v, nil
	}
	return state, nil
}

func (m *minMax) Merge(a, b interface{}) (interface{}, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	cmp, err := compareValues(a, b)
	if err != nil {
		return nil, err
	}
	if (m.isMax && cmp < 0) || (!m.isMax && cmp > 0) {
		return b, nil
	}
	return a, nil
}

func (m *minMax) Finalize(state interface{}) (interface{}, error) { return state, nil }

// ---- AVG ----

// Avg always yields DOUBLE (spec.md §4.1) and folds a running (sum,count)
// pair so merge stays associative/commutative (spec.md §8 invariant 1).
type Avg struct {
	Inner Expression
}

func NewAvg(inner Expression) (*Avg, error) {
	if !types.IsNumeric(inner.Type().Kind) {
		return nil, errs.TypeMismatch.New("AVG", "operand is not numeric")
	}
	return &Avg{Inner: inner}, nil
}

func (a *Avg) AggKind() AggKind       { return AvgKind }
func (a *Avg) Type() types.Type       { return types.Scalar(types.Double) }
func (a *Avg) String() string         { return fmt.Sprintf("AVG(%s)", a.Inner.String()) }
func (a *Avg) Children() []Expression { return []Expression{a.Inner} }
func (a *Avg) Eval(row *batch.Accessor) (interface{}, error) {
	return nil, fmt.Errorf("AVG cannot be evaluated row-wise; use Fold")
}
func (a *Avg) NewState() interface{} { return avgState{} }

func (a *Avg) Fold(state interface{}, row *batch.Accessor) (interface{}, error) {
	v, err := a.Inner.Eval(row)
	if err != nil || v == nil {
		return state, err
	}
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	s := state.(avgState)
	s.sum += f
	s.count++
	return s, nil
}

func (a *Avg) Merge(x, y interface{}) (interface{}, error) {
	sx, sy := x.(avgState), y.(avgState)
	return avgState{sum: sx.sum + sy.sum, count: sx.count + sy.count}, nil
}

func (a *Avg) Finalize(state interface{}) (interface{}, error) {
	s := state.(avgState)
	if s.count == 0 {
		return nil, nil
	}
	return s.sum / float64(s.count), nil
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
}

func toInt(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}
