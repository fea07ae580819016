package expr

import (
	"fmt"

	"github.com/nebula-analytics/nebula/batch"
	"github.com/nebula-analytics/nebula/errs"
	"github.com/nebula-analytics/nebula/types"
)

// Like evaluates an SQL-style LIKE predicate: Left must be VARCHAR and
// Pattern is a literal VARCHAR pattern (spec.md §3/§4.1), interpreted on
// each Eval by an anchored byte matcher where % matches any run of
// bytes (including empty) and _ matches exactly one byte; every other
// byte matches literally. Matching runs against the raw VARCHAR bytes
// without normalization (spec.md §4.2).
type Like struct {
	Left    Expression
	Pattern string
}

func NewLike(left Expression, pattern string) (*Like, error) {
	if left.Type().Kind != types.Varchar {
		return nil, errs.TypeMismatch.New("LIKE", "left operand must be VARCHAR")
	}
	return &Like{Left: left, Pattern: pattern}, nil
}

func (l *Like) Type() types.Type { return types.Scalar(types.Bool) }

func (l *Like) String() string { return fmt.Sprintf("%s LIKE %q", l.Left.String(), l.Pattern) }

func (l *Like) Eval(row *batch.Accessor) (interface{}, error) {
	v, err := l.Left.Eval(row)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	var b []byte
	switch t := v.(type) {
	case string:
		b = []byte(t)
	case []byte:
		b = t
	default:
		return nil, fmt.Errorf("LIKE: expected VARCHAR, got %T", v)
	}
	return matchLike(b, []byte(l.Pattern)), nil
}

// matchLike implements anchored %/_ matching with backtracking on %, the
// standard two-pointer glob algorithm: on a literal/_ mismatch after a %
// was seen, retry by advancing the text past the % match point by one.
func matchLike(text, pattern []byte) bool {
	var ti, pi int
	var starIdx, matchIdx = -1, 0
	for ti < len(text) {
		if pi < len(pattern) && (pattern[pi] == '_' || pattern[pi] == text[ti]) {
			ti++
			pi++
		} else if pi < len(pattern) && pattern[pi] == '%' {
			starIdx = pi
			matchIdx = ti
			pi++
		} else if starIdx != -1 {
			pi = starIdx + 1
			matchIdx++
			ti = matchIdx
		} else {
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '%' {
		pi++
	}
	return pi == len(pattern)
}
