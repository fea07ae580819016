package batch

import (
	"fmt"

	"github.com/nebula-analytics/nebula/types"
)

// column is one columnar vector plus its null bitmap and optional bloom
// filter, per spec.md §3/§4.3.
type column struct {
	typ types.Type

	bools []bool
	i8    []int8
	i16   []int16
	i32   []int32
	i64   []int64
	f32   []float32
	f64   []float64
	i128  []Int128

	// VARCHAR storage: a dense offset table plus a backing byte slice, per
	// spec.md §3 ("offset+bytes for VARCHAR").
	varOffsets []int32
	varData    []byte

	list []interface{}
	mp   []interface{}

	nulls *bitmap
	bloom *Bloom
}

func newColumn(t types.Type, capacity int, withBloom bool, bloomFP float64) *column {
	c := &column{typ: t, nulls: newBitmap(capacity)}
	switch t.Kind {
	case types.Varchar:
		c.varOffsets = make([]int32, 0, capacity+1)
		c.varOffsets = append(c.varOffsets, 0)
	}
	if withBloom {
		c.bloom = NewBloom(capacity, bloomFP)
	}
	return c
}

func (c *column) length() int {
	switch c.typ.Kind {
	case types.Bool:
		return len(c.bools)
	case types.TinyInt:
		return len(c.i8)
	case types.SmallInt:
		return len(c.i16)
	case types.Int, types.Real:
		if c.typ.Kind == types.Real {
			return len(c.f32)
		}
		return len(c.i32)
	case types.BigInt:
		return len(c.i64)
	case types.Double:
		return len(c.f64)
	case types.Int128:
		return len(c.i128)
	case types.Varchar:
		return len(c.varOffsets) - 1
	case types.List:
		return len(c.list)
	case types.Map:
		return len(c.mp)
	default:
		return 0
	}
}

// appendValue writes one value into row index i (which must equal the
// column's current length); nil marks the row null.
func (c *column) appendValue(v interface{}) error {
	i := c.length()
	if v == nil {
		c.nulls.Set(i, true)
		return c.appendZero()
	}
	c.nulls.Set(i, false)
	if c.bloom != nil {
		if enc := EncodeValue(v); enc != nil {
			c.bloom.Add(enc)
		}
	}
	switch c.typ.Kind {
	case types.Bool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		c.bools = append(c.bools, b)
	case types.TinyInt:
		n, err := asInt64(v)
		if err != nil {
			return err
		}
		c.i8 = append(c.i8, int8(n))
	case types.SmallInt:
		n, err := asInt64(v)
		if err != nil {
			return err
		}
		c.i16 = append(c.i16, int16(n))
	case types.Int:
		n, err := asInt64(v)
		if err != nil {
			return err
		}
		c.i32 = append(c.i32, int32(n))
	case types.BigInt:
		n, err := asInt64(v)
		if err != nil {
			return err
		}
		c.i64 = append(c.i64, n)
	case types.Real:
		f, err := asFloat64(v)
		if err != nil {
			return err
		}
		c.f32 = append(c.f32, float32(f))
	case types.Double:
		f, err := asFloat64(v)
		if err != nil {
			return err
		}
		c.f64 = append(c.f64, f)
	case types.Int128:
		n, ok := v.(Int128)
		if !ok {
			i64, err := asInt64(v)
			if err != nil {
				return fmt.Errorf("expected Int128, got %T", v)
			}
			n = Int128FromInt64(i64)
		}
		c.i128 = append(c.i128, n)
	case types.Varchar:
		var b []byte
		switch t := v.(type) {
		case string:
			b = []byte(t)
		case []byte:
			b = t
		default:
			return fmt.Errorf("expected VARCHAR, got %T", v)
		}
		c.varData = append(c.varData, b...)
		c.varOffsets = append(c.varOffsets, int32(len(c.varData)))
	case types.List:
		c.list = append(c.list, v)
	case types.Map:
		c.mp = append(c.mp, v)
	default:
		return fmt.Errorf("unsupported column kind %s", c.typ.Kind)
	}
	return nil
}

// appendZero appends a zero-value placeholder for a null row so vector
// length stays in lockstep with row count (spec.md §3 invariant).
func (c *column) appendZero() error {
	switch c.typ.Kind {
	case types.Bool:
		c.bools = append(c.bools, false)
	case types.TinyInt:
		c.i8 = append(c.i8, 0)
	case types.SmallInt:
		c.i16 = append(c.i16, 0)
	case types.Int:
		c.i32 = append(c.i32, 0)
	case types.BigInt:
		c.i64 = append(c.i64, 0)
	case types.Real:
		c.f32 = append(c.f32, 0)
	case types.Double:
		c.f64 = append(c.f64, 0)
	case types.Int128:
		c.i128 = append(c.i128, Int128{})
	case types.Varchar:
		c.varOffsets = append(c.varOffsets, int32(len(c.varData)))
	case types.List:
		c.list = append(c.list, nil)
	case types.Map:
		c.mp = append(c.mp, nil)
	}
	return nil
}

func (c *column) get(i int) interface{} {
	if c.nulls.Get(i) {
		return nil
	}
	switch c.typ.Kind {
	case types.Bool:
		return c.bools[i]
	case types.TinyInt:
		return c.i8[i]
	case types.SmallInt:
		return c.i16[i]
	case types.Int:
		return c.i32[i]
	case types.BigInt:
		return c.i64[i]
	case types.Real:
		return c.f32[i]
	case types.Double:
		return c.f64[i]
	case types.Int128:
		return c.i128[i]
	case types.Varchar:
		start, end := c.varOffsets[i], c.varOffsets[i+1]
		return c.varData[start:end]
	case types.List:
		return c.list[i]
	case types.Map:
		return c.mp[i]
	default:
		return nil
	}
}

// bytes reports the column's raw storage footprint: the value vector (or
// offset table + bytes for VARCHAR) plus its null bitmap plus, where
// configured, its bloom filter, per SPEC_FULL.md §3. LIST/MAP values are
// not counted.
func (c *column) bytes() int64 {
	var n int64
	switch c.typ.Kind {
	case types.Bool:
		n = int64(len(c.bools))
	case types.TinyInt:
		n = int64(len(c.i8))
	case types.SmallInt:
		n = int64(len(c.i16)) * 2
	case types.Int, types.Real:
		n = int64(len(c.i32)+len(c.f32)) * 4
	case types.BigInt, types.Double:
		n = int64(len(c.i64)+len(c.f64)) * 8
	case types.Int128:
		n = int64(len(c.i128)) * 16
	case types.Varchar:
		n = int64(len(c.varOffsets))*4 + int64(len(c.varData))
	}
	n += c.nulls.Bytes()
	if c.bloom != nil {
		n += c.bloom.Bytes()
	}
	return n
}

func asInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asFloat64(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("expected float, got %T", v)
	}
}
