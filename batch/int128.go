package batch

import "math/big"

// Int128 is a 128-bit signed integer value, stored as two's-complement
// high/low 64-bit words. It backs the INT128 logical type (types.Int128).
type Int128 struct {
	Hi int64
	Lo uint64
}

// Int128FromInt64 widens a plain int64 into an Int128.
func Int128FromInt64(v int64) Int128 {
	hi := int64(0)
	if v < 0 {
		hi = -1
	}
	return Int128{Hi: hi, Lo: uint64(v)}
}

// Big returns the value as a *big.Int, used by Add128 and String.
func (v Int128) Big() *big.Int {
	hi := big.NewInt(v.Hi)
	hi.Lsh(hi, 64)
	lo := new(big.Int).SetUint64(v.Lo)
	return hi.Add(hi, lo)
}

func (v Int128) String() string { return v.Big().String() }

// Add128 returns a+b. Overflow beyond 128 bits is not detected, matching the
// fixed-width native-width contract of spec.md §3.
func Add128(a, b Int128) Int128 {
	r := new(big.Int).Add(a.Big(), b.Big())
	return fromBig(r)
}

func fromBig(b *big.Int) Int128 {
	mask := new(big.Int).Lsh(big.NewInt(1), 64)
	mask.Sub(mask, big.NewInt(1))
	lo := new(big.Int).And(b, mask)
	hi := new(big.Int).Rsh(b, 64)
	return Int128{Hi: hi.Int64(), Lo: lo.Uint64()}
}
