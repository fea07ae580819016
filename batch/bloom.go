package batch

import (
	"encoding/binary"
	"math"

	"github.com/spaolacci/murmur3"
)

// Bloom is a fixed-size bloom filter over the byte encodings of inserted
// column values, per spec.md §4.3/§8.2: Probably returns false only when
// the value was never inserted; true may be a false positive.
//
// It uses murmur3's 128-bit hash, split into two independent 64-bit
// halves h1/h2, and derives the k probe positions as h1 + i*h2 (Kirsch-
// Mitzenmacher double hashing), the conventional murmur3-based bloom
// construction (SPEC_FULL.md §4.3).
type Bloom struct {
	bits []uint64
	m    uint64 // bit count
	k    int
}

// NewBloom sizes a bloom filter for expectedN inserts at the given false
// positive rate.
func NewBloom(expectedN int, falsePositiveRate float64) *Bloom {
	if expectedN <= 0 {
		expectedN = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	m := optimalM(expectedN, falsePositiveRate)
	k := optimalK(expectedN, m)
	return &Bloom{
		bits: make([]uint64, (m+63)/64),
		m:    uint64(m),
		k:    k,
	}
}

func optimalM(n int, p float64) int {
	m := -1 * float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	if m < 64 {
		m = 64
	}
	return int(math.Ceil(m))
}

func optimalK(n, m int) int {
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return k
}

func (b *Bloom) positions(data []byte) (h1, h2 uint64) {
	return murmur3.Sum128(data)
}

// Add inserts the byte encoding of a value.
func (b *Bloom) Add(data []byte) {
	h1, h2 := b.positions(data)
	for i := 0; i < b.k; i++ {
		pos := (h1 + uint64(i)*h2) % b.m
		b.bits[pos/64] |= 1 << (pos % 64)
	}
}

// Probably reports whether data may have been inserted. A false result is
// definitive; a true result may be a false positive (spec.md §4.3).
func (b *Bloom) Probably(data []byte) bool {
	h1, h2 := b.positions(data)
	for i := 0; i < b.k; i++ {
		pos := (h1 + uint64(i)*h2) % b.m
		if b.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Bytes reports the bloom filter's storage footprint.
func (b *Bloom) Bytes() int64 { return int64(len(b.bits)) * 8 }

// EncodeValue converts a scalar column value into the byte encoding the
// bloom filter hashes, shared between Add and Probably so a probe's
// encoding always matches the insert encoding. Integers of every width
// encode as int64 and floats as float64, so the same number matches
// whatever Go type it was inserted or probed with.
func EncodeValue(v interface{}) []byte {
	switch t := v.(type) {
	case bool:
		if t {
			return []byte{1}
		}
		return []byte{0}
	case int:
		return EncodeValue(int64(t))
	case int8:
		return EncodeValue(int64(t))
	case int16:
		return EncodeValue(int64(t))
	case int32:
		return EncodeValue(int64(t))
	case int64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(t))
		return buf
	case float32:
		return EncodeValue(float64(t))
	case float64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(t))
		return buf
	case Int128:
		buf := make([]byte, 16)
		binary.LittleEndian.PutUint64(buf[:8], uint64(t.Hi))
		binary.LittleEndian.PutUint64(buf[8:], t.Lo)
		return buf
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		return nil
	}
}
