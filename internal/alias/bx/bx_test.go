package bx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLittleEndianAppendRead verifies that the Append* writers and the
// matching readers round-trip values using little-endian encoding.
func TestLittleEndianAppendRead(t *testing.T) {
	// ---- U16 ----
	{
		b := AppendU16(nil, 0x1234)
		// in LE, least-significant byte goes first
		assert.Equal(t, []byte{0x34, 0x12}, b)
		assert.Equal(t, uint16(0x1234), U16(b))
	}

	// ---- U32 ----
	{
		b := AppendU32(nil, 0x01020304)
		assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, b)
		assert.Equal(t, uint32(0x01020304), U32(b))
	}

	// ---- U64 ----
	{
		b := AppendU64(nil, 0x0102030405060708)
		assert.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, b)
		assert.Equal(t, uint64(0x0102030405060708), U64(b))
	}
}

func TestSignedAndFloat(t *testing.T) {
	assert.Equal(t, int16(math.MinInt16), I16(AppendI16(nil, math.MinInt16)))
	assert.Equal(t, int32(-7), I32(AppendI32(nil, -7)))
	assert.Equal(t, int64(math.MaxInt64), I64(AppendI64(nil, math.MaxInt64)))

	assert.Equal(t, float32(-1.25), F32(AppendF32(nil, -1.25)))
	assert.Equal(t, math.Pi, F64(AppendF64(nil, math.Pi)))
}

// TestLittleEndianAt verifies the *At variants that work with an offset
// into a larger buffer.
func TestLittleEndianAt(t *testing.T) {
	buf := AppendU32(make([]byte, 2), 0x01020304)
	assert.Equal(t, uint32(0x01020304), U32At(buf, 2))

	b := AppendI64(make([]byte, 3), -42)
	assert.Equal(t, int64(-42), I64At(b, 3))
}
