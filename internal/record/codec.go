package record

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/tuannm99/novaspool/internal/alias/bx"
	"github.com/tuannm99/novaspool/internal/alias/util"
)

// Field format:
//
//	[len:1]           payload   when len < 0xFF
//	[0xFF][len:4 LE]  payload   otherwise
//
// A zero length means null, except that a 1-byte zero length on a
// variable-length kind (string, bytes) is a present empty value; their null is
// the 5-byte long form with length 0.
const (
	longFormMarker = 0xFF
	longFormSize   = 5

	decimalSize    = 16 // lo, mid, hi, flags
	sqlDecimalSize = 3 + 16
	guidSize       = 16

	maxDecimalScale    = 28
	maxSQLDecimalScale = 38
	maxSQLPrecision    = 38
)

var (
	ErrSchemaMismatch  = errors.New("record: column/value count mismatch")
	ErrTypeMismatch    = errors.New("record: value does not match column kind")
	ErrDecimalOverflow = errors.New("record: decimal magnitude out of range")

	// Read failures mean the spool is damaged; they are never retried.
	ErrCorruptField = util.PermError("record: field extends past end of spool")
	ErrBadLength    = util.PermError("record: invalid field length")
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func appendLength(dst []byte, n int) []byte {
	if n < longFormMarker {
		return append(dst, byte(n))
	}
	dst = append(dst, longFormMarker)
	return bx.AppendU32(dst, uint32(n))
}

func appendNullLong(dst []byte) []byte {
	return append(dst, longFormMarker, 0, 0, 0, 0)
}

// FieldEncoder turns values into encoded fields. It keeps a UTF-16 encoder
// and is not safe for concurrent use.
type FieldEncoder struct {
	text *encoding.Encoder
}

func NewFieldEncoder() *FieldEncoder {
	return &FieldEncoder{text: utf16le.NewEncoder()}
}

// AppendValue appends the encoded field(s) of v for col. Variant columns
// produce a type-name field followed by the value field; a null variant is
// only the null type name.
func (e *FieldEncoder) AppendValue(dst []byte, col Column, v any) ([]byte, error) {
	if !col.IsVariant {
		if v == nil {
			return appendNull(dst, col.Kind), nil
		}
		return e.appendKind(dst, col.Kind, col, v)
	}

	name := variantTypeName(v)
	if vv, ok := v.(Variant); ok {
		v = vv.Value
	}
	if v == nil || name == "" {
		return appendNullLong(dst), nil
	}
	var err error
	if dst, err = e.appendString(dst, name); err != nil {
		return nil, err
	}
	inner := Column{Name: col.Name, Kind: KindFromSQLType(name), SQLTypeName: name, NumericScale: col.NumericScale}
	return e.appendKind(dst, inner.Kind, inner, v)
}

func appendNull(dst []byte, k Kind) []byte {
	if k.nullIsLongForm() {
		return appendNullLong(dst)
	}
	return append(dst, 0)
}

func (e *FieldEncoder) appendKind(dst []byte, k Kind, col Column, v any) ([]byte, error) {
	switch k {
	case KindInt16:
		x, ok := asInt64(v)
		if !ok || x < math.MinInt16 || x > math.MaxInt16 {
			return nil, mismatch(col, v)
		}
		return bx.AppendI16(append(dst, 2), int16(x)), nil

	case KindInt32:
		x, ok := asInt64(v)
		if !ok || x < math.MinInt32 || x > math.MaxInt32 {
			return nil, mismatch(col, v)
		}
		return bx.AppendI32(append(dst, 4), int32(x)), nil

	case KindInt64:
		x, ok := asInt64(v)
		if !ok {
			return nil, mismatch(col, v)
		}
		return bx.AppendI64(append(dst, 8), x), nil

	case KindByte:
		x, ok := asInt64(v)
		if !ok || x < 0 || x > math.MaxUint8 {
			return nil, mismatch(col, v)
		}
		return append(dst, 1, byte(x)), nil

	case KindChar:
		c, ok := asChar(v)
		if !ok {
			return nil, mismatch(col, v)
		}
		return bx.AppendU16(append(dst, 2), c), nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(col, v)
		}
		if b {
			return append(dst, 1, 1), nil
		}
		return append(dst, 1, 0), nil

	case KindFloat32:
		x, ok := asFloat64(v)
		if !ok {
			return nil, mismatch(col, v)
		}
		return bx.AppendF32(append(dst, 4), float32(x)), nil

	case KindFloat64:
		x, ok := asFloat64(v)
		if !ok {
			return nil, mismatch(col, v)
		}
		return bx.AppendF64(append(dst, 8), x), nil

	case KindDecimal, KindMoney:
		d, ok := asDecimal(v)
		if !ok {
			return nil, mismatch(col, v)
		}
		return appendDecimal(dst, d)

	case KindSQLDecimal:
		sd, ok := asSQLDecimal(v, col)
		if !ok {
			return nil, mismatch(col, v)
		}
		return appendSQLDecimal(dst, sd)

	case KindDateTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, mismatch(col, v)
		}
		return bx.AppendI64(append(dst, 8), timeToTicks(t)), nil

	case KindDateTimeOffset:
		t, ok := v.(time.Time)
		if !ok {
			return nil, mismatch(col, v)
		}
		_, offset := t.Zone()
		dst = bx.AppendI64(append(dst, 16), timeToTicks(t))
		return bx.AppendI64(dst, int64(offset)*ticksPerSecond), nil

	case KindTimeSpan:
		d, ok := v.(time.Duration)
		if !ok {
			return nil, mismatch(col, v)
		}
		return bx.AppendI64(append(dst, 8), durationToTicks(d)), nil

	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, mismatch(col, v)
		}
		dst = appendLength(dst, len(b))
		return append(dst, b...), nil

	case KindGUID:
		id, ok := asGUID(v)
		if !ok {
			return nil, mismatch(col, v)
		}
		return append(append(dst, guidSize), id[:]...), nil

	default:
		return e.appendString(dst, asString(v))
	}
}

func (e *FieldEncoder) appendString(dst []byte, s string) ([]byte, error) {
	if s == "" {
		return append(dst, 0), nil
	}
	payload, err := e.text.Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("record: utf-16 encode: %w", err)
	}
	dst = appendLength(dst, len(payload))
	return append(dst, payload...), nil
}

// appendDecimal writes the 96-bit magnitude as three LE words and a flags
// word holding the scale in bits 16-23 and the sign in bit 31.
func appendDecimal(dst []byte, d decimal.Decimal) ([]byte, error) {
	mag, scale, neg, err := splitDecimal(d, maxDecimalScale, 96)
	if err != nil {
		return nil, err
	}
	dst = append(dst, decimalSize)
	dst = appendMagnitude(dst, mag, 12)
	flags := uint32(scale) << 16
	if neg {
		flags |= 1 << 31
	}
	return bx.AppendU32(dst, flags), nil
}

func appendSQLDecimal(dst []byte, sd SQLDecimal) ([]byte, error) {
	if sd.Scale > maxSQLDecimalScale {
		return nil, fmt.Errorf("%w: scale %d", ErrDecimalOverflow, sd.Scale)
	}
	v := sd.Value.Round(int32(sd.Scale))
	mag, scale, neg, err := splitDecimal(v, int32(sd.Scale), 128)
	if err != nil {
		return nil, err
	}
	if scale != int32(sd.Scale) {
		return nil, fmt.Errorf("%w: %s does not fit at scale %d", ErrDecimalOverflow, sd.Value, sd.Scale)
	}
	sign := byte(1)
	if neg {
		sign = 0
	}
	dst = append(dst, sqlDecimalSize, sd.Precision, sd.Scale, sign)
	return appendMagnitude(dst, mag, 16), nil
}

// splitDecimal returns |d| as an integer magnitude at the returned scale,
// dropping fractional digits until the magnitude fits in bits.
func splitDecimal(d decimal.Decimal, maxScale int32, bits int) (*big.Int, int32, bool, error) {
	if d.Exponent() < -maxScale {
		d = d.Round(maxScale)
	}
	for {
		mag, scale := d.Coefficient(), -d.Exponent()
		if scale < 0 {
			mag.Mul(mag, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-scale)), nil))
			scale = 0
		}
		neg := mag.Sign() < 0
		mag.Abs(mag)
		if mag.BitLen() <= bits {
			return mag, scale, neg, nil
		}
		if scale == 0 {
			return nil, 0, false, ErrDecimalOverflow
		}
		d = d.Round(scale - 1)
	}
}

func appendMagnitude(dst []byte, mag *big.Int, size int) []byte {
	be := mag.FillBytes(make([]byte, size))
	for i := len(be) - 1; i >= 0; i-- {
		dst = append(dst, be[i])
	}
	return dst
}

func readMagnitude(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i := range le {
		be[len(le)-1-i] = le[i]
	}
	return new(big.Int).SetBytes(be)
}

func mismatch(col Column, v any) error {
	return fmt.Errorf("%w: column %q (%s) got %T", ErrTypeMismatch, col.Name, col.Kind, v)
}

// ---- small helpers to accept multiple Go types on encode ----
func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func asChar(v any) (uint16, bool) {
	switch x := v.(type) {
	case rune:
		if x >= 0 && x <= math.MaxUint16 {
			return uint16(x), true
		}
	case uint16:
		return x, true
	case string:
		r := []rune(x)
		if len(r) == 1 && r[0] <= math.MaxUint16 {
			return uint16(r[0]), true
		}
	}
	return 0, false
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case SQLDecimal:
		return x.Value, true
	case float64:
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case string:
		d, err := decimal.NewFromString(x)
		return d, err == nil
	}
	if i, ok := asInt64(v); ok {
		return decimal.NewFromInt(i), true
	}
	return decimal.Decimal{}, false
}

func asSQLDecimal(v any, col Column) (SQLDecimal, bool) {
	if sd, ok := v.(SQLDecimal); ok {
		return sd, true
	}
	d, ok := asDecimal(v)
	if !ok {
		return SQLDecimal{}, false
	}
	var scale int32
	if col.NumericScale != nil {
		scale = int32(min(max(*col.NumericScale, 0), maxSQLDecimalScale))
	} else if d.Exponent() < 0 {
		scale = min(-d.Exponent(), maxSQLDecimalScale)
	}
	return SQLDecimal{Precision: maxSQLPrecision, Scale: uint8(scale), Value: d}, true
}

func asGUID(v any) (uuid.UUID, bool) {
	switch x := v.(type) {
	case uuid.UUID:
		return x, true
	case [16]byte:
		return uuid.UUID(x), true
	case string:
		id, err := uuid.Parse(x)
		return id, err == nil
	}
	return uuid.UUID{}, false
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}
