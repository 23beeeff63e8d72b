package record

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"

	"github.com/tuannm99/novaspool/internal/alias/bx"
)

// RowWriter appends whole rows to a spool. A row is its fields back to back,
// with no row header; the caller records where each row starts.
type RowWriter struct {
	w   io.Writer
	enc *FieldEncoder
	buf []byte
}

func NewRowWriter(w io.Writer) *RowWriter {
	return &RowWriter{w: w, enc: NewFieldEncoder()}
}

// WriteRow encodes every value before touching the writer, so an encoding
// error never leaves half a row behind. It returns the bytes written.
func (rw *RowWriter) WriteRow(cols []Column, values []any) (int, error) {
	if len(cols) != len(values) {
		return 0, fmt.Errorf("%w: %d columns, %d values", ErrSchemaMismatch, len(cols), len(values))
	}
	buf := rw.buf[:0]
	var err error
	for i, col := range cols {
		if buf, err = rw.enc.AppendValue(buf, col, values[i]); err != nil {
			return 0, err
		}
	}
	rw.buf = buf
	return rw.w.Write(buf)
}

// WriteValue writes a single column value.
func (rw *RowWriter) WriteValue(col Column, v any) (int, error) {
	buf, err := rw.enc.AppendValue(rw.buf[:0], col, v)
	if err != nil {
		return 0, err
	}
	rw.buf = buf
	return rw.w.Write(buf)
}

// WriteNull writes the reserved one-byte zero marker.
func (rw *RowWriter) WriteNull() (int, error) {
	return rw.w.Write([]byte{0})
}

// EncodeValue returns the standalone encoding of v for col, as used for
// in-place patches.
func (rw *RowWriter) EncodeValue(col Column, v any) ([]byte, error) {
	return rw.enc.AppendValue(nil, col, v)
}

// RowReader decodes rows at arbitrary offsets. It owns scratch buffers and a
// UTF-16 decoder, so each goroutine needs its own RowReader.
type RowReader struct {
	r    io.ReaderAt
	f    *Formatter
	hdr  [longFormSize]byte
	buf  []byte
	text *encoding.Decoder
}

func NewRowReader(r io.ReaderAt, f *Formatter) *RowReader {
	if f == nil {
		f = NewFormatter(DefaultFormatOptions())
	}
	return &RowReader{r: r, f: f, text: utf16le.NewDecoder()}
}

// ReadRow decodes one row starting at off and stamps rowID on every cell.
// It returns the cells and the number of bytes the row occupies.
func (rr *RowReader) ReadRow(off int64, cols []Column, rowID int64) ([]Cell, int, error) {
	cells := make([]Cell, len(cols))
	total := 0
	for i, col := range cols {
		c, n, err := rr.ReadField(off+int64(total), col, rowID)
		if err != nil {
			return nil, total, fmt.Errorf("record: row %d column %q: %w", rowID, col.Name, err)
		}
		cells[i] = c
		total += n
	}
	return cells, total, nil
}

// FieldSpan locates column idx of the row at off and returns its offset and
// encoded length.
func (rr *RowReader) FieldSpan(off int64, cols []Column, idx int) (int64, int, error) {
	if idx < 0 || idx >= len(cols) {
		return 0, 0, fmt.Errorf("record: column index %d out of range", idx)
	}
	pos := off
	for i := 0; i < idx; i++ {
		_, n, err := rr.ReadField(pos, cols[i], 0)
		if err != nil {
			return 0, 0, err
		}
		pos += int64(n)
	}
	_, n, err := rr.ReadField(pos, cols[idx], 0)
	if err != nil {
		return 0, 0, err
	}
	return pos, n, nil
}

// ReadField decodes the next value for col at off and returns the bytes it
// consumed. A variant consumes its type-name field plus the value field but
// yields one cell.
func (rr *RowReader) ReadField(off int64, col Column, rowID int64) (Cell, int, error) {
	if !col.IsVariant {
		return rr.readKind(off, col.Kind, col, rowID)
	}

	name, n, err := rr.readKind(off, KindString, Column{Name: col.Name}, rowID)
	if err != nil {
		return Cell{}, 0, err
	}
	typeName, _ := name.Raw.(string)
	if name.IsNull || typeName == "" {
		return NullCell(rowID), n, nil
	}
	inner := Column{
		Name:         col.Name,
		Kind:         KindFromSQLType(typeName),
		SQLTypeName:  typeName,
		IsLong:       col.IsLong,
		NumericScale: col.NumericScale,
	}
	c, m, err := rr.readKind(off+int64(n), inner.Kind, inner, rowID)
	if err != nil {
		return Cell{}, 0, err
	}
	return c, n + m, nil
}

func (rr *RowReader) readKind(off int64, k Kind, col Column, rowID int64) (Cell, int, error) {
	length, prefix, long, err := rr.readLength(off)
	if err != nil {
		return Cell{}, 0, err
	}
	payload, err := rr.readPayload(off+int64(prefix), length)
	if err != nil {
		return Cell{}, 0, err
	}
	c, err := rr.decode(k, col, payload, long)
	if err != nil {
		return Cell{}, 0, err
	}
	c.RowID = rowID
	return c, prefix + length, nil
}

func (rr *RowReader) readLength(off int64) (int, int, bool, error) {
	if err := rr.fill(rr.hdr[:1], off); err != nil {
		return 0, 0, false, err
	}
	if rr.hdr[0] != longFormMarker {
		return int(rr.hdr[0]), 1, false, nil
	}
	if err := rr.fill(rr.hdr[1:longFormSize], off+1); err != nil {
		return 0, 0, false, err
	}
	n := int32(bx.U32(rr.hdr[1:longFormSize]))
	if n < 0 {
		return 0, 0, false, fmt.Errorf("%w: %d at offset %d", ErrBadLength, n, off)
	}
	return int(n), longFormSize, true, nil
}

// payloads above this size are checked against the end of the stream first
const largePayloadSize = 64 << 10

func (rr *RowReader) readPayload(off int64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	// a corrupt long-form length must not drive the allocation
	if n > cap(rr.buf) && n > largePayloadSize {
		if err := rr.fill(rr.hdr[:1], off+int64(n)-1); err != nil {
			return nil, err
		}
	}
	if cap(rr.buf) < n {
		rr.buf = make([]byte, n)
	}
	p := rr.buf[:n]
	if err := rr.fill(p, off); err != nil {
		return nil, err
	}
	return p, nil
}

func (rr *RowReader) fill(p []byte, off int64) error {
	n, err := rr.r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: wanted %d bytes at offset %d, got %d", ErrCorruptField, len(p), off, n)
	}
	return err
}

func (rr *RowReader) decode(k Kind, col Column, p []byte, long bool) (Cell, error) {
	if len(p) == 0 {
		if long || k.FixedSize() || k == KindGUID {
			return NullCell(0), nil
		}
		if k == KindBytes {
			return Cell{Raw: []byte{}, Display: rr.f.Bytes(nil, col)}, nil
		}
		return Cell{Raw: ""}, nil
	}

	switch k {
	case KindInt16:
		if err := wantLen(p, 2); err != nil {
			return Cell{}, err
		}
		v := bx.I16(p)
		return Cell{Raw: v, Display: fmt.Sprint(v)}, nil

	case KindInt32:
		if err := wantLen(p, 4); err != nil {
			return Cell{}, err
		}
		v := bx.I32(p)
		return Cell{Raw: v, Display: fmt.Sprint(v)}, nil

	case KindInt64:
		if err := wantLen(p, 8); err != nil {
			return Cell{}, err
		}
		v := bx.I64(p)
		return Cell{Raw: v, Display: fmt.Sprint(v)}, nil

	case KindByte:
		if err := wantLen(p, 1); err != nil {
			return Cell{}, err
		}
		return Cell{Raw: p[0], Display: fmt.Sprint(p[0])}, nil

	case KindChar:
		if err := wantLen(p, 2); err != nil {
			return Cell{}, err
		}
		r := rune(bx.U16(p))
		return Cell{Raw: r, Display: string(r)}, nil

	case KindBool:
		if err := wantLen(p, 1); err != nil {
			return Cell{}, err
		}
		b := p[0] != 0
		return Cell{Raw: b, Display: rr.f.Bool(b)}, nil

	case KindFloat32:
		if err := wantLen(p, 4); err != nil {
			return Cell{}, err
		}
		v := bx.F32(p)
		disp, inv := rr.f.Float(float64(v), 32)
		return Cell{Raw: v, Display: disp, InvariantDisplay: inv}, nil

	case KindFloat64:
		if err := wantLen(p, 8); err != nil {
			return Cell{}, err
		}
		v := bx.F64(p)
		disp, inv := rr.f.Float(v, 64)
		return Cell{Raw: v, Display: disp, InvariantDisplay: inv}, nil

	case KindDecimal, KindMoney:
		if err := wantLen(p, decimalSize); err != nil {
			return Cell{}, err
		}
		mag := readMagnitude(p[:12])
		flags := bx.U32At(p, 12)
		scale := int32(flags >> 16 & 0xFF)
		if flags&(1<<31) != 0 {
			mag.Neg(mag)
		}
		d := decimal.NewFromBigInt(mag, -scale)
		disp, inv := rr.f.Decimal(d, scale)
		return Cell{Raw: d, Display: disp, InvariantDisplay: inv}, nil

	case KindSQLDecimal:
		if err := wantLen(p, sqlDecimalSize); err != nil {
			return Cell{}, err
		}
		mag := readMagnitude(p[3:])
		if p[2] == 0 {
			mag.Neg(mag)
		}
		sd := SQLDecimal{Precision: p[0], Scale: p[1], Value: decimal.NewFromBigInt(mag, -int32(p[1]))}
		disp, inv := rr.f.Decimal(sd.Value, int32(sd.Scale))
		return Cell{Raw: sd, Display: disp, InvariantDisplay: inv}, nil

	case KindDateTime:
		if err := wantLen(p, 8); err != nil {
			return Cell{}, err
		}
		t := ticksToTime(bx.I64(p))
		return Cell{Raw: t, Display: rr.f.DateTime(t, col)}, nil

	case KindDateTimeOffset:
		if err := wantLen(p, 16); err != nil {
			return Cell{}, err
		}
		wall := ticksToTime(bx.I64(p))
		offset := int(bx.I64At(p, 8) / ticksPerSecond)
		t := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(),
			wall.Nanosecond(), time.FixedZone("", offset))
		return Cell{Raw: t, Display: rr.f.DateTimeOffset(t, col)}, nil

	case KindTimeSpan:
		if err := wantLen(p, 8); err != nil {
			return Cell{}, err
		}
		d := ticksToDuration(bx.I64(p))
		return Cell{Raw: d, Display: rr.f.TimeSpan(d)}, nil

	case KindBytes:
		cp := make([]byte, len(p))
		copy(cp, p)
		return Cell{Raw: cp, Display: rr.f.Bytes(cp, col)}, nil

	case KindGUID:
		if err := wantLen(p, guidSize); err != nil {
			return Cell{}, err
		}
		id, err := uuid.FromBytes(p)
		if err != nil {
			return Cell{}, fmt.Errorf("%w: %v", ErrBadLength, err)
		}
		return Cell{Raw: id, Display: id.String()}, nil

	default:
		s, err := rr.text.Bytes(p)
		if err != nil {
			return Cell{}, fmt.Errorf("record: utf-16 decode: %w", err)
		}
		str := string(s)
		return Cell{Raw: str, Display: rr.f.Text(str, col)}, nil
	}
}

func wantLen(p []byte, n int) error {
	if len(p) != n {
		return fmt.Errorf("%w: payload %d bytes, want %d", ErrBadLength, len(p), n)
	}
	return nil
}
