package export

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"github.com/tuannm99/novaspool/internal/record"
)

var _ Writer = (*jsonWriter)(nil)

// jsonWriter streams a top-level array with one object per row. Keys keep
// column order, so objects are assembled by hand rather than from maps.
type jsonWriter struct {
	base
	out    *sink
	keys   [][]byte
	indent bool
	rows   int
}

func newJSONWriter(out *sink, b base, p Params) (*jsonWriter, error) {
	w := &jsonWriter{base: b, out: out, indent: p.Formatted}
	for _, c := range w.cols {
		k, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		w.keys = append(w.keys, k)
	}
	if err := w.out.WriteByte('['); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *jsonWriter) WriteRow(row []record.Cell) error {
	cells, err := w.window(row)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, 64*len(cells))
	if w.rows > 0 {
		buf = append(buf, ',')
	}
	if w.indent {
		buf = append(buf, "\n  {"...)
	} else {
		buf = append(buf, '{')
	}
	for i, c := range cells {
		if i > 0 {
			buf = append(buf, ',')
		}
		if w.indent {
			buf = append(buf, "\n    "...)
		}
		buf = append(buf, w.keys[i]...)
		buf = append(buf, ':')
		if w.indent {
			buf = append(buf, ' ')
		}
		v, err := jsonValue(w.cols[i], c)
		if err != nil {
			return err
		}
		buf = append(buf, v...)
	}
	if w.indent {
		buf = append(buf, "\n  "...)
	}
	buf = append(buf, '}')
	w.rows++
	_, err = w.out.Write(buf)
	return err
}

// jsonValue emits numbers and booleans as JSON literals and everything else
// as its display string. Char values decode as runes and stay strings.
func jsonValue(col record.Column, c record.Cell) ([]byte, error) {
	if c.IsNull {
		return []byte("null"), nil
	}
	if col.Kind == record.KindChar {
		return json.Marshal(c.Display)
	}
	switch v := c.Raw.(type) {
	case int16, int32, int64, uint8, bool:
		return json.Marshal(v)
	case float32:
		if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
			return []byte(c.Invariant()), nil
		}
	case float64:
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return []byte(c.Invariant()), nil
		}
	case decimal.Decimal, record.SQLDecimal:
		return []byte(c.Invariant()), nil
	}
	return json.Marshal(c.Display)
}

func (w *jsonWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	tail := "]"
	if w.indent && w.rows > 0 {
		tail = "\n]"
	}
	_, err := w.out.WriteString(tail)
	if cerr := w.out.close(); err == nil {
		err = cerr
	}
	return err
}
