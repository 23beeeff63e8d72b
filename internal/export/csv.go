package export

import (
	"strings"

	"github.com/tuannm99/novaspool/internal/record"
)

var _ Writer = (*csvWriter)(nil)

// csvWriter writes RFC 4180 style CSV with a configurable delimiter and
// quote character. Null cells are written as a bare NULL.
type csvWriter struct {
	base
	out   *sink
	delim string
	quote string
	eol   string
}

func newCSVWriter(out *sink, b base, p Params) (*csvWriter, error) {
	w := &csvWriter{base: b, out: out, delim: p.Delimiter, quote: p.TextIdentifier, eol: p.lineSeparator()}
	if w.delim == "" {
		w.delim = ","
	}
	if w.quote == "" {
		w.quote = `"`
	}
	if p.IncludeHeaders {
		if err := w.writeFields(record.Names(w.cols)); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *csvWriter) WriteRow(row []record.Cell) error {
	cells, err := w.window(row)
	if err != nil {
		return err
	}
	fields := make([]string, len(cells))
	for i, c := range cells {
		if c.IsNull {
			fields[i] = record.NullDisplay
			continue
		}
		fields[i] = w.encode(c.Display)
	}
	_, err = w.out.WriteString(strings.Join(fields, w.delim) + w.eol)
	return err
}

func (w *csvWriter) writeFields(names []string) error {
	fields := make([]string, len(names))
	for i, n := range names {
		fields[i] = w.encode(n)
	}
	_, err := w.out.WriteString(strings.Join(fields, w.delim) + w.eol)
	return err
}

// encode quotes s when it holds the delimiter, the quote character, a line
// break, or leading/trailing whitespace. Embedded quotes are doubled.
func (w *csvWriter) encode(s string) string {
	needs := strings.Contains(s, w.delim) ||
		strings.Contains(s, w.quote) ||
		strings.ContainsAny(s, "\r\n")
	if !needs && s != "" {
		first, last := s[0], s[len(s)-1]
		needs = first == ' ' || first == '\t' || last == ' ' || last == '\t'
	}
	if !needs {
		return s
	}
	return w.quote + strings.ReplaceAll(s, w.quote, w.quote+w.quote) + w.quote
}

func (w *csvWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.out.close()
}
