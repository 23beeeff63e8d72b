package export

import (
	"strings"

	"github.com/tuannm99/novaspool/internal/record"
)

var _ Writer = (*textWriter)(nil)

// textWriter writes delimited display text, tab separated by default.
type textWriter struct {
	base
	out   *sink
	delim string
	eol   string
	skip  bool
}

func newTextWriter(out *sink, b base, p Params) (*textWriter, error) {
	w := &textWriter{base: b, out: out, delim: p.Delimiter, eol: p.lineSeparator(), skip: p.SkipSeparatorAfterLineBreak}
	if w.delim == "" {
		w.delim = "\t"
	}
	if p.IncludeHeaders {
		if _, err := w.out.WriteString(strings.Join(record.Names(w.cols), w.delim) + w.eol); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *textWriter) WriteRow(row []record.Cell) error {
	cells, err := w.window(row)
	if err != nil {
		return err
	}
	for i, c := range cells {
		if i > 0 {
			if _, err := w.out.WriteString(w.delim); err != nil {
				return err
			}
		}
		if _, err := w.out.WriteString(c.Display); err != nil {
			return err
		}
	}
	if w.skip && endsWithLineBreak(cells[len(cells)-1].Display) {
		return nil
	}
	_, err = w.out.WriteString(w.eol)
	return err
}

func (w *textWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.out.close()
}

func endsWithLineBreak(s string) bool {
	return strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\r")
}
