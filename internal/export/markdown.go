package export

import (
	"html"
	"strings"

	"github.com/tuannm99/novaspool/internal/record"
)

var _ Writer = (*markdownWriter)(nil)

var markdownCell = strings.NewReplacer(
	"|", `\|`,
	"\r\n", "<br />",
	"\n", "<br />",
	"\r", "<br />",
)

// markdownWriter writes a pipe table. Every value stays on one line.
type markdownWriter struct {
	base
	out *sink
	eol string
}

func newMarkdownWriter(out *sink, b base, p Params) (*markdownWriter, error) {
	w := &markdownWriter{base: b, out: out, eol: p.lineSeparator()}
	if p.IncludeHeaders {
		names := record.Names(w.cols)
		sep := make([]string, len(names))
		for i := range names {
			names[i] = escapeMarkdown(names[i])
			sep[i] = "---"
		}
		if err := w.line(names); err != nil {
			return nil, err
		}
		if err := w.line(sep); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *markdownWriter) WriteRow(row []record.Cell) error {
	cells, err := w.window(row)
	if err != nil {
		return err
	}
	fields := make([]string, len(cells))
	for i, c := range cells {
		fields[i] = escapeMarkdown(c.Display)
	}
	return w.line(fields)
}

func (w *markdownWriter) line(fields []string) error {
	_, err := w.out.WriteString("| " + strings.Join(fields, " | ") + " |" + w.eol)
	return err
}

func escapeMarkdown(s string) string {
	return markdownCell.Replace(html.EscapeString(s))
}

func (w *markdownWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.out.close()
}
