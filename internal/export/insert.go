package export

import (
	"strings"

	"github.com/tuannm99/novaspool/internal/record"
)

var _ Writer = (*insertWriter)(nil)

// insertWriter groups rows into multi-row INSERT statements of at most
// batchSize rows. A partial batch is written on Close.
type insertWriter struct {
	base
	out       *sink
	eol       string
	prefix    string
	batchSize int
	batch     []string
}

func newInsertWriter(out *sink, b base, p Params) (*insertWriter, error) {
	table := p.TableName
	if table == "" {
		table = DefaultTableName
	}
	batch := p.BatchSize
	if batch <= 0 {
		batch = DefaultInsertBatchSize
	}
	cols := make([]string, len(b.cols))
	for i, c := range b.cols {
		cols[i] = QuoteName(c.Name)
	}
	w := &insertWriter{
		base:      b,
		out:       out,
		eol:       p.lineSeparator(),
		batchSize: batch,
	}
	w.prefix = "INSERT INTO " + QuoteIdentifier(table) + " (" + strings.Join(cols, ", ") + ")" + w.eol + "VALUES"
	return w, nil
}

func (w *insertWriter) WriteRow(row []record.Cell) error {
	cells, err := w.window(row)
	if err != nil {
		return err
	}
	values := make([]string, len(cells))
	for i, c := range cells {
		values[i] = SQLLiteral(w.cols[i], c)
	}
	w.batch = append(w.batch, "("+strings.Join(values, ", ")+")")
	if len(w.batch) >= w.batchSize {
		return w.flushBatch()
	}
	return nil
}

func (w *insertWriter) flushBatch() error {
	if len(w.batch) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(w.prefix)
	for i, v := range w.batch {
		sb.WriteString(w.eol)
		sb.WriteString("    ")
		sb.WriteString(v)
		if i < len(w.batch)-1 {
			sb.WriteByte(',')
		}
	}
	sb.WriteByte(';')
	sb.WriteString(w.eol)
	w.batch = w.batch[:0]
	_, err := w.out.WriteString(sb.String())
	return err
}

func (w *insertWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.flushBatch()
	if cerr := w.out.close(); err == nil {
		err = cerr
	}
	return err
}
