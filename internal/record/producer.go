package record

import (
	"context"
	"io"
)

// RowProducer is the upstream source of typed rows. NextRow returns io.EOF
// once the rows are exhausted.
type RowProducer interface {
	Columns() []Column
	NextRow(ctx context.Context) ([]any, error)
}

var _ RowProducer = (*SliceProducer)(nil)

// SliceProducer serves rows held in memory.
type SliceProducer struct {
	Cols []Column
	Rows [][]any
	next int
}

func NewSliceProducer(cols []Column, rows [][]any) *SliceProducer {
	return &SliceProducer{Cols: cols, Rows: rows}
}

func (p *SliceProducer) Columns() []Column { return p.Cols }

func (p *SliceProducer) NextRow(ctx context.Context) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.next >= len(p.Rows) {
		return nil, io.EOF
	}
	row := p.Rows[p.next]
	p.next++
	return row, nil
}
