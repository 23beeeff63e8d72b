package selection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaspool/internal/export"
	"github.com/tuannm99/novaspool/internal/record"
)

// fakeSource serves a synthetic rows x cols result set and records every
// page request.
type fakeSource struct {
	rows  int64
	cols  int
	cell  func(row int64, col int) record.Cell
	calls []SubsetRequest

	// cancel is invoked during call number cancelOn (1-based)
	cancelOn int
	cancel   context.CancelFunc
}

func newFakeSource(rows int64, cols int) *fakeSource {
	return &fakeSource{rows: rows, cols: cols, cell: func(r int64, c int) record.Cell {
		if c == 0 {
			return record.Cell{Raw: int32(r), Display: fmt.Sprint(r), RowID: r}
		}
		s := fmt.Sprintf("r%dc%d", r, c)
		return record.Cell{Raw: s, Display: s, RowID: r}
	}}
}

func (f *fakeSource) columns() []record.Column {
	cols := []record.Column{record.NewColumn("c0", "int")}
	for i := 1; i < f.cols; i++ {
		cols = append(cols, record.NewColumn(fmt.Sprintf("c%d", i), "nvarchar"))
	}
	return cols
}

func (f *fakeSource) Subset(_ context.Context, req SubsetRequest) ([][]record.Cell, error) {
	f.calls = append(f.calls, req)
	if f.cancel != nil && len(f.calls) == f.cancelOn {
		f.cancel()
	}
	var out [][]record.Cell
	for r := req.RowsStartIndex; r < min(req.RowsStartIndex+int64(req.RowsCount), f.rows); r++ {
		row := make([]record.Cell, f.cols)
		for c := range row {
			row[c] = f.cell(r, c)
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeSource) request(sel ...Range) Request {
	return Request{OwnerURI: "owner", Columns: f.columns(), RowCount: f.rows, Selection: sel}
}

func TestRowRanges(t *testing.T) {
	got := RowRanges([]Range{
		{FromRow: 5, ToRow: 7},
		{FromRow: 0, ToRow: 2},
		{FromRow: 3, ToRow: 3},
		{FromRow: 10, ToRow: 12},
		{FromRow: 11, ToRow: 15},
	})
	assert.Equal(t, []RowRange{{Start: 0, End: 3}, {Start: 5, End: 7}, {Start: 10, End: 15}}, got)
	assert.Equal(t, int64(4), got[0].Len())
	assert.Nil(t, RowRanges(nil))
}

func TestColumnWindow(t *testing.T) {
	start, end, ok := ColumnWindow([]Range{{FromColumn: 2, ToColumn: 3}, {FromColumn: 1, ToColumn: 1}})
	require.True(t, ok)
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, end)

	_, _, ok = ColumnWindow(nil)
	assert.False(t, ok)
}

func TestRangeValidate(t *testing.T) {
	assert.NoError(t, Range{FromRow: 1, ToRow: 1}.Validate())
	assert.ErrorIs(t, Range{FromRow: 2, ToRow: 1}.Validate(), ErrInvalidRange)
	assert.ErrorIs(t, Range{FromColumn: -1}.Validate(), ErrInvalidRange)
}

func TestProject(t *testing.T) {
	src := newFakeSource(5, 3)
	sel := []Range{{FromRow: 2, ToRow: 4, FromColumn: 1, ToColumn: 1}}

	for _, ph := range []Placeholder{PlaceholderNull, PlaceholderEmpty} {
		rows, err := src.Subset(context.Background(), SubsetRequest{RowsCount: 5})
		require.NoError(t, err)
		for r, row := range rows {
			projected := Project(row, int64(r), sel, ph)
			for c, cell := range projected {
				selected := r >= 2 && r <= 4 && c == 1
				if selected {
					assert.Equal(t, row[c], cell)
					continue
				}
				assert.Equal(t, ph == PlaceholderNull, cell.IsNull, "(%d,%d)", r, c)
				assert.Equal(t, int64(r), cell.RowID)
				if ph == PlaceholderEmpty {
					assert.Equal(t, "", cell.Display)
				}
			}
		}
	}

	assert.Equal(t, PlaceholderNull, PlaceholderFor(export.FormatJSON))
	assert.Equal(t, PlaceholderNull, PlaceholderFor(export.FormatInsert))
	assert.Equal(t, PlaceholderEmpty, PlaceholderFor(export.FormatText))
}

func TestPager_Exhaustive(t *testing.T) {
	src := newFakeSource(1000, 2)
	p := NewPager(src, SubsetRequest{OwnerURI: "owner", ResultSetIndex: 2}, 0)
	require.Equal(t, DefaultPageSize, p.PageSize())

	var seen []int64
	pages, err := p.Each(context.Background(), RowRange{Start: 0, End: 450}, func(i int64, row []record.Cell) error {
		seen = append(seen, i)
		assert.Equal(t, i, row[0].RowID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	require.Len(t, src.calls, 3)
	assert.Equal(t, []int{200, 200, 51}, []int{src.calls[0].RowsCount, src.calls[1].RowsCount, src.calls[2].RowsCount})
	assert.Equal(t, []int64{0, 200, 400}, []int64{src.calls[0].RowsStartIndex, src.calls[1].RowsStartIndex, src.calls[2].RowsStartIndex})
	assert.Equal(t, 2, src.calls[0].ResultSetIndex)

	require.Len(t, seen, 451)
	for i, v := range seen {
		assert.Equal(t, int64(i), v)
	}
}

func TestPager_StopsAtEndOfData(t *testing.T) {
	src := newFakeSource(300, 1)
	n := 0
	pages, err := NewPager(src, SubsetRequest{}, 200).Each(context.Background(), RowRange{Start: 0, End: 999},
		func(int64, []record.Cell) error { n++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Equal(t, 300, n)
}

func TestOrchestrator_ExportProjectsPlaceholders(t *testing.T) {
	src := newFakeSource(5, 3)
	o := New(src, Options{})
	req := src.request(
		Range{FromRow: 0, ToRow: 0, FromColumn: 1, ToColumn: 1},
		Range{FromRow: 1, ToRow: 1, FromColumn: 2, ToColumn: 2},
	)

	var js bytes.Buffer
	out, err := o.Export(context.Background(), req, &js, export.Params{Format: export.FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Rows: 2, Pages: 1}, out)
	assert.JSONEq(t, `[{"c1":"r0c1","c2":null},{"c1":null,"c2":"r1c2"}]`, js.String())

	var txt bytes.Buffer
	_, err = o.Export(context.Background(), req, &txt, export.Params{Format: export.FormatText})
	require.NoError(t, err)
	assert.Equal(t, "r0c1\t\n\tr1c2\n", txt.String())
}

func TestOrchestrator_ExportWholeResultAndParamBounds(t *testing.T) {
	src := newFakeSource(3, 2)
	o := New(src, Options{PageSize: 2})

	var buf bytes.Buffer
	out, err := o.Export(context.Background(), src.request(), &buf, export.Params{Format: export.FormatCSV, IncludeHeaders: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Rows)
	assert.Equal(t, 2, out.Pages)
	assert.Equal(t, "c0,c1\n0,r0c1\n1,r1c1\n2,r2c1\n", buf.String())

	buf.Reset()
	from, to, col := int64(1), int64(5), 1
	_, err = o.Export(context.Background(), src.request(), &buf, export.Params{
		Format: export.FormatCSV, RowStartIndex: &from, RowEndIndex: &to, ColumnStartIndex: &col, ColumnEndIndex: &col,
	})
	require.NoError(t, err)
	assert.Equal(t, "r1c1\nr2c1\n", buf.String())
}

func TestOrchestrator_InClause(t *testing.T) {
	src := newFakeSource(5, 3)
	o := New(src, Options{})

	_, _, err := o.CopyInClause(context.Background(), src.request(Range{FromRow: 0, ToRow: 4, FromColumn: 0, ToColumn: 1}))
	require.ErrorIs(t, err, ErrInClauseColumns)
	assert.Empty(t, src.calls, "rejected before any fetch")

	_, _, err = o.CopyInClause(context.Background(), src.request(
		Range{FromRow: 0, ToRow: 0, FromColumn: 0, ToColumn: 0},
		Range{FromRow: 1, ToRow: 1, FromColumn: 2, ToColumn: 2},
	))
	require.ErrorIs(t, err, ErrInClauseColumns)

	s, out, err := o.CopyInClause(context.Background(), src.request(Range{FromRow: 1, ToRow: 3, FromColumn: 0, ToColumn: 0}))
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Rows)
	assert.Equal(t, "IN (\n    1,\n    2,\n    3\n)", s)

	s, _, err = o.CopyInClause(context.Background(), src.request(Range{FromRow: 0, ToRow: 1, FromColumn: 1, ToColumn: 1}))
	require.NoError(t, err)
	assert.Equal(t, "IN (\n    'r0c1',\n    'r1c1'\n)", s)
}

func lineBreakSource() *fakeSource {
	src := newFakeSource(3, 2)
	src.cell = func(r int64, c int) record.Cell {
		s := fmt.Sprintf("x%d", r)
		if c == 1 {
			s = []string{"a\n", "b", "c"}[r]
		}
		return record.Cell{Raw: s, Display: s, RowID: r}
	}
	return src
}

func TestOrchestrator_CopyTextSeparatorPolicy(t *testing.T) {
	t.Run("separator always written", func(t *testing.T) {
		src := lineBreakSource()
		s, out, err := New(src, Options{}).CopyText(context.Background(), src.request(), false)
		require.NoError(t, err)
		assert.Equal(t, int64(3), out.Rows)
		assert.Equal(t, "x0\ta\n\nx1\tb\nx2\tc", s)
	})

	t.Run("separator skipped after line break", func(t *testing.T) {
		src := lineBreakSource()
		s, _, err := New(src, Options{SkipSeparatorAfterLineBreak: true}).CopyText(context.Background(), src.request(), false)
		require.NoError(t, err)
		assert.Equal(t, "x0\ta\nx1\tb\nx2\tc", s)
	})

	t.Run("headers and crlf", func(t *testing.T) {
		src := lineBreakSource()
		s, _, err := New(src, Options{LineSeparator: "\r\n"}).CopyText(context.Background(),
			src.request(Range{FromRow: 1, ToRow: 2, FromColumn: 1, ToColumn: 1}), true)
		require.NoError(t, err)
		assert.Equal(t, "c1\r\nb\r\nc", s)
	})
}

func TestOrchestrator_Cancellation(t *testing.T) {
	src := newFakeSource(1000, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src.cancelOn, src.cancel = 2, cancel

	var buf bytes.Buffer
	out, err := New(src, Options{}).Export(ctx, src.request(), &buf, export.Params{Format: export.FormatText})
	require.NoError(t, err)
	assert.True(t, out.Canceled)
	assert.Equal(t, int64(200), out.Rows, "only the first page was written")
	assert.Equal(t, 2, out.Pages)
	assert.Len(t, src.calls, 2)
	assert.Equal(t, 200, bytes.Count(buf.Bytes(), []byte("\n")), "no partial rows")

	done, cancelDone := context.WithCancel(context.Background())
	cancelDone()
	s, out, err := New(src, Options{}).CopyText(done, src.request(), false)
	require.NoError(t, err)
	assert.True(t, out.Canceled)
	assert.Empty(t, s)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestOrchestrator_WriterFailurePropagates(t *testing.T) {
	src := newFakeSource(2000, 3)
	_, err := New(src, Options{}).Export(context.Background(), src.request(), failingWriter{}, export.Params{Format: export.FormatCSV})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestOrchestrator_InvalidSelection(t *testing.T) {
	src := newFakeSource(5, 2)
	_, _, err := New(src, Options{}).CopyText(context.Background(), src.request(Range{FromRow: 0, ToRow: 1, FromColumn: 0, ToColumn: 5}), false)
	assert.ErrorIs(t, err, ErrInvalidRange)
}
