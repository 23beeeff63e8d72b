package selection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuannm99/novaspool/internal/export"
	"github.com/tuannm99/novaspool/internal/gologger"
	"github.com/tuannm99/novaspool/internal/record"
)

var logger = gologger.NewLogger()

var ErrInClauseColumns = errors.New("selection: IN clause needs exactly one column")

// Outcome summarizes one export or copy. Canceled is set when the context
// ended the operation; that is not reported as an error.
type Outcome struct {
	Rows     int64
	Pages    int
	Canceled bool
}

type Options struct {
	PageSize int
	// LineSeparator ends each copied row; "\n" when empty.
	LineSeparator string
	// SkipSeparatorAfterLineBreak omits the separator after a copied row
	// whose last value already ends in a line break.
	SkipSeparatorAfterLineBreak bool
}

// Request names a result set and the cells to take from it.
type Request struct {
	OwnerURI       string
	BatchIndex     int
	ResultSetIndex int

	Columns  []record.Column
	RowCount int64

	// Selection lists the selected rectangles. Empty means every cell.
	Selection []Range
}

func (r Request) subset() SubsetRequest {
	return SubsetRequest{OwnerURI: r.OwnerURI, BatchIndex: r.BatchIndex, ResultSetIndex: r.ResultSetIndex}
}

// ranges returns the validated selection, or one range covering the whole
// result set when none was given.
func (r Request) ranges() ([]Range, error) {
	if len(r.Selection) == 0 {
		if r.RowCount == 0 || len(r.Columns) == 0 {
			return nil, nil
		}
		return []Range{{FromRow: 0, ToRow: r.RowCount - 1, FromColumn: 0, ToColumn: len(r.Columns) - 1}}, nil
	}
	for _, s := range r.Selection {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if s.ToColumn >= len(r.Columns) {
			return nil, fmt.Errorf("%w: column %d of %d", ErrInvalidRange, s.ToColumn, len(r.Columns))
		}
	}
	return r.Selection, nil
}

// Orchestrator drives exports and copies of a selection, page by page.
type Orchestrator struct {
	src  SubsetProvider
	opts Options
}

func New(src SubsetProvider, opts Options) *Orchestrator {
	if opts.LineSeparator == "" {
		opts.LineSeparator = "\n"
	}
	return &Orchestrator{src: src, opts: opts}
}

// Export writes the selection to dst in p.Format. The writer is always
// closed, also when a page fetch fails or ctx is canceled.
func (o *Orchestrator) Export(ctx context.Context, req Request, dst io.Writer, p export.Params) (Outcome, error) {
	return o.export(ctx, req, p, func(p export.Params) (export.Writer, error) {
		return export.New(dst, req.Columns, p)
	})
}

// ExportFile is Export into a new file at path.
func (o *Orchestrator) ExportFile(ctx context.Context, req Request, path string, p export.Params) (Outcome, error) {
	return o.export(ctx, req, p, func(p export.Params) (export.Writer, error) {
		return export.Create(path, req.Columns, p)
	})
}

func (o *Orchestrator) export(ctx context.Context, req Request, p export.Params, open func(export.Params) (export.Writer, error)) (Outcome, error) {
	if len(req.Selection) == 0 {
		req.Selection = paramSelection(req, p)
	}
	sel, err := req.ranges()
	if err != nil {
		return Outcome{}, err
	}
	if start, end, ok := ColumnWindow(sel); ok && p.ColumnStartIndex == nil && p.ColumnEndIndex == nil {
		p.ColumnStartIndex, p.ColumnEndIndex = &start, &end
	}

	w, err := open(p)
	if err != nil {
		return Outcome{}, err
	}

	ctx, log := o.scope(ctx, req, "export")
	log.Info().Str("format", string(p.Format)).Int("ranges", len(sel)).Msg("export started")
	start := time.Now()

	out, err := o.walk(ctx, req, sel, PlaceholderFor(p.Format), func(_ int64, row []record.Cell) error {
		return w.WriteRow(row)
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return finish(ctx, log, out, err, start)
}

// paramSelection turns the row and column bounds of p into a selection.
func paramSelection(req Request, p export.Params) []Range {
	if p.RowStartIndex == nil && p.RowEndIndex == nil && p.ColumnStartIndex == nil && p.ColumnEndIndex == nil {
		return nil
	}
	if req.RowCount == 0 || len(req.Columns) == 0 {
		return nil
	}
	r := Range{FromRow: 0, ToRow: req.RowCount - 1, FromColumn: 0, ToColumn: len(req.Columns) - 1}
	if p.RowStartIndex != nil {
		r.FromRow = *p.RowStartIndex
	}
	if p.RowEndIndex != nil {
		r.ToRow = min(*p.RowEndIndex, req.RowCount-1)
	}
	if p.ColumnStartIndex != nil {
		r.FromColumn = *p.ColumnStartIndex
	}
	if p.ColumnEndIndex != nil {
		r.ToColumn = *p.ColumnEndIndex
	}
	return []Range{r}
}

// CopyText renders the selection as tab-separated display text, as placed
// on a clipboard. Rows are separated, not terminated, by the line separator.
func (o *Orchestrator) CopyText(ctx context.Context, req Request, includeHeaders bool) (string, Outcome, error) {
	sel, err := req.ranges()
	if err != nil {
		return "", Outcome{}, err
	}
	first, last, ok := ColumnWindow(sel)
	if !ok {
		return "", Outcome{}, nil
	}

	var sb strings.Builder
	if includeHeaders {
		sb.WriteString(strings.Join(record.Names(req.Columns[first:last+1]), "\t"))
	}
	prev := ""
	started := includeHeaders

	ctx, log := o.scope(ctx, req, "copy")
	start := time.Now()
	out, err := o.walk(ctx, req, sel, PlaceholderEmpty, func(_ int64, row []record.Cell) error {
		if started && !(o.opts.SkipSeparatorAfterLineBreak && endsWithLineBreak(prev)) {
			sb.WriteString(o.opts.LineSeparator)
		}
		started = true
		for i, c := range row[first : last+1] {
			if i > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteString(c.Display)
		}
		prev = row[last].Display
		return nil
	})
	out, err = finish(ctx, log, out, err, start)
	if err != nil || out.Canceled {
		return "", out, err
	}
	return sb.String(), out, nil
}

// CopyInClause renders the single selected column as a SQL IN list.
func (o *Orchestrator) CopyInClause(ctx context.Context, req Request) (string, Outcome, error) {
	sel, err := req.ranges()
	if err != nil {
		return "", Outcome{}, err
	}
	col, last, ok := ColumnWindow(sel)
	if ok && col != last {
		return "", Outcome{}, fmt.Errorf("%w: %d selected", ErrInClauseColumns, last-col+1)
	}
	if !ok {
		return "IN ()", Outcome{}, nil
	}

	var values []string
	ctx, log := o.scope(ctx, req, "in-clause")
	start := time.Now()
	out, err := o.walk(ctx, req, sel, PlaceholderNull, func(_ int64, row []record.Cell) error {
		values = append(values, export.SQLLiteral(req.Columns[col], row[col]))
		return nil
	})
	out, err = finish(ctx, log, out, err, start)
	if err != nil || out.Canceled {
		return "", out, err
	}

	var sb strings.Builder
	sb.WriteString("IN (")
	for i, v := range values {
		sb.WriteString(o.opts.LineSeparator + "    " + v)
		if i < len(values)-1 {
			sb.WriteByte(',')
		}
	}
	sb.WriteString(o.opts.LineSeparator + ")")
	return sb.String(), out, nil
}

// walk pages through every row range of sel and hands each projected row to fn.
func (o *Orchestrator) walk(ctx context.Context, req Request, sel []Range, ph Placeholder, fn func(int64, []record.Cell) error) (Outcome, error) {
	var out Outcome
	pager := NewPager(o.src, req.subset(), o.opts.PageSize)
	for _, rr := range RowRanges(sel) {
		pages, err := pager.Each(ctx, rr, func(i int64, row []record.Cell) error {
			if err := fn(i, Project(row, i, sel, ph)); err != nil {
				return err
			}
			out.Rows++
			return nil
		})
		out.Pages += pages
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (o *Orchestrator) scope(ctx context.Context, req Request, op string) (context.Context, *zerolog.Logger) {
	l := logger.With().
		Str("op", op).
		Str("owner", req.OwnerURI).
		Int("batch", req.BatchIndex).
		Int("resultSet", req.ResultSetIndex).
		Logger()
	ctx = l.WithContext(ctx)
	return ctx, zerolog.Ctx(ctx)
}

// finish turns cancellation into an outcome and logs the result.
func finish(ctx context.Context, log *zerolog.Logger, out Outcome, err error, start time.Time) (Outcome, error) {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		out.Canceled = true
		log.Info().Int64("rows", out.Rows).Int("pages", out.Pages).Msg("canceled")
		return out, nil
	}
	if err != nil {
		log.Error().Err(err).Int64("rows", out.Rows).Msg("failed")
		return out, err
	}
	log.Info().Int64("rows", out.Rows).Int("pages", out.Pages).Dur("took", time.Since(start)).Msg("done")
	return out, nil
}

func endsWithLineBreak(s string) bool {
	return strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\r")
}
