package selection

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tuannm99/novaspool/internal/record"
)

const DefaultPageSize = 200

// Pager walks a row range one page at a time, so at most one page of rows
// is held in memory.
type Pager struct {
	src      SubsetProvider
	req      SubsetRequest
	pageSize int
}

// NewPager reads from the result set named by req; its row fields are
// ignored. A pageSize of zero or less uses DefaultPageSize.
func NewPager(src SubsetProvider, req SubsetRequest, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{src: src, req: req, pageSize: pageSize}
}

func (p *Pager) PageSize() int { return p.pageSize }

// Each calls fn with the absolute index of every row in rr, in order. The
// context is checked before every page fetch and every row; on cancellation
// Each returns ctx.Err() without calling fn again. It returns the number of
// pages fetched.
func (p *Pager) Each(ctx context.Context, rr RowRange, fn func(rowIdx int64, row []record.Cell) error) (int, error) {
	pages := 0
	for start := rr.Start; start <= rr.End; {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		count := int(min(int64(p.pageSize), rr.End-start+1))
		req := p.req
		req.RowsStartIndex = start
		req.RowsCount = count

		rows, err := p.src.Subset(ctx, req)
		if err != nil {
			return pages, err
		}
		pages++
		zerolog.Ctx(ctx).Debug().
			Int64("start", start).
			Int("count", count).
			Int("got", len(rows)).
			Msg("fetched page")

		for i, row := range rows {
			if err := ctx.Err(); err != nil {
				return pages, err
			}
			if err := fn(start+int64(i), row); err != nil {
				return pages, err
			}
		}
		if len(rows) < count {
			// the result set ended early
			return pages, nil
		}
		start += int64(count)
	}
	return pages, nil
}
