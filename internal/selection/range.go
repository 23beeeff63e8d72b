package selection

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidRange = errors.New("selection: invalid range")

// Range is an inclusive rectangle of cells. Ranges in one selection may
// repeat or overlap.
type Range struct {
	FromRow    int64 `json:"fromRow"`
	ToRow      int64 `json:"toRow"`
	FromColumn int   `json:"fromColumn"`
	ToColumn   int   `json:"toColumn"`
}

func (r Range) Validate() error {
	if r.FromRow < 0 || r.FromColumn < 0 || r.ToRow < r.FromRow || r.ToColumn < r.FromColumn {
		return fmt.Errorf("%w: %+v", ErrInvalidRange, r)
	}
	return nil
}

func (r Range) Contains(row int64, col int) bool {
	return row >= r.FromRow && row <= r.ToRow && col >= r.FromColumn && col <= r.ToColumn
}

// RowRange is an inclusive span of rows, used only for paging.
type RowRange struct {
	Start int64
	End   int64
}

func (r RowRange) Len() int64 { return r.End - r.Start + 1 }

// RowRanges returns the rows touched by sel as sorted, disjoint spans.
// Overlapping and adjacent spans are merged so no row is fetched twice.
func RowRanges(sel []Range) []RowRange {
	if len(sel) == 0 {
		return nil
	}
	spans := make([]RowRange, 0, len(sel))
	for _, r := range sel {
		spans = append(spans, RowRange{Start: r.FromRow, End: r.ToRow})
	}
	slices.SortFunc(spans, func(a, b RowRange) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})

	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End+1 {
			last.End = max(last.End, s.End)
			continue
		}
		out = append(out, s)
	}
	return out
}

// ColumnWindow returns the narrowest column span covering every range.
func ColumnWindow(sel []Range) (start, end int, ok bool) {
	if len(sel) == 0 {
		return 0, 0, false
	}
	start, end = sel[0].FromColumn, sel[0].ToColumn
	for _, r := range sel[1:] {
		start = min(start, r.FromColumn)
		end = max(end, r.ToColumn)
	}
	return start, end, true
}

// Contains reports whether any range of sel covers the cell.
func Contains(sel []Range, row int64, col int) bool {
	for _, r := range sel {
		if r.Contains(row, col) {
			return true
		}
	}
	return false
}
