package selection

import (
	"github.com/tuannm99/novaspool/internal/export"
	"github.com/tuannm99/novaspool/internal/record"
)

// Placeholder is what a cell outside the selection turns into.
type Placeholder uint8

const (
	PlaceholderEmpty Placeholder = iota
	PlaceholderNull
)

// PlaceholderFor picks null for formats that can express it and empty text
// for the rest.
func PlaceholderFor(f export.Format) Placeholder {
	if f.NullsAsNull() {
		return PlaceholderNull
	}
	return PlaceholderEmpty
}

func (p Placeholder) Cell(rowID int64) record.Cell {
	if p == PlaceholderNull {
		return record.NullCell(rowID)
	}
	return record.EmptyCell(rowID)
}

// Project returns a copy of row in which every cell not covered by sel is
// replaced by the placeholder. rowIdx is the absolute index of the row.
func Project(row []record.Cell, rowIdx int64, sel []Range, ph Placeholder) []record.Cell {
	out := make([]record.Cell, len(row))
	for col, c := range row {
		if Contains(sel, rowIdx, col) {
			out[col] = c
			continue
		}
		out[col] = ph.Cell(rowIdx)
	}
	return out
}
