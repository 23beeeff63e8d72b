package selection

import (
	"context"

	"github.com/tuannm99/novaspool/internal/record"
)

// SubsetRequest asks the upstream row source for RowsCount rows of one result
// set, starting at RowsStartIndex.
type SubsetRequest struct {
	OwnerURI       string
	BatchIndex     int
	ResultSetIndex int
	RowsStartIndex int64
	RowsCount      int
}

// SubsetProvider serves rows a page at a time. Rows come back in order with
// every column present; fewer rows than asked means the result set ended.
type SubsetProvider interface {
	Subset(ctx context.Context, req SubsetRequest) ([][]record.Cell, error)
}
