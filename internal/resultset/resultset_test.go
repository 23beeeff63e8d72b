package resultset

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaspool/internal/record"
	"github.com/tuannm99/novaspool/internal/selection"
	"github.com/tuannm99/novaspool/internal/storage"
)

func testColumns() []record.Column {
	return []record.Column{
		record.NewColumn("id", "int"),
		record.NewColumn("name", "nvarchar"),
		record.NewColumn("active", "bit"),
	}
}

func newSpooled(t *testing.T, n int, opts Options) *ResultSet {
	t.Helper()
	cols := testColumns()
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int32(i), fmt.Sprintf("name-%d", i), i%2 == 0}
	}
	rs, err := New(storage.SpoolDir{Dir: t.TempDir()}, cols, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	got, err := rs.Spool(context.Background(), record.NewSliceProducer(cols, rows))
	require.NoError(t, err)
	require.Equal(t, int64(n), got)
	return rs
}

func TestResultSet_SpoolAndRead(t *testing.T) {
	// small window so rows straddle buffer boundaries
	rs := newSpooled(t, 500, Options{BufferSize: 64})
	assert.True(t, rs.Complete())
	assert.Equal(t, int64(500), rs.RowCount())
	assert.Positive(t, rs.Size())

	rows, err := rs.Rows(context.Background(), 198, 5)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, row := range rows {
		id := int64(198 + i)
		assert.Equal(t, int32(id), row[0].Raw)
		assert.Equal(t, fmt.Sprintf("name-%d", id), row[1].Display)
		assert.Equal(t, id, row[2].RowID)
	}

	tail, err := rs.Rows(context.Background(), 498, 10)
	require.NoError(t, err)
	assert.Len(t, tail, 2, "past the end yields what exists")

	empty, err := rs.Rows(context.Background(), 500, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = rs.Rows(context.Background(), 501, 1)
	assert.ErrorIs(t, err, ErrRowRange)
}

func TestResultSet_AppendVisibleWithoutFlush(t *testing.T) {
	rs, err := New(storage.SpoolDir{Dir: t.TempDir()}, testColumns(), DefaultOptions())
	require.NoError(t, err)
	defer rs.Close()

	require.NoError(t, rs.AppendRow([]any{int32(1), "a", true}))
	rows, err := rs.Rows(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", rows[0][1].Raw)

	require.NoError(t, rs.AppendRow([]any{int32(2), nil, false}))
	rows, err = rs.Rows(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.True(t, rows[0][1].IsNull)
	assert.Equal(t, "0", rows[0][2].Display)

	err = rs.AppendRow([]any{int32(3)})
	assert.ErrorIs(t, err, record.ErrSchemaMismatch)
	assert.Equal(t, int64(2), rs.RowCount())
}

func TestResultSet_IndependentReaders(t *testing.T) {
	rs := newSpooled(t, 50, Options{BufferSize: 32})

	r1, err := rs.NewReader()
	require.NoError(t, err)
	defer r1.Close()
	r2, err := rs.NewReader()
	require.NoError(t, err)
	defer r2.Close()

	a, err := r1.Row(40)
	require.NoError(t, err)
	b, err := r2.Row(3)
	require.NoError(t, err)
	c, err := r1.Row(2)
	require.NoError(t, err)

	assert.Equal(t, "name-40", a[1].Raw)
	assert.Equal(t, "name-3", b[1].Raw)
	assert.Equal(t, "name-2", c[1].Raw)

	_, err = r1.Row(50)
	assert.ErrorIs(t, err, ErrRowRange)
}

func TestResultSet_UpdateCell(t *testing.T) {
	rs := newSpooled(t, 10, DefaultOptions())

	r, err := rs.NewReader()
	require.NoError(t, err)
	defer r.Close()
	before, err := r.Row(4)
	require.NoError(t, err)
	assert.Equal(t, int32(4), before[0].Raw)

	require.NoError(t, rs.UpdateCell(4, 0, int32(4000)))
	require.NoError(t, rs.UpdateCell(4, 2, false))

	rows, err := rs.Rows(context.Background(), 3, 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), rows[0][0].Raw)
	assert.Equal(t, int32(4000), rows[1][0].Raw)
	assert.Equal(t, false, rows[1][2].Raw)
	assert.Equal(t, "name-4", rows[1][1].Raw, "neighbouring fields untouched")
	assert.Equal(t, int32(5), rows[2][0].Raw)

	after, err := r.Row(4)
	require.NoError(t, err)
	assert.Equal(t, int32(4000), after[0].Raw, "open readers see the patch")

	assert.ErrorIs(t, rs.UpdateCell(4, 1, "longer name"), ErrNotPatchable)
	assert.ErrorIs(t, rs.UpdateCell(4, 0, nil), ErrNotPatchable)
	assert.ErrorIs(t, rs.UpdateCell(10, 0, int32(1)), ErrRowRange)
	assert.ErrorIs(t, rs.UpdateCell(1, 0, "x"), record.ErrTypeMismatch)
}

func TestResultSet_CloseRemovesFile(t *testing.T) {
	rs := newSpooled(t, 3, DefaultOptions())
	path := rs.Path()
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, rs.Close())
	require.NoError(t, rs.Close(), "close is idempotent")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = rs.Rows(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, rs.AppendRow([]any{int32(1), "a", true}), ErrClosed)
	_, err = rs.NewReader()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestResultSet_ReaderOutlivesClose(t *testing.T) {
	rs := newSpooled(t, 3, DefaultOptions())
	path := rs.Path()

	r, err := rs.NewReader()
	require.NoError(t, err)
	require.NoError(t, rs.Close())

	_, err = os.Stat(path)
	require.NoError(t, err, "an open reader keeps the spool file")

	row, err := r.Row(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), row[0].RowID)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = r.Row(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestResultSet_SpoolCanceled(t *testing.T) {
	rs, err := New(storage.SpoolDir{Dir: t.TempDir()}, testColumns(), DefaultOptions())
	require.NoError(t, err)
	defer rs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rs.Spool(ctx, record.NewSliceProducer(testColumns(), [][]any{{int32(1), "a", true}}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, rs.Complete())

	_, err = rs.Spool(context.Background(), record.NewSliceProducer(testColumns()[:1], nil))
	assert.ErrorIs(t, err, record.ErrSchemaMismatch)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	rs := newSpooled(t, 7, DefaultOptions())
	key := Key{OwnerURI: "file:///q.sql", BatchIndex: 0, ResultSetIndex: 1}

	require.NoError(t, reg.Add(key, rs))
	assert.ErrorIs(t, reg.Add(key, rs), ErrDuplicate)

	rows, err := reg.Subset(context.Background(), selection.SubsetRequest{
		OwnerURI: key.OwnerURI, BatchIndex: 0, ResultSetIndex: 1, RowsStartIndex: 5, RowsCount: 200,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(6), rows[1][0].RowID)

	_, err = reg.Subset(context.Background(), selection.SubsetRequest{OwnerURI: "other"})
	assert.ErrorIs(t, err, ErrNotFound)

	other := newSpooled(t, 1, DefaultOptions())
	require.NoError(t, reg.Add(Key{OwnerURI: "other"}, other))

	require.NoError(t, reg.CloseOwner(key.OwnerURI))
	_, err = reg.Get(key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(rs.Path())
	assert.True(t, os.IsNotExist(err))

	_, err = reg.Get(Key{OwnerURI: "other"})
	require.NoError(t, err)
	require.NoError(t, reg.Remove(Key{OwnerURI: "other"}))
	assert.ErrorIs(t, reg.Remove(Key{OwnerURI: "other"}), ErrNotFound)
	require.NoError(t, reg.Close())
}
