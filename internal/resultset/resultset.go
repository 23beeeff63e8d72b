package resultset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tuannm99/novaspool/internal/gologger"
	locking "github.com/tuannm99/novaspool/internal/lock"
	"github.com/tuannm99/novaspool/internal/record"
	"github.com/tuannm99/novaspool/internal/storage"
)

var logger = gologger.NewLogger()

var (
	ErrClosed       = errors.New("resultset: closed")
	ErrRowRange     = errors.New("resultset: row out of range")
	ErrNotPatchable = errors.New("resultset: column is not fixed-size")
)

type Options struct {
	BufferSize int
	Format     record.FormatOptions
}

func DefaultOptions() Options {
	return Options{BufferSize: storage.DefaultBufferSize, Format: record.DefaultFormatOptions()}
}

// ResultSet is one query result spooled to disk. Rows are appended through a
// single writer; the file offset of every row is kept in memory so any row
// can be decoded on demand.
//
// A ResultSet is safe for concurrent use. Reads made through NewReader use
// their own file handle and only take the lock to look up offsets.
type ResultSet struct {
	mu sync.Mutex

	dir  storage.SpoolDir
	cols []record.Column
	opts Options
	f    *record.Formatter

	file    *storage.FileStream
	writer  *record.RowWriter
	offsets []int64
	size    int64

	// internal reader for Rows and patches
	reader *storage.FileStream
	rr     *record.RowReader

	// bumped by every in-place patch so readers drop stale windows
	patches uint64

	// the result set and every open Reader hold the spool file
	pins *locking.RefCount

	complete bool
	closed   bool
}

// New creates the spool file for a result set with the given columns.
func New(dir storage.SpoolDir, cols []record.Column, opts Options) (*ResultSet, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = storage.DefaultBufferSize
	}
	file, err := dir.Create(opts.BufferSize)
	if err != nil {
		return nil, err
	}
	return &ResultSet{
		dir:    dir,
		cols:   cols,
		opts:   opts,
		f:      record.NewFormatter(opts.Format),
		file:   file,
		writer: record.NewRowWriter(file),
		pins:   locking.NewRefCount(),
	}, nil
}

func (rs *ResultSet) Columns() []record.Column { return rs.cols }

func (rs *ResultSet) Path() string { return rs.file.Path() }

func (rs *ResultSet) RowCount() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return int64(len(rs.offsets))
}

// Size is the number of bytes spooled so far.
func (rs *ResultSet) Size() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.size
}

// Complete reports whether Spool ran to the end of its producer.
func (rs *ResultSet) Complete() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.complete
}

// AppendRow encodes one row at the end of the spool.
func (rs *ResultSet) AppendRow(values []any) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.appendLocked(values)
}

func (rs *ResultSet) appendLocked(values []any) error {
	if rs.closed {
		return ErrClosed
	}
	n, err := rs.writer.WriteRow(rs.cols, values)
	if err != nil {
		return fmt.Errorf("resultset: row %d: %w", len(rs.offsets), err)
	}
	rs.offsets = append(rs.offsets, rs.size)
	rs.size += int64(n)
	return nil
}

// Spool drains p into the result set and returns the number of rows read.
// The producer's columns must match the result set's.
func (rs *ResultSet) Spool(ctx context.Context, p record.RowProducer) (int64, error) {
	if got := len(p.Columns()); got != len(rs.cols) {
		return 0, fmt.Errorf("%w: producer has %d columns, result set %d", record.ErrSchemaMismatch, got, len(rs.cols))
	}
	start := time.Now()
	var rows int64
	for {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		values, err := p.NextRow(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("resultset: read row %d: %w", rows, err)
		}
		if err := rs.AppendRow(values); err != nil {
			return rows, err
		}
		rows++
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return rows, ErrClosed
	}
	if err := rs.file.Flush(); err != nil {
		return rows, err
	}
	rs.complete = true
	logger.Info().
		Str("path", rs.file.Path()).
		Int64("rows", rows).
		Int64("bytes", rs.size).
		Dur("took", time.Since(start)).
		Msg("spooled result set")
	return rows, nil
}

// Rows decodes count rows starting at start. Asking past the end returns the
// rows that exist.
func (rs *ResultSet) Rows(ctx context.Context, start int64, count int) ([][]record.Cell, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return nil, ErrClosed
	}
	total := int64(len(rs.offsets))
	if start < 0 || count < 0 || start > total {
		return nil, fmt.Errorf("%w: start %d count %d of %d", ErrRowRange, start, count, total)
	}
	end := min(start+int64(count), total)

	rr, err := rs.readerLocked()
	if err != nil {
		return nil, err
	}
	out := make([][]record.Cell, 0, end-start)
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cells, _, err := rr.ReadRow(rs.offsets[i], rs.cols, i)
		if err != nil {
			return nil, err
		}
		out = append(out, cells)
	}
	return out, nil
}

// readerLocked flushes pending rows and returns the internal row reader.
func (rs *ResultSet) readerLocked() (*record.RowReader, error) {
	if err := rs.file.Flush(); err != nil {
		return nil, err
	}
	if rs.rr == nil {
		fs, err := storage.OpenFileStream(rs.file.Path(), rs.opts.BufferSize)
		if err != nil {
			return nil, err
		}
		rs.reader = fs
		rs.rr = record.NewRowReader(fs, rs.f)
	}
	return rs.rr, nil
}

// UpdateCell overwrites one fixed-size value in place. Variable-length
// columns cannot be patched because the new encoding may not fit.
func (rs *ResultSet) UpdateCell(row int64, col int, value any) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return ErrClosed
	}
	if row < 0 || row >= int64(len(rs.offsets)) {
		return fmt.Errorf("%w: %d", ErrRowRange, row)
	}
	if col < 0 || col >= len(rs.cols) {
		return fmt.Errorf("resultset: column %d out of range", col)
	}
	c := rs.cols[col]
	if c.IsVariant || !c.Kind.FixedSize() {
		return fmt.Errorf("%w: %q (%s)", ErrNotPatchable, c.Name, c.Kind)
	}

	rr, err := rs.readerLocked()
	if err != nil {
		return err
	}
	off, n, err := rr.FieldSpan(rs.offsets[row], rs.cols, col)
	if err != nil {
		return err
	}
	enc, err := rs.writer.EncodeValue(c, value)
	if err != nil {
		return err
	}
	if len(enc) != n {
		// null and non-null fixed values differ in width
		return fmt.Errorf("%w: %q encodes to %d bytes, field holds %d", ErrNotPatchable, c.Name, len(enc), n)
	}
	if _, err := rs.file.WriteAt(enc, off); err != nil {
		return err
	}
	rs.reader.Invalidate()
	rs.patches++
	logger.Debug().Int64("row", row).Int("column", col).Int64("offset", off).Msg("patched cell")
	return nil
}

// Close flushes and closes the spool file. The file is deleted once the last
// open Reader is closed as well.
func (rs *ResultSet) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return nil
	}
	rs.closed = true

	var errs []error
	if rs.reader != nil {
		errs = append(errs, rs.reader.Close())
	}
	errs = append(errs, rs.file.Close(), rs.unpin())
	return errors.Join(errs...)
}

// unpin drops one hold on the spool file and removes it after the last.
func (rs *ResultSet) unpin() error {
	if !rs.pins.Dec() {
		logger.Debug().Str("path", rs.file.Path()).Int32("holders", rs.pins.Get()).Msg("spool file still in use")
		return nil
	}
	return rs.dir.Remove(rs.file.Path())
}

// Reader is an independent handle over a result set with its own buffered
// window. It stays usable after the result set is closed, until it is
// closed itself. It is not safe for concurrent use; open one per goroutine.
type Reader struct {
	rs      *ResultSet
	fs      *storage.FileStream
	rr      *record.RowReader
	patches uint64
	closed  bool
}

func (rs *ResultSet) NewReader() (*Reader, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed || !rs.pins.TryInc() {
		return nil, ErrClosed
	}
	if err := rs.file.Flush(); err != nil {
		rs.pins.Dec()
		return nil, err
	}
	fs, err := storage.OpenFileStream(rs.file.Path(), rs.opts.BufferSize)
	if err != nil {
		rs.pins.Dec()
		return nil, err
	}
	return &Reader{rs: rs, fs: fs, rr: record.NewRowReader(fs, rs.f), patches: rs.patches}, nil
}

// Row decodes row i.
func (r *Reader) Row(i int64) ([]record.Cell, error) {
	if r.closed {
		return nil, ErrClosed
	}
	r.rs.mu.Lock()
	if i < 0 || i >= int64(len(r.rs.offsets)) {
		n := len(r.rs.offsets)
		r.rs.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d", ErrRowRange, i, n)
	}
	off := r.rs.offsets[i]
	var err error
	if !r.rs.closed {
		err = r.rs.file.Flush()
	}
	patches := r.rs.patches
	r.rs.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if patches != r.patches {
		r.fs.Invalidate()
		r.patches = patches
	}
	cells, _, err := r.rr.ReadRow(off, r.rs.cols, i)
	return cells, err
}

// Close releases the reader's hold on the spool file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.fs.Close()

	r.rs.mu.Lock()
	defer r.rs.mu.Unlock()
	return errors.Join(err, r.rs.unpin())
}
