package storage

import (
	"fmt"
	"io"
	"os"
)

var (
	_ io.ReaderAt = (*FileStream)(nil)
	_ io.Writer   = (*FileStream)(nil)
	_ io.Closer   = (*FileStream)(nil)
)

// FileStream is a buffered random-access view over one spool file.
//
// It keeps a single window of DefaultBufferSize bytes (or the size given at
// open time). For a writer the window accumulates sequential writes and only
// reaches the file when it fills or on Flush. For a reader the window caches the
// last block read; a read outside the window, or any read while the window
// was left short by end-of-file, reseeks and refills it.
//
// A spool file has exactly one writer. Readers open their own FileStream and
// never share a window, so they need no locking between each other. A
// FileStream itself is not safe for concurrent use.
type FileStream struct {
	file     *os.File
	path     string
	writable bool

	buf []byte

	// read window: buf[:winLen] mirrors file bytes [winStart, winStart+winLen)
	winStart int64
	winLen   int

	// write window: buf[:pending] will land at file offset flushed
	flushed int64
	pending int

	closed bool
}

// CreateFileStream creates (or truncates) path and returns the single writer for it.
func CreateFileStream(path string, bufferSize int) (*FileStream, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", path, err)
	}
	return newFileStream(f, path, bufferSize, true), nil
}

// OpenFileStream opens an independent read-only handle on an existing spool file.
func OpenFileStream(path string, bufferSize int) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return newFileStream(f, path, bufferSize, false), nil
}

func newFileStream(f *os.File, path string, bufferSize int, writable bool) *FileStream {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &FileStream{
		file:     f,
		path:     path,
		writable: writable,
		buf:      make([]byte, bufferSize),
	}
}

func (fs *FileStream) Path() string { return fs.path }

func (fs *FileStream) check() error {
	if fs == nil || fs.file == nil {
		return ErrNotInitialized
	}
	if fs.closed {
		return ErrClosed
	}
	return nil
}

// ReadAt reads len(p) bytes starting at off. It returns io.EOF together with
// the short count when the file ends first.
func (fs *FileStream) ReadAt(p []byte, off int64) (int, error) {
	if err := fs.check(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("storage: negative offset %d", off)
	}
	if fs.pending > 0 {
		if err := fs.Flush(); err != nil {
			return 0, err
		}
	}

	// Larger than the window: go straight to the file.
	if len(p) > len(fs.buf) {
		n, err := fs.file.ReadAt(p, off)
		if err != nil && err != io.EOF {
			return n, fmt.Errorf("%w: %v", ErrStorageIO, err)
		}
		return n, err
	}

	if !fs.inWindow(off, len(p)) {
		if err := fs.refill(off); err != nil {
			return 0, err
		}
	}

	start := int(off - fs.winStart)
	n := copy(p, fs.buf[start:fs.winLen])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (fs *FileStream) inWindow(off int64, n int) bool {
	// A short window means the last refill hit end-of-file; the file may
	// have grown since, so it is never trusted.
	if fs.winLen < len(fs.buf) {
		return false
	}
	return off >= fs.winStart && off+int64(n) <= fs.winStart+int64(fs.winLen)
}

func (fs *FileStream) refill(off int64) error {
	n, err := fs.file.ReadAt(fs.buf, off)
	if err != nil && err != io.EOF {
		fs.winLen = 0
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	fs.winStart = off
	fs.winLen = n
	return nil
}

// Invalidate drops the cached read block so the next read goes to the file.
// Readers call it after the writer patched bytes in place.
func (fs *FileStream) Invalidate() {
	fs.winLen = 0
}

// Write appends p at the end of the written region through the write window.
func (fs *FileStream) Write(p []byte) (int, error) {
	if err := fs.check(); err != nil {
		return 0, err
	}
	if !fs.writable {
		return 0, ErrReadOnly
	}
	// the window now holds write data; drop any cached read block
	fs.winLen = 0

	if fs.pending+len(p) > len(fs.buf) {
		if err := fs.Flush(); err != nil {
			return 0, err
		}
	}
	if len(p) >= len(fs.buf) {
		n, err := fs.file.WriteAt(p, fs.flushed)
		fs.flushed += int64(n)
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrStorageIO, err)
		}
		return n, nil
	}

	n := copy(fs.buf[fs.pending:], p)
	fs.pending += n
	if fs.pending == len(fs.buf) {
		if err := fs.Flush(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// WriteAt overwrites bytes that were already written. It bypasses the window:
// pending sequential bytes are flushed first so they cannot later clobber the
// patch, and the sequential write position is left untouched.
func (fs *FileStream) WriteAt(p []byte, off int64) (int, error) {
	if err := fs.check(); err != nil {
		return 0, err
	}
	if !fs.writable {
		return 0, ErrReadOnly
	}
	if err := fs.Flush(); err != nil {
		return 0, err
	}
	if off < 0 || off+int64(len(p)) > fs.flushed {
		return 0, fmt.Errorf("%w: [%d, %d) past end %d", ErrWriteBeyondEnd, off, off+int64(len(p)), fs.flushed)
	}

	n, err := fs.file.WriteAt(p, off)
	fs.winLen = 0
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	if n != len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Flush pushes the write window to the file.
func (fs *FileStream) Flush() error {
	if err := fs.check(); err != nil {
		return err
	}
	if fs.pending == 0 {
		return nil
	}
	n, err := fs.file.WriteAt(fs.buf[:fs.pending], fs.flushed)
	fs.flushed += int64(n)
	if err != nil {
		// keep what did not make it so a retry of Flush resumes correctly
		copy(fs.buf, fs.buf[n:fs.pending])
		fs.pending -= n
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	fs.pending = 0
	return nil
}

// Size is the logical length: flushed bytes plus the pending window for a
// writer, the on-disk size for a reader.
func (fs *FileStream) Size() (int64, error) {
	if err := fs.check(); err != nil {
		return 0, err
	}
	if fs.writable {
		return fs.flushed + int64(fs.pending), nil
	}
	info, err := fs.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return info.Size(), nil
}

// Close flushes and closes the handle. Closing twice is a no-op.
func (fs *FileStream) Close() error {
	if fs == nil || fs.file == nil {
		return ErrNotInitialized
	}
	if fs.closed {
		return nil
	}
	var flushErr error
	if fs.writable {
		flushErr = fs.Flush()
	}
	fs.closed = true
	if err := fs.file.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return flushErr
}
