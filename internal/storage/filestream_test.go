package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, bufferSize int) *FileStream {
	t.Helper()
	fs, err := CreateFileStream(filepath.Join(t.TempDir(), "spool.bin"), bufferSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return fs
}

func TestFileStream_WriteIsBufferedUntilFlush(t *testing.T) {
	w := newTestWriter(t, 16)

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	info, err := os.Stat(w.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size(), "bytes must stay in the window")

	size, err := w.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	require.NoError(t, w.Flush())
	info, err = os.Stat(w.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
}

func TestFileStream_WindowFillsAndSpills(t *testing.T) {
	w := newTestWriter(t, 8)

	data := []byte("0123456789abcdefXYZ")
	for _, b := range data {
		_, err := w.Write([]byte{b})
		require.NoError(t, err)
	}
	// two full windows reached the file, three bytes are pending
	info, err := os.Stat(w.Path())
	require.NoError(t, err)
	assert.Equal(t, int64(16), info.Size())

	// a write larger than the window bypasses it
	big := bytes.Repeat([]byte{'#'}, 20)
	_, err = w.Write(big)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	got, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, data...), big...), got)
}

func TestFileStream_IndependentReaders(t *testing.T) {
	w := newTestWriter(t, 8)
	payload := []byte("the quick brown fox jumps over the lazy dog")
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	r1, err := OpenFileStream(w.Path(), 8)
	require.NoError(t, err)
	defer r1.Close()
	r2, err := OpenFileStream(w.Path(), 4)
	require.NoError(t, err)
	defer r2.Close()

	p := make([]byte, 5)
	_, err = r1.ReadAt(p, 4)
	require.NoError(t, err)
	assert.Equal(t, "quick", string(p))

	_, err = r2.ReadAt(p, 16)
	require.NoError(t, err)
	assert.Equal(t, "fox j", string(p))

	// r1 re-reads out of order; every read is offset addressed
	q := make([]byte, 3)
	_, err = r1.ReadAt(q, 0)
	require.NoError(t, err)
	assert.Equal(t, "the", string(q))

	// larger than the window
	all := make([]byte, len(payload))
	_, err = r2.ReadAt(all, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, all)
}

func TestFileStream_ShortWindowIsRefilledAfterGrowth(t *testing.T) {
	w := newTestWriter(t, 64)
	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	r, err := OpenFileStream(w.Path(), 64)
	require.NoError(t, err)
	defer r.Close()

	p := make([]byte, 3)
	_, err = r.ReadAt(p, 0)
	require.NoError(t, err)

	_, err = w.Write([]byte("def"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	// the window held only 3 of 64 bytes, so this must go back to the file
	p = make([]byte, 3)
	_, err = r.ReadAt(p, 3)
	require.NoError(t, err)
	assert.Equal(t, "def", string(p))
}

func TestFileStream_ReadPastEndIsShort(t *testing.T) {
	w := newTestWriter(t, 8)
	_, err := w.Write([]byte("abcd"))
	require.NoError(t, err)

	p := make([]byte, 6)
	n, err := w.ReadAt(p, 2)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)
	assert.Equal(t, "cd", string(p[:n]))
}

func TestFileStream_WriteAtPatchesInPlace(t *testing.T) {
	w := newTestWriter(t, 16)
	_, err := w.Write([]byte("aaaabbbbcc"))
	require.NoError(t, err)

	// patch reaches into bytes that were still pending
	_, err = w.WriteAt([]byte("XY"), 7)
	require.NoError(t, err)

	// sequential position is unaffected
	_, err = w.Write([]byte("dd"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	got, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, "aaaabbbXYcdd", string(got))

	_, err = w.WriteAt([]byte("zz"), 11)
	assert.ErrorIs(t, err, ErrWriteBeyondEnd)
}

func TestFileStream_ContractViolations(t *testing.T) {
	var zero FileStream
	_, err := zero.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = zero.Write([]byte{1})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, zero.Flush(), ErrNotInitialized)

	w := newTestWriter(t, 8)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")
	_, err = w.Write([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)

	w2 := newTestWriter(t, 8)
	_, err = w2.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w2.Flush())
	r, err := OpenFileStream(w2.Path(), 8)
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Write([]byte("y"))
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestSpoolDir_CreateAndRemove(t *testing.T) {
	sd := SpoolDir{Dir: filepath.Join(t.TempDir(), "spool")}

	a, err := sd.Create(0)
	require.NoError(t, err)
	b, err := sd.Create(0)
	require.NoError(t, err)
	assert.NotEqual(t, a.Path(), b.Path())
	assert.Len(t, a.buf, DefaultBufferSize)

	require.NoError(t, a.Close())
	require.NoError(t, sd.Remove(a.Path()))
	_, err = os.Stat(a.Path())
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, sd.Remove(a.Path()), "removing twice is fine")

	require.NoError(t, b.Close())
	require.NoError(t, sd.Remove(b.Path()))
}

func TestFileStream_InvalidateSeesPatch(t *testing.T) {
	w := newTestWriter(t, 8)
	_, err := w.Write([]byte("abcdefghijklmnop"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	r, err := OpenFileStream(w.Path(), 8)
	require.NoError(t, err)
	defer r.Close()

	// window [2, 10) is full, the file runs past it
	p := make([]byte, 2)
	_, err = r.ReadAt(p, 2)
	require.NoError(t, err)
	assert.Equal(t, "cd", string(p))

	_, err = w.WriteAt([]byte("XY"), 2)
	require.NoError(t, err)

	_, err = r.ReadAt(p, 2)
	require.NoError(t, err)
	assert.Equal(t, "cd", string(p), "full window is served from cache")

	r.Invalidate()
	_, err = r.ReadAt(p, 2)
	require.NoError(t, err)
	assert.Equal(t, "XY", string(p))
}

func TestFileStream_ShortWindowRereads(t *testing.T) {
	w := newTestWriter(t, 8)
	_, err := w.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	r, err := OpenFileStream(w.Path(), 8)
	require.NoError(t, err)
	defer r.Close()

	p := make([]byte, 2)
	_, err = r.ReadAt(p, 2)
	require.NoError(t, err)
	assert.Equal(t, "cd", string(p))

	_, err = w.WriteAt([]byte("XY"), 2)
	require.NoError(t, err)

	_, err = r.ReadAt(p, 2)
	require.NoError(t, err)
	assert.Equal(t, "XY", string(p))
}
