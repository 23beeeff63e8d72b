package storage

import (
	"errors"
)

const (
	OneKB = 1 << 10 // 1,024

	DefaultBufferSize = 8 * OneKB // 8,192
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

var (
	ErrNotInitialized = errors.New("storage: file stream not initialized")
	ErrClosed         = errors.New("storage: file stream closed")
	ErrReadOnly       = errors.New("storage: file stream is read-only")
	ErrWriteBeyondEnd = errors.New("storage: in-place write past written region")
	ErrStorageIO      = errors.New("storage: I/O error")
)
