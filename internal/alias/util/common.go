package util

import (
	"io"

	"github.com/tuannm99/novaspool/internal/gologger"
)

var logger = gologger.NewLogger()

// CloseFunc closes c and logs the failure; use it in defers where the close
// error has nowhere to go.
func CloseFunc(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg("close failed")
	}
}

// PermError marks failures that must not be retried, such as a corrupted spool file.
type PermError string

func (e PermError) Error() string {
	return string(e)
}

func (e PermError) IsPermanent() bool {
	return true
}

func Ptr[T any](s T) *T {
	return &s
}

func Deref[T any](ref *T, fallback T) T {
	if ref == nil {
		return fallback
	}
	return *ref
}
