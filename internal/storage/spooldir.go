package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/segmentio/ksuid"

	"github.com/tuannm99/novaspool/internal/gologger"
)

var logger = gologger.NewLogger()

// SpoolDir hands out spool file paths inside Dir.
// Files are named spool_<ksuid>.bin so a directory listing sorts by creation time.
type SpoolDir struct {
	Dir string
}

// Create reserves a fresh spool path and opens its writer.
func (sd SpoolDir) Create(bufferSize int) (*FileStream, error) {
	dir := sd.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, FileMode0755); err != nil {
		return nil, fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "spool_"+ksuid.New().String()+".bin")
	fs, err := CreateFileStream(path, bufferSize)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("path", path).Int("bufferSize", len(fs.buf)).Msg("created spool file")
	return fs, nil
}

// Remove deletes a spool file. A file that is already gone is not an error.
func (sd SpoolDir) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	logger.Debug().Str("path", path).Msg("removed spool file")
	return nil
}
