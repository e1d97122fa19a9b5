package vectorindex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// FileName is the name of the index file inside an index directory.
const FileName = "vectors.idx"

// Persist writes idx into dir atomically: the data goes to a temporary
// file that is synced and then renamed over FileName. Readers see either
// the previous index or the new one, never a partial file.
func Persist(idx *Index, dir string) (err error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &domain.PersistError{Dir: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".vectors-*.tmp")
	if err != nil {
		return &domain.PersistError{Dir: dir, Err: err}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := Encode(tmp, idx); err != nil {
		return &domain.PersistError{Dir: dir, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &domain.PersistError{Dir: dir, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &domain.PersistError{Dir: dir, Err: err}
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, FileName)); err != nil {
		return &domain.PersistError{Dir: dir, Err: err}
	}

	syncDir(dir)
	return nil
}

// Load reads the index persisted in dir.
// Returns domain.ErrIndexNotFound if dir holds no index.
func Load(dir string) (*Index, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrIndexNotFound
		}
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	idx, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Name(), err)
	}
	return idx, nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports syncing a directory, so a failure only gets logged.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		logger.Debug("sync %s: %v", dir, err)
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		logger.Debug("sync %s: %v", dir, err)
	}
}
