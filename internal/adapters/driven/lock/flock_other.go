//go:build !unix

package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// acquire creates path exclusively. A stale file left by a crashed
// process must be removed by hand.
func acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, domain.ErrBuildInProgress
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	return f, nil
}

func release(f *os.File, path string) error {
	err := f.Close()
	if rerr := os.Remove(path); err == nil {
		err = rerr
	}
	return err
}
