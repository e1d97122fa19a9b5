// Package lock provides the advisory lock that serialises index builds
// on one index directory across processes.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
)

// FileName is the lock file created inside the index directory.
const FileName = "build.lock"

// Ensure FileLock implements the interface.
var _ driven.BuildLock = (*FileLock)(nil)

// FileLock is an advisory lock on dir/build.lock.
type FileLock struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// New creates a lock for the index directory dir.
func New(dir string) *FileLock {
	return &FileLock{path: filepath.Join(dir, FileName)}
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// TryLock acquires the lock without blocking.
// Returns domain.ErrBuildInProgress if it is already held.
func (l *FileLock) TryLock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil {
		return domain.ErrBuildInProgress
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	f, err := acquire(l.path)
	if err != nil {
		return err
	}
	l.f = f
	return nil
}

// Unlock releases the lock. Unlocking a lock that is not held is a no-op.
func (l *FileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := release(l.f, l.path)
	l.f = nil
	return err
}
