// Package filesystem scans and watches the local documents directory.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// Ensure Connector implements the interfaces.
var (
	_ driven.Corpus        = (*Connector)(nil)
	_ driven.CorpusWatcher = (*Connector)(nil)
)

// ErrClosed is returned by operations on a closed connector.
var ErrClosed = errors.New("filesystem: connector closed")

// Connector reads the documents directory.
type Connector struct {
	root    string
	exclude []string

	mu       sync.Mutex
	closed   bool
	watchers []*fsnotify.Watcher
}

// Option configures a Connector.
type Option func(*Connector)

// WithExclude skips the given directories (and everything below them)
// while scanning and watching. Used to keep an index directory nested
// inside the corpus out of it.
func WithExclude(dirs ...string) Option {
	return func(c *Connector) {
		for _, d := range dirs {
			if abs, err := filepath.Abs(d); err == nil {
				c.exclude = append(c.exclude, abs)
			}
		}
	}
}

// New creates a connector rooted at root.
func New(root string, opts ...Option) *Connector {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	c := &Connector{root: root}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the documents directory.
func (c *Connector) Root() string {
	return c.root
}

// Scan walks the documents directory and hashes every supported file.
// Hidden files and directories are skipped. A file that cannot be read is
// returned with Err set; an unreadable directory is skipped with a warning.
func (c *Connector) Scan(ctx context.Context) ([]domain.CorpusFile, error) {
	if err := c.checkRoot(); err != nil {
		return nil, err
	}

	var files []domain.CorpusFile
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == c.root {
				return err
			}
			logger.Warn("scan: skip %s: %v", c.name(path), err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == c.root {
			return nil
		}
		if isHidden(d.Name()) || c.excluded(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		file := domain.CorpusFile{Path: path, Name: c.name(path)}
		if format, ferr := domain.FormatFromPath(path); ferr == nil {
			file.Format = format
			hash, herr := hashFile(path)
			if herr != nil {
				logger.Warn("scan: cannot read %s: %v", file.Name, herr)
				file.Err = &domain.LoadError{Path: path, Err: herr}
			}
			file.ContentHash = hash
		}
		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Watch reports paths of changed files until ctx is cancelled.
// Newly created subdirectories are watched as they appear.
func (c *Connector) Watch(ctx context.Context) (<-chan string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	if err := c.checkRoot(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := c.addTree(watcher, c.root); err != nil {
		watcher.Close()
		return nil, err
	}

	c.mu.Lock()
	c.watchers = append(c.watchers, watcher)
	c.mu.Unlock()

	changes := make(chan string)
	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				path, ok := c.handleFsEvent(watcher, event)
				if !ok {
					continue
				}
				select {
				case changes <- path:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watch %s: %v", c.root, err)
			}
		}
	}()

	return changes, nil
}

// Close stops all watchers. Further Watch calls fail with ErrClosed.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	var errs []error
	for _, w := range c.watchers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.watchers = nil
	return errors.Join(errs...)
}

// handleFsEvent filters an fsnotify event and returns the path to report.
func (c *Connector) handleFsEvent(watcher *fsnotify.Watcher, event fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(c.root, event.Name)
	if err != nil || isHidden(rel) || c.excluded(event.Name) {
		return "", false
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return "", false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := c.addTree(watcher, event.Name); err != nil {
				logger.Warn("watch %s: %v", event.Name, err)
			}
		}
	}
	return event.Name, true
}

// addTree watches dir and every visible directory below it.
func (c *Connector) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != c.root && (isHidden(d.Name()) || c.excluded(path)) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (c *Connector) checkRoot() error {
	info, err := os.Stat(c.root)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path error: %s is not a directory", c.root)
	}
	return nil
}

func (c *Connector) excluded(path string) bool {
	for _, ex := range c.exclude {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (c *Connector) name(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" || part == "." || part == ".." {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
