package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driving"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// Ensure Refresher implements the interface.
var _ driving.Scheduler = (*Refresher)(nil)

// IndexUpdater is the part of driving.Consultant the refresher drives.
type IndexUpdater interface {
	BuildOrUpdateIndex(ctx context.Context) (*domain.BuildReport, error)
}

// Refresher rebuilds the index when corpus files change and on a fixed
// interval. The interval also retries a save that failed earlier.
type Refresher struct {
	updater  IndexUpdater
	watcher  driven.CorpusWatcher
	debounce time.Duration
	interval time.Duration

	// OnBuild, if set, is called after every build attempt.
	OnBuild func(*domain.BuildReport, error)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewRefresher creates a refresher. watcher may be nil to disable file
// events; a zero interval disables periodic builds.
func NewRefresher(updater IndexUpdater, watcher driven.CorpusWatcher, cfg domain.WatchSettings) *Refresher {
	return &Refresher{
		updater:  updater,
		watcher:  watcher,
		debounce: cfg.Debounce,
		interval: cfg.Interval,
	}
}

// Start builds once, then keeps the index current. It blocks until ctx is
// cancelled or Stop is called.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	stopCh, done := r.stopCh, r.done
	r.mu.Unlock()
	defer close(done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var events <-chan string
	if r.watcher != nil {
		ch, err := r.watcher.Watch(ctx)
		if err != nil {
			r.reset()
			return err
		}
		events = ch
	}

	err := r.run(ctx, events)
	r.reset()
	select {
	case <-stopCh:
		return nil
	default:
		return err
	}
}

// Stop ends Start and waits for it to return.
func (r *Refresher) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	close(r.stopCh)
	done := r.done
	r.mu.Unlock()

	<-done
	return nil
}

func (r *Refresher) reset() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func (r *Refresher) run(ctx context.Context, events <-chan string) error {
	r.refresh(ctx, "startup")

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()
	var changed []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case path, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			logger.Debug("refresher: %s changed", path)
			changed = append(changed, path)
			debounce.Reset(r.debounce)

		case <-debounce.C:
			logger.Info("refresher: %d file event(s)", len(changed))
			changed = changed[:0]
			r.refresh(ctx, "change")

		case <-tick:
			r.refresh(ctx, "interval")
		}
	}
}

func (r *Refresher) refresh(ctx context.Context, reason string) {
	report, err := r.updater.BuildOrUpdateIndex(ctx)
	switch {
	case err == nil:
		logger.Debug("refresher: %s build done", reason)
	case errors.Is(err, domain.ErrBuildInProgress):
		logger.Info("refresher: another build is running, will retry")
	case ctx.Err() != nil:
		return
	default:
		logger.Error("refresher: %s build failed: %v", reason, err)
	}

	if r.OnBuild != nil {
		r.OnBuild(report, err)
	}
}
