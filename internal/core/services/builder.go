package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/logger"
	"github.com/custodia-labs/safety-consultant/internal/vectorindex"
)

// Retry backoff bounds for failed embedding batches.
const (
	DefaultRetryBase = 200 * time.Millisecond
	DefaultRetryMax  = 5 * time.Second
)

// BuildConfig tunes an IndexBuilder. Zero values select defaults.
type BuildConfig struct {
	// Workers bounds concurrent document loading.
	Workers int

	// BatchSize is the number of chunks per embedding request.
	BatchSize int

	// MaxRetries is the number of retries after a failed batch.
	MaxRetries int

	// EmbedTimeout bounds each embedding call.
	EmbedTimeout time.Duration

	RetryBase time.Duration
	RetryMax  time.Duration
}

func (c BuildConfig) withDefaults() BuildConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryMax <= 0 {
		c.RetryMax = DefaultRetryMax
	}
	return c
}

// IndexBuilder turns the documents directory into a vector index and keeps
// it current. It owns the build state machine:
//
//	Idle → Scanning → Loading → Splitting → Embedding → Creating|Merging → Persisted
//
// with Failed reachable from any state.
type IndexBuilder struct {
	corpus   driven.Corpus
	loader   driven.DocumentLoader
	splitter driven.ChunkSplitter
	embedder driven.EmbeddingService
	store    driven.IndexStore
	manifest driven.ManifestStore
	lock     driven.BuildLock
	cfg      BuildConfig

	mu    sync.Mutex
	state atomic.Value

	// pending holds the manifest of the last built index while it has not
	// been written to disk. Guarded by mu.
	pending []domain.ManifestEntry
}

// NewIndexBuilder creates a builder. lock may be nil when only one process
// ever builds the index.
func NewIndexBuilder(
	corpus driven.Corpus,
	loader driven.DocumentLoader,
	splitter driven.ChunkSplitter,
	embedder driven.EmbeddingService,
	store driven.IndexStore,
	manifest driven.ManifestStore,
	lock driven.BuildLock,
	cfg BuildConfig,
) *IndexBuilder {
	b := &IndexBuilder{
		corpus:   corpus,
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		store:    store,
		manifest: manifest,
		lock:     lock,
		cfg:      cfg.withDefaults(),
	}
	b.state.Store(domain.BuildIdle)
	return b
}

// State returns the state of the running build, or the final state of the last one.
func (b *IndexBuilder) State() domain.BuildState {
	return b.state.Load().(domain.BuildState)
}

// Build brings prior in line with the documents directory and returns the
// resulting index. prior is the index currently served, or nil. With
// rebuild set, prior and the manifest are ignored and every file is embedded.
//
// On error the returned index is nil and the caller must keep serving prior.
// The report is always returned.
func (b *IndexBuilder) Build(
	ctx context.Context,
	prior *vectorindex.Index,
	rebuild bool,
) (*vectorindex.Index, *domain.BuildReport, error) {
	report := &domain.BuildReport{State: domain.BuildIdle, StartedAt: time.Now()}

	if !b.mu.TryLock() {
		report.State = domain.BuildFailed
		report.FinishedAt = time.Now()
		return nil, report, domain.ErrBuildInProgress
	}
	defer b.mu.Unlock()

	if b.lock != nil {
		if err := b.lock.TryLock(); err != nil {
			return nil, b.fail(report), err
		}
		defer func() {
			if err := b.lock.Unlock(); err != nil {
				logger.Warn("release build lock: %v", err)
			}
		}()
	}

	idx, err := b.run(ctx, report, prior, rebuild)
	if err != nil {
		logger.Error("build failed in %s state: %v", report.State, err)
		return nil, b.fail(report), err
	}

	report.IndexReady = true
	report.FinishedAt = time.Now()
	b.setState(report, domain.BuildPersisted)
	logger.Info("build finished: %d added, %d skipped, %d failed, %d removed, %d chunks",
		report.Added, report.Skipped, report.Failed, report.Removed, report.Chunks)
	return idx, report, nil
}

// fileWork tracks one changed file through loading, splitting and embedding.
type fileWork struct {
	file   domain.CorpusFile
	doc    *domain.SourceDocument
	chunks []domain.Chunk
	failed bool
}

//nolint:gocyclo // Sequential state machine; each step is short.
func (b *IndexBuilder) run(
	ctx context.Context,
	report *domain.BuildReport,
	prior *vectorindex.Index,
	rebuild bool,
) (*vectorindex.Index, error) {
	if err := b.checkEmbedder(ctx, prior, rebuild); err != nil {
		return nil, err
	}
	if rebuild {
		prior = nil
	}

	// Scanning
	b.setState(report, domain.BuildScanning)
	files, err := b.corpus.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", b.corpus.Root(), err)
	}

	baseline := b.baseline(ctx, prior)
	present := make(map[string]bool, len(files))
	keep := make([]domain.ManifestEntry, 0, len(files))

	var supported []domain.CorpusFile
	for _, f := range files {
		if !f.Supported() {
			logger.Debug("skip %s: unsupported format", f.Name)
			report.Skipped++
			continue
		}
		if f.Err != nil {
			// An indexed version stays until the file is readable again.
			report.RecordFailure(f.Name, domain.BuildScanning, f.Err)
			if e, ok := baseline[f.Name]; ok && prior != nil {
				present[f.Name] = true
				keep = append(keep, e)
			}
			continue
		}
		supported = append(supported, f)
	}
	if len(supported) == 0 && prior == nil {
		if len(report.Failures) > 0 {
			return nil, b.emptyError(prior, report)
		}
		return nil, fmt.Errorf("%w: no pdf, docx or txt files in %s", domain.ErrEmptyCorpus, b.corpus.Root())
	}

	var work []*fileWork
	for _, f := range supported {
		present[f.Name] = true
		if e, ok := baseline[f.Name]; ok && e.ContentHash == f.ContentHash {
			report.Skipped++
			keep = append(keep, e)
			continue
		}
		work = append(work, &fileWork{file: f})
	}

	removals := b.removals(prior, baseline, present, work)
	report.Removed = len(removals)

	if len(work) == 0 && len(removals) == 0 && prior != nil {
		logger.Info("index is up to date")
		b.flushPending(ctx, report, prior)
		return prior, nil
	}

	// Loading
	b.setState(report, domain.BuildLoading)
	if err := b.load(ctx, work, report); err != nil {
		return nil, err
	}

	// Splitting
	b.setState(report, domain.BuildSplitting)
	for _, w := range work {
		if w.failed {
			continue
		}
		w.chunks = b.splitter.Split(w.doc)
		w.doc = nil
		if len(w.chunks) == 0 {
			logger.Warn("%s has no extractable text", w.file.Name)
			report.Skipped++
		}
	}

	// Embedding
	b.setState(report, domain.BuildEmbedding)
	entries, err := b.embed(ctx, work, report)
	if err != nil {
		return nil, err
	}

	base := prior
	if base != nil && len(removals) > 0 {
		base = base.Remove(removals...)
	}
	if len(entries) == 0 && (base == nil || base.Len() == 0) {
		return nil, b.emptyError(prior, report)
	}

	var next *vectorindex.Index
	if base != nil && base.Len() > 0 {
		b.setState(report, domain.BuildMerging)
		next, err = base.Add(entries)
	} else {
		b.setState(report, domain.BuildCreating)
		next, err = vectorindex.Create(entries, vectorindex.WithModel(b.embedder.ModelName()))
	}
	if err != nil {
		return nil, fmt.Errorf("assemble index: %w", err)
	}

	now := time.Now().UTC()
	for _, w := range work {
		if w.failed {
			continue
		}
		if len(w.chunks) > 0 {
			report.Added++
		}
		ids := make([]string, len(w.chunks))
		for i := range w.chunks {
			ids[i] = w.chunks[i].ID
		}
		keep = append(keep, domain.ManifestEntry{
			SourceName:  w.file.Name,
			ContentHash: w.file.ContentHash,
			Format:      w.file.Format,
			ChunkIDs:    ids,
			IndexedAt:   now,
		})
	}

	b.save(ctx, report, next, keep)
	return next, nil
}

// checkEmbedder aborts the build when the embedding model is unreachable or
// cannot produce vectors comparable with prior.
func (b *IndexBuilder) checkEmbedder(ctx context.Context, prior *vectorindex.Index, rebuild bool) error {
	callCtx, cancel := b.callContext(ctx)
	err := b.embedder.Ping(callCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, domain.WrapContextErr(err))
	}

	if prior == nil || rebuild {
		return nil
	}
	return compatible(prior, b.embedder)
}

// baseline returns what the index held per source at the end of the last build.
func (b *IndexBuilder) baseline(ctx context.Context, prior *vectorindex.Index) map[string]domain.ManifestEntry {
	out := make(map[string]domain.ManifestEntry)
	if prior == nil {
		return out
	}

	entries := b.pending
	if entries == nil {
		var err error
		entries, err = b.manifest.List(ctx)
		if err != nil {
			logger.Warn("read manifest: %v, re-embedding every file", err)
			return out
		}
	}
	for _, e := range entries {
		out[e.SourceName] = e
	}
	return out
}

// removals lists indexed sources whose files changed or disappeared, plus
// sources the manifest does not know about.
func (b *IndexBuilder) removals(
	prior *vectorindex.Index,
	baseline map[string]domain.ManifestEntry,
	present map[string]bool,
	work []*fileWork,
) []string {
	if prior == nil {
		return nil
	}

	changed := make(map[string]bool, len(work))
	for _, w := range work {
		changed[w.file.Name] = true
	}

	var out []string
	for _, name := range prior.Sources() {
		if _, known := baseline[name]; !known || changed[name] || !present[name] {
			out = append(out, name)
		}
	}
	return out
}

type loadResult struct {
	doc *domain.SourceDocument
	err error
}

// load reads changed files on the worker pool. Results keep scan order.
func (b *IndexBuilder) load(ctx context.Context, work []*fileWork, report *domain.BuildReport) error {
	if len(work) == 0 {
		return nil
	}

	pool, err := ants.NewPool(b.cfg.Workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]loadResult, len(work))
	var wg sync.WaitGroup
	for i, w := range work {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			doc, err := b.loader.Load(ctx, w.file.Path, w.file.Name)
			results[i] = loadResult{doc: doc, err: err}
		}
		if submitErr := pool.Submit(task); submitErr != nil {
			go task()
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return domain.WrapContextErr(err)
	}

	for i, w := range work {
		if results[i].err != nil {
			logger.Warn("skip %s: %v", w.file.Name, results[i].err)
			report.RecordFailure(w.file.Name, domain.BuildLoading, results[i].err)
			w.failed = true
			continue
		}
		w.doc = results[i].doc
	}
	return nil
}

// embed embeds all chunks in fixed-size batches. A failed batch fails every
// file that has a chunk in it; those files are left out of the index.
func (b *IndexBuilder) embed(
	ctx context.Context,
	work []*fileWork,
	report *domain.BuildReport,
) ([]domain.IndexEntry, error) {
	type slot struct {
		owner *fileWork
		chunk domain.Chunk
	}
	var slots []slot
	for _, w := range work {
		if w.failed {
			continue
		}
		for _, c := range w.chunks {
			slots = append(slots, slot{owner: w, chunk: c})
		}
	}

	vectors := make([][]float32, len(slots))
	failures := make(map[*fileWork]error)
	for batch, start := 0, 0; start < len(slots); batch, start = batch+1, start+b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(slots))
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = slots[start+i].chunk.Text
		}

		vecs, err := b.embedBatch(ctx, batch, texts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.WrapContextErr(ctx.Err())
			}
			logger.Warn("%v", err)
			for _, s := range slots[start:end] {
				if _, seen := failures[s.owner]; !seen {
					failures[s.owner] = err
				}
			}
			continue
		}
		copy(vectors[start:end], vecs)
	}

	for _, w := range work {
		if err, ok := failures[w]; ok {
			report.RecordFailure(w.file.Name, domain.BuildEmbedding, err)
			w.failed = true
		}
	}

	entries := make([]domain.IndexEntry, 0, len(slots))
	for i, s := range slots {
		if s.owner.failed {
			continue
		}
		entries = append(entries, domain.IndexEntry{Chunk: s.chunk, Vector: vectors[i]})
	}
	report.Chunks = len(entries)
	return entries, nil
}

// embedBatch calls the embedder with exponential backoff between attempts.
func (b *IndexBuilder) embedBatch(ctx context.Context, batch int, texts []string) ([][]float32, error) {
	attempts := 1 + b.cfg.MaxRetries
	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			delay := min(b.cfg.RetryBase<<(attempt-1), b.cfg.RetryMax)
			logger.Debug("embed batch %d: retry %d in %s", batch, attempt, delay)
			select {
			case <-ctx.Done():
				return nil, &domain.EmbeddingError{Batch: batch, Attempts: attempt, Err: domain.WrapContextErr(ctx.Err())}
			case <-time.After(delay):
			}
		}

		callCtx, cancel := b.callContext(ctx)
		vecs, err := b.embedder.EmbedBatch(callCtx, texts)
		cancel()
		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts))
		}
		if err == nil {
			return vecs, nil
		}

		lastErr = domain.WrapContextErr(err)
		if ctx.Err() != nil {
			return nil, &domain.EmbeddingError{Batch: batch, Attempts: attempt + 1, Err: lastErr}
		}
	}
	return nil, &domain.EmbeddingError{Batch: batch, Attempts: attempts, Err: lastErr}
}

// emptyError explains why a build produced no entries at all.
func (b *IndexBuilder) emptyError(prior *vectorindex.Index, report *domain.BuildReport) error {
	if prior != nil {
		return fmt.Errorf("%w: every indexed document was removed from %s", domain.ErrEmptyCorpus, b.corpus.Root())
	}
	if len(report.Failures) == 0 {
		return fmt.Errorf("%w: no text could be extracted from %s", domain.ErrEmptyCorpus, b.corpus.Root())
	}

	errs := make([]error, len(report.Failures))
	for i, f := range report.Failures {
		errs[i] = fmt.Errorf("%s: %s", f.Name, f.Reason)
	}
	return fmt.Errorf("%w: all %d files failed: %w", domain.ErrEmptyCorpus, len(errs), errors.Join(errs...))
}

// save persists idx and its manifest. Failures leave the index usable in
// memory, set a warning and are retried by the next build.
func (b *IndexBuilder) save(
	ctx context.Context,
	report *domain.BuildReport,
	idx *vectorindex.Index,
	manifest []domain.ManifestEntry,
) {
	b.pending = manifest

	if err := b.store.Persist(ctx, idx); err != nil {
		report.PersistWarning = err.Error()
		logger.Warn("index is ready in memory but was not saved: %v", err)
		return
	}
	if err := b.manifest.Replace(ctx, manifest); err != nil {
		report.PersistWarning = fmt.Sprintf("save manifest: %v", err)
		logger.Warn("index saved to %s but its manifest was not: %v", b.store.Location(), err)
		return
	}
	b.pending = nil
}

// flushPending retries a save that failed in an earlier build.
func (b *IndexBuilder) flushPending(ctx context.Context, report *domain.BuildReport, idx *vectorindex.Index) {
	if b.pending == nil {
		return
	}
	logger.Info("retrying save of unsaved index")
	b.save(ctx, report, idx, b.pending)
}

func (b *IndexBuilder) fail(report *domain.BuildReport) *domain.BuildReport {
	b.setState(report, domain.BuildFailed)
	report.IndexReady = false
	report.FinishedAt = time.Now()
	return report
}

func (b *IndexBuilder) setState(report *domain.BuildReport, s domain.BuildState) {
	logger.Debug("build: %s -> %s", report.State, s)
	report.State = s
	b.state.Store(s)
}

func (b *IndexBuilder) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, b.cfg.EmbedTimeout)
}
