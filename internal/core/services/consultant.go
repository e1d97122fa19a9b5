package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driving"
	"github.com/custodia-labs/safety-consultant/internal/logger"
	"github.com/custodia-labs/safety-consultant/internal/vectorindex"
)

// Ensure Consultant implements the interface.
var _ driving.Consultant = (*Consultant)(nil)

// QueryConfig controls retrieval for each question.
type QueryConfig struct {
	// TopK is the number of chunks retrieved.
	TopK int

	// MinSimilarity drops hits whose similarity is not above it.
	MinSimilarity float64
}

// Consultant owns the served index snapshot and answers questions against it.
// Queries read an immutable snapshot; a finished build swaps in a new one.
type Consultant struct {
	builder   *IndexBuilder
	retriever *Retriever
	synth     *Synthesizer
	store     driven.IndexStore
	embedder  driven.EmbeddingService
	cfg       QueryConfig
	closers   []io.Closer

	snapshot atomic.Pointer[vectorindex.Index]

	mu        sync.RWMutex
	lastBuild *domain.BuildReport
	loadErr   error
}

// NewConsultant wires the pipeline. closers are closed by Close in reverse order.
func NewConsultant(
	builder *IndexBuilder,
	retriever *Retriever,
	synth *Synthesizer,
	store driven.IndexStore,
	embedder driven.EmbeddingService,
	cfg QueryConfig,
	closers ...io.Closer,
) *Consultant {
	if cfg.TopK <= 0 {
		cfg.TopK = domain.DefaultSettings().Retrieval.TopK
	}
	return &Consultant{
		builder:   builder,
		retriever: retriever,
		synth:     synth,
		store:     store,
		embedder:  embedder,
		cfg:       cfg,
		closers:   closers,
	}
}

// Open loads the persisted index, if any, and starts serving it.
// A missing index is not an error. An index built with another embedding
// model is not served and the error is returned.
func (c *Consultant) Open(ctx context.Context) error {
	idx, err := c.store.Load(ctx)
	if errors.Is(err, domain.ErrIndexNotFound) {
		logger.Info("no index at %s yet", c.store.Location())
		return nil
	}
	if err == nil {
		err = compatible(idx, c.embedder)
	}
	if err != nil {
		c.mu.Lock()
		c.loadErr = err
		c.mu.Unlock()
		return err
	}

	c.snapshot.Store(idx)
	logger.Info("loaded index from %s: %d chunks, %d sources", c.store.Location(), idx.Len(), len(idx.Sources()))
	return nil
}

// BuildOrUpdateIndex brings the served index in line with the documents directory.
func (c *Consultant) BuildOrUpdateIndex(ctx context.Context) (*domain.BuildReport, error) {
	prior := c.snapshot.Load()
	if prior == nil {
		c.mu.RLock()
		loadErr := c.loadErr
		c.mu.RUnlock()
		if domain.IsRebuildRequired(loadErr) {
			return &domain.BuildReport{State: domain.BuildFailed}, loadErr
		}
	}
	return c.build(ctx, prior, false)
}

// Rebuild embeds the whole corpus again and replaces the served index.
func (c *Consultant) Rebuild(ctx context.Context) (*domain.BuildReport, error) {
	return c.build(ctx, c.snapshot.Load(), true)
}

func (c *Consultant) build(ctx context.Context, prior *vectorindex.Index, rebuild bool) (*domain.BuildReport, error) {
	idx, report, err := c.builder.Build(ctx, prior, rebuild)

	c.mu.Lock()
	c.lastBuild = report
	if err == nil {
		c.loadErr = nil
	}
	c.mu.Unlock()

	if err != nil {
		return report, err
	}
	c.snapshot.Store(idx)
	return report, nil
}

// AnswerQuery retrieves context for question and asks the model to answer it.
func (c *Consultant) AnswerQuery(ctx context.Context, question string) (*domain.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}

	idx := c.snapshot.Load()
	if idx == nil {
		return nil, domain.ErrIndexNotReady
	}

	hits, err := c.retriever.Retrieve(ctx, idx, question, c.cfg.TopK)
	if err != nil {
		return nil, err
	}
	kept := hits.Above(c.cfg.MinSimilarity)
	logger.Debug("retrieved %d chunks, %d above %.2f", len(hits), len(kept), c.cfg.MinSimilarity)

	return c.synth.Synthesize(ctx, question, kept)
}

// Search returns the retrieved chunks for question after the similarity
// threshold, without calling the model.
func (c *Consultant) Search(ctx context.Context, question string) (domain.RetrievalResult, error) {
	idx := c.snapshot.Load()
	if idx == nil {
		return nil, domain.ErrIndexNotReady
	}
	hits, err := c.retriever.Retrieve(ctx, idx, question, c.cfg.TopK)
	if err != nil {
		return nil, err
	}
	return hits.Above(c.cfg.MinSimilarity), nil
}

// Status describes the served index.
func (c *Consultant) Status() domain.IndexStatus {
	status := domain.IndexStatus{
		Location:   c.store.Location(),
		BuildState: c.builder.State(),
	}

	c.mu.RLock()
	status.LastBuild = c.lastBuild
	if c.loadErr != nil {
		status.LoadError = c.loadErr.Error()
	}
	c.mu.RUnlock()

	if idx := c.snapshot.Load(); idx != nil {
		status.Ready = true
		status.Entries = idx.Len()
		status.Sources = len(idx.Sources())
		status.Dimensions = idx.Dimensions()
		status.Model = idx.Model()
	}
	return status
}

// Close releases the model clients and stores.
func (c *Consultant) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// compatible reports whether queries embedded by embedder can be searched in idx.
func compatible(idx *vectorindex.Index, embedder driven.EmbeddingService) error {
	if m := idx.Model(); m != "" && m != embedder.ModelName() {
		return fmt.Errorf("%w: index was built with %q but %q is configured, rebuild required",
			domain.ErrModelMismatch, m, embedder.ModelName())
	}
	if d := embedder.Dimensions(); d > 0 && d != idx.Dimensions() {
		return &domain.DimensionMismatchError{Want: idx.Dimensions(), Got: d}
	}
	return nil
}
