// Package app wires adapters and services into a running consultant.
//
// Settings are available as soon as New returns. The retrieval pipeline
// needs reachable model providers, so it is built on first use.
package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/safety-consultant/internal/adapters/driven/ai"
	"github.com/custodia-labs/safety-consultant/internal/adapters/driven/config/env"
	"github.com/custodia-labs/safety-consultant/internal/adapters/driven/config/file"
	"github.com/custodia-labs/safety-consultant/internal/adapters/driven/lock"
	"github.com/custodia-labs/safety-consultant/internal/adapters/driven/storage/indexdir"
	"github.com/custodia-labs/safety-consultant/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/safety-consultant/internal/connectors/filesystem"
	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driving"
	"github.com/custodia-labs/safety-consultant/internal/core/services"
	"github.com/custodia-labs/safety-consultant/internal/logger"
	"github.com/custodia-labs/safety-consultant/internal/normalisers"
	"github.com/custodia-labs/safety-consultant/internal/postprocessors/chunker"
)

// DotEnvFile is read from the working directory and the config directory.
const DotEnvFile = ".env"

// App owns every long-lived component of one process.
type App struct {
	configDir string
	settings  *services.SettingsService
	prompts   *file.PromptStore

	mu         sync.Mutex
	consultant *services.Consultant
	corpus     *filesystem.Connector
	watch      domain.WatchSettings
}

// New loads configuration from configDir (default ~/.consultant).
func New(configDir string) (*App, error) {
	if configDir == "" {
		dir, err := file.DefaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config directory: %w", err)
		}
		configDir = dir
	}

	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	prompts, err := file.NewPromptStore(filepath.Join(configDir, "prompts"))
	if err != nil {
		return nil, err
	}
	overrides := env.New(DotEnvFile, filepath.Join(configDir, DotEnvFile))

	return &App{
		configDir: configDir,
		settings:  services.NewSettingsService(store, overrides, ai.NewConfigValidator()),
		prompts:   prompts,
	}, nil
}

// ConfigDir returns the configuration directory in use.
func (a *App) ConfigDir() string {
	return a.configDir
}

// Settings returns the settings service.
func (a *App) Settings() driving.SettingsService {
	return a.settings
}

// Consultant returns the consultant, wiring it and loading the persisted
// index on first call. An index that cannot be served is reported in
// Status, not here, so that a rebuild remains possible.
func (a *App) Consultant(ctx context.Context) (driving.Consultant, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.consultant != nil {
		return a.consultant, nil
	}

	c, err := a.wire(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Open(ctx); err != nil {
		logger.Warn("persisted index not served: %v", err)
	}
	a.consultant = c
	return c, nil
}

// Scheduler returns a refresher that keeps the consultant's index current.
func (a *App) Scheduler(ctx context.Context) (driving.Scheduler, error) {
	c, err := a.Consultant(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	r := services.NewRefresher(c, a.corpus, a.watch)
	r.OnBuild = logBuild
	return r, nil
}

// Close releases the consultant and everything it holds.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.consultant == nil {
		return nil
	}
	err := a.consultant.Close()
	a.consultant = nil
	return err
}

func (a *App) wire(ctx context.Context) (*services.Consultant, error) {
	settings, err := a.settings.Get()
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	logger.Section("Wiring")
	logger.Info("documents: %s", settings.DocumentsDir)
	logger.Info("index: %s", settings.IndexDir)
	logger.Info("embedding: %s (%s)", settings.Embedding.Provider, settings.Embedding.Model)
	logger.Info("llm: %s (%s)", settings.LLM.Provider, settings.LLM.Model)

	splitter, err := chunker.New(
		chunker.WithMaxChars(settings.Chunking.MaxChars),
		chunker.WithOverlap(settings.Chunking.OverlapChars),
	)
	if err != nil {
		return nil, err
	}

	models, err := ai.CreateAndValidate(ctx, settings)
	if err != nil {
		return nil, err
	}
	manifest, err := sqlite.NewStore(settings.IndexDir)
	if err != nil {
		models.Close()
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	corpus := filesystem.New(settings.DocumentsDir, filesystem.WithExclude(settings.IndexDir))
	store := indexdir.New(settings.IndexDir)

	builder := services.NewIndexBuilder(
		corpus,
		normalisers.NewRegistry(),
		splitter,
		models.Embedding,
		store,
		manifest,
		lock.New(settings.IndexDir),
		services.BuildConfig{
			Workers:      settings.Workers,
			BatchSize:    settings.Embedding.BatchSize,
			MaxRetries:   settings.Embedding.MaxRetries,
			EmbedTimeout: settings.Embedding.Timeout,
		},
	)

	consultant := services.NewConsultant(
		builder,
		services.NewRetriever(models.Embedding, settings.Embedding.Timeout),
		services.NewSynthesizer(models.LLM, a.prompts, settings.LLM.Timeout, driven.GenerateOptions{
			MaxTokens:   settings.LLM.MaxTokens,
			Temperature: settings.LLM.Temperature,
		}),
		store,
		models.Embedding,
		services.QueryConfig{
			TopK:          settings.Retrieval.TopK,
			MinSimilarity: settings.Retrieval.MinSimilarity,
		},
		[]io.Closer{models.Embedding, models.LLM, manifest, corpus}...,
	)

	a.corpus = corpus
	a.watch = settings.Watch
	return consultant, nil
}

func logBuild(report *domain.BuildReport, err error) {
	if err != nil || report == nil {
		return
	}
	logger.Info("index updated: %d added, %d removed, %d skipped, %d failed",
		report.Added, report.Removed, report.Skipped, report.Failed)
	if report.PersistWarning != "" {
		logger.Warn("%s", report.PersistWarning)
	}
}
