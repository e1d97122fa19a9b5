// Package env reads configuration overrides from the process environment
// and optional .env files.
package env

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// Ensure Source implements the interface.
var _ driven.ConfigOverrides = (*Source)(nil)

// Prefix is prepended to every variable, e.g. CONSULTANT_LLM_MODEL.
const Prefix = "CONSULTANT"

// Vars lists the recognised variables. Unset variables are left empty and
// do not override anything. Tags carry the full name so envconfig never
// falls back to an unprefixed variable.
type Vars struct {
	DocumentsDir string `envconfig:"CONSULTANT_DOCUMENTS_DIR"`
	IndexDir     string `envconfig:"CONSULTANT_INDEX_DIR"`
	Workers      string `envconfig:"CONSULTANT_WORKERS"`

	ChunkMaxChars     string `envconfig:"CONSULTANT_CHUNK_MAX_CHARS"`
	ChunkOverlapChars string `envconfig:"CONSULTANT_CHUNK_OVERLAP_CHARS"`

	TopK          string `envconfig:"CONSULTANT_TOP_K"`
	MinSimilarity string `envconfig:"CONSULTANT_MIN_SIMILARITY"`

	EmbeddingProvider   string `envconfig:"CONSULTANT_EMBEDDING_PROVIDER"`
	EmbeddingModel      string `envconfig:"CONSULTANT_EMBEDDING_MODEL"`
	EmbeddingBaseURL    string `envconfig:"CONSULTANT_EMBEDDING_BASE_URL"`
	EmbeddingAPIKey     string `envconfig:"CONSULTANT_EMBEDDING_API_KEY"`
	EmbeddingDimensions string `envconfig:"CONSULTANT_EMBEDDING_DIMENSIONS"`
	EmbeddingBatchSize  string `envconfig:"CONSULTANT_EMBEDDING_BATCH_SIZE"`
	EmbeddingMaxRetries string `envconfig:"CONSULTANT_EMBEDDING_MAX_RETRIES"`
	EmbeddingRPS        string `envconfig:"CONSULTANT_EMBEDDING_REQUESTS_PER_SECOND"`
	EmbeddingTimeout    string `envconfig:"CONSULTANT_EMBEDDING_TIMEOUT"`

	LLMProvider    string `envconfig:"CONSULTANT_LLM_PROVIDER"`
	LLMModel       string `envconfig:"CONSULTANT_LLM_MODEL"`
	LLMBaseURL     string `envconfig:"CONSULTANT_LLM_BASE_URL"`
	LLMAPIKey      string `envconfig:"CONSULTANT_LLM_API_KEY"`
	LLMTimeout     string `envconfig:"CONSULTANT_LLM_TIMEOUT"`
	LLMMaxTokens   string `envconfig:"CONSULTANT_LLM_MAX_TOKENS"`
	LLMTemperature string `envconfig:"CONSULTANT_LLM_TEMPERATURE"`

	WatchDebounce string `envconfig:"CONSULTANT_WATCH_DEBOUNCE"`
	WatchInterval string `envconfig:"CONSULTANT_WATCH_INTERVAL"`
}

// values maps the non-empty variables to config keys.
func (v *Vars) values() map[string]string {
	all := map[string]string{
		"documents.dir":                 v.DocumentsDir,
		"index.dir":                     v.IndexDir,
		"workers":                       v.Workers,
		"chunking.max_chars":            v.ChunkMaxChars,
		"chunking.overlap_chars":        v.ChunkOverlapChars,
		"retrieval.top_k":               v.TopK,
		"retrieval.min_similarity":      v.MinSimilarity,
		"embedding.provider":            v.EmbeddingProvider,
		"embedding.model":               v.EmbeddingModel,
		"embedding.base_url":            v.EmbeddingBaseURL,
		"embedding.api_key":             v.EmbeddingAPIKey,
		"embedding.dimensions":          v.EmbeddingDimensions,
		"embedding.batch_size":          v.EmbeddingBatchSize,
		"embedding.max_retries":         v.EmbeddingMaxRetries,
		"embedding.requests_per_second": v.EmbeddingRPS,
		"embedding.timeout":             v.EmbeddingTimeout,
		"llm.provider":                  v.LLMProvider,
		"llm.model":                     v.LLMModel,
		"llm.base_url":                  v.LLMBaseURL,
		"llm.api_key":                   v.LLMAPIKey,
		"llm.timeout":                   v.LLMTimeout,
		"llm.max_tokens":                v.LLMMaxTokens,
		"llm.temperature":               v.LLMTemperature,
		"watch.debounce":                v.WatchDebounce,
		"watch.interval":                v.WatchInterval,
	}
	for k, val := range all {
		if val == "" {
			delete(all, k)
		}
	}
	return all
}

// Source loads .env files into the environment and then reads Vars.
type Source struct {
	files []string
}

// New creates a Source. Each file is loaded if it exists; variables
// already set in the environment win over file values.
func New(files ...string) *Source {
	return &Source{files: files}
}

// Overrides returns the configured variables keyed by config key.
func (s *Source) Overrides() (map[string]string, error) {
	for _, f := range s.files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		logger.Debug("env: loaded %s", f)
	}

	var vars Vars
	if err := envconfig.Process("", &vars); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	values := vars.values()
	if len(values) > 0 {
		logger.Debug("env: %d override(s) from %s_* variables", len(values), Prefix)
	}
	return values, nil
}
