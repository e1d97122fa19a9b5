package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driven"
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driving"
	"github.com/custodia-labs/safety-consultant/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyDocumentsDir   = "documents.dir"
	keyIndexDir       = "index.dir"
	keyWorkers        = "workers"
	keyChunkMax       = "chunking.max_chars"
	keyChunkOverlap   = "chunking.overlap_chars"
	keyTopK           = "retrieval.top_k"
	keyMinSimilarity  = "retrieval.min_similarity"
	keyEmbedProvider  = "embedding.provider"
	keyEmbedModel     = "embedding.model"
	keyEmbedBaseURL   = "embedding.base_url"
	keyEmbedAPIKey    = "embedding.api_key"
	keyEmbedDims      = "embedding.dimensions"
	keyEmbedBatchSize = "embedding.batch_size"
	keyEmbedRetries   = "embedding.max_retries"
	keyEmbedRPS       = "embedding.requests_per_second"
	keyEmbedTimeout   = "embedding.timeout"
	keyLLMProvider    = "llm.provider"
	keyLLMModel       = "llm.model"
	keyLLMBaseURL     = "llm.base_url"
	keyLLMAPIKey      = "llm.api_key"
	keyLLMTimeout     = "llm.timeout"
	keyLLMMaxTokens   = "llm.max_tokens"
	keyLLMTemperature = "llm.temperature"
	keyWatchDebounce  = "watch.debounce"
	keyWatchInterval  = "watch.interval"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindDuration
	kindProvider
)

// setting binds a config key to its type and to the Settings field it fills.
type setting struct {
	kind  valueKind
	apply func(s *domain.Settings, v any)
}

var settingsTable = map[string]setting{
	keyDocumentsDir:   {kindString, func(s *domain.Settings, v any) { s.DocumentsDir = v.(string) }},
	keyIndexDir:       {kindString, func(s *domain.Settings, v any) { s.IndexDir = v.(string) }},
	keyWorkers:        {kindInt, func(s *domain.Settings, v any) { s.Workers = v.(int) }},
	keyChunkMax:       {kindInt, func(s *domain.Settings, v any) { s.Chunking.MaxChars = v.(int) }},
	keyChunkOverlap:   {kindInt, func(s *domain.Settings, v any) { s.Chunking.OverlapChars = v.(int) }},
	keyTopK:           {kindInt, func(s *domain.Settings, v any) { s.Retrieval.TopK = v.(int) }},
	keyMinSimilarity:  {kindFloat, func(s *domain.Settings, v any) { s.Retrieval.MinSimilarity = v.(float64) }},
	keyEmbedProvider:  {kindProvider, func(s *domain.Settings, v any) { s.Embedding.Provider = v.(domain.AIProvider) }},
	keyEmbedModel:     {kindString, func(s *domain.Settings, v any) { s.Embedding.Model = v.(string) }},
	keyEmbedBaseURL:   {kindString, func(s *domain.Settings, v any) { s.Embedding.BaseURL = v.(string) }},
	keyEmbedAPIKey:    {kindString, func(s *domain.Settings, v any) { s.Embedding.APIKey = v.(string) }},
	keyEmbedDims:      {kindInt, func(s *domain.Settings, v any) { s.Embedding.Dimensions = v.(int) }},
	keyEmbedBatchSize: {kindInt, func(s *domain.Settings, v any) { s.Embedding.BatchSize = v.(int) }},
	keyEmbedRetries:   {kindInt, func(s *domain.Settings, v any) { s.Embedding.MaxRetries = v.(int) }},
	keyEmbedRPS:       {kindFloat, func(s *domain.Settings, v any) { s.Embedding.RequestsPerSecond = v.(float64) }},
	keyEmbedTimeout:   {kindDuration, func(s *domain.Settings, v any) { s.Embedding.Timeout = v.(time.Duration) }},
	keyLLMProvider:    {kindProvider, func(s *domain.Settings, v any) { s.LLM.Provider = v.(domain.AIProvider) }},
	keyLLMModel:       {kindString, func(s *domain.Settings, v any) { s.LLM.Model = v.(string) }},
	keyLLMBaseURL:     {kindString, func(s *domain.Settings, v any) { s.LLM.BaseURL = v.(string) }},
	keyLLMAPIKey:      {kindString, func(s *domain.Settings, v any) { s.LLM.APIKey = v.(string) }},
	keyLLMTimeout:     {kindDuration, func(s *domain.Settings, v any) { s.LLM.Timeout = v.(time.Duration) }},
	keyLLMMaxTokens:   {kindInt, func(s *domain.Settings, v any) { s.LLM.MaxTokens = v.(int) }},
	keyLLMTemperature: {kindFloat, func(s *domain.Settings, v any) { s.LLM.Temperature = v.(float64) }},
	keyWatchDebounce:  {kindDuration, func(s *domain.Settings, v any) { s.Watch.Debounce = v.(time.Duration) }},
	keyWatchInterval:  {kindDuration, func(s *domain.Settings, v any) { s.Watch.Interval = v.(time.Duration) }},
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	overrides   driven.ConfigOverrides
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
// overrides and aiValidator may be nil.
func NewSettingsService(
	configStore driven.ConfigStore,
	overrides driven.ConfigOverrides,
	aiValidator driven.AIConfigValidator,
) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		overrides:   overrides,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings.
// Unparseable stored values are logged and ignored; bad overrides are errors.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings()
	// Models are resolved after providers so a provider change picks up its default model.
	settings.Embedding.Model = ""
	settings.LLM.Model = ""

	for _, key := range s.Keys() {
		raw, ok := s.configStore.Get(key)
		if !ok {
			continue
		}
		v, err := parseValue(key, raw)
		if err != nil {
			logger.Warn("config %s: %v, using default", key, err)
			continue
		}
		settingsTable[key].apply(&settings, v)
	}

	if s.overrides != nil {
		values, err := s.overrides.Overrides()
		if err != nil {
			return nil, err
		}
		for key, raw := range values {
			v, err := parseValue(key, raw)
			if err != nil {
				return nil, fmt.Errorf("override %s: %w", key, err)
			}
			settingsTable[key].apply(&settings, v)
		}
	}

	if settings.Embedding.Model == "" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[settings.Embedding.Provider]
	}
	if settings.LLM.Model == "" {
		settings.LLM.Model = domain.DefaultLLMModels()[settings.LLM.Provider]
	}

	return &settings, nil
}

// Set parses value for key, validates the result and persists it.
func (s *SettingsService) Set(key, value string) error {
	entry, ok := settingsTable[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	v, err := parseValue(key, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}
	if key == keyEmbedProvider && !v.(domain.AIProvider).SupportsEmbeddings() {
		return fmt.Errorf("%w: provider %s does not support embeddings", domain.ErrInvalidInput, value)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	entry.apply(settings, v)
	if err := settings.Validate(); err != nil {
		return err
	}

	return s.configStore.Set(key, storedValue(v))
}

// SetAPIKey stores an API key for each section configured with provider.
func (s *SettingsService) SetAPIKey(provider domain.AIProvider, key string) error {
	if !provider.RequiresAPIKey() {
		return fmt.Errorf("%w: provider %s does not use an API key", domain.ErrInvalidInput, provider)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: API key is empty", domain.ErrInvalidInput)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	var stored bool
	if settings.Embedding.Provider == provider {
		if err := s.configStore.Set(keyEmbedAPIKey, key); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
		stored = true
	}
	if settings.LLM.Provider == provider {
		if err := s.configStore.Set(keyLLMAPIKey, key); err != nil {
			return fmt.Errorf("save llm api_key: %w", err)
		}
		stored = true
	}
	if !stored {
		return fmt.Errorf("%w: neither embedding nor llm uses %s; set the provider first",
			domain.ErrInvalidInput, provider)
	}
	return nil
}

// Keys returns every known config key, sorted.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(settingsTable))
	for k := range settingsTable {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// Check validates settings and, when a validator is present, pings both providers.
func (s *SettingsService) Check(ctx context.Context) error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %s is not configured", domain.ErrEmbeddingUnavailable,
			settings.Embedding.Provider)
	}
	if !settings.LLM.IsConfigured() {
		return fmt.Errorf("%w: llm provider %s is not configured", domain.ErrLLMUnavailable, settings.LLM.Provider)
	}
	if s.aiValidator == nil {
		return nil
	}

	return errors.Join(
		s.aiValidator.ValidateEmbedding(ctx, &settings.Embedding),
		s.aiValidator.ValidateLLM(ctx, &settings.LLM),
	)
}

// parseValue converts a stored or user supplied value to the key's type.
// Strings are parsed; TOML numbers and booleans are accepted as they come.
func parseValue(key string, raw any) (any, error) {
	entry, ok := settingsTable[key]
	if !ok {
		return nil, fmt.Errorf("unknown setting %q", key)
	}

	switch entry.kind {
	case kindString:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", raw)
		}
		return str, nil

	case kindInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected an integer, got %q", v)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("expected an integer, got %T", raw)
		}

	case kindFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("expected a number, got %q", v)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("expected a number, got %T", raw)
		}

	case kindDuration:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a duration such as \"30s\", got %T", raw)
		}
		d, err := time.ParseDuration(strings.TrimSpace(str))
		if err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, fmt.Errorf("duration must not be negative")
		}
		return d, nil

	case kindProvider:
		str, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a provider name, got %T", raw)
		}
		p := domain.AIProvider(strings.ToLower(strings.TrimSpace(str)))
		if !p.IsValid() {
			return nil, fmt.Errorf("unknown provider %q", str)
		}
		return p, nil
	}

	return nil, fmt.Errorf("unhandled setting kind for %q", key)
}

// storedValue converts a parsed value into its TOML representation.
func storedValue(v any) any {
	switch val := v.(type) {
	case time.Duration:
		return val.String()
	case domain.AIProvider:
		return val.String()
	default:
		return val
	}
}
