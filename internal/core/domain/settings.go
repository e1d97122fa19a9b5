package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or any compatible server.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API. It has no embedding endpoint.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderGemini is the Google Gemini API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic || p == AIProviderGemini
}

// SupportsEmbeddings returns true if this provider can produce embeddings.
func (p AIProvider) SupportsEmbeddings() bool {
	return p.IsValid() && p != AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderGemini:
		return "Google Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint. Empty means the provider default.
	BaseURL string

	// APIKey is the API key for cloud providers.
	APIKey string

	// Dimensions overrides the model's default vector size, where supported.
	Dimensions int

	// BatchSize is the number of chunks sent per embedding request during a build.
	BatchSize int

	// MaxRetries is the number of retries for a failed batch.
	MaxRetries int

	// RequestsPerSecond caps the embedding request rate. Zero disables throttling.
	RequestsPerSecond float64

	// Timeout bounds each embedding call.
	Timeout time.Duration
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.SupportsEmbeddings() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds generative model configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint. Empty means the provider default.
	BaseURL string

	// APIKey is the API key for cloud providers.
	APIKey string

	// Timeout bounds each generation call.
	Timeout time.Duration

	// MaxTokens caps the answer length. Zero means the provider default.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ChunkSettings configures the chunk splitter.
type ChunkSettings struct {
	// MaxChars bounds the length of every chunk, in characters.
	MaxChars int

	// OverlapChars is the number of trailing characters repeated at the
	// start of the next chunk. Must be smaller than MaxChars.
	OverlapChars int
}

// RetrievalSettings configures query-time retrieval.
type RetrievalSettings struct {
	// TopK is the number of chunks retrieved per question.
	TopK int

	// MinSimilarity drops hits whose similarity is not above it.
	MinSimilarity float64
}

// WatchSettings configures the corpus watcher.
type WatchSettings struct {
	// Debounce is the quiet period after a file event before rebuilding.
	Debounce time.Duration

	// Interval is the period of the background rebuild, which also retries
	// a failed persist. Zero disables periodic rebuilds.
	Interval time.Duration
}

// Settings holds all application settings.
type Settings struct {
	// DocumentsDir is the corpus directory. It is only ever read.
	DocumentsDir string

	// IndexDir holds the persisted index, its manifest and the build lock.
	IndexDir string

	// Workers bounds concurrent document loading during a build.
	Workers int

	Chunking  ChunkSettings
	Retrieval RetrievalSettings
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Watch     WatchSettings
}

// DefaultSettings returns settings with sensible defaults.
// AI providers default to a local Ollama instance.
func DefaultSettings() Settings {
	return Settings{
		DocumentsDir: "documents",
		IndexDir:     "index",
		Workers:      4,
		Chunking: ChunkSettings{
			MaxChars:     1000,
			OverlapChars: 200,
		},
		Retrieval: RetrievalSettings{
			TopK:          4,
			MinSimilarity: 0,
		},
		Embedding: EmbeddingSettings{
			Provider:   AIProviderOllama,
			Model:      DefaultEmbeddingModels()[AIProviderOllama],
			BatchSize:  32,
			MaxRetries: 3,
			Timeout:    60 * time.Second,
		},
		LLM: LLMSettings{
			Provider: AIProviderOllama,
			Model:    DefaultLLMModels()[AIProviderOllama],
			Timeout:  60 * time.Second,
		},
		Watch: WatchSettings{
			Debounce: 2 * time.Second,
			Interval: 15 * time.Minute,
		},
	}
}

// Validate checks settings for values the pipeline cannot work with.
func (s Settings) Validate() error {
	switch {
	case s.DocumentsDir == "":
		return fmt.Errorf("%w: documents directory is required", ErrInvalidInput)
	case s.IndexDir == "":
		return fmt.Errorf("%w: index directory is required", ErrInvalidInput)
	case s.Chunking.MaxChars <= 0:
		return fmt.Errorf("%w: chunking.max_chars must be positive", ErrInvalidInput)
	case s.Chunking.OverlapChars < 0 || s.Chunking.OverlapChars >= s.Chunking.MaxChars:
		return fmt.Errorf("%w: chunking.overlap_chars must be in [0, max_chars)", ErrInvalidInput)
	case s.Retrieval.TopK <= 0:
		return fmt.Errorf("%w: retrieval.top_k must be positive", ErrInvalidInput)
	case s.Embedding.BatchSize <= 0:
		return fmt.Errorf("%w: embedding.batch_size must be positive", ErrInvalidInput)
	case s.Embedding.MaxRetries < 0:
		return fmt.Errorf("%w: embedding.max_retries must not be negative", ErrInvalidInput)
	}
	return nil
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGemini,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
		AIProviderGemini,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderGemini: "gemini-embedding-001",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
		AIProviderGemini:    "gemini-2.0-flash",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"gemini-embedding-001": 3072,
		"text-embedding-004":   768,
	}
}
