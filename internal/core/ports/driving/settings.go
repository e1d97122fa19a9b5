package driving

import (
	"context"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// SettingsService manages application settings.
type SettingsService interface {
	// Get resolves current settings: defaults, then the config file,
	// then overrides such as environment variables.
	Get() (*domain.Settings, error)

	// Set stores a single dotted config key, e.g. "retrieval.top_k".
	// The value is parsed for the key's type and the resulting
	// settings are validated before anything is written.
	Set(key, value string) error

	// SetAPIKey stores key for every section (embedding, llm) that uses provider.
	SetAPIKey(provider domain.AIProvider, key string) error

	// Keys returns the config keys the application understands, sorted.
	Keys() []string

	// GetDefaults returns default settings.
	GetDefaults() domain.Settings

	// Check validates the settings and pings the configured providers.
	Check(ctx context.Context) error
}
