package ai

import (
	"errors"

	"github.com/hrygo/mnemo/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	Enabled   bool
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	// RequestsPerSecond throttles calls to the provider; 0 disables throttling.
	RequestsPerSecond float64
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsEmbeddingEnabled(),
	}

	if !cfg.Enabled {
		return cfg
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:          p.EmbeddingProvider,
		Model:             p.EmbeddingModel,
		APIKey:            p.EmbeddingAPIKey,
		BaseURL:           p.EmbeddingBaseURL,
		Dimensions:        p.EmbeddingDimensions,
		RequestsPerSecond: p.EmbeddingRequestsPerSecond,
	}
	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = 1536
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}

	if c.Embedding.Provider != "ollama" && c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}

	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}

	return nil
}
