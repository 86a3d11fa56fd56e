package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/internal/profile"
)

func TestNewConfigFromProfile(t *testing.T) {
	tests := []struct {
		name        string
		profile     *profile.Profile
		wantEnabled bool
		wantDims    int
	}{
		{
			name: "openrouter with key",
			profile: &profile.Profile{
				EmbeddingProvider:   "openrouter",
				EmbeddingModel:      "openai/text-embedding-3-small",
				EmbeddingAPIKey:     "sk-test",
				EmbeddingBaseURL:    "https://openrouter.ai/api/v1",
				EmbeddingDimensions: 1536,
			},
			wantEnabled: true,
			wantDims:    1536,
		},
		{
			name: "ollama without key",
			profile: &profile.Profile{
				EmbeddingProvider: "ollama",
				EmbeddingModel:    "nomic-embed-text",
				EmbeddingBaseURL:  "http://localhost:11434/v1",
			},
			wantEnabled: true,
			wantDims:    1536,
		},
		{
			name:        "disabled without key",
			profile:     &profile.Profile{EmbeddingProvider: "openai"},
			wantEnabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfigFromProfile(tt.profile)
			assert.Equal(t, tt.wantEnabled, cfg.Enabled)
			assert.Equal(t, tt.wantDims, cfg.Embedding.Dimensions)
			require.NoError(t, cfg.Validate())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{Enabled: true, Embedding: EmbeddingConfig{Provider: "openai", Model: "m"}}
	assert.Error(t, cfg.Validate(), "missing api key")

	cfg.Embedding.APIKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.Embedding.Model = ""
	assert.Error(t, cfg.Validate())
}

func TestEmbeddingService_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		// Answer in reverse order to check index mapping.
		data := []map[string]any{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer server.Close()

	svc, err := NewEmbeddingService(&EmbeddingConfig{
		Model:             "test-model",
		APIKey:            "k",
		BaseURL:           server.URL,
		Dimensions:        2,
		RequestsPerSecond: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Dimensions())
	assert.Equal(t, "test-model", svc.Model())

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0, 1}, vectors[0])
	assert.Equal(t, []float32{2, 1}, vectors[2])

	vec, err := svc.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)

	_, err = svc.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestEmbeddingService_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	svc, err := NewEmbeddingService(&EmbeddingConfig{Model: "m", APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create embeddings failed")
}
