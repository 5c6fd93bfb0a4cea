package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ollamaembed "github.com/audiovideoron/distillyzer/internal/adapters/driven/embedding/ollama"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name     string
		settings domain.EmbeddingSettings
		wantErr  error
		wantDims int
	}{
		{
			name: "ollama provider creates service",
			settings: domain.EmbeddingSettings{
				Provider:   domain.AIProviderOllama,
				Model:      "nomic-embed-text",
				Dimensions: 768,
			},
			wantDims: 768,
		},
		{
			name: "ollama falls back to default dimensions",
			settings: domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				Model:    "custom-model",
			},
			wantDims: ollamaembed.DefaultDimensions,
		},
		{
			name: "openai provider creates service",
			settings: domain.EmbeddingSettings{
				Provider:   domain.AIProviderOpenAI,
				APIKey:     "test-key",
				Model:      "text-embedding-3-small",
				Dimensions: 1536,
			},
			wantDims: 1536,
		},
		{
			name: "unknown provider",
			settings: domain.EmbeddingSettings{
				Provider: "anthropic",
			},
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, svc)
			defer svc.Close()
			assert.Equal(t, tt.wantDims, svc.Dimensions())
		})
	}
}

func TestCreateEmbeddingService_OpenAIWithoutKey(t *testing.T) {
	svc, err := CreateEmbeddingService(domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI})

	assert.Error(t, err)
	assert.Nil(t, svc)
}

func TestCreateLLMService(t *testing.T) {
	t.Run("ollama", func(t *testing.T) {
		svc, err := CreateLLMService(domain.LLMSettings{Provider: domain.AIProviderOllama, Model: "llama3.2"})
		require.NoError(t, err)
		assert.Equal(t, "llama3.2", svc.ModelName())
	})

	t.Run("openai", func(t *testing.T) {
		svc, err := CreateLLMService(domain.LLMSettings{
			Provider: domain.AIProviderOpenAI,
			APIKey:   "test-key",
			Model:    "gpt-4o-mini",
		})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o-mini", svc.ModelName())
	})

	t.Run("unknown provider", func(t *testing.T) {
		svc, err := CreateLLMService(domain.LLMSettings{Provider: "anthropic"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Nil(t, svc)
	})
}

func TestCreateTranscriber(t *testing.T) {
	t.Run("no key means no transcriber", func(t *testing.T) {
		tr, err := CreateTranscriber(domain.TranscriptionSettings{Model: "whisper-1"})
		require.NoError(t, err)
		assert.Nil(t, tr)
	})

	t.Run("with key", func(t *testing.T) {
		tr, err := CreateTranscriber(domain.TranscriptionSettings{APIKey: "test-key", Model: "whisper-1"})
		require.NoError(t, err)
		assert.NotNil(t, tr)
	})
}
