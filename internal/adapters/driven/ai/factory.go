// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"fmt"

	ollamaembed "github.com/audiovideoron/distillyzer/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/audiovideoron/distillyzer/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/audiovideoron/distillyzer/internal/adapters/driven/llm/ollama"
	openaillm "github.com/audiovideoron/distillyzer/internal/adapters/driven/llm/openai"
	"github.com/audiovideoron/distillyzer/internal/adapters/driven/transcribe/openai"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
)

// CreateEmbeddingService creates the embedding service the settings name.
func CreateEmbeddingService(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrInvalidInput, settings.Provider)
	}
}

// CreateLLMService creates the LLM service the settings name.
func CreateLLMService(settings domain.LLMSettings) (driven.LLMService, error) {
	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", domain.ErrInvalidInput, settings.Provider)
	}
}

// CreateTranscriber creates the speech-to-text service. It returns nil
// without an API key; video harvests then report ErrConfigMissing.
func CreateTranscriber(settings domain.TranscriptionSettings) (driven.Transcriber, error) {
	if settings.APIKey == "" {
		return nil, nil
	}
	return openai.NewTranscriber(openai.Config{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: settings.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}
