// Package config builds the process-wide settings from defaults, the TOML
// config file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
)

// Config keys, in dot notation. The environment form of a key is DZ_ plus
// the key upper-cased with dots replaced by underscores.
const (
	KeyStoreBackend     = "store.backend"
	KeyDatabaseURL      = "store.database_url"
	KeySQLitePath       = "store.sqlite_path"
	KeyEmbedProvider    = "embedding.provider"
	KeyEmbedModel       = "embedding.model"
	KeyEmbedBaseURL     = "embedding.base_url"
	KeyEmbedAPIKey      = "embedding.api_key"
	KeyEmbedDimensions  = "embedding.dimensions"
	KeyEmbedBatchSize   = "embedding.batch_size"
	KeyLLMProvider      = "llm.provider"
	KeyLLMModel         = "llm.model"
	KeyLLMBaseURL       = "llm.base_url"
	KeyLLMAPIKey        = "llm.api_key"
	KeyLLMMaxTokens     = "llm.max_tokens"
	KeyTranscribeModel  = "transcription.model"
	KeyTranscribeURL    = "transcription.base_url"
	KeyTranscribeAPIKey = "transcription.api_key"
	KeyChunkSize        = "chunk.size"
	KeyChunkOverlap     = "chunk.overlap"
	KeyRetryAttempts    = "retry.max_attempts"
	KeyRetryInitialWait = "retry.initial_wait"
	KeyRetryMaxWait     = "retry.max_wait"
	KeyTopK             = "retrieval.top_k"
	KeyGitHubToken      = "github.token"
	KeyYouTubeAPIKey    = "youtube.api_key"
	KeyAudioDir         = "harvest.audio_dir"
)

// Well-known environment variables shared with other tools.
// They fill gaps left by the config file and DZ_ variables.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvDatabaseURL   = "DATABASE_URL"
	EnvGitHubToken   = "GITHUB_TOKEN"
	EnvYouTubeAPIKey = "YOUTUBE_API_KEY"
)

// Keys lists every key Load understands.
var Keys = []string{
	KeyStoreBackend, KeyDatabaseURL, KeySQLitePath,
	KeyEmbedProvider, KeyEmbedModel, KeyEmbedBaseURL, KeyEmbedAPIKey, KeyEmbedDimensions, KeyEmbedBatchSize,
	KeyLLMProvider, KeyLLMModel, KeyLLMBaseURL, KeyLLMAPIKey, KeyLLMMaxTokens,
	KeyTranscribeModel, KeyTranscribeURL, KeyTranscribeAPIKey,
	KeyChunkSize, KeyChunkOverlap,
	KeyRetryAttempts, KeyRetryInitialWait, KeyRetryMaxWait,
	KeyTopK, KeyGitHubToken, KeyYouTubeAPIKey, KeyAudioDir,
}

// EnvName returns the DZ_ environment variable for a key.
func EnvName(key string) string {
	return "DZ_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// IsKnownKey reports whether key is one Load reads.
func IsKnownKey(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// layered looks a key up in the environment first, then the config store.
type layered struct {
	store  driven.ConfigStore
	getenv func(string) string
}

func (l layered) lookup(key string) (string, bool) {
	if v := l.getenv(EnvName(key)); v != "" {
		return v, true
	}
	if l.store == nil {
		return "", false
	}
	v, ok := l.store.Get(key)
	if !ok {
		return "", false
	}
	s := fmt.Sprint(v)
	return s, s != ""
}

func (l layered) str(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l layered) num(key string, dst *int) error {
	v, ok := l.lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidInput, key, v)
	}
	*dst = n
	return nil
}

func (l layered) duration(key string, dst *time.Duration) error {
	v, ok := l.lookup(key)
	if !ok {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s must be a duration such as \"2s\", got %q", domain.ErrInvalidInput, key, v)
	}
	*dst = d
	return nil
}

// Load builds settings from defaults, then store, then the environment,
// and validates them. store may be nil. getenv is usually os.Getenv.
func Load(store driven.ConfigStore, getenv func(string) string) (domain.Settings, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	s := domain.DefaultSettings()
	l := layered{store: store, getenv: getenv}

	var backend string
	l.str(KeyStoreBackend, &backend)
	if backend != "" {
		s.Store.Backend = domain.StoreBackend(strings.ToLower(backend))
	}
	l.str(KeyDatabaseURL, &s.Store.DatabaseURL)
	l.str(KeySQLitePath, &s.Store.SQLitePath)

	var embedProvider, llmProvider string
	l.str(KeyEmbedProvider, &embedProvider)
	if embedProvider != "" {
		s.Embedding.Provider = domain.AIProvider(strings.ToLower(embedProvider))
		s.Embedding.Model = domain.DefaultEmbeddingModels()[s.Embedding.Provider]
	}
	modelSet := false
	if v, ok := l.lookup(KeyEmbedModel); ok {
		s.Embedding.Model = v
		modelSet = true
	}
	if dims, ok := domain.EmbeddingDimensions()[s.Embedding.Model]; ok && (modelSet || embedProvider != "") {
		s.Embedding.Dimensions = dims
	}
	l.str(KeyEmbedBaseURL, &s.Embedding.BaseURL)
	l.str(KeyEmbedAPIKey, &s.Embedding.APIKey)

	l.str(KeyLLMProvider, &llmProvider)
	if llmProvider != "" {
		s.LLM.Provider = domain.AIProvider(strings.ToLower(llmProvider))
		s.LLM.Model = domain.DefaultLLMModels()[s.LLM.Provider]
	}
	l.str(KeyLLMModel, &s.LLM.Model)
	l.str(KeyLLMBaseURL, &s.LLM.BaseURL)
	l.str(KeyLLMAPIKey, &s.LLM.APIKey)

	l.str(KeyTranscribeModel, &s.Transcription.Model)
	l.str(KeyTranscribeURL, &s.Transcription.BaseURL)
	l.str(KeyTranscribeAPIKey, &s.Transcription.APIKey)

	l.str(KeyGitHubToken, &s.GitHubToken)
	l.str(KeyYouTubeAPIKey, &s.YouTubeAPIKey)
	l.str(KeyAudioDir, &s.AudioDir)

	for key, dst := range map[string]*int{
		KeyEmbedDimensions: &s.Embedding.Dimensions,
		KeyEmbedBatchSize:  &s.Embedding.BatchSize,
		KeyLLMMaxTokens:    &s.LLM.MaxTokens,
		KeyChunkSize:       &s.Chunk.Size,
		KeyChunkOverlap:    &s.Chunk.Overlap,
		KeyRetryAttempts:   &s.Retry.MaxAttempts,
		KeyTopK:            &s.TopK,
	} {
		if err := l.num(key, dst); err != nil {
			return s, err
		}
	}
	if err := l.duration(KeyRetryInitialWait, &s.Retry.InitialWait); err != nil {
		return s, err
	}
	if err := l.duration(KeyRetryMaxWait, &s.Retry.MaxWait); err != nil {
		return s, err
	}

	// Shared variables only fill what is still empty.
	if key := getenv(EnvOpenAIKey); key != "" {
		for _, dst := range []*string{&s.Embedding.APIKey, &s.LLM.APIKey, &s.Transcription.APIKey} {
			if *dst == "" {
				*dst = key
			}
		}
	}
	fill(&s.Store.DatabaseURL, getenv(EnvDatabaseURL))
	fill(&s.GitHubToken, getenv(EnvGitHubToken))
	fill(&s.YouTubeAPIKey, getenv(EnvYouTubeAPIKey))

	if s.AudioDir == "" {
		s.AudioDir = filepath.Join(os.TempDir(), "distillyzer-audio")
	}

	if err := Validate(s); err != nil {
		return s, err
	}
	return s, nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Validate checks settings for values that would fail later at a worse time.
func Validate(s domain.Settings) error {
	if !s.Store.Backend.IsValid() {
		return fmt.Errorf("%w: unknown store backend %q (expected sqlite or postgres)", domain.ErrInvalidInput, s.Store.Backend)
	}
	if s.Store.Backend == domain.StorePostgres && s.Store.DatabaseURL == "" {
		return fmt.Errorf("%w: postgres backend needs %s or %s", domain.ErrConfigMissing, EnvDatabaseURL, KeyDatabaseURL)
	}
	if !s.Embedding.Provider.IsValid() {
		return fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidInput, s.Embedding.Provider)
	}
	if !s.LLM.Provider.IsValid() {
		return fmt.Errorf("%w: unknown llm provider %q", domain.ErrInvalidInput, s.LLM.Provider)
	}
	if s.Embedding.Provider.RequiresAPIKey() && s.Embedding.APIKey == "" {
		return fmt.Errorf("%w: embedding provider %s needs %s", domain.ErrConfigMissing, s.Embedding.Provider, EnvOpenAIKey)
	}
	if s.LLM.Provider.RequiresAPIKey() && s.LLM.APIKey == "" {
		return fmt.Errorf("%w: llm provider %s needs %s", domain.ErrConfigMissing, s.LLM.Provider, EnvOpenAIKey)
	}
	if s.Embedding.Model == "" || s.LLM.Model == "" {
		return fmt.Errorf("%w: embedding and llm models must be set", domain.ErrConfigMissing)
	}
	if s.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding dimensions must be positive, got %d", domain.ErrInvalidInput, s.Embedding.Dimensions)
	}
	if s.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: embedding batch size must be positive, got %d", domain.ErrInvalidInput, s.Embedding.BatchSize)
	}
	if s.Chunk.Size <= 0 || s.Chunk.Overlap < 0 || s.Chunk.Overlap >= s.Chunk.Size {
		return fmt.Errorf("%w: chunk size %d must be positive and exceed overlap %d",
			domain.ErrInvalidInput, s.Chunk.Size, s.Chunk.Overlap)
	}
	if s.TopK <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", domain.ErrInvalidInput, KeyTopK, s.TopK)
	}
	if s.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: %s must be at least 1", domain.ErrInvalidInput, KeyRetryAttempts)
	}
	return nil
}
