package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
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
	default:
		return unknownDescription
	}
}

// StoreBackend selects the knowledge store implementation.
type StoreBackend string

// Available store backends.
const (
	// StoreSQLite is a local file database. Similarity is computed in process.
	StoreSQLite StoreBackend = "sqlite"

	// StorePostgres is PostgreSQL with the pgvector extension.
	StorePostgres StoreBackend = "postgres"
)

// IsValid returns true if the backend is recognised.
func (b StoreBackend) IsValid() bool {
	return b == StoreSQLite || b == StorePostgres
}

// StoreSettings holds knowledge store configuration.
type StoreSettings struct {
	Backend StoreBackend

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the vector size every stored embedding must have.
	Dimensions int

	// BatchSize is how many texts go in one request.
	BatchSize int
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	Provider AIProvider
	Model    string
	BaseURL  string
	APIKey   string

	// MaxTokens caps the answer length.
	MaxTokens int
}

// TranscriptionSettings holds speech-to-text configuration.
type TranscriptionSettings struct {
	Model   string
	BaseURL string
	APIKey  string
}

// ChunkSettings holds chunker configuration, in characters.
type ChunkSettings struct {
	Size    int
	Overlap int
}

// RetrySettings holds the backoff policy for remote calls.
type RetrySettings struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// Settings holds all process-wide configuration. It is built once at startup
// and passed explicitly to the components that need it.
type Settings struct {
	Store         StoreSettings
	Embedding     EmbeddingSettings
	LLM           LLMSettings
	Transcription TranscriptionSettings
	Chunk         ChunkSettings
	Retry         RetrySettings

	// TopK is the default number of chunks retrieved per question.
	TopK int

	GitHubToken   string
	YouTubeAPIKey string

	// AudioDir is where downloaded audio is kept while transcribing.
	AudioDir string
}

// DefaultSettings returns settings with sensible defaults.
// API keys are left empty.
func DefaultSettings() Settings {
	return Settings{
		Store: StoreSettings{
			Backend: StoreSQLite,
		},
		Embedding: EmbeddingSettings{
			Provider:   AIProviderOpenAI,
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  64,
		},
		LLM: LLMSettings{
			Provider:  AIProviderOpenAI,
			Model:     "gpt-4o-mini",
			MaxTokens: 2048,
		},
		Transcription: TranscriptionSettings{
			Model: "whisper-1",
		},
		Chunk: ChunkSettings{
			Size:    1000,
			Overlap: 200,
		},
		Retry: RetrySettings{
			MaxAttempts: 4,
			InitialWait: time.Second,
			MaxWait:     30 * time.Second,
		},
		TopK: 5,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "llama3.2",
		AIProviderOpenAI: "gpt-4o-mini",
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
	}
}
