// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - KnowledgeStore: Source, item and chunk persistence with similarity search
//   - EmbeddingService: Generates vector embeddings for chunks and questions
//   - LLMService: Answers questions over retrieved context
//   - ConfigStore: Application configuration
//   - PromptStore: User-editable prompt templates
//
// # Fetch Interfaces
//
// Each harvest path needs its own collaborators. A nil fetcher disables
// the matching harvest command:
//
//   - VideoDownloader: Video metadata and audio download (yt-dlp)
//   - VideoCatalog: Video search and channel listing
//   - Transcriber: Speech to timed text segments
//   - RepoFetcher: Repository file listing and contents
//   - ArticleFetcher: Web page to Markdown
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
