package driven

import (
	"context"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

// KnowledgeWriter inserts records. Writes are insert-only; nothing is updated in place.
type KnowledgeWriter interface {
	// CreateSource inserts a source and returns its new ID.
	// A duplicate URL yields *domain.ConflictError.
	CreateSource(ctx context.Context, src domain.Source) (int64, error)

	// CreateItem inserts an item under an existing source and returns its new ID.
	// A duplicate URL yields *domain.ConflictError.
	CreateItem(ctx context.Context, item domain.Item) (int64, error)

	// CreateChunk inserts a chunk under an existing item and returns its new ID.
	// An embedding of the wrong dimension yields *domain.DataIntegrityError.
	CreateChunk(ctx context.Context, chunk domain.Chunk) (int64, error)

	// SourceByURL returns the source with the given URL or domain.ErrNotFound.
	SourceByURL(ctx context.Context, url string) (*domain.Source, error)

	// ItemByURL returns the item with the given URL or domain.ErrNotFound.
	ItemByURL(ctx context.Context, url string) (*domain.Item, error)
}

// KnowledgeStore persists sources, items and chunks and answers similarity queries.
type KnowledgeStore interface {
	KnowledgeWriter

	// WithinTx runs fn in one transaction. It commits when fn returns nil
	// and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx KnowledgeWriter) error) error

	// SimilaritySearch returns at most k chunks nearest to vec under cosine
	// distance, nearest first, ties broken by chunk ID. An empty store yields
	// an empty slice. k <= 0 yields domain.ErrInvalidInput.
	SimilaritySearch(ctx context.Context, vec []float32, k int, filter domain.SearchFilter) ([]domain.SearchHit, error)

	// Stats returns record counts.
	Stats(ctx context.Context) (domain.Stats, error)

	// Dimensions returns the embedding dimension the store enforces.
	Dimensions() int

	// Close releases the connection.
	Close() error
}
