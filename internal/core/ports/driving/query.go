package driving

import (
	"context"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

// QueryOptions configures retrieval.
type QueryOptions struct {
	// K is the number of chunks retrieved. Zero or less uses the configured default.
	K int

	Filter domain.SearchFilter
}

// QueryService answers questions over the knowledge base.
type QueryService interface {
	// Ask answers a single question with citations.
	Ask(ctx context.Context, question string, opts QueryOptions) (*domain.Answer, error)

	// Retrieve returns the chunks most similar to question without calling the LLM.
	Retrieve(ctx context.Context, question string, opts QueryOptions) ([]domain.SearchHit, error)

	// Chat answers question in the context of history and appends the turn to it.
	Chat(ctx context.Context, history *domain.History, question string, opts QueryOptions) (*domain.Answer, error)

	// Stats returns knowledge base counts.
	Stats(ctx context.Context) (domain.Stats, error)
}
