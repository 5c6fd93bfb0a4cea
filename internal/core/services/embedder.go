package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/logger"
	"github.com/audiovideoron/distillyzer/internal/retry"
)

// DefaultBatchSize is how many texts go in one embedding request.
const DefaultBatchSize = 64

// Embedder batches texts through an EmbeddingService with retries and
// checks every returned vector against the configured dimension.
type Embedder struct {
	svc       driven.EmbeddingService
	batchSize int
	retry     retry.Config
}

// NewEmbedder wraps svc. A batchSize below 1 uses DefaultBatchSize.
func NewEmbedder(svc driven.EmbeddingService, batchSize int, retryCfg retry.Config) *Embedder {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{svc: svc, batchSize: batchSize, retry: retryCfg}
}

// Dimensions returns the vector size every embedding must have.
func (e *Embedder) Dimensions() int {
	return e.svc.Dimensions()
}

// ModelName returns the embedding model name.
func (e *Embedder) ModelName() string {
	return e.svc.ModelName()
}

// EmbedTexts returns one vector per text, in input order.
//
// Batches that still fail after retries leave nil entries and contribute a
// *domain.RemoteServiceError listing the failed input indexes. Vectors of the
// wrong length are dropped and reported as *domain.DataIntegrityError. All
// such errors are joined into the returned error; successful vectors are
// returned regardless. Context cancellation stops immediately.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	defer logger.Since(fmt.Sprintf("embedding %d texts", len(texts)), time.Now())

	dims := e.svc.Dimensions()
	out := make([][]float32, len(texts))
	var errs []error

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		vecs, err := retry.Do(ctx, e.retry, func(ctx context.Context) ([][]float32, error) {
			return e.svc.EmbedBatch(ctx, batch)
		})
		if err == nil && len(vecs) != len(batch) {
			err = &domain.DataIntegrityError{
				Record: fmt.Sprintf("inputs %d-%d", start, end-1),
				Reason: fmt.Sprintf("got %d vectors for %d inputs", len(vecs), len(batch)),
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			units := make([]int, 0, len(batch))
			for i := start; i < end; i++ {
				units = append(units, i)
			}
			logger.Warn("embedding batch %d-%d failed: %v", start, end-1, err)
			errs = append(errs, &domain.RemoteServiceError{
				Service:  "embedding",
				Units:    units,
				Attempts: retry.Attempts(err),
				Err:      err,
			})
			continue
		}

		for i, v := range vecs {
			if len(v) != dims {
				errs = append(errs, &domain.DataIntegrityError{
					Record: fmt.Sprintf("input %d", start+i),
					Want:   dims,
					Got:    len(v),
				})
				continue
			}
			out[start+i] = v
		}
	}
	return out, errors.Join(errs...)
}

// EmbedQuery embeds a single question.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// missingIndexes returns the positions of nil vectors.
func missingIndexes(vecs [][]float32, n int) []int {
	var idx []int
	for i := range n {
		if i >= len(vecs) || vecs[i] == nil {
			idx = append(idx, i)
		}
	}
	return idx
}
