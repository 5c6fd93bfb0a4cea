package driven

import (
	"context"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

// Transcriber converts an audio file into timed text segments.
// An unintelligible recording yields zero segments and no error.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]domain.Segment, error)
}
