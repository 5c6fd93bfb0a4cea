package domain

import (
	"fmt"
	"time"
)

// Chunk is a bounded slice of an Item's content with its embedding.
type Chunk struct {
	ID     int64
	ItemID int64

	Content string

	// Index is the 0-based position within the item. Indices are contiguous.
	Index int

	// Provenance locates the chunk inside its item.
	Provenance Provenance

	// Embedding has exactly the store's configured dimension.
	Embedding []float32

	CreatedAt time.Time
}

// Provenance locates a chunk inside its item. It is either a TimeSpan
// or a LineSpan, never both.
type Provenance interface {
	// Locator returns the human-readable position, e.g. "03:12" or "main.go:L4-L20".
	Locator() string

	provenance()
}

// TimeSpan is the provenance of transcript chunks, in seconds.
type TimeSpan struct {
	Start float64
	End   float64
}

func (TimeSpan) provenance() {}

// Locator returns the start timestamp.
func (s TimeSpan) Locator() string {
	return FormatTimestamp(s.Start)
}

// LineSpan is the provenance of code and article chunks. Lines are 1-based and inclusive.
type LineSpan struct {
	Path      string
	StartLine int
	EndLine   int
}

func (LineSpan) provenance() {}

// Locator returns "path:Lstart-Lend".
func (s LineSpan) Locator() string {
	if s.Path == "" {
		return fmt.Sprintf("L%d-L%d", s.StartLine, s.EndLine)
	}
	return fmt.Sprintf("%s:L%d-L%d", s.Path, s.StartLine, s.EndLine)
}

// FormatTimestamp renders seconds as mm:ss, or h:mm:ss past the hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Segment is one timed piece of a transcript.
type Segment struct {
	Start float64
	End   float64
	Text  string
}
