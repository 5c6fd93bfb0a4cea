// Package chunker splits item content into bounded, provenance-carrying pieces.
//
// Sizes are counted in characters (runes). Text is cut at the last natural
// boundary (end of line, or the whitespace after '.', '!' or '?') that fits
// the size limit. A unit with no boundary inside the limit is emitted whole.
package chunker

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"unicode"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Piece is one chunk produced by the Chunker.
type Piece struct {
	// Index is the 0-based position in the sequence.
	Index int

	Content string

	// Start and End are rune offsets of Content in the input.
	// For transcripts the input is the segments joined by single spaces.
	Start int
	End   int

	Provenance domain.Provenance
}

// Chunker splits text and transcripts into overlapping pieces.
type Chunker struct {
	size    int
	overlap int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithSize sets the chunk size in characters.
func WithSize(size int) Option {
	return func(c *Chunker) {
		c.size = size
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New creates a chunker. The size must be positive and larger than the overlap.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	switch {
	case c.size <= 0:
		return nil, fmt.Errorf("%w: chunk size %d must be positive", domain.ErrInvalidInput, c.size)
	case c.overlap < 0:
		return nil, fmt.Errorf("%w: chunk overlap %d must not be negative", domain.ErrInvalidInput, c.overlap)
	case c.size <= c.overlap:
		return nil, fmt.Errorf("%w: chunk size %d must exceed overlap %d", domain.ErrInvalidInput, c.size, c.overlap)
	}
	return c, nil
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Text splits code or article text. Pieces carry a LineSpan for path.
// Whitespace-only input yields no pieces.
func (c *Chunker) Text(path, text string) iter.Seq[Piece] {
	return func(yield func(Piece) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}
		r := []rune(text)
		newlines := newlineOffsets(r)

		idx := 0
		for start, end := range c.spans(r) {
			p := Piece{
				Index:   idx,
				Content: string(r[start:end]),
				Start:   start,
				End:     end,
				Provenance: domain.LineSpan{
					Path:      path,
					StartLine: lineAt(newlines, start),
					EndLine:   lineAt(newlines, end-1),
				},
			}
			if !yield(p) {
				return
			}
			idx++
		}
	}
}

// spans yields [start, end) rune ranges covering r.
func (c *Chunker) spans(r []rune) iter.Seq2[int, int] {
	return func(yield func(int, int) bool) {
		n := len(r)
		start, prevEnd := 0, 0
		for {
			end := c.cut(r, start, prevEnd)
			// An overlapped start that forces an oversized chunk falls back to no overlap.
			if end-start > c.size && start < prevEnd {
				start = prevEnd
				end = c.cut(r, start, prevEnd)
			}
			if !yield(start, end) {
				return
			}
			if end >= n {
				return
			}
			start, prevEnd = c.nextStart(r, start, end), end
		}
	}
}

// cut returns the end of the chunk starting at start. The end is always past floor.
func (c *Chunker) cut(r []rune, start, floor int) int {
	n := len(r)
	limit := start + c.size
	if limit >= n {
		return n
	}
	for p := limit; p > floor && p > start; p-- {
		if isCutBoundary(r, p) {
			return p
		}
	}
	for p := limit + 1; p < n; p++ {
		if isCutBoundary(r, p) {
			return p
		}
	}
	return n
}

// nextStart backs up overlap runes from end, then snaps forward to a boundary.
func (c *Chunker) nextStart(r []rune, start, end int) int {
	if c.overlap == 0 {
		return end
	}
	from := end - c.overlap
	if from <= start {
		return end
	}
	// Prefer a line or sentence start, then a word start.
	for _, ok := range []func([]rune, int) bool{isCutBoundary, isWordBoundary} {
		for p := from; p < end; p++ {
			if ok(r, p) {
				return p
			}
		}
	}
	return from
}

// isCutBoundary reports whether a chunk may end before r[p].
func isCutBoundary(r []rune, p int) bool {
	if p <= 0 || p >= len(r) {
		return p == len(r)
	}
	prev := r[p-1]
	if prev == '\n' {
		return true
	}
	if !unicode.IsSpace(prev) || p < 2 {
		return false
	}
	switch r[p-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func isWordBoundary(r []rune, p int) bool {
	return p > 0 && p < len(r) && unicode.IsSpace(r[p-1]) && !unicode.IsSpace(r[p])
}

func newlineOffsets(r []rune) []int {
	var out []int
	for i, ch := range r {
		if ch == '\n' {
			out = append(out, i)
		}
	}
	return out
}

// lineAt returns the 1-based line of rune offset pos.
func lineAt(newlines []int, pos int) int {
	return sort.SearchInts(newlines, pos) + 1
}
