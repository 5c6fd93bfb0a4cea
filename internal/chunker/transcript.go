package chunker

import (
	"iter"
	"strings"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

// Transcript splits timed segments. Segments are joined with single spaces
// and never split, so a piece's TimeSpan runs from its first segment's start
// to its last segment's end. Blank segments are dropped.
func (c *Chunker) Transcript(segs []domain.Segment) iter.Seq[Piece] {
	return func(yield func(Piece) bool) {
		var kept []domain.Segment
		for _, s := range segs {
			s.Text = strings.TrimSpace(s.Text)
			if s.Text != "" {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			return
		}

		// offsets[i] is the rune offset of segment i in the joined text.
		offsets := make([]int, len(kept))
		lengths := make([]int, len(kept))
		pos := 0
		for i, s := range kept {
			offsets[i] = pos
			lengths[i] = len([]rune(s.Text))
			pos += lengths[i] + 1
		}
		span := func(i, j int) int {
			return offsets[j] + lengths[j] - offsets[i]
		}

		idx := 0
		first, prevLast := 0, -1
		for first < len(kept) {
			last := first
			// Always take one segment past the previous piece, even if it alone exceeds the size.
			for last <= prevLast {
				last++
			}
			for last+1 < len(kept) && span(first, last+1) <= c.size {
				last++
			}

			texts := make([]string, 0, last-first+1)
			for _, s := range kept[first : last+1] {
				texts = append(texts, s.Text)
			}
			p := Piece{
				Index:   idx,
				Content: strings.Join(texts, " "),
				Start:   offsets[first],
				End:     offsets[last] + lengths[last],
				Provenance: domain.TimeSpan{
					Start: kept[first].Start,
					End:   kept[last].End,
				},
			}
			if !yield(p) {
				return
			}
			idx++
			if last == len(kept)-1 {
				return
			}
			first, prevLast = c.nextSegment(span, first, last), last
		}
	}
}

// nextSegment picks the first segment of the next piece: the earliest segment
// after first whose run up to last fits in the overlap, and which still leaves
// room for the segment after last.
func (c *Chunker) nextSegment(span func(i, j int) int, first, last int) int {
	if c.overlap == 0 {
		return last + 1
	}
	k := last + 1
	for k-1 > first && span(k-1, last) <= c.overlap {
		k--
	}
	for k <= last && span(k, last+1) > c.size {
		k++
	}
	return k
}
