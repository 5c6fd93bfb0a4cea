package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

func collectTranscript(c *Chunker, segs []domain.Segment) []Piece {
	var out []Piece
	for p := range c.Transcript(segs) {
		out = append(out, p)
	}
	return out
}

var talk = []domain.Segment{
	{Start: 0, End: 2, Text: "Hello there."},
	{Start: 2, End: 5, Text: " This is a test. "},
	{Start: 5, End: 9, Text: "Of the chunker."},
}

func TestTranscript_Empty(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	assert.Empty(t, collectTranscript(c, nil))
	assert.Empty(t, collectTranscript(c, []domain.Segment{{Start: 0, End: 3, Text: "   "}}))
}

func TestTranscript_SinglePiece(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	pieces := collectTranscript(c, talk)
	require.Len(t, pieces, 1)
	assert.Equal(t, "Hello there. This is a test. Of the chunker.", pieces[0].Content)
	assert.Equal(t, domain.TimeSpan{Start: 0, End: 9}, pieces[0].Provenance)
	assert.Equal(t, 0, pieces[0].Start)
	assert.Equal(t, len(pieces[0].Content), pieces[0].End)
}

func TestTranscript_NoOverlap(t *testing.T) {
	c, err := New(WithSize(30), WithOverlap(0))
	require.NoError(t, err)

	pieces := collectTranscript(c, talk)
	require.Len(t, pieces, 2)
	assert.Equal(t, "Hello there. This is a test.", pieces[0].Content)
	assert.Equal(t, domain.TimeSpan{Start: 0, End: 5}, pieces[0].Provenance)
	assert.Equal(t, "Of the chunker.", pieces[1].Content)
	assert.Equal(t, domain.TimeSpan{Start: 5, End: 9}, pieces[1].Provenance)
	assert.Equal(t, 1, pieces[1].Index)
}

func TestTranscript_OverlapRepeatsWholeSegments(t *testing.T) {
	c, err := New(WithSize(31), WithOverlap(16))
	require.NoError(t, err)

	pieces := collectTranscript(c, talk)
	require.Len(t, pieces, 2)
	assert.Equal(t, "Hello there. This is a test.", pieces[0].Content)
	assert.Equal(t, "This is a test. Of the chunker.", pieces[1].Content)
	assert.Equal(t, domain.TimeSpan{Start: 2, End: 9}, pieces[1].Provenance)
	assert.Less(t, pieces[1].Start, pieces[0].End)
}

func TestTranscript_LongSegmentEmittedWhole(t *testing.T) {
	c, err := New(WithSize(20), WithOverlap(5))
	require.NoError(t, err)

	long := strings.Repeat("y", 50)
	pieces := collectTranscript(c, []domain.Segment{
		{Start: 0, End: 10, Text: long},
		{Start: 10, End: 12, Text: "ok"},
	})
	require.Len(t, pieces, 2)
	assert.Equal(t, long, pieces[0].Content)
	assert.Equal(t, domain.TimeSpan{Start: 0, End: 10}, pieces[0].Provenance)
	assert.Equal(t, "ok", pieces[1].Content)
}

func TestTranscript_EverySegmentCovered(t *testing.T) {
	c, err := New(WithSize(60), WithOverlap(25))
	require.NoError(t, err)

	var segs []domain.Segment
	for i := 0; i < 40; i++ {
		segs = append(segs, domain.Segment{Start: float64(i), End: float64(i + 1), Text: "segment text number"})
	}
	pieces := collectTranscript(c, segs)
	require.NotEmpty(t, pieces)

	covered := 0.0
	for i, p := range pieces {
		span := p.Provenance.(domain.TimeSpan)
		assert.LessOrEqual(t, span.Start, covered, "gap before piece %d", i)
		assert.Greater(t, span.End, covered, "piece %d does not advance", i)
		covered = span.End
	}
	assert.Equal(t, 40.0, covered)
}
