package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFormatTimestamp tests mm:ss and h:mm:ss rendering
func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{5.9, "00:05"},
		{192, "03:12"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3723, "1:02:03"},
		{-4, "00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(tt.seconds))
		})
	}
}

// TestProvenance_Locator tests the locator of each provenance variant
func TestProvenance_Locator(t *testing.T) {
	var p Provenance = TimeSpan{Start: 75, End: 140}
	assert.Equal(t, "01:15", p.Locator())

	p = LineSpan{Path: "cmd/main.go", StartLine: 12, EndLine: 40}
	assert.Equal(t, "cmd/main.go:L12-L40", p.Locator())

	p = LineSpan{StartLine: 1, EndLine: 3}
	assert.Equal(t, "L1-L3", p.Locator())
}

// TestCitationFor tests citation construction from a hit
func TestCitationFor(t *testing.T) {
	hit := SearchHit{
		Chunk:      Chunk{Provenance: TimeSpan{Start: 61}},
		Item:       Item{Title: "Talk", URL: "https://youtube.com/watch?v=abc"},
		Similarity: 0.91,
	}
	c := CitationFor(hit)
	assert.Equal(t, Citation{Title: "Talk", URL: "https://youtube.com/watch?v=abc", Locator: "01:01", Similarity: 0.91}, c)

	hit.Chunk.Provenance = nil
	assert.Empty(t, CitationFor(hit).Locator)
}

// TestNoSourcesAnswer tests the deterministic empty-retrieval answer
func TestNoSourcesAnswer(t *testing.T) {
	a := NoSourcesAnswer("what is rag?")
	assert.True(t, a.NoSources)
	assert.Equal(t, NoSourcesText, a.Text)
	assert.Equal(t, "what is rag?", a.Question)
	assert.Empty(t, a.Citations)
}
