package domain

// SearchFilter narrows a similarity search. Zero values mean no restriction.
type SearchFilter struct {
	SourceKind SourceKind
	ItemID     int64
}

// IsZero reports whether the filter restricts nothing.
func (f SearchFilter) IsZero() bool {
	return f.SourceKind == "" && f.ItemID == 0
}

// SearchHit is one result of a similarity search.
type SearchHit struct {
	Chunk  Chunk
	Item   Item
	Source Source

	// Similarity is 1 - cosine distance. Higher is closer.
	Similarity float64
}

// Citation points an answer back at the chunk that supported it.
type Citation struct {
	Title      string
	URL        string
	Locator    string
	Similarity float64
}

// CitationFor builds the citation for a hit.
func CitationFor(h SearchHit) Citation {
	c := Citation{
		Title:      h.Item.Title,
		URL:        h.Item.URL,
		Similarity: h.Similarity,
	}
	if h.Chunk.Provenance != nil {
		c.Locator = h.Chunk.Provenance.Locator()
	}
	return c
}

// Answer is the result of a question answered over the knowledge base.
type Answer struct {
	Question  string
	Text      string
	Citations []Citation

	// NoSources is true when retrieval returned nothing and no LLM call was made.
	NoSources bool
}

// NoSourcesText is the fixed answer given when nothing relevant is stored.
const NoSourcesText = "I couldn't find anything relevant in the knowledge base. Try harvesting some sources first."

// NoSourcesAnswer returns the deterministic answer for an empty retrieval.
func NoSourcesAnswer(question string) Answer {
	return Answer{
		Question:  question,
		Text:      NoSourcesText,
		NoSources: true,
	}
}
