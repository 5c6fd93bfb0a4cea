package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
)

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the knowledge base"`
	Sources  int    `json:"sources,omitempty" jsonschema:"number of chunks to retrieve as context (default from config)"`
	Kind     string `json:"kind,omitempty" jsonschema:"restrict to one source kind: video, code or article"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer    string           `json:"answer"`
	Citations []CitationOutput `json:"citations"`
	NoSources bool             `json:"no_sources,omitempty"`
}

// CitationOutput is one numbered source of an answer.
type CitationOutput struct {
	Number     int     `json:"number"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Locator    string  `json:"locator,omitempty"`
	Similarity float64 `json:"similarity"`
}

// SearchInput is the input schema for the search_knowledge tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"text to find similar chunks for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of chunks to return (default 10)"`
	Kind  string `json:"kind,omitempty" jsonschema:"restrict to one source kind: video, code or article"`
}

// SearchOutput is the output schema for the search_knowledge tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single retrieved chunk.
type SearchResultOutput struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Source     string  `json:"source"`
	Locator    string  `json:"locator,omitempty"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question from the harvested knowledge base, with numbered citations",
	}, s.handleQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Find the stored chunks most similar to a text, without generating an answer",
	}, s.handleSearch)
}

// handleQuery handles the query tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	kind, err := domain.ParseSourceKind(input.Kind)
	if err != nil {
		return nil, QueryOutput{}, err
	}

	ans, err := s.ports.Query.Ask(ctx, input.Question, driving.QueryOptions{
		K:      input.Sources,
		Filter: domain.SearchFilter{SourceKind: kind},
	})
	if err != nil {
		return nil, QueryOutput{}, err
	}

	output := QueryOutput{
		Answer:    ans.Text,
		Citations: make([]CitationOutput, len(ans.Citations)),
		NoSources: ans.NoSources,
	}
	for i, c := range ans.Citations {
		output.Citations[i] = CitationOutput{
			Number:     i + 1,
			Title:      c.Title,
			URL:        c.URL,
			Locator:    c.Locator,
			Similarity: c.Similarity,
		}
	}
	return nil, output, nil
}

// handleSearch handles the search_knowledge tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	kind, err := domain.ParseSourceKind(input.Kind)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	hits, err := s.ports.Query.Retrieve(ctx, input.Query, driving.QueryOptions{
		K:      limit,
		Filter: domain.SearchFilter{SourceKind: kind},
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(hits)),
		Count:   len(hits),
	}
	for i, h := range hits {
		c := domain.CitationFor(h)
		output.Results[i] = SearchResultOutput{
			Title:      c.Title,
			URL:        c.URL,
			Source:     h.Source.Name,
			Locator:    c.Locator,
			Similarity: c.Similarity,
			Content:    h.Chunk.Content,
		}
	}
	return nil, output, nil
}
