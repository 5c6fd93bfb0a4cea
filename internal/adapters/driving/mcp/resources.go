package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// uriScheme is the custom URI scheme for knowledge base resources.
const uriScheme = "distillyzer://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "stats",
		Name:        "stats",
		Description: "Counts of harvested sources, items and chunks",
		MIMEType:    "application/json",
	}, s.handleStatsResource)
}

// statsInfo is the JSON shape of the stats resource.
type statsInfo struct {
	Sources     int            `json:"sources"`
	Items       int            `json:"items"`
	Chunks      int            `json:"chunks"`
	ItemsByKind map[string]int `json:"items_by_kind"`
}

// handleStatsResource returns knowledge base counts.
func (s *Server) handleStatsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	stats, err := s.ports.Query.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	info := statsInfo{
		Sources:     stats.Sources,
		Items:       stats.Items,
		Chunks:      stats.Chunks,
		ItemsByKind: make(map[string]int, len(stats.ItemsByKind)),
	}
	for kind, n := range stats.ItemsByKind {
		info.ItemsByKind[string(kind)] = n
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling stats: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
