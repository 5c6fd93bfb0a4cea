// Package mcp provides an MCP (Model Context Protocol) server adapter for distillyzer.
// It lets AI assistants ask questions of the knowledge base and search it.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")
