// Package tui provides the interactive chat interface for distillyzer.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
)

// Ports aggregates the driving ports the chat UI needs.
type Ports struct {
	// Query answers questions over the knowledge base.
	Query driving.QueryService
}

// NewPorts creates a new Ports aggregate.
func NewPorts(query driving.QueryService) *Ports {
	return &Ports{Query: query}
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
