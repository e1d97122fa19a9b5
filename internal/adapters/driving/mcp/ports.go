package mcp

import (
	"github.com/custodia-labs/safety-consultant/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Consultant answers questions and maintains the index.
	Consultant driving.Consultant
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Consultant == nil {
		return ErrMissingConsultant
	}
	return nil
}
