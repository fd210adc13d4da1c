package mcp

import (
	"github.com/custodia-labs/ruleforge/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Similarity answers ad-hoc queries against the reference corpus.
	Similarity driving.SimilarityService

	// Config reads and restores configuration snapshots.
	Config driving.ConfigService

	// Pipeline exposes recorded runs. Optional.
	Pipeline driving.PipelineService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Similarity == nil {
		return ErrMissingSimilarityService
	}
	if p.Config == nil {
		return ErrMissingConfigService
	}
	return nil
}
