// Package mcp provides an MCP (Model Context Protocol) server adapter for ruleforge.
// It lets AI assistants query the reference corpus, inspect and restore
// configuration snapshots, and read pipeline run history.
package mcp

import "errors"

// ErrMissingSimilarityService is returned when the similarity service is not provided.
var ErrMissingSimilarityService = errors.New("mcp: similarity service is required")

// ErrMissingConfigService is returned when the configuration service is not provided.
var ErrMissingConfigService = errors.New("mcp: configuration service is required")
