package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// Query defaults used when no configuration snapshot exists yet.
const (
	defaultTopK  = 5
	defaultFloor = 0.5
)

// SimilarityQueryInput is the input schema for the similarity_query tool.
type SimilarityQueryInput struct {
	Text      string    `json:"text,omitempty" jsonschema:"rule or content text to embed and match"`
	Vector    []float32 `json:"vector,omitempty" jsonschema:"precomputed embedding; used instead of text when set"`
	Threshold *float64  `json:"threshold,omitempty" jsonschema:"minimum similarity in [0,1] (default 0.5)"`
	K         int       `json:"k,omitempty" jsonschema:"maximum number of matches (default 5)"`
}

// SimilarityQueryOutput is the output schema for the similarity_query tool.
type SimilarityQueryOutput struct {
	Matches []MatchOutput `json:"matches"`
	Count   int           `json:"count"`
}

// MatchOutput is one ranked reference.
type MatchOutput struct {
	ReferenceID string  `json:"reference_id"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
}

// ConfigListInput is the (empty) input schema for config_list.
type ConfigListInput struct{}

// ConfigListOutput lists snapshot headers, oldest first.
type ConfigListOutput struct {
	Versions []VersionOutput `json:"versions"`
	Count    int             `json:"count"`
}

// VersionOutput is a snapshot header.
type VersionOutput struct {
	ID           int64  `json:"id"`
	Note         string `json:"note,omitempty"`
	RestoredFrom *int64 `json:"restored_from,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// ConfigGetInput selects a snapshot. Zero selects the latest.
type ConfigGetInput struct {
	ID int64 `json:"id,omitempty" jsonschema:"configuration version id (default latest)"`
}

// ConfigGetOutput is a snapshot with its parameters.
type ConfigGetOutput struct {
	VersionOutput
	Params domain.PipelineParams `json:"params"`
}

// ConfigRestoreInput names the snapshot to restore.
type ConfigRestoreInput struct {
	ID int64 `json:"id" jsonschema:"configuration version id to restore"`
}

// ConfigRestoreOutput carries the id of the new snapshot.
type ConfigRestoreOutput struct {
	ID           int64 `json:"id"`
	RestoredFrom int64 `json:"restored_from"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "similarity_query",
		Description: "Rank reference detection rules by similarity to a text or vector",
	}, s.handleSimilarityQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "config_list",
		Description: "List pipeline configuration versions",
	}, s.handleConfigList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "config_get",
		Description: "Get the parameters of a pipeline configuration version",
	}, s.handleConfigGet)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "config_restore",
		Description: "Restore an earlier configuration version as a new version",
	}, s.handleConfigRestore)
}

// handleSimilarityQuery handles the similarity_query tool invocation.
func (s *Server) handleSimilarityQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SimilarityQueryInput,
) (*mcp.CallToolResult, SimilarityQueryOutput, error) {
	floor, k := s.queryDefaults(ctx)
	if input.K > 0 {
		k = input.K
	}
	if input.Threshold != nil {
		floor = *input.Threshold
	}
	if floor < 0 || floor > 1 {
		return nil, SimilarityQueryOutput{}, fmt.Errorf("%w: threshold must be within [0,1]", domain.ErrInvalidInput)
	}

	var matches []domain.SimilarityMatch
	var err error
	switch {
	case len(input.Vector) > 0:
		matches, err = s.ports.Similarity.Query(ctx, input.Vector, floor, k)
	case input.Text != "":
		matches, err = s.ports.Similarity.QueryContent(ctx, input.Text, floor, k)
	default:
		return nil, SimilarityQueryOutput{}, errors.New("either text or vector is required")
	}
	if err != nil {
		return nil, SimilarityQueryOutput{}, err
	}

	output := SimilarityQueryOutput{
		Matches: make([]MatchOutput, len(matches)),
		Count:   len(matches),
	}
	for i, m := range matches {
		output.Matches[i] = MatchOutput{ReferenceID: m.ReferenceID, Score: m.Score, Rank: m.Rank}
	}
	return nil, output, nil
}

// handleConfigList handles the config_list tool invocation.
func (s *Server) handleConfigList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ConfigListInput,
) (*mcp.CallToolResult, ConfigListOutput, error) {
	versions, err := s.ports.Config.List(ctx)
	if err != nil {
		return nil, ConfigListOutput{}, err
	}
	output := ConfigListOutput{
		Versions: make([]VersionOutput, len(versions)),
		Count:    len(versions),
	}
	for i := range versions {
		output.Versions[i] = versionHeader(&versions[i])
	}
	return nil, output, nil
}

// handleConfigGet handles the config_get tool invocation.
func (s *Server) handleConfigGet(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ConfigGetInput,
) (*mcp.CallToolResult, ConfigGetOutput, error) {
	var v *domain.ConfigurationVersion
	var err error
	if input.ID == 0 {
		v, err = s.ports.Config.Latest(ctx)
	} else {
		v, err = s.ports.Config.Get(ctx, input.ID)
	}
	if err != nil {
		return nil, ConfigGetOutput{}, err
	}
	return nil, ConfigGetOutput{VersionOutput: versionHeader(v), Params: v.Params}, nil
}

// handleConfigRestore handles the config_restore tool invocation.
func (s *Server) handleConfigRestore(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ConfigRestoreInput,
) (*mcp.CallToolResult, ConfigRestoreOutput, error) {
	if input.ID <= 0 {
		return nil, ConfigRestoreOutput{}, fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}
	id, err := s.ports.Config.Restore(ctx, input.ID)
	if err != nil {
		return nil, ConfigRestoreOutput{}, err
	}
	return nil, ConfigRestoreOutput{ID: id, RestoredFrom: input.ID}, nil
}

// queryDefaults takes the match floor and k from the latest snapshot.
func (s *Server) queryDefaults(ctx context.Context) (float64, int) {
	v, err := s.ports.Config.Latest(ctx)
	if err != nil || v.Params.Similarity.TopK <= 0 {
		return defaultFloor, defaultTopK
	}
	return v.Params.Similarity.MatchFloor, v.Params.Similarity.TopK
}

func versionHeader(v *domain.ConfigurationVersion) VersionOutput {
	return VersionOutput{
		ID:           v.ID,
		Note:         v.Note,
		RestoredFrom: v.RestoredFrom,
		CreatedAt:    v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
