package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

const (
	// URIScheme is the custom URI scheme for ruleforge resources.
	uriScheme = "ruleforge://"

	// recentRuns bounds the runs resource.
	recentRuns = 50
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "config/latest",
		Name:        "config-latest",
		Description: "Parameters of the latest pipeline configuration version",
		MIMEType:    "application/json",
	}, s.handleLatestConfigResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "runs",
		Name:        "runs",
		Description: "Most recent pipeline runs",
		MIMEType:    "application/json",
	}, s.handleRunsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "runs/{runId}",
		Name:        "run",
		Description: "One pipeline run with its stage history and artifacts",
		MIMEType:    "application/json",
	}, s.handleRunResource)
}

// handleLatestConfigResource returns the latest snapshot.
func (s *Server) handleLatestConfigResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	v, err := s.ports.Config.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting latest configuration: %w", err)
	}
	return jsonResource(req.Params.URI, ConfigGetOutput{VersionOutput: versionHeader(v), Params: v.Params})
}

// runSummary is the list form of a run.
type runSummary struct {
	ID            string           `json:"id"`
	ContentID     string           `json:"content_id"`
	ConfigVersion int64            `json:"config_version"`
	Status        domain.RunStatus `json:"status"`
	Reason        string           `json:"reason,omitempty"`
	Artifacts     int              `json:"artifacts"`
}

// handleRunsResource returns the most recent runs.
func (s *Server) handleRunsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Pipeline == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	runs, err := s.ports.Pipeline.ListRuns(ctx, recentRuns)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	infos := make([]runSummary, len(runs))
	for i := range runs {
		infos[i] = runSummary{
			ID:            runs[i].ID,
			ContentID:     runs[i].Content.ID,
			ConfigVersion: runs[i].ConfigVersion,
			Status:        runs[i].Status,
			Reason:        runs[i].Reason.String(),
			Artifacts:     len(runs[i].Artifacts),
		}
	}
	return jsonResource(req.Params.URI, infos)
}

// runDetail is the full form of a run.
type runDetail struct {
	runSummary
	Trail     []domain.StageConfidence     `json:"confidence_trail"`
	Final     map[domain.StageKind]float64 `json:"final_confidences"`
	Artifacts []artifactInfo               `json:"artifacts"`
}

type artifactInfo struct {
	ID        string                   `json:"id"`
	Title     string                   `json:"title"`
	Duplicate bool                     `json:"duplicate"`
	Matches   []domain.SimilarityMatch `json:"matches,omitempty"`
}

// handleRunResource returns one run.
func (s *Server) handleRunResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Pipeline == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// Extract runId from URI: ruleforge://runs/{runId}
	runID := extractRunID(req.Params.URI)
	if runID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	run, err := s.ports.Pipeline.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}

	detail := runDetail{
		runSummary: runSummary{
			ID:            run.ID,
			ContentID:     run.Content.ID,
			ConfigVersion: run.ConfigVersion,
			Status:        run.Status,
			Reason:        run.Reason.String(),
		},
		Trail:     run.ConfidenceTrail(),
		Final:     run.FinalConfidences(),
		Artifacts: make([]artifactInfo, len(run.Artifacts)),
	}
	for i, a := range run.Artifacts {
		detail.Artifacts[i] = artifactInfo{ID: a.ID, Title: a.Title, Duplicate: a.Duplicate, Matches: a.Matches}
	}
	return jsonResource(req.Params.URI, detail)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractRunID extracts the run ID from a URI like ruleforge://runs/{runId}.
func extractRunID(uri string) string {
	const prefix = uriScheme + "runs/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
