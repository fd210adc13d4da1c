package domain

import "time"

// CandidateArtifact is a detection rule proposed by rule generation.
// It is never discarded by the core: duplicates are flagged and forwarded.
type CandidateArtifact struct {
	ID        string
	RunID     string
	Title     string
	Body      string
	Embedding []float32
	Duplicate bool
	Matches   []SimilarityMatch
	CreatedAt time.Time
}

// TopMatch returns the highest ranked match, if any.
func (a CandidateArtifact) TopMatch() (SimilarityMatch, bool) {
	if len(a.Matches) == 0 {
		return SimilarityMatch{}, false
	}
	return a.Matches[0], true
}

// SimilarityMatch associates a candidate with a reference corpus entry.
// Rank is 1-based; scores never increase with rank.
type SimilarityMatch struct {
	CandidateID string  `json:"candidate_id"`
	ReferenceID string  `json:"reference_id"`
	Score       float64 `json:"score"`
	Rank        int     `json:"rank"`
}

// Reference is one entry of the reference corpus.
type Reference struct {
	ID        string
	Title     string
	Body      string
	Embedding []float32
	Model     string
	CreatedAt time.Time
}

// Provenance ties a review item back to the run that produced it.
type Provenance struct {
	RunID         string            `json:"run_id"`
	ContentID     string            `json:"content_id"`
	ConfigVersion int64             `json:"config_version"`
	Confidences   []StageConfidence `json:"confidences"`
	// BatchIndex (1-based) and BatchSize place the item among the artifacts
	// of its run. A hand-off that fails midway leaves a partial batch queued.
	BatchIndex int `json:"batch_index"`
	BatchSize  int `json:"batch_size"`
}

// ReviewItem is what the core hands to the external review queue.
type ReviewItem struct {
	ArtifactID string            `json:"artifact_id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Duplicate  bool              `json:"duplicate"`
	Matches    []SimilarityMatch `json:"matches"`
	Provenance Provenance        `json:"provenance"`
	QueuedAt   time.Time         `json:"queued_at"`
}
