package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineParams_Valid(t *testing.T) {
	p := DefaultPipelineParams()
	require.NoError(t, p.Validate())

	for _, kind := range AllStageKinds() {
		sp, ok := p.Stages[kind]
		require.True(t, ok, "missing params for %s", kind)
		assert.True(t, sp.OnFailure.IsValid(), "%s has no explicit failure policy", kind)
	}

	assert.Equal(t, FailureHalt, p.Stage(StageRelevanceFilter).OnFailure)
	assert.Equal(t, FailureHalt, p.Stage(StageRuleGeneration).OnFailure)
	assert.Equal(t, FailureProceed, p.Stage(StageEnvironmentDetection).OnFailure)
	assert.True(t, p.Stage(StageRelevanceFilter).IsGate())
	assert.False(t, p.Stage(AgentRegistry).Required)
}

func TestPipelineParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *PipelineParams)
	}{
		{"unknown stage", func(p *PipelineParams) {
			p.Stages["bogus"] = StageParams{OnFailure: FailureHalt}
		}},
		{"implicit failure policy", func(p *PipelineParams) {
			sp := p.Stages[StageRanking]
			sp.OnFailure = ""
			p.Stages[StageRanking] = sp
		}},
		{"retries above ceiling", func(p *PipelineParams) {
			sp := p.Stages[StageRuleGeneration]
			sp.MaxRetries = MaxRetriesCeiling + 1
			p.Stages[StageRuleGeneration] = sp
		}},
		{"retries below floor", func(p *PipelineParams) {
			sp := p.Stages[StageRuleGeneration]
			sp.MaxRetries = 0
			p.Stages[StageRuleGeneration] = sp
		}},
		{"threshold above one", func(p *PipelineParams) {
			sp := p.Stages[StageRelevanceFilter]
			sp.Threshold = Float(1.2)
			p.Stages[StageRelevanceFilter] = sp
		}},
		{"required agent without disabled policy", func(p *PipelineParams) {
			sp := p.Stages[AgentRegistry]
			sp.Required = true
			sp.OnDisabledRequired = ""
			p.Stages[AgentRegistry] = sp
		}},
		{"similarity top_k", func(p *PipelineParams) {
			p.Similarity.TopK = 0
		}},
		{"negative transport", func(p *PipelineParams) {
			p.Transport.MaxAttempts = -1
		}},
		{"transport attempts above cap", func(p *PipelineParams) {
			p.Transport.MaxAttempts = MaxTransportAttempts + 1
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPipelineParams()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestStageParams_AttemptLimit(t *testing.T) {
	assert.Equal(t, 1, StageParams{QAEnabled: false, MaxRetries: 5}.AttemptLimit())
	assert.Equal(t, 3, StageParams{QAEnabled: true, MaxRetries: 3}.AttemptLimit())
	assert.Equal(t, MinRetries, StageParams{QAEnabled: true}.AttemptLimit())
	assert.Equal(t, MaxRetriesCeiling, StageParams{QAEnabled: true, MaxRetries: 50}.AttemptLimit())
}

func TestPipelineParams_CanonicalRoundTrip(t *testing.T) {
	p := DefaultPipelineParams()

	first, err := p.Canonical()
	require.NoError(t, err)

	decoded, err := DecodeParams(first)
	require.NoError(t, err)

	second, err := decoded.Canonical()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeParams_Invalid(t *testing.T) {
	_, err := DecodeParams([]byte("{not json"))
	assert.Error(t, err)
}

func TestTransportContext(t *testing.T) {
	_, ok := TransportFromContext(context.Background())
	assert.False(t, ok)

	p := TransportParams{MaxAttempts: 4, BaseBackoffMillis: 250}
	got, ok := TransportFromContext(WithTransport(context.Background(), p))
	assert.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, 250*time.Millisecond, got.BaseBackoff())
}
