package executor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkpad-ai/researchd/internal/collab"
	"github.com/inkpad-ai/researchd/internal/models"
)

// scriptedSearch pops one scripted error per call; a nil entry (or an empty
// script) yields the configured sources.
type scriptedSearch struct {
	mu    sync.Mutex
	calls int
	errs  []error
	out   []models.RawSource
}

func (s *scriptedSearch) Search(context.Context, []string, models.WorkflowKind) ([]models.RawSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.out, nil
}

type scriptedSynth struct {
	mu    sync.Mutex
	calls int
	errs  []error
	out   string
}

func (s *scriptedSynth) Generate(context.Context, models.WorkflowKind, []models.Source, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return s.out, nil
}

type blockingSearch struct{}

func (blockingSearch) Search(ctx context.Context, _ []string, _ models.WorkflowKind) ([]models.RawSource, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testConfig() Config {
	return Config{
		MaxRetries:    3,
		PerJobTimeout: time.Minute,
		MaxSources:    5,
		BackoffBase:   time.Millisecond,
	}
}

func rawSource(url string, relevance float64) models.RawSource {
	return models.RawSource{
		URL:       url,
		Title:     "Source title for " + url,
		Content:   "A sentence long enough to survive the quote length filter easily.",
		Relevance: relevance,
	}
}

func runPipeline(t *testing.T, search collab.SearchCollaborator, synth collab.SynthesisCollaborator, cfg Config) (*models.Job, []int, *models.WorkflowResult, error) {
	t.Helper()
	e := New(search, synth, cfg, zap.NewNop())
	job := models.NewJob("doc-1", models.KindExperts, "quantum computing adoption")
	var checkpoints []int
	result, err := e.Execute(context.Background(), job, func(p int) {
		checkpoints = append(checkpoints, p)
	})
	return job, checkpoints, result, err
}

func TestPipelineCheckpointOrder(t *testing.T) {
	search := &scriptedSearch{out: []models.RawSource{
		rawSource("https://arxiv.org/abs/1", 0.9),
		rawSource("https://example.com/a", 0.7),
	}}
	synth := &scriptedSynth{out: "synthesized content"}

	job, checkpoints, result, err := runPipeline(t, search, synth, testConfig())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, []int{10, 20, 40, 60, 90, 100}, checkpoints)
	assert.Equal(t, "synthesized content", result.GeneratedContent)
	assert.Len(t, result.Sources, 2)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, 2, result.Metadata.APICallCount)
}

func TestEmptySearchResults(t *testing.T) {
	search := &scriptedSearch{}
	synth := &scriptedSynth{out: "nothing much to say"}

	_, checkpoints, result, err := runPipeline(t, search, synth, testConfig())
	require.NoError(t, err)

	assert.Equal(t, []int{10, 20, 60, 90, 100}, checkpoints)
	assert.Empty(t, result.Sources)
	assert.Zero(t, result.CredibilityScore)
}

func TestTransientFailuresRetryThenSucceed(t *testing.T) {
	search := &scriptedSearch{
		errs: []error{
			&collab.NetworkError{Op: "search"},
			&collab.NetworkError{Op: "search"},
			nil,
		},
		out: []models.RawSource{rawSource("https://example.com/a", 0.5)},
	}
	synth := &scriptedSynth{out: "content"}

	job, _, result, err := runPipeline(t, search, synth, testConfig())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 2, job.RetryCount)
	assert.Equal(t, 3, search.calls)
	// Every attempt counts toward API usage.
	assert.Equal(t, 4, result.Metadata.APICallCount)
}

func TestRetryBudgetExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	search := &scriptedSearch{
		errs: []error{
			&collab.NetworkError{Op: "search"},
			&collab.NetworkError{Op: "search"},
			&collab.NetworkError{Op: "search"},
		},
	}

	job, _, result, err := runPipeline(t, search, &scriptedSynth{}, cfg)
	require.Error(t, err)
	assert.Nil(t, result)

	// maxRetries+1 total attempts.
	assert.Equal(t, 2, search.calls)
	assert.Equal(t, 1, job.RetryCount)

	var wfErr *WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, StageSearch, wfErr.Stage)
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	search := &scriptedSearch{
		errs: []error{&collab.QuotaExceededError{Detail: "monthly quota"}},
	}

	job, _, _, err := runPipeline(t, search, &scriptedSynth{}, testConfig())
	require.Error(t, err)
	assert.Equal(t, 1, search.calls)
	assert.Equal(t, 0, job.RetryCount)
}

func TestRetryBudgetIsSharedAcrossStages(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	search := &scriptedSearch{
		errs: []error{&collab.NetworkError{Op: "search"}, nil},
		out:  []models.RawSource{rawSource("https://example.com/a", 0.5)},
	}
	synth := &scriptedSynth{
		errs: []error{
			&collab.NetworkError{Op: "synthesis"},
			&collab.NetworkError{Op: "synthesis"},
		},
	}

	job, _, _, err := runPipeline(t, search, synth, cfg)
	require.Error(t, err)

	// One retry in search, one in synthesis; the second synthesis failure
	// finds the shared budget spent and fails the job.
	assert.Equal(t, 2, job.RetryCount)
	assert.Equal(t, 2, search.calls)
	assert.Equal(t, 2, synth.calls)

	var wfErr *WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, StageSynthesis, wfErr.Stage)
}

func TestCancellation(t *testing.T) {
	e := New(blockingSearch{}, &scriptedSynth{}, testConfig(), zap.NewNop())
	job := models.NewJob("doc-1", models.KindExperts, "purpose")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, job, func(int) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestPerJobTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.PerJobTimeout = 30 * time.Millisecond
	e := New(blockingSearch{}, &scriptedSynth{}, cfg, zap.NewNop())
	job := models.NewJob("doc-1", models.KindExperts, "purpose")

	_, err := e.Execute(context.Background(), job, func(int) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJobTimeout)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestResultCredibilityIsMeanOfSources(t *testing.T) {
	now := time.Now()
	recent := now.AddDate(-1, 0, 0)
	old := now.AddDate(-5, 0, 0)
	long := string(make([]byte, 1100))

	// Expected per-source credibility: 8, 9, 7, 4, 5.
	search := &scriptedSearch{out: []models.RawSource{
		{URL: "https://arxiv.org/abs/1", Title: "t", Content: "short", PublishDate: &old},
		{URL: "https://arxiv.org/abs/2", Title: "t", Content: "short", PublishDate: &recent},
		{URL: "https://example.com/a", Title: "t", Content: long, PublishDate: &recent},
		{URL: "https://medium.com/@x/1", Title: "t", Content: "short", PublishDate: &old},
		{URL: "https://medium.com/@x/2", Title: "t", Content: "short", PublishDate: &recent},
	}}
	synth := &scriptedSynth{out: "content"}

	_, _, result, err := runPipeline(t, search, synth, testConfig())
	require.NoError(t, err)
	require.Len(t, result.Sources, 5)

	scores := make([]int, len(result.Sources))
	for i, s := range result.Sources {
		scores[i] = s.CredibilityScore
	}
	assert.Equal(t, []int{8, 9, 7, 4, 5}, scores)
	assert.InDelta(t, 6.6, result.CredibilityScore, 0.001)
}

func TestCapByRelevance(t *testing.T) {
	raw := []models.RawSource{
		rawSource("https://example.com/1", 0.2),
		rawSource("https://example.com/2", 0.9),
		rawSource("https://example.com/3", 0.5),
		rawSource("https://example.com/4", 0.9),
		rawSource("https://example.com/5", 0.1),
		rawSource("https://example.com/6", 0.7),
		rawSource("https://example.com/7", 0.3),
	}

	got := capByRelevance(raw, 5)
	require.Len(t, got, 5)
	assert.Equal(t, "https://example.com/2", got[0].URL)
	// Stable sort keeps collaborator order among ties.
	assert.Equal(t, "https://example.com/4", got[1].URL)
	assert.Equal(t, "https://example.com/6", got[2].URL)

	short := capByRelevance(raw[:2], 5)
	assert.Len(t, short, 2, "fewer sources than the cap pass through")
}

func TestGenerateQueries(t *testing.T) {
	tests := []struct {
		kind     models.WorkflowKind
		contains string
	}{
		{models.KindExperts, "expert opinion"},
		{models.KindContrarianView, "criticism of"},
		{models.KindKnowledgeMap, "overview"},
	}
	for _, tt := range tests {
		queries := GenerateQueries(tt.kind, "quantum computing adoption in finance")
		require.NotEmpty(t, queries, "kind %s", tt.kind)
		assert.LessOrEqual(t, len(queries), 5)
		assert.GreaterOrEqual(t, len(queries), 3)

		found := false
		for _, q := range queries {
			if strings.Contains(strings.ToLower(q), tt.contains) {
				found = true
			}
		}
		assert.True(t, found, "kind %s should include %q", tt.kind, tt.contains)
	}

	// Deterministic.
	a := GenerateQueries(models.KindExperts, "edge computing")
	b := GenerateQueries(models.KindExperts, "edge computing")
	assert.Equal(t, a, b)

	// A purpose with no usable keywords still yields queries.
	sparse := GenerateQueries(models.KindExperts, "a of it")
	assert.GreaterOrEqual(t, len(sparse), 3)
}
