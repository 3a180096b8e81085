// Package executor runs the multi-stage research pipeline for one job:
// query generation, source search and scoring, synthesis, and finalization.
// Each stage reports a fixed progress checkpoint; the two collaborator
// stages retry transient failures with exponential backoff against a shared
// per-job retry budget, under a hard per-job timeout.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkpad-ai/researchd/internal/collab"
	"github.com/inkpad-ai/researchd/internal/metrics"
	"github.com/inkpad-ai/researchd/internal/models"
	"github.com/inkpad-ai/researchd/internal/scoring"
)

// Pipeline stage names, used in errors, logs, and metrics labels.
const (
	StageQueryGen  = "query_generation"
	StageSearch    = "source_search"
	StageSynthesis = "synthesis"
	StageFinalize  = "finalize"
)

// Progress checkpoints per stage boundary.
const (
	checkpointQueries   = 10
	checkpointSearch    = 20
	checkpointScored    = 60
	checkpointSynthesis = 90
	checkpointDone      = 100
)

var (
	// ErrCancelled marks a job stopped by user cancellation.
	ErrCancelled = errors.New("cancelled")
	// ErrJobTimeout marks a job that exceeded its hard per-job timeout.
	ErrJobTimeout = errors.New("job timeout exceeded")
)

// WorkflowError is the terminal failure of a pipeline stage.
type WorkflowError struct {
	Stage     string
	Cause     error
	Retryable bool
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow stage %s failed: %v", e.Stage, e.Cause)
}

func (e *WorkflowError) Unwrap() error { return e.Cause }

// Config holds the executor tunables.
type Config struct {
	MaxRetries    int
	PerJobTimeout time.Duration
	MaxSources    int
	BackoffBase   time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		PerJobTimeout: 5 * time.Minute,
		MaxSources:    5,
		BackoffBase:   500 * time.Millisecond,
	}
}

// ProgressFn receives stage-boundary progress checkpoints in order.
type ProgressFn func(progress int)

// Executor runs pipelines. Config updates apply to jobs started afterwards;
// in-flight jobs keep the snapshot they started with.
type Executor struct {
	search collab.SearchCollaborator
	synth  collab.SynthesisCollaborator
	logger *zap.Logger

	mu  sync.RWMutex
	cfg Config
}

// New creates an executor over the given collaborators.
func New(search collab.SearchCollaborator, synth collab.SynthesisCollaborator, cfg Config, logger *zap.Logger) *Executor {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = DefaultConfig().MaxSources
	}
	if cfg.PerJobTimeout <= 0 {
		cfg.PerJobTimeout = DefaultConfig().PerJobTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	return &Executor{search: search, synth: synth, cfg: cfg, logger: logger}
}

// UpdateConfig swaps the tunables used by subsequently started jobs.
func (e *Executor) UpdateConfig(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *Executor) config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Execute runs the pipeline for one job. On success the returned result
// satisfies the WorkflowResult contract; on failure the error is always a
// *WorkflowError. The caller owns job state transitions; Execute only
// advances job.RetryCount as retries happen.
func (e *Executor) Execute(ctx context.Context, job *models.Job, report ProgressFn) (*models.WorkflowResult, error) {
	cfg := e.config()
	ctx, cancel := context.WithTimeout(ctx, cfg.PerJobTimeout)
	defer cancel()

	log := e.logger.With(
		zap.String("job_id", job.ID),
		zap.String("document_id", job.DocumentID),
		zap.String("kind", string(job.Kind)),
	)

	apiCalls := 0

	// Stage 1: query generation. Pure and local, never retried.
	stageStart := time.Now()
	queries := GenerateQueries(job.Kind, job.Purpose)
	metrics.StageDuration.WithLabelValues(StageQueryGen).Observe(msSince(stageStart))
	log.Debug("Generated search queries", zap.Strings("queries", queries))
	report(checkpointQueries)

	// Stage 2: source search and scoring.
	searchStart := time.Now()
	var raw []models.RawSource
	err := e.runRetryable(ctx, job, cfg, StageSearch, log, func(ctx context.Context) error {
		apiCalls++
		var stageErr error
		raw, stageErr = e.search.Search(ctx, queries, job.Kind)
		return stageErr
	})
	if err != nil {
		return nil, err
	}
	report(checkpointSearch)

	raw = capByRelevance(raw, cfg.MaxSources)
	sources := make([]models.Source, 0, len(raw))
	for i, r := range raw {
		sources = append(sources, scoring.Score(r, job.Purpose))
		span := checkpointScored - checkpointSearch
		report(checkpointSearch + (i+1)*span/len(raw))
	}
	if len(raw) == 0 {
		report(checkpointScored)
	}
	searchDuration := time.Since(searchStart)
	metrics.StageDuration.WithLabelValues(StageSearch).Observe(float64(searchDuration.Milliseconds()))

	// Stage 3: synthesis. Single call, coarse jump on completion.
	synthStart := time.Now()
	var content string
	err = e.runRetryable(ctx, job, cfg, StageSynthesis, log, func(ctx context.Context) error {
		apiCalls++
		var stageErr error
		content, stageErr = e.synth.Generate(ctx, job.Kind, sources, job.Purpose)
		return stageErr
	})
	if err != nil {
		return nil, err
	}
	synthDuration := time.Since(synthStart)
	metrics.StageDuration.WithLabelValues(StageSynthesis).Observe(float64(synthDuration.Milliseconds()))
	report(checkpointSynthesis)

	// Stage 4: finalize.
	result := &models.WorkflowResult{
		Sources:          sources,
		GeneratedContent: content,
		CredibilityScore: meanCredibility(sources),
		Metadata: models.ResultMetadata{
			SearchDurationMs:    searchDuration.Milliseconds(),
			SynthesisDurationMs: synthDuration.Milliseconds(),
			APICallCount:        apiCalls,
		},
	}
	report(checkpointDone)
	log.Info("Pipeline completed",
		zap.Int("sources", len(sources)),
		zap.Float64("credibility", result.CredibilityScore),
		zap.Int("api_calls", apiCalls),
		zap.Int("retries", job.RetryCount),
	)
	return result, nil
}

// runRetryable executes one collaborator stage under the shared per-job
// retry budget. Only the failing stage re-runs; earlier stages keep their
// outputs. Cancellation is observed before every attempt and during backoff.
func (e *Executor) runRetryable(ctx context.Context, job *models.Job, cfg Config, stage string, log *zap.Logger, fn func(context.Context) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return e.classifyContext(stage, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return e.classifyContext(stage, ctxErr)
		}
		if !collab.IsRetryable(err) {
			return &WorkflowError{Stage: stage, Cause: err, Retryable: false}
		}
		if job.RetryCount >= cfg.MaxRetries {
			log.Warn("Retry budget exhausted",
				zap.String("stage", stage),
				zap.Int("retries", job.RetryCount),
				zap.Error(err),
			)
			return &WorkflowError{Stage: stage, Cause: err, Retryable: false}
		}

		job.RetryCount++
		metrics.StageRetries.WithLabelValues(stage).Inc()
		backoff := cfg.BackoffBase << uint(job.RetryCount-1)
		log.Warn("Transient stage failure, backing off",
			zap.String("stage", stage),
			zap.Int("retry", job.RetryCount),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return e.classifyContext(stage, ctx.Err())
		case <-time.After(backoff):
		}
	}
}

func (e *Executor) classifyContext(stage string, err error) *WorkflowError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &WorkflowError{Stage: stage, Cause: ErrJobTimeout, Retryable: false}
	}
	return &WorkflowError{Stage: stage, Cause: ErrCancelled, Retryable: false}
}

// capByRelevance keeps the top n sources by collaborator-reported relevance.
// Stable sort keeps the collaborator's order among equals, so output is
// deterministic for identical input.
func capByRelevance(raw []models.RawSource, n int) []models.RawSource {
	sorted := make([]models.RawSource, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Relevance > sorted[j].Relevance
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func meanCredibility(sources []models.Source) float64 {
	if len(sources) == 0 {
		return 0
	}
	sum := 0
	for _, s := range sources {
		sum += s.CredibilityScore
	}
	return float64(sum) / float64(len(sources))
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Milliseconds())
}
