// Package orchestrator ties the queue, executor, aggregator, merger, and
// event hub into the facade the UI layer talks to. One orchestrator instance
// owns the per-document research state machine:
//
//	idle -> researching -> (complete | partially_failed)
//
// All collaborators and configuration are injected; there is no ambient
// global state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inkpad-ai/researchd/internal/executor"
	"github.com/inkpad-ai/researchd/internal/merge"
	"github.com/inkpad-ai/researchd/internal/metrics"
	"github.com/inkpad-ai/researchd/internal/models"
	"github.com/inkpad-ai/researchd/internal/progress"
	"github.com/inkpad-ai/researchd/internal/queue"
	"github.com/inkpad-ai/researchd/internal/streaming"
)

var (
	// ErrAlreadyResearching rejects StartResearch while a run is in flight.
	ErrAlreadyResearching = errors.New("document is already researching")
	// ErrNotResearching rejects Cancel on documents with nothing to cancel.
	ErrNotResearching = errors.New("document is not researching")
	// ErrUnknownDocument rejects Restart on documents never seen.
	ErrUnknownDocument = errors.New("unknown document")
)

// ValidationError reports bad input to StartResearch. No job is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Reason }

type docEntry struct {
	state     models.DocumentState
	purpose   string
	jobs      map[models.WorkflowKind]*models.Job
	cancels   map[string]context.CancelFunc
	startedAt time.Time
}

// Orchestrator is the facade. Construct with New, stop with Shutdown.
type Orchestrator struct {
	logger *zap.Logger
	queue  *queue.Queue
	exec   *executor.Executor
	agg    *progress.Aggregator
	merger *merge.Merger
	hub    *streaming.Hub

	mu   sync.Mutex
	docs map[string]*docEntry

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// New wires the components together and starts the dispatch loop.
func New(q *queue.Queue, exec *executor.Executor, agg *progress.Aggregator, merger *merge.Merger, hub *streaming.Hub, logger *zap.Logger) *Orchestrator {
	baseCtx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		logger:  logger,
		queue:   q,
		exec:    exec,
		agg:     agg,
		merger:  merger,
		hub:     hub,
		docs:    make(map[string]*docEntry),
		baseCtx: baseCtx,
		stop:    stop,
	}
	o.wg.Add(1)
	go o.dispatch()
	return o
}

// StartResearch validates input, creates the three jobs for the document,
// and enqueues them. Rejected while the document is already researching.
func (o *Orchestrator) StartResearch(documentID, purpose string) error {
	documentID = strings.TrimSpace(documentID)
	purpose = strings.TrimSpace(purpose)
	if documentID == "" {
		return &ValidationError{Reason: "document id is empty"}
	}
	if purpose == "" {
		return &ValidationError{Reason: "purpose is empty"}
	}

	o.mu.Lock()
	if entry := o.docs[documentID]; entry != nil && entry.state == models.DocResearching {
		o.mu.Unlock()
		return ErrAlreadyResearching
	}
	entry := &docEntry{
		state:     models.DocResearching,
		purpose:   purpose,
		jobs:      make(map[models.WorkflowKind]*models.Job, 3),
		cancels:   make(map[string]context.CancelFunc, 3),
		startedAt: time.Now(),
	}
	for _, kind := range models.AllKinds() {
		entry.jobs[kind] = models.NewJob(documentID, kind, purpose)
	}
	o.docs[documentID] = entry
	o.agg.Reset(documentID)
	o.mu.Unlock()

	metrics.DocumentsResearching.Inc()
	o.logger.Info("Research started",
		zap.String("document_id", documentID),
		zap.String("purpose", purpose),
	)
	o.hub.Publish(streaming.Event{
		DocumentID: documentID,
		Type:       streaming.EventResearchStarted,
	})
	for _, kind := range models.AllKinds() {
		o.queue.Enqueue(entry.jobs[kind])
	}
	return nil
}

// Cancel fails every non-terminal job of the document with a cancelled
// reason, removes them from the queue and running set, and returns the
// document to idle. No partial results are merged.
func (o *Orchestrator) Cancel(documentID string) error {
	o.mu.Lock()
	entry := o.docs[documentID]
	if entry == nil || entry.state != models.DocResearching {
		o.mu.Unlock()
		return ErrNotResearching
	}
	now := time.Now()
	var cancelledJobs []*models.Job
	for _, j := range entry.jobs {
		if j.State.Terminal() {
			continue
		}
		j.State = models.StateFailed
		j.ErrorMessage = models.CancelledMessage
		j.Cancelled = true
		j.CompletedAt = &now
		cancelledJobs = append(cancelledJobs, j)
		o.agg.Record(documentID, j.Kind, j.Progress, models.StateFailed, models.CancelledMessage)
		if cancel := entry.cancels[j.ID]; cancel != nil {
			cancel()
			delete(entry.cancels, j.ID)
		}
	}
	entry.state = models.DocIdle
	o.mu.Unlock()

	for _, j := range cancelledJobs {
		o.queue.Remove(j.ID)
		metrics.JobsCompleted.WithLabelValues(string(j.Kind), "cancelled").Inc()
		o.hub.Publish(streaming.Event{
			DocumentID: documentID,
			Type:       streaming.EventJobFailed,
			Kind:       j.Kind,
			State:      models.StateFailed,
			Progress:   j.Progress,
			Error:      models.CancelledMessage,
		})
	}
	metrics.DocumentsResearching.Dec()
	o.logger.Info("Research cancelled",
		zap.String("document_id", documentID),
		zap.Int("jobs_cancelled", len(cancelledJobs)),
	)
	o.hub.Publish(streaming.Event{
		DocumentID: documentID,
		Type:       streaming.EventResearchCancelled,
	})
	return nil
}

// Restart is cancel followed by clearing prior research content and starting
// again with the document's previous purpose.
func (o *Orchestrator) Restart(ctx context.Context, documentID string) error {
	o.mu.Lock()
	entry := o.docs[documentID]
	if entry == nil {
		o.mu.Unlock()
		return ErrUnknownDocument
	}
	purpose := entry.purpose
	researching := entry.state == models.DocResearching
	o.mu.Unlock()

	if researching {
		if err := o.Cancel(documentID); err != nil && !errors.Is(err, ErrNotResearching) {
			return err
		}
	}
	if err := o.merger.ClearResearch(ctx, documentID); err != nil {
		return fmt.Errorf("clear research before restart: %w", err)
	}
	return o.StartResearch(documentID, purpose)
}

// Status returns the derived progress view for a document. Unknown documents
// report idle with no per-kind entries.
func (o *Orchestrator) Status(documentID string) models.DocumentProgress {
	o.mu.Lock()
	state := models.DocIdle
	if entry := o.docs[documentID]; entry != nil {
		state = entry.state
	}
	o.mu.Unlock()
	return o.agg.Snapshot(documentID, state)
}

// Hub exposes the event stream for subscription.
func (o *Orchestrator) Hub() *streaming.Hub { return o.hub }

// Shutdown stops the dispatcher, cancels in-flight pipelines, and waits for
// them to settle or the context to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch is the single scheduler loop: every wake signal means admission
// may be possible, so it drains AdmitNext until the queue yields nothing.
// Replaces recursive drain re-invocation with a flat loop.
func (o *Orchestrator) dispatch() {
	defer o.wg.Done()
	for {
		select {
		case <-o.baseCtx.Done():
			return
		case <-o.queue.Wake():
			for {
				job := o.queue.AdmitNext()
				if job == nil {
					break
				}
				o.launch(job)
			}
		}
	}
}

func (o *Orchestrator) launch(job *models.Job) {
	jobCtx, cancel := context.WithCancel(o.baseCtx)
	now := time.Now()

	o.mu.Lock()
	if job.State.Terminal() {
		// Lost the race with Cancel between admission and launch. The job
		// was already failed as cancelled; free the slot and never run it.
		o.mu.Unlock()
		cancel()
		o.queue.Release(job.ID)
		return
	}
	job.State = models.StateRunning
	job.StartedAt = &now
	if entry := o.docs[job.DocumentID]; entry != nil {
		entry.cancels[job.ID] = cancel
	}
	o.mu.Unlock()

	metrics.JobsStarted.WithLabelValues(string(job.Kind)).Inc()
	o.reportProgress(job, 0)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		result, err := o.exec.Execute(jobCtx, job, func(p int) {
			o.reportProgress(job, p)
		})
		o.finish(job, result, err)
	}()
}

// reportProgress applies the monotonic floor, updates the job, and publishes
// the ordered per-job progress event with the recomputed overall figure.
func (o *Orchestrator) reportProgress(job *models.Job, p int) {
	o.mu.Lock()
	if job.State != models.StateRunning {
		o.mu.Unlock()
		return
	}
	stored := o.agg.Record(job.DocumentID, job.Kind, p, models.StateRunning, "")
	job.Progress = stored
	overall := o.agg.Overall(job.DocumentID)
	o.mu.Unlock()

	o.hub.Publish(streaming.Event{
		DocumentID: job.DocumentID,
		Type:       streaming.EventJobProgress,
		Kind:       job.Kind,
		State:      models.StateRunning,
		Progress:   stored,
		Overall:    overall,
	})
}

func (o *Orchestrator) finish(job *models.Job, result *models.WorkflowResult, execErr error) {
	now := time.Now()

	o.mu.Lock()
	if job.State.Terminal() {
		// Cancel settled this job already; the slot was removed with it.
		o.mu.Unlock()
		o.queue.Release(job.ID)
		return
	}
	cancelled := false
	if execErr != nil {
		job.State = models.StateFailed
		if errors.Is(execErr, executor.ErrCancelled) {
			job.ErrorMessage = models.CancelledMessage
			job.Cancelled = true
			cancelled = true
		} else {
			job.ErrorMessage = execErr.Error()
		}
	} else {
		job.State = models.StateCompleted
		job.Result = result
		job.Progress = 100
	}
	job.CompletedAt = &now
	if entry := o.docs[job.DocumentID]; entry != nil {
		delete(entry.cancels, job.ID)
	}
	o.agg.Record(job.DocumentID, job.Kind, job.Progress, job.State, job.ErrorMessage)
	o.mu.Unlock()

	o.queue.Release(job.ID)

	status := string(job.State)
	if cancelled {
		status = "cancelled"
	}
	metrics.JobsCompleted.WithLabelValues(string(job.Kind), status).Inc()
	if job.StartedAt != nil {
		metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(now.Sub(*job.StartedAt).Seconds())
	}

	if !cancelled {
		if err := o.merger.Merge(context.Background(), job); err != nil {
			o.logger.Error("Result merge failed",
				zap.String("document_id", job.DocumentID),
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}
	}

	evt := streaming.Event{
		DocumentID: job.DocumentID,
		Kind:       job.Kind,
		State:      job.State,
		Progress:   job.Progress,
		Overall:    o.agg.Overall(job.DocumentID),
	}
	if job.State == models.StateCompleted {
		evt.Type = streaming.EventJobCompleted
		evt.Result = job.Result
	} else {
		evt.Type = streaming.EventJobFailed
		evt.Error = job.ErrorMessage
	}
	o.hub.Publish(evt)

	o.logger.Info("Job finished",
		zap.String("document_id", job.DocumentID),
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("state", string(job.State)),
		zap.Int("retries", job.RetryCount),
	)

	o.evaluateCompletion(job.DocumentID)
}

// evaluateCompletion raises the document-level completion signal once all
// three kinds are terminal. Kind completion order is irrelevant; whichever
// merge lands last triggers the transition.
func (o *Orchestrator) evaluateCompletion(documentID string) {
	o.mu.Lock()
	entry := o.docs[documentID]
	if entry == nil || entry.state != models.DocResearching {
		o.mu.Unlock()
		return
	}
	completed, failed := 0, 0
	for _, j := range entry.jobs {
		if !j.State.Terminal() {
			o.mu.Unlock()
			return
		}
		if j.State == models.StateCompleted {
			completed++
		} else {
			failed++
		}
	}
	if failed == 0 {
		entry.state = models.DocComplete
	} else {
		entry.state = models.DocPartiallyFailed
	}
	state := entry.state
	o.mu.Unlock()

	metrics.DocumentsResearching.Dec()
	summary := &models.CompletionSummary{Completed: completed, Failed: failed}
	o.hub.Publish(streaming.Event{
		DocumentID: documentID,
		Type:       streaming.EventResearchComplete,
		Overall:    o.agg.Overall(documentID),
		Summary:    summary,
	})
	o.logger.Info("Research complete",
		zap.String("document_id", documentID),
		zap.String("state", string(state)),
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)
}
