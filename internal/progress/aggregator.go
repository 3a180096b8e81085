// Package progress merges per-job progress into a document-level figure.
// Overall progress is the plain arithmetic mean of the three kinds,
// recomputed on every update; ETA is derived on demand and never stored.
package progress

import (
	"sync"
	"time"

	"github.com/inkpad-ai/researchd/internal/models"
)

type kindEntry struct {
	progress  int
	state     models.JobState
	errMsg    string
	startedAt time.Time
}

// Aggregator tracks the latest progress observation per document and kind.
type Aggregator struct {
	mu   sync.Mutex
	docs map[string]map[models.WorkflowKind]*kindEntry
	now  func() time.Time
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		docs: make(map[string]map[models.WorkflowKind]*kindEntry),
		now:  time.Now,
	}
}

// Reset discards all state for a document. Called when research starts so a
// restart never inherits the previous run's figures.
func (a *Aggregator) Reset(documentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := make(map[models.WorkflowKind]*kindEntry, len(models.AllKinds()))
	for _, k := range models.AllKinds() {
		entries[k] = &kindEntry{state: models.StatePending}
	}
	a.docs[documentID] = entries
}

// Record applies one progress observation and returns the progress value
// actually stored. While a job is running, progress is floored at the last
// reported checkpoint so a retried stage can never move it backwards.
func (a *Aggregator) Record(documentID string, kind models.WorkflowKind, progress int, state models.JobState, errMsg string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := a.docs[documentID]
	if entries == nil {
		entries = make(map[models.WorkflowKind]*kindEntry)
		a.docs[documentID] = entries
	}
	e := entries[kind]
	if e == nil {
		e = &kindEntry{state: models.StatePending}
		entries[kind] = e
	}
	if state == models.StateRunning && e.startedAt.IsZero() {
		e.startedAt = a.now()
	}
	if progress < e.progress && !state.Terminal() {
		progress = e.progress
	}
	e.progress = progress
	e.state = state
	e.errMsg = errMsg
	return progress
}

// Overall returns the arithmetic mean of the document's per-kind progress.
func (a *Aggregator) Overall(documentID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := a.docs[documentID]
	if len(entries) == 0 {
		return 0
	}
	sum := 0
	for _, e := range entries {
		sum += e.progress
	}
	return sum / len(entries)
}

// Snapshot assembles the derived DocumentProgress view.
func (a *Aggregator) Snapshot(documentID string, docState models.DocumentState) models.DocumentProgress {
	a.mu.Lock()
	defer a.mu.Unlock()

	dp := models.DocumentProgress{
		DocumentID: documentID,
		State:      docState,
		PerKind:    make(map[models.WorkflowKind]models.KindProgress),
	}
	entries := a.docs[documentID]
	if len(entries) == 0 {
		return dp
	}
	sum := 0
	for kind, e := range entries {
		kp := models.KindProgress{
			Progress: e.progress,
			State:    e.state,
			Error:    e.errMsg,
		}
		if eta, ok := a.etaLocked(e); ok {
			secs := int64(eta.Seconds())
			kp.ETASeconds = &secs
		}
		dp.PerKind[kind] = kp
		sum += e.progress
	}
	dp.Overall = sum / len(entries)
	return dp
}

// etaLocked estimates remaining time as elapsed/progress*(100-progress).
// Undefined until the job is running with progress > 0.
func (a *Aggregator) etaLocked(e *kindEntry) (time.Duration, bool) {
	if e.state != models.StateRunning || e.progress <= 0 || e.startedAt.IsZero() {
		return 0, false
	}
	elapsed := a.now().Sub(e.startedAt)
	remaining := time.Duration(float64(elapsed) / float64(e.progress) * float64(100-e.progress))
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
