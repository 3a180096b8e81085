// Package merge applies terminal job results to the owning document's
// research state. Merging is idempotent per job and serialized per document:
// two kinds of the same document can reach a terminal state concurrently,
// and read-decide-write must be atomic between them.
package merge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/inkpad-ai/researchd/internal/docstore"
	"github.com/inkpad-ai/researchd/internal/metrics"
	"github.com/inkpad-ai/researchd/internal/models"
)

// ErrNotTerminal is returned when a job that is still pending or running is
// handed to the merger.
var ErrNotTerminal = errors.New("job is not in a terminal state")

// Merger owns all mutation of document research slots.
type Merger struct {
	store  docstore.Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMerger creates a merger over the given store.
func NewMerger(store docstore.Store, logger *zap.Logger) *Merger {
	return &Merger{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Merge applies the job's terminal outcome to its document exactly once.
// Completed jobs replace the document's slot for their kind; failed jobs
// leave existing content untouched and record the error. Cancelled jobs are
// never merged. Calling Merge again for the same job is a no-op.
func (m *Merger) Merge(ctx context.Context, job *models.Job) error {
	if !job.State.Terminal() {
		return ErrNotTerminal
	}
	if job.Cancelled {
		return nil
	}

	lock := m.docLock(job.DocumentID)
	lock.Lock()
	defer lock.Unlock()

	if job.Merged {
		return nil
	}

	doc, err := m.store.Get(ctx, job.DocumentID)
	if errors.Is(err, docstore.ErrNotFound) {
		doc = docstore.NewDocument(job.DocumentID)
	} else if err != nil {
		metrics.MergesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("load document for merge: %w", err)
	}

	switch job.State {
	case models.StateCompleted:
		doc.Research[job.Kind] = job.Result
		delete(doc.Errors, job.Kind)
	case models.StateFailed:
		doc.Errors[job.Kind] = job.ErrorMessage
	}

	if err := m.store.Save(ctx, doc); err != nil {
		metrics.MergesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("save merged document: %w", err)
	}

	job.Merged = true
	metrics.MergesTotal.WithLabelValues(string(job.State)).Inc()
	m.logger.Info("Merged job result",
		zap.String("document_id", job.DocumentID),
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("state", string(job.State)),
	)
	return nil
}

// ClearResearch wipes the document's research slots and errors under the
// same per-document lock merges take. Used by restart.
func (m *Merger) ClearResearch(ctx context.Context, documentID string) error {
	lock := m.docLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	doc, err := m.store.Get(ctx, documentID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document for clear: %w", err)
	}
	doc.ClearResearch()
	if err := m.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("save cleared document: %w", err)
	}
	return nil
}

func (m *Merger) docLock(documentID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock := m.locks[documentID]
	if lock == nil {
		lock = &sync.Mutex{}
		m.locks[documentID] = lock
	}
	return lock
}
