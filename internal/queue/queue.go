// Package queue admits research jobs under a concurrency cap. Admission
// order is FIFO among pending jobs; a free slot opens whenever a running job
// reaches a terminal state, and the wake channel tells the dispatcher to
// re-evaluate admission so no job starves while jobs keep terminating.
package queue

import (
	"sync"

	"go.uber.org/zap"

	"github.com/inkpad-ai/researchd/internal/metrics"
	"github.com/inkpad-ai/researchd/internal/models"
)

// DefaultMaxConcurrent is the admission cap when none is configured.
const DefaultMaxConcurrent = 3

// Queue serializes all queue-state mutation behind one mutex; pipeline
// bodies run concurrently with it but never touch the pending list or the
// running set directly.
type Queue struct {
	mu            sync.Mutex
	logger        *zap.Logger
	pending       []*models.Job
	running       map[string]*models.Job
	maxConcurrent int

	// wake is a coalesced signal: something changed that may allow an
	// admission (enqueue, release, cap raise).
	wake chan struct{}
}

// New creates a queue with the given concurrency cap.
func New(maxConcurrent int, logger *zap.Logger) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Queue{
		logger:        logger,
		running:       make(map[string]*models.Job),
		maxConcurrent: maxConcurrent,
		wake:          make(chan struct{}, 1),
	}
}

// Wake returns the channel the dispatcher selects on. After each signal the
// dispatcher should drain AdmitNext until it returns nil.
func (q *Queue) Wake() <-chan struct{} { return q.wake }

// Enqueue appends a pending job and signals the dispatcher.
func (q *Queue) Enqueue(job *models.Job) {
	q.mu.Lock()
	q.pending = append(q.pending, job)
	depth := len(q.pending)
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	q.logger.Debug("Job enqueued",
		zap.String("job_id", job.ID),
		zap.String("document_id", job.DocumentID),
		zap.String("kind", string(job.Kind)),
		zap.Int("queue_depth", depth),
	)
	q.signal()
}

// AdmitNext pops the oldest pending job into the running set, provided a
// slot is free. Returns nil when nothing can be admitted. The queue never
// touches job state; the dispatcher owns the pending-to-running transition
// and may find the job already terminal (cancelled while queued), in which
// case it releases the slot without running it.
func (q *Queue) AdmitNext() *models.Job {
	q.mu.Lock()
	if len(q.pending) == 0 || len(q.running) >= q.maxConcurrent {
		q.mu.Unlock()
		return nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	q.running[job.ID] = job
	depth, active := len(q.pending), len(q.running)
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	metrics.JobsRunning.Set(float64(active))
	q.logger.Info("Job admitted",
		zap.String("job_id", job.ID),
		zap.String("document_id", job.DocumentID),
		zap.String("kind", string(job.Kind)),
		zap.Int("running", active),
	)
	return job
}

// Release frees the slot held by a terminated job and signals the
// dispatcher. Releasing an unknown id is a no-op, which makes the
// cancel/finish race harmless.
func (q *Queue) Release(jobID string) {
	q.mu.Lock()
	_, held := q.running[jobID]
	if held {
		delete(q.running, jobID)
	}
	active := len(q.running)
	q.mu.Unlock()

	if !held {
		return
	}
	metrics.JobsRunning.Set(float64(active))
	q.signal()
}

// Remove drops a job from the pending list or the running set, whichever
// holds it. Used by cancel; returns whether the job was found.
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	for i, j := range q.pending {
		if j.ID == jobID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			depth := len(q.pending)
			q.mu.Unlock()
			metrics.QueueDepth.Set(float64(depth))
			return true
		}
	}
	if _, ok := q.running[jobID]; ok {
		delete(q.running, jobID)
		active := len(q.running)
		q.mu.Unlock()
		metrics.JobsRunning.Set(float64(active))
		q.signal()
		return true
	}
	q.mu.Unlock()
	return false
}

// RunningCount reports how many jobs currently hold a slot.
func (q *Queue) RunningCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// PendingCount reports how many jobs are waiting for admission.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// MaxConcurrent returns the current admission cap.
func (q *Queue) MaxConcurrent() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxConcurrent
}

// SetMaxConcurrent changes the admission cap. Raising it admits waiting work
// immediately; lowering it takes effect as running jobs terminate.
func (q *Queue) SetMaxConcurrent(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	raised := n > q.maxConcurrent
	q.maxConcurrent = n
	q.mu.Unlock()

	q.logger.Info("Concurrency cap updated", zap.Int("max_concurrent", n))
	if raised {
		q.signal()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
