package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkpad-ai/researchd/internal/models"
)

func newTestQueue(maxConcurrent int) *Queue {
	return New(maxConcurrent, zap.NewNop())
}

func enqueueN(q *Queue, n int) []*models.Job {
	jobs := make([]*models.Job, n)
	for i := range jobs {
		jobs[i] = models.NewJob("doc-1", models.KindExperts, "purpose")
		q.Enqueue(jobs[i])
	}
	return jobs
}

func TestAdmissionIsFIFO(t *testing.T) {
	q := newTestQueue(5)
	jobs := enqueueN(q, 4)

	for i := 0; i < 4; i++ {
		got := q.AdmitNext()
		require.NotNil(t, got)
		assert.Equal(t, jobs[i].ID, got.ID)
	}
	assert.Nil(t, q.AdmitNext())
}

func TestAdmissionLeavesJobStateAlone(t *testing.T) {
	q := newTestQueue(3)
	jobs := enqueueN(q, 2)

	// A job cancelled while still queued is failed by its owner; admission
	// must not resurrect it to running.
	jobs[0].State = models.StateFailed
	jobs[0].Cancelled = true

	got := q.AdmitNext()
	require.NotNil(t, got)
	assert.Equal(t, models.StateFailed, got.State)
	assert.True(t, got.Cancelled)

	got = q.AdmitNext()
	require.NotNil(t, got)
	assert.Equal(t, models.StatePending, got.State, "state transitions belong to the dispatcher")
}

func TestConcurrencyCap(t *testing.T) {
	q := newTestQueue(3)
	jobs := enqueueN(q, 5)

	for i := 0; i < 3; i++ {
		require.NotNil(t, q.AdmitNext())
	}
	assert.Nil(t, q.AdmitNext(), "fourth admission must wait for a free slot")
	assert.Equal(t, 3, q.RunningCount())
	assert.Equal(t, 2, q.PendingCount())

	q.Release(jobs[0].ID)
	got := q.AdmitNext()
	require.NotNil(t, got)
	assert.Equal(t, jobs[3].ID, got.ID, "oldest pending job admitted first")
}

func TestReleaseUnknownIsNoOp(t *testing.T) {
	q := newTestQueue(1)
	q.Release("no-such-job")
	assert.Equal(t, 0, q.RunningCount())
}

func TestReleaseSignalsWake(t *testing.T) {
	q := newTestQueue(1)
	jobs := enqueueN(q, 2)
	drainWake(q)

	require.NotNil(t, q.AdmitNext())
	drainWake(q)

	q.Release(jobs[0].ID)
	select {
	case <-q.Wake():
	default:
		t.Fatal("release must signal the dispatcher")
	}
}

func TestRemovePendingAndRunning(t *testing.T) {
	q := newTestQueue(1)
	jobs := enqueueN(q, 3)

	admitted := q.AdmitNext()
	require.Equal(t, jobs[0].ID, admitted.ID)

	assert.True(t, q.Remove(jobs[1].ID), "pending job removable")
	assert.Equal(t, 1, q.PendingCount())

	assert.True(t, q.Remove(jobs[0].ID), "running job removable")
	assert.Equal(t, 0, q.RunningCount())

	assert.False(t, q.Remove("no-such-job"))

	got := q.AdmitNext()
	require.NotNil(t, got)
	assert.Equal(t, jobs[2].ID, got.ID, "removal preserves order of the rest")
}

func TestSetMaxConcurrent(t *testing.T) {
	q := newTestQueue(1)
	enqueueN(q, 3)

	require.NotNil(t, q.AdmitNext())
	assert.Nil(t, q.AdmitNext())
	drainWake(q)

	q.SetMaxConcurrent(3)
	select {
	case <-q.Wake():
	default:
		t.Fatal("raising the cap must signal the dispatcher")
	}
	require.NotNil(t, q.AdmitNext())
	require.NotNil(t, q.AdmitNext())
	assert.Equal(t, 3, q.RunningCount())

	// Lowering takes effect as slots free up; running jobs are untouched.
	q.SetMaxConcurrent(1)
	assert.Equal(t, 3, q.RunningCount())
	assert.Nil(t, q.AdmitNext())

	// Ignored values leave the cap alone.
	q.SetMaxConcurrent(0)
	assert.Equal(t, 1, q.MaxConcurrent())
}

func TestWakeIsCoalesced(t *testing.T) {
	q := newTestQueue(3)
	enqueueN(q, 5)

	// Many enqueues collapse into at most one pending signal.
	<-q.Wake()
	select {
	case <-q.Wake():
		t.Fatal("wake channel must coalesce signals")
	default:
	}
}

func drainWake(q *Queue) {
	select {
	case <-q.Wake():
	default:
	}
}
