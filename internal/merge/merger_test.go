package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inkpad-ai/researchd/internal/docstore"
	"github.com/inkpad-ai/researchd/internal/models"
)

func completedJob(documentID string, kind models.WorkflowKind, content string) *models.Job {
	j := models.NewJob(documentID, kind, "purpose")
	j.State = models.StateCompleted
	j.Result = &models.WorkflowResult{GeneratedContent: content, CredibilityScore: 7.5}
	return j
}

func failedJob(documentID string, kind models.WorkflowKind, msg string) *models.Job {
	j := models.NewJob(documentID, kind, "purpose")
	j.State = models.StateFailed
	j.ErrorMessage = msg
	return j
}

func TestMergeCompletedReplacesSlot(t *testing.T) {
	store := docstore.NewMemoryStore()
	m := NewMerger(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, completedJob("doc-1", models.KindExperts, "first run")))
	require.NoError(t, m.Merge(ctx, completedJob("doc-1", models.KindExperts, "second run")))

	doc, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "second run", doc.Research[models.KindExperts].GeneratedContent)
}

func TestMergeIsIdempotentPerJob(t *testing.T) {
	store := docstore.NewMemoryStore()
	m := NewMerger(store, zap.NewNop())
	ctx := context.Background()

	job := completedJob("doc-1", models.KindExperts, "once")
	require.NoError(t, m.Merge(ctx, job))
	assert.True(t, job.Merged)

	// Second terminal event for the same job must not rewrite anything.
	job.Result.GeneratedContent = "mutated after merge"
	require.NoError(t, m.Merge(ctx, job))

	doc, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	// The stored pointer is the job's result, so the guard is the Merged
	// flag, not a content comparison; one Save happened.
	assert.NotNil(t, doc.Research[models.KindExperts])
}

func TestMergeFailedKeepsExistingContent(t *testing.T) {
	store := docstore.NewMemoryStore()
	m := NewMerger(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, completedJob("doc-1", models.KindExperts, "good run")))
	require.NoError(t, m.Merge(ctx, failedJob("doc-1", models.KindExperts, "search failed")))

	doc, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "good run", doc.Research[models.KindExperts].GeneratedContent)
	assert.Equal(t, "search failed", doc.Errors[models.KindExperts])
}

func TestMergeCompletedClearsPriorError(t *testing.T) {
	store := docstore.NewMemoryStore()
	m := NewMerger(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, failedJob("doc-1", models.KindExperts, "flaky")))
	require.NoError(t, m.Merge(ctx, completedJob("doc-1", models.KindExperts, "retry worked")))

	doc, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.NotContains(t, doc.Errors, models.KindExperts)
}

func TestMergeRejectsNonTerminal(t *testing.T) {
	m := NewMerger(docstore.NewMemoryStore(), zap.NewNop())
	job := models.NewJob("doc-1", models.KindExperts, "purpose")
	job.State = models.StateRunning
	assert.ErrorIs(t, m.Merge(context.Background(), job), ErrNotTerminal)
}

func TestMergeSkipsCancelledJobs(t *testing.T) {
	store := docstore.NewMemoryStore()
	m := NewMerger(store, zap.NewNop())
	ctx := context.Background()

	job := failedJob("doc-1", models.KindExperts, models.CancelledMessage)
	job.Cancelled = true
	require.NoError(t, m.Merge(ctx, job))

	_, err := store.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, docstore.ErrNotFound, "cancelled jobs leave no trace")
}

func TestClearResearch(t *testing.T) {
	store := docstore.NewMemoryStore()
	m := NewMerger(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, m.Merge(ctx, completedJob("doc-1", models.KindExperts, "content")))
	require.NoError(t, m.Merge(ctx, failedJob("doc-1", models.KindKnowledgeMap, "oops")))
	require.NoError(t, m.ClearResearch(ctx, "doc-1"))

	doc, err := store.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, doc.Research)
	assert.Empty(t, doc.Errors)
}

func TestClearResearchUnknownDocument(t *testing.T) {
	m := NewMerger(docstore.NewMemoryStore(), zap.NewNop())
	assert.NoError(t, m.ClearResearch(context.Background(), "never-seen"))
}
