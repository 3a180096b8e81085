// Package collab defines the narrow contracts the orchestrator requires from
// its external collaborators (source search and prose synthesis), the error
// taxonomy their failures are classified into, and decorators that add rate
// limiting and circuit breaking in front of the real backends.
package collab

import (
	"context"

	"github.com/inkpad-ai/researchd/internal/models"
)

// SearchCollaborator returns candidate source records for a set of query
// strings. Implementations may fail with NetworkError or RateLimitError,
// both of which are retryable.
type SearchCollaborator interface {
	Search(ctx context.Context, queries []string, kind models.WorkflowKind) ([]models.RawSource, error)
}

// SynthesisCollaborator generates prose content from scored sources.
// Implementations may fail with NetworkError, RateLimitError, or the
// non-retryable QuotaExceededError.
type SynthesisCollaborator interface {
	Generate(ctx context.Context, kind models.WorkflowKind, sources []models.Source, purpose string) (string, error)
}
