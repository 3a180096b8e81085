// Package docstore holds the mutable research state of documents: the
// per-kind result slots the merger writes into and the per-kind errors shown
// to the user. Two backends exist: an in-memory store for tests and
// single-node use, and a Redis store following the same access pattern the
// platform uses for session state.
package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/inkpad-ai/researchd/internal/models"
)

// ErrNotFound is returned when a document has no stored research state yet.
var ErrNotFound = errors.New("document not found")

// Document is the research aggregate for one document id. Only the result
// merger mutates it; readers get copies.
type Document struct {
	ID        string                                          `json:"id"`
	Research  map[models.WorkflowKind]*models.WorkflowResult  `json:"research"`
	Errors    map[models.WorkflowKind]string                  `json:"errors"`
	UpdatedAt time.Time                                       `json:"updated_at"`
}

// NewDocument creates an empty research aggregate.
func NewDocument(id string) *Document {
	return &Document{
		ID:       id,
		Research: make(map[models.WorkflowKind]*models.WorkflowResult),
		Errors:   make(map[models.WorkflowKind]string),
	}
}

// Clone returns a deep-enough copy: maps are fresh, results are shared
// (results are immutable after merge).
func (d *Document) Clone() *Document {
	c := NewDocument(d.ID)
	c.UpdatedAt = d.UpdatedAt
	for k, v := range d.Research {
		c.Research[k] = v
	}
	for k, v := range d.Errors {
		c.Errors[k] = v
	}
	return c
}

// ClearResearch wipes all research slots and errors, used by restart.
func (d *Document) ClearResearch() {
	d.Research = make(map[models.WorkflowKind]*models.WorkflowResult)
	d.Errors = make(map[models.WorkflowKind]string)
}

// Store persists document research state.
type Store interface {
	// Get returns the document, or ErrNotFound.
	Get(ctx context.Context, documentID string) (*Document, error)
	// Save writes the document.
	Save(ctx context.Context, doc *Document) error
	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error
}
