// Package models defines the core data types shared across the research
// orchestrator: jobs, scored sources, workflow results, and the derived
// per-document progress view.
package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowKind identifies one of the three research workflows created per
// document. The set is closed; every switch over it should be exhaustive.
type WorkflowKind string

const (
	KindExperts        WorkflowKind = "experts"
	KindContrarianView WorkflowKind = "contrarian_views"
	KindKnowledgeMap   WorkflowKind = "knowledge_map"
)

// AllKinds returns the workflow kinds in their canonical order.
func AllKinds() []WorkflowKind {
	return []WorkflowKind{KindExperts, KindContrarianView, KindKnowledgeMap}
}

// Valid reports whether k is a known workflow kind.
func (k WorkflowKind) Valid() bool {
	switch k {
	case KindExperts, KindContrarianView, KindKnowledgeMap:
		return true
	}
	return false
}

// JobState represents the current state of a job in the system
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CancelledMessage is the error message recorded on jobs failed by a
// user-initiated cancel. UI summaries must not count it as a true failure.
const CancelledMessage = "cancelled"

// Job is the unit of work: one workflow kind for one document.
//
// Invariants: ID is unique for the orchestrator lifetime; Progress is
// monotonically non-decreasing while State == running; Result is set iff
// State == completed; ErrorMessage is set iff State == failed.
type Job struct {
	ID           string          `json:"id"`
	DocumentID   string          `json:"document_id"`
	Kind         WorkflowKind    `json:"kind"`
	Purpose      string          `json:"purpose"`
	State        JobState        `json:"state"`
	Progress     int             `json:"progress"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Cancelled    bool            `json:"cancelled,omitempty"`
	RetryCount   int             `json:"retry_count"`
	Result       *WorkflowResult `json:"result,omitempty"`

	// Merged guards the result merger against duplicate terminal events.
	Merged bool `json:"-"`
}

// NewJob creates a pending job with a fresh id.
func NewJob(documentID string, kind WorkflowKind, purpose string) *Job {
	return &Job{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		Kind:       kind,
		Purpose:    purpose,
		State:      StatePending,
	}
}

// SourceType classifies where a piece of evidence came from.
type SourceType string

const (
	SourceAcademic SourceType = "academic"
	SourceIndustry SourceType = "industry"
	SourceNews     SourceType = "news"
	SourceBlog     SourceType = "blog"
	SourceOther    SourceType = "other"
)

// RawSource is a candidate source record as returned by the search
// collaborator, before scoring.
type RawSource struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	PublishDate *time.Time `json:"publish_date,omitempty"`
	Content     string     `json:"content"`
	// Relevance is the collaborator's own relevance estimate in [0,1].
	Relevance float64 `json:"relevance"`
}

// Source is a scored, attributed piece of external evidence. Immutable once
// produced by the scorer.
type Source struct {
	ID               string     `json:"id"`
	URL              string     `json:"url"`
	Title            string     `json:"title"`
	Author           string     `json:"author,omitempty"`
	PublishDate      *time.Time `json:"publish_date,omitempty"`
	SourceType       SourceType `json:"source_type"`
	CredibilityScore int        `json:"credibility_score"`
	RelevanceScore   int        `json:"relevance_score"`
	KeyQuotes        []string   `json:"key_quotes,omitempty"`
	Summary          string     `json:"summary"`
}

// ResultMetadata records timing and API usage for a completed workflow.
type ResultMetadata struct {
	SearchDurationMs    int64 `json:"search_duration_ms"`
	SynthesisDurationMs int64 `json:"synthesis_duration_ms"`
	APICallCount        int   `json:"api_call_count"`
}

// WorkflowResult is the envelope produced by a completed job. It is owned by
// the job until the merger applies it to the document, after which ownership
// transfers to the document aggregate.
type WorkflowResult struct {
	Sources          []Source       `json:"sources"`
	GeneratedContent string         `json:"generated_content"`
	CredibilityScore float64        `json:"credibility_score"`
	Metadata         ResultMetadata `json:"metadata"`
}

// DocumentState is the per-document research state machine.
type DocumentState string

const (
	DocIdle            DocumentState = "idle"
	DocResearching     DocumentState = "researching"
	DocComplete        DocumentState = "complete"
	DocPartiallyFailed DocumentState = "partially_failed"
)

// KindProgress is the progress snapshot for one workflow kind.
type KindProgress struct {
	Progress int      `json:"progress"`
	State    JobState `json:"state"`
	Error    string   `json:"error,omitempty"`
	// ETASeconds is a UI-facing estimate, defined only while running with
	// progress > 0. Never persisted.
	ETASeconds *int64 `json:"eta_seconds,omitempty"`
}

// DocumentProgress is derived from the document's three jobs and recomputed
// on every progress event; it is never persisted independently of them.
type DocumentProgress struct {
	DocumentID string                        `json:"document_id"`
	State      DocumentState                 `json:"state"`
	PerKind    map[WorkflowKind]KindProgress `json:"per_kind"`
	Overall    int                           `json:"overall"`
}

// CompletionSummary is attached to the document-level completion event.
type CompletionSummary struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
