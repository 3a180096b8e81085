// Package streaming provides in-memory pub/sub for document research events
// with a per-document replay buffer, so SSE reconnects and late subscribers
// can recover missed progress updates.
package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/inkpad-ai/researchd/internal/metrics"
	"github.com/inkpad-ai/researchd/internal/models"
)

// EventType tags the payload carried by an Event.
type EventType string

const (
	EventResearchStarted   EventType = "research_started"
	EventJobProgress       EventType = "job_progress"
	EventJobCompleted      EventType = "job_completed"
	EventJobFailed         EventType = "job_failed"
	EventResearchComplete  EventType = "research_complete"
	EventResearchCancelled EventType = "research_cancelled"
)

// Event is one observation on a document's research stream. Progress and
// completion events for a given job are published in checkpoint order;
// nothing is guaranteed across jobs.
type Event struct {
	DocumentID string                    `json:"document_id"`
	Type       EventType                 `json:"type"`
	Kind       models.WorkflowKind       `json:"kind,omitempty"`
	State      models.JobState           `json:"state,omitempty"`
	Progress   int                       `json:"progress,omitempty"`
	Overall    int                       `json:"overall,omitempty"`
	Error      string                    `json:"error,omitempty"`
	Result     *models.WorkflowResult    `json:"result,omitempty"`
	Summary    *models.CompletionSummary `json:"summary,omitempty"`
	Timestamp  time.Time                 `json:"timestamp"`
	Seq        uint64                    `json:"seq"`
}

// Marshal returns JSON for event payloads in SSE frames or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Hub fans events out to per-document subscribers. Slow subscribers drop
// events rather than block publishers; the ring buffer covers recovery.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// DefaultRingCapacity bounds per-document replay history.
const DefaultRingCapacity = 256

// NewHub creates a hub whose replay rings hold capacity events per document.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a document; the caller must drain
// it and call Unsubscribe when done.
func (h *Hub) Subscribe(documentID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[documentID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		h.subscribers[documentID] = subs
	}
	subs[ch] = struct{}{}
	metrics.EventSubscribers.Inc()
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (h *Hub) Unsubscribe(documentID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[documentID]; ok {
		if _, member := subs[ch]; !member {
			return
		}
		delete(subs, ch)
		close(ch)
		metrics.EventSubscribers.Dec()
		if len(subs) == 0 {
			delete(h.subscribers, documentID)
		}
	}
}

// Publish assigns a sequence number, records the event for replay, and sends
// it to all subscribers of the document without blocking. Fanout happens
// under the hub lock so it cannot race a concurrent Subscribe/Unsubscribe
// mutating the map or closing a channel; sends are non-blocking, so the lock
// is never held across a waiting subscriber.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	h.mu.Lock()
	rg := h.history[evt.DocumentID]
	if rg == nil {
		rg = newRing(h.capacity)
		h.history[evt.DocumentID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	for ch := range h.subscribers[evt.DocumentID] {
		select {
		case ch <- evt:
		default:
			// Drop if subscriber is slow
		}
	}
	h.mu.Unlock()

	metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
}

// ReplaySince returns events with Seq > since, best effort within the ring
// capacity.
func (h *Hub) ReplaySince(documentID string, since uint64) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rg := h.history[documentID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// SubscriberCount reports active subscribers across all documents.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.subscribers {
		n += len(subs)
	}
	return n
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
