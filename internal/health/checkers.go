package health

import (
	"context"
	"fmt"

	"github.com/inkpad-ai/researchd/internal/docstore"
	"github.com/inkpad-ai/researchd/internal/queue"
	"github.com/inkpad-ai/researchd/internal/streaming"
)

// StoreChecker pings the document store backend. Critical: without it no
// result can be merged.
type StoreChecker struct {
	store docstore.Store
}

func NewStoreChecker(store docstore.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string     { return "docstore" }
func (c *StoreChecker) IsCritical() bool { return true }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "store reachable"}
}

// QueueChecker watches for a wedged scheduler: jobs waiting while every slot
// sits idle means admission stopped happening.
type QueueChecker struct {
	queue *queue.Queue
}

func NewQueueChecker(q *queue.Queue) *QueueChecker {
	return &QueueChecker{queue: q}
}

func (c *QueueChecker) Name() string     { return "queue" }
func (c *QueueChecker) IsCritical() bool { return true }

func (c *QueueChecker) Check(context.Context) CheckResult {
	pending := c.queue.PendingCount()
	running := c.queue.RunningCount()
	msg := fmt.Sprintf("pending=%d running=%d max=%d", pending, running, c.queue.MaxConcurrent())
	if pending > 0 && running == 0 {
		return CheckResult{Status: StatusDegraded, Message: msg}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// HubChecker reports event stream pressure. Non-critical: a subscriber pile
// up degrades streaming, not research.
type HubChecker struct {
	hub            *streaming.Hub
	maxSubscribers int
}

func NewHubChecker(hub *streaming.Hub, maxSubscribers int) *HubChecker {
	return &HubChecker{hub: hub, maxSubscribers: maxSubscribers}
}

func (c *HubChecker) Name() string     { return "event_hub" }
func (c *HubChecker) IsCritical() bool { return false }

func (c *HubChecker) Check(context.Context) CheckResult {
	n := c.hub.SubscriberCount()
	msg := fmt.Sprintf("subscribers=%d", n)
	if c.maxSubscribers > 0 && n > c.maxSubscribers {
		return CheckResult{Status: StatusDegraded, Message: msg}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}
