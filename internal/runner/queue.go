package runner

import (
	"fmt"
	"sync"
	"time"

	"github.com/kazmin/rubrica/internal/scoring"
	"github.com/kazmin/rubrica/internal/standard"
)

// Status is the lifecycle state of one queue item.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusEvaluating Status = "evaluating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPartial    Status = "partial"
)

// terminal reports whether a status permits no further transitions.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusPartial
}

// Item is one standard's evaluation attempt within a run. The Standard field
// is a snapshot taken at queue creation: editing a standard mid-run never
// affects the in-flight evaluation.
type Item struct {
	ID        string                    `json:"id"`
	Standard  standard.Standard         `json:"standard"`
	Status    Status                    `json:"status"`
	Progress  int                       `json:"progress"` // 0 or 100; per-item granularity is not tracked
	Result    *scoring.EvaluationResult `json:"result,omitempty"`
	Err       string                    `json:"error,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

// Queue is the ordered, observable set of evaluation attempts for one run.
// All mutation funnels through update; reads return copies.
type Queue struct {
	mu    sync.Mutex
	items []*Item
}

// NewQueue creates one queued item per standard. Item ids combine the
// standard id with the creation timestamp (offset per position), so queueing
// the same standard twice still yields distinct ids.
func NewQueue(standards []standard.Standard) *Queue {
	now := time.Now()
	base := now.UnixNano()

	items := make([]*Item, len(standards))
	for i, s := range standards {
		items[i] = &Item{
			ID:        fmt.Sprintf("%s-%d", s.ID, base+int64(i)),
			Standard:  s.Clone(),
			Status:    StatusQueued,
			CreatedAt: now,
		}
	}
	return &Queue{items: items}
}

// update applies fn to the item with the given id. Items in a terminal
// status are never touched: completed, failed, and partial are final.
func (q *Queue) update(id string, fn func(*Item)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.ID != id {
			continue
		}
		if it.Status.terminal() {
			return false
		}
		fn(it)
		return true
	}
	return false
}

// MarkEvaluating moves a queued item to evaluating.
func (q *Queue) MarkEvaluating(id string) bool {
	return q.update(id, func(it *Item) {
		it.Status = StatusEvaluating
	})
}

// MarkCompleted records the result and finalizes the item.
func (q *Queue) MarkCompleted(id string, res scoring.EvaluationResult) bool {
	return q.update(id, func(it *Item) {
		it.Status = StatusCompleted
		it.Progress = 100
		it.Result = &res
	})
}

// MarkFailed finalizes the item with a human-readable cause.
func (q *Queue) MarkFailed(id string, msg string) bool {
	return q.update(id, func(it *Item) {
		it.Status = StatusFailed
		it.Err = msg
	})
}

// ReconcilePartial reclassifies every non-terminal item as partial. Called
// after a cancellation or abort: unprocessed items are an interruption, not
// failures.
func (q *Queue) ReconcilePartial() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if !it.Status.terminal() {
			it.Status = StatusPartial
			n++
		}
	}
	return n
}

// Items returns a snapshot of all items in submission order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	for i, it := range q.items {
		out[i] = *it
	}
	return out
}

// Len returns the number of items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CompletedCount returns how many items have completed successfully.
func (q *Queue) CompletedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.Status == StatusCompleted {
			n++
		}
	}
	return n
}
