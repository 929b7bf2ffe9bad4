package runner

import (
	"testing"

	"github.com/kazmin/rubrica/internal/scoring"
	"github.com/kazmin/rubrica/internal/standard"
)

func stds(ids ...string) []standard.Standard {
	out := make([]standard.Standard, len(ids))
	for i, id := range ids {
		out[i] = standard.Standard{
			ID:          id,
			Name:        "Standard " + id,
			TotalWeight: 100,
			Criteria: []standard.Criterion{
				{ID: "c1", Name: "Only", Weight: 100, ScoreRange: [2]int{1, 5}},
			},
		}
	}
	return out
}

func TestNewQueue_OneItemPerStandard(t *testing.T) {
	q := NewQueue(stds("a", "b", "c"))

	items := q.Items()
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	for i, it := range items {
		if it.Status != StatusQueued {
			t.Errorf("item %d status = %q, want queued", i, it.Status)
		}
		if it.ID == "" {
			t.Errorf("item %d has empty id", i)
		}
	}
}

func TestNewQueue_DuplicateStandardsGetDistinctIDs(t *testing.T) {
	q := NewQueue(stds("same", "same", "same"))

	seen := map[string]bool{}
	for _, it := range q.Items() {
		if seen[it.ID] {
			t.Fatalf("duplicate queue item id %q", it.ID)
		}
		seen[it.ID] = true
	}
}

func TestQueue_SnapshotIsolation(t *testing.T) {
	q := NewQueue(stds("a"))
	items := q.Items()
	items[0].Status = StatusFailed

	if got := q.Items()[0].Status; got != StatusQueued {
		t.Errorf("mutating a snapshot leaked into the queue: status = %q", got)
	}
}

func TestQueue_StandardSnapshotIndependent(t *testing.T) {
	source := stds("a")
	q := NewQueue(source)

	// Edits to the caller's standard after queue creation must not show up
	// in the queued snapshot.
	source[0].Criteria[0].Weight = 1

	if got := q.Items()[0].Standard.Criteria[0].Weight; got != 100 {
		t.Errorf("queued standard weight = %v, want snapshot value 100", got)
	}
}

func TestQueue_TerminalStatusesAreFinal(t *testing.T) {
	q := NewQueue(stds("a"))
	id := q.Items()[0].ID

	q.MarkEvaluating(id)
	q.MarkCompleted(id, scoring.EvaluationResult{ID: "r1", TotalScore: 90})

	if q.MarkFailed(id, "late failure") {
		t.Error("MarkFailed succeeded on a completed item")
	}
	if q.MarkEvaluating(id) {
		t.Error("MarkEvaluating succeeded on a completed item")
	}
	if got := q.Items()[0].Status; got != StatusCompleted {
		t.Errorf("status = %q, want completed", got)
	}
	if n := q.ReconcilePartial(); n != 0 {
		t.Errorf("ReconcilePartial touched %d terminal items, want 0", n)
	}
}

func TestQueue_ReconcilePartial(t *testing.T) {
	q := NewQueue(stds("a", "b", "c"))
	items := q.Items()

	q.MarkEvaluating(items[0].ID)
	q.MarkCompleted(items[0].ID, scoring.EvaluationResult{ID: "r1"})
	q.MarkEvaluating(items[1].ID)

	if n := q.ReconcilePartial(); n != 2 {
		t.Errorf("ReconcilePartial = %d, want 2 (one evaluating, one queued)", n)
	}

	got := q.Items()
	if got[0].Status != StatusCompleted {
		t.Errorf("item 0 status = %q, want completed", got[0].Status)
	}
	for i := 1; i < 3; i++ {
		if got[i].Status != StatusPartial {
			t.Errorf("item %d status = %q, want partial", i, got[i].Status)
		}
	}
}

func TestQueue_CompletedCount(t *testing.T) {
	q := NewQueue(stds("a", "b"))
	items := q.Items()

	if q.CompletedCount() != 0 {
		t.Errorf("CompletedCount = %d, want 0", q.CompletedCount())
	}
	q.MarkEvaluating(items[0].ID)
	q.MarkCompleted(items[0].ID, scoring.EvaluationResult{})
	if q.CompletedCount() != 1 {
		t.Errorf("CompletedCount = %d, want 1", q.CompletedCount())
	}
}
