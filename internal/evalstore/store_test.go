package evalstore

import (
	"errors"
	"testing"
	"time"

	"github.com/kazmin/rubrica/internal/scoring"
	"github.com/kazmin/rubrica/internal/storage"
)

type memDocs struct {
	data   map[string]string
	setErr error
}

func newMemDocs() *memDocs {
	return &memDocs{data: map[string]string{}}
}

func (m *memDocs) Get(key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *memDocs) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func result(id, title, content, standardID string, score int, at time.Time) scoring.EvaluationResult {
	return scoring.EvaluationResult{
		ID:             id,
		ArticleTitle:   title,
		ArticleContent: content,
		TotalScore:     score,
		EvaluationDate: at,
		StandardID:     standardID,
		StandardName:   "Standard " + standardID,
	}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStore_AddAndList(t *testing.T) {
	s := New(newMemDocs(), nil)

	if err := s.Add([]scoring.EvaluationResult{
		result("e1", "Alpha", "body A", "s1", 80, t0),
		result("e2", "Alpha", "body A", "s2", 60, t0),
	}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	evals, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(evals) != 2 {
		t.Fatalf("len = %d, want 2", len(evals))
	}
	if evals[0].ID != "e1" || evals[1].ID != "e2" {
		t.Errorf("order = %s,%s want e1,e2 (batch submission order)", evals[0].ID, evals[1].ID)
	}
}

func TestStore_NewBatchIsPrepended(t *testing.T) {
	s := New(newMemDocs(), nil)

	s.Add([]scoring.EvaluationResult{result("old", "Alpha", "body A", "s1", 50, t0)}, nil)
	s.Add([]scoring.EvaluationResult{result("new", "Beta", "body B", "s1", 70, t0.Add(time.Hour))}, nil)

	evals, _ := s.List()
	if evals[0].ID != "new" {
		t.Errorf("evals[0].ID = %q, want newest record first", evals[0].ID)
	}
}

func TestStore_DedupeByTitleAndStandard(t *testing.T) {
	s := New(newMemDocs(), nil)

	s.Add([]scoring.EvaluationResult{result("e1", "Alpha", "body A", "s1", 50, t0)}, nil)
	s.Add([]scoring.EvaluationResult{result("e2", "Alpha", "body A", "s1", 90, t0.Add(time.Hour))}, nil)

	evals, _ := s.List()
	if len(evals) != 1 {
		t.Fatalf("len = %d, want 1 (re-evaluation replaces the pair)", len(evals))
	}
	if evals[0].ID != "e2" || evals[0].TotalScore != 90 {
		t.Errorf("survivor = %s score %d, want e2 score 90 (latest wins)", evals[0].ID, evals[0].TotalScore)
	}
}

func TestStore_SameTitleDifferentStandardsBothKept(t *testing.T) {
	s := New(newMemDocs(), nil)

	s.Add([]scoring.EvaluationResult{
		result("e1", "Alpha", "body A", "s1", 80, t0),
		result("e2", "Alpha", "body A", "s2", 60, t0),
	}, nil)

	evals, _ := s.List()
	if len(evals) != 2 {
		t.Errorf("len = %d, want 2 (distinct standards are distinct records)", len(evals))
	}
}

func TestStore_GroupsByTrimmedContent(t *testing.T) {
	s := New(newMemDocs(), nil)

	// Same body modulo surrounding whitespace, different titles.
	s.Add([]scoring.EvaluationResult{result("e1", "Alpha v1", "the body", "s1", 80, t0)}, nil)
	s.Add([]scoring.EvaluationResult{result("e2", "Alpha v2", "  the body\n", "s2", 60, t0.Add(time.Hour))}, nil)
	s.Add([]scoring.EvaluationResult{result("e3", "Other", "different body", "s1", 40, t0.Add(2*time.Hour))}, nil)

	groups, err := s.Groups()
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}

	// Sorted newest first: "Other" at 2h, then the merged pair at 1h.
	if groups[0].ArticleTitle != "Other" {
		t.Errorf("groups[0] = %q, want Other (latest date first)", groups[0].ArticleTitle)
	}
	merged := groups[1]
	if len(merged.Evaluations) != 2 {
		t.Fatalf("merged group has %d evaluations, want 2", len(merged.Evaluations))
	}
	if merged.ArticleTitle != "Alpha v2" {
		t.Errorf("merged title = %q, want Alpha v2 (from newest record)", merged.ArticleTitle)
	}
	if !merged.LatestDate.Equal(t0.Add(time.Hour)) {
		t.Errorf("LatestDate = %v, want %v", merged.LatestDate, t0.Add(time.Hour))
	}
	if merged.AverageScore != 70 {
		t.Errorf("AverageScore = %v, want 70 (unweighted mean of 80 and 60)", merged.AverageScore)
	}
	if merged.ID == "" || merged.ID == groups[0].ID {
		t.Errorf("group ids not distinct: %q vs %q", merged.ID, groups[0].ID)
	}
}

func TestStore_WeightedVerdict(t *testing.T) {
	s := New(newMemDocs(), nil)

	s.Add([]scoring.EvaluationResult{
		result("e1", "Alpha", "body", "s1", 80, t0),
		result("e2", "Alpha", "body", "s2", 60, t0),
	}, map[string]float64{"s1": 0.7, "s2": 0.3})

	groups, _ := s.Groups()
	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1", len(groups))
	}
	// 80*0.7 + 60*0.3 = 74
	if groups[0].WeightedVerdict != 74 {
		t.Errorf("WeightedVerdict = %d, want 74", groups[0].WeightedVerdict)
	}
}

func TestStore_WeightedVerdictEqualSplitFallback(t *testing.T) {
	s := New(newMemDocs(), nil)

	// No weights recorded: each record counts 1/n.
	s.Add([]scoring.EvaluationResult{
		result("e1", "Alpha", "body", "s1", 80, t0),
		result("e2", "Alpha", "body", "s2", 60, t0),
	}, nil)

	groups, _ := s.Groups()
	if groups[0].WeightedVerdict != 70 {
		t.Errorf("WeightedVerdict = %d, want 70 (equal split of 80 and 60)", groups[0].WeightedVerdict)
	}
}

func TestStore_GroupByID(t *testing.T) {
	s := New(newMemDocs(), nil)
	s.Add([]scoring.EvaluationResult{result("e1", "Alpha", "body", "s1", 80, t0)}, nil)

	groups, _ := s.Groups()
	g, err := s.Group(groups[0].ID)
	if err != nil {
		t.Fatalf("Group: %v", err)
	}
	if g.ArticleTitle != "Alpha" {
		t.Errorf("title = %q, want Alpha", g.ArticleTitle)
	}
	if _, err := s.Group("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteGroup(t *testing.T) {
	s := New(newMemDocs(), nil)
	s.Add([]scoring.EvaluationResult{
		result("e1", "Alpha", "body A", "s1", 80, t0),
		result("e2", "Alpha", "body A", "s2", 60, t0),
		result("e3", "Other", "body B", "s1", 40, t0),
	}, nil)

	groups, _ := s.Groups()
	var target string
	for _, g := range groups {
		if g.ArticleTitle == "Alpha" {
			target = g.ID
		}
	}

	if err := s.DeleteGroup(target); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	evals, _ := s.List()
	if len(evals) != 1 || evals[0].ID != "e3" {
		t.Errorf("remaining = %+v, want only e3", evals)
	}
	if err := s.DeleteGroup(target); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteEvaluation(t *testing.T) {
	s := New(newMemDocs(), nil)
	s.Add([]scoring.EvaluationResult{
		result("e1", "Alpha", "body", "s1", 80, t0),
		result("e2", "Alpha", "body", "s2", 60, t0),
	}, nil)

	if err := s.DeleteEvaluation("e1"); err != nil {
		t.Fatalf("DeleteEvaluation: %v", err)
	}
	evals, _ := s.List()
	if len(evals) != 1 || evals[0].ID != "e2" {
		t.Errorf("remaining = %+v, want only e2", evals)
	}
	if err := s.DeleteEvaluation("e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	docs := newMemDocs()

	s := New(docs, nil)
	s.Add([]scoring.EvaluationResult{result("e1", "Alpha", "body", "s1", 80, t0)}, map[string]float64{"s1": 0.7})

	reopened := New(docs, nil)
	evals, err := reopened.List()
	if err != nil {
		t.Fatalf("List after reopen: %v", err)
	}
	if len(evals) != 1 || evals[0].ID != "e1" {
		t.Fatalf("reopened evals = %+v, want e1", evals)
	}
	if evals[0].WeightInParent == nil || *evals[0].WeightInParent != 0.7 {
		t.Errorf("WeightInParent = %v, want 0.7 to round-trip", evals[0].WeightInParent)
	}
}

func TestStore_WriteFailureKeepsMemoryState(t *testing.T) {
	docs := newMemDocs()
	s := New(docs, nil)

	docs.setErr = errors.New("disk full")
	if err := s.Add([]scoring.EvaluationResult{result("e1", "Alpha", "body", "s1", 80, t0)}, nil); err != nil {
		t.Fatalf("Add: %v (persistence failure must not surface)", err)
	}

	evals, _ := s.List()
	if len(evals) != 1 {
		t.Errorf("len = %d, want 1 (in-memory state kept despite failed write)", len(evals))
	}
}
