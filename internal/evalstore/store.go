// Package evalstore keeps the accumulated evaluation history and derives
// article groups from it. All records live in one JSON document persisted
// through the document store; the in-memory copy is authoritative and a
// failed write never rolls it back.
package evalstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kazmin/rubrica/internal/scoring"
	"github.com/kazmin/rubrica/internal/storage"
)

const evaluationsKey = "article_evaluations"

// ErrNotFound is returned when a group or evaluation id does not exist.
var ErrNotFound = errors.New("evalstore: not found")

// DocStore is the persistence surface the store needs.
type DocStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// ArticleEvaluation is one stored scoring outcome, flattened for
// persistence. WeightInParent is the standard's share of a combined verdict
// as recorded at evaluation time; records written before weights existed
// leave it nil and fall back to an equal split when the verdict is computed.
type ArticleEvaluation struct {
	ID             string                    `json:"id"`
	ArticleTitle   string                    `json:"article_title"`
	ArticleContent string                    `json:"article_content"`
	TotalScore     int                       `json:"total_score"`
	EvaluationDate time.Time                 `json:"evaluation_date"`
	Criteria       []scoring.ScoredCriterion `json:"criteria"`
	Summary        string                    `json:"summary"`
	StandardID     string                    `json:"standard_id"`
	StandardName   string                    `json:"standard_name"`
	WeightInParent *float64                  `json:"weight_in_parent,omitempty"`
}

// Group is a set of evaluations of the same article, one per standard.
type Group struct {
	ID              string              `json:"id"`
	ArticleTitle    string              `json:"article_title"`
	LatestDate      time.Time           `json:"latest_date"`
	AverageScore    float64             `json:"average_score"`
	WeightedVerdict int                 `json:"weighted_verdict"`
	Evaluations     []ArticleEvaluation `json:"evaluations"`
}

// Store is the single mutation path for evaluation history. Reads hand out
// copies; groups are derived on demand rather than stored.
type Store struct {
	mu     sync.Mutex
	docs   DocStore
	logger *slog.Logger

	loaded bool
	evals  []ArticleEvaluation // newest first
}

func New(docs DocStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{docs: docs, logger: logger}
}

// load populates the cache from the persisted document once.
func (s *Store) load() error {
	if s.loaded {
		return nil
	}
	raw, err := s.docs.Get(evaluationsKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("loading evaluations: %w", err)
	}
	var evals []ArticleEvaluation
	if err := json.Unmarshal([]byte(raw), &evals); err != nil {
		return fmt.Errorf("decoding evaluations: %w", err)
	}
	s.evals = evals
	s.loaded = true
	return nil
}

// persist writes the cache back. Failures are logged and swallowed: the
// in-memory state the caller just observed stays valid either way.
func (s *Store) persist() {
	raw, err := json.Marshal(s.evals)
	if err != nil {
		s.logger.Error("encoding evaluations failed", "error", err)
		return
	}
	if err := s.docs.Set(evaluationsKey, string(raw)); err != nil {
		s.logger.Error("persisting evaluations failed", "error", err, "count", len(s.evals))
	}
}

// Add records a batch of results from one run. New records are prepended in
// submission order, then the history is deduplicated by (article title,
// standard id) keeping the first occurrence, so the newest evaluation of a
// pair always wins. weights optionally maps standard id to that standard's
// share of the combined verdict.
func (s *Store) Add(results []scoring.EvaluationResult, weights map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}

	records := make([]ArticleEvaluation, 0, len(results))
	for _, res := range results {
		rec := ArticleEvaluation{
			ID:             res.ID,
			ArticleTitle:   res.ArticleTitle,
			ArticleContent: res.ArticleContent,
			TotalScore:     res.TotalScore,
			EvaluationDate: res.EvaluationDate,
			Criteria:       res.Criteria,
			Summary:        res.Summary,
			StandardID:     res.StandardID,
			StandardName:   res.StandardName,
		}
		if w, ok := weights[res.StandardID]; ok {
			weight := w
			rec.WeightInParent = &weight
		}
		records = append(records, rec)
	}

	merged := append(records, s.evals...)
	s.evals = dedupe(merged)
	s.persist()
	return nil
}

// dedupe keeps the first record for each (article title, standard id) pair.
// The slice is newest first, so first occurrence means latest evaluation.
func dedupe(evals []ArticleEvaluation) []ArticleEvaluation {
	type pair struct{ title, standardID string }
	seen := make(map[pair]bool, len(evals))
	out := evals[:0]
	for _, ev := range evals {
		k := pair{ev.ArticleTitle, ev.StandardID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ev)
	}
	return out
}

// List returns all stored evaluations, newest first.
func (s *Store) List() ([]ArticleEvaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	return append([]ArticleEvaluation(nil), s.evals...), nil
}

// Groups derives article groups from the history. Records whose article
// content is equal after trimming surrounding whitespace belong to the same
// group; the group's title and date come from its newest record. Groups are
// ordered newest first.
func (s *Store) Groups() ([]Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}

	byContent := map[string]*Group{}
	var order []string
	for _, ev := range s.evals {
		key := strings.TrimSpace(ev.ArticleContent)
		g, ok := byContent[key]
		if !ok {
			g = &Group{
				ID:           groupID(key),
				ArticleTitle: ev.ArticleTitle,
				LatestDate:   ev.EvaluationDate,
			}
			byContent[key] = g
			order = append(order, key)
		}
		if ev.EvaluationDate.After(g.LatestDate) {
			g.LatestDate = ev.EvaluationDate
			g.ArticleTitle = ev.ArticleTitle
		}
		g.Evaluations = append(g.Evaluations, ev)
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		g := byContent[key]
		g.AverageScore = averageScore(g.Evaluations)
		g.WeightedVerdict = weightedVerdict(g.Evaluations)
		groups = append(groups, *g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].LatestDate.After(groups[j].LatestDate)
	})
	return groups, nil
}

// Group returns one derived group by id.
func (s *Store) Group(id string) (Group, error) {
	groups, err := s.Groups()
	if err != nil {
		return Group{}, err
	}
	for _, g := range groups {
		if g.ID == id {
			return g, nil
		}
	}
	return Group{}, ErrNotFound
}

// DeleteGroup removes every evaluation belonging to the group.
func (s *Store) DeleteGroup(id string) error {
	g, err := s.Group(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	member := make(map[string]bool, len(g.Evaluations))
	for _, ev := range g.Evaluations {
		member[ev.ID] = true
	}
	kept := s.evals[:0]
	for _, ev := range s.evals {
		if !member[ev.ID] {
			kept = append(kept, ev)
		}
	}
	s.evals = kept
	s.persist()
	return nil
}

// DeleteEvaluation removes a single evaluation record by id.
func (s *Store) DeleteEvaluation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	for i, ev := range s.evals {
		if ev.ID == id {
			s.evals = append(s.evals[:i], s.evals[i+1:]...)
			s.persist()
			return nil
		}
	}
	return ErrNotFound
}

// groupID is a stable fingerprint of the trimmed article content.
func groupID(trimmedContent string) string {
	sum := sha256.Sum256([]byte(trimmedContent))
	return hex.EncodeToString(sum[:6])
}

// averageScore is the unweighted mean of the group's total scores.
func averageScore(evals []ArticleEvaluation) float64 {
	if len(evals) == 0 {
		return 0
	}
	sum := 0
	for _, ev := range evals {
		sum += ev.TotalScore
	}
	return float64(sum) / float64(len(evals))
}

// weightedVerdict combines the group's scores using each record's recorded
// share. Records without a recorded share contribute at an equal split of
// the whole, computed here rather than stored.
func weightedVerdict(evals []ArticleEvaluation) int {
	if len(evals) == 0 {
		return 0
	}
	equal := 1.0 / float64(len(evals))
	verdict := 0.0
	for _, ev := range evals {
		w := equal
		if ev.WeightInParent != nil {
			w = *ev.WeightInParent
		}
		verdict += float64(ev.TotalScore) * w
	}
	return int(math.Round(verdict))
}
