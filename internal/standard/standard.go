package standard

import (
	"log/slog"
	"maps"
)

// Criterion is one scored dimension within a standard. Description maps a
// score level (stringified integer, e.g. "3") to the anchor text describing
// what that level means.
type Criterion struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Weight      float64           `json:"weight"` // 0-100, share of the standard's total weight
	ScoreRange  [2]int            `json:"score_range"`
	Description map[string]string `json:"description,omitempty"`
}

// Standard is a named, weighted set of scoring criteria.
type Standard struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Criteria    []Criterion `json:"criteria"`
	TotalWeight float64     `json:"total_weight"`
}

// CriterionByID returns the criterion with the given id.
func (s Standard) CriterionByID(id string) (Criterion, bool) {
	for _, c := range s.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// WeightSum returns the sum of all criterion weights.
func (s Standard) WeightSum() float64 {
	var sum float64
	for _, c := range s.Criteria {
		sum += c.Weight
	}
	return sum
}

// CheckWeights logs a warning when the criterion weights do not add up to the
// declared total weight. The mismatch is informational: scores computed
// against such a standard are used as-is, never renormalized.
func (s Standard) CheckWeights(logger *slog.Logger) {
	if sum := s.WeightSum(); sum != s.TotalWeight {
		logger.Warn("criterion weights do not sum to declared total",
			"standard_id", s.ID,
			"standard_name", s.Name,
			"declared_total", s.TotalWeight,
			"actual_sum", sum,
		)
	}
}

// Clone returns a deep copy. Queue items snapshot standards at creation so
// that edits never affect an in-flight evaluation run.
func (s Standard) Clone() Standard {
	out := s
	out.Criteria = make([]Criterion, len(s.Criteria))
	for i, c := range s.Criteria {
		cc := c
		if c.Description != nil {
			cc.Description = maps.Clone(c.Description)
		}
		out.Criteria[i] = cc
	}
	return out
}
