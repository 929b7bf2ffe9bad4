package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kazmin/rubrica/internal/llm"
	"github.com/kazmin/rubrica/internal/standard"
)

// MalformedResultError is returned when the completion text contains no
// locatable JSON object, or the located block does not parse.
type MalformedResultError struct {
	Reason string
	Raw    string // completion text, for diagnostics
	Err    error
}

func (e *MalformedResultError) Error() string {
	return "malformed evaluation result: " + e.Reason
}

func (e *MalformedResultError) Unwrap() error { return e.Err }

// Completer is the slice of the LLM client the evaluator needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Evaluator scores content against a single standard via the completion
// endpoint. It is a pure transformation around one network call: no state,
// safe for reuse across runs.
type Evaluator struct {
	llm    Completer
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator backed by the given completion client.
func NewEvaluator(c Completer) *Evaluator {
	return &Evaluator{llm: c, logger: slog.Default()}
}

// modelResult mirrors the JSON shape the prompt demands from the model.
type modelResult struct {
	ArticleTitle string            `json:"article_title"`
	Criteria     []ScoredCriterion `json:"criteria"`
	Summary      string            `json:"summary"`
}

// Evaluate scores content against s. Error classes the caller can
// distinguish: *llm.RequestError (transport / non-2xx), llm.ErrEmptyResponse
// (no text body), *MalformedResultError (no parseable JSON object).
func (e *Evaluator) Evaluate(ctx context.Context, s standard.Standard, content string) (EvaluationResult, error) {
	text, err := e.llm.Complete(ctx, BuildPrompt(s, content))
	if err != nil {
		return EvaluationResult{}, err
	}

	block, err := llm.ExtractJSONObject(text)
	if err != nil {
		return EvaluationResult{}, &MalformedResultError{Reason: "no JSON object in completion text", Raw: text, Err: err}
	}

	var raw modelResult
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return EvaluationResult{}, &MalformedResultError{Reason: fmt.Sprintf("parsing result JSON: %v", err), Raw: text, Err: err}
	}

	total := e.score(s, raw.Criteria)

	return EvaluationResult{
		ID:             uuid.New().String(),
		ArticleTitle:   strings.TrimSpace(raw.ArticleTitle),
		ArticleContent: content,
		TotalScore:     total,
		EvaluationDate: time.Now().UTC(),
		Criteria:       raw.Criteria,
		Summary:        strings.TrimSpace(raw.Summary),
		StandardID:     s.ID,
		StandardName:   s.Name,
	}, nil
}

// score computes the weighted total over the criteria the model returned.
// Each criterion contributes score/max_score*100 scaled by its weight share.
// A weight-sum mismatch against the standard's declared total is logged and
// the computed value is used as-is; renormalizing would silently change what
// the rubric's author declared.
func (e *Evaluator) score(s standard.Standard, scored []ScoredCriterion) int {
	var total, weightSeen float64

	for _, sc := range scored {
		crit, ok := s.CriterionByID(sc.ID)
		if !ok {
			e.logger.Warn("model returned unknown criterion, skipping",
				"standard_id", s.ID, "criterion_id", sc.ID)
			continue
		}
		if sc.MaxScore <= 0 {
			e.logger.Warn("criterion has non-positive max score, skipping",
				"standard_id", s.ID, "criterion_id", sc.ID, "max_score", sc.MaxScore)
			continue
		}

		scorePct := sc.Score / sc.MaxScore * 100
		total += scorePct * crit.Weight / 100
		weightSeen += crit.Weight
	}

	if weightSeen != s.TotalWeight {
		e.logger.Warn("scored criterion weights do not match declared total",
			"standard_id", s.ID, "declared_total", s.TotalWeight, "weight_seen", weightSeen)
	}

	rounded := int(math.Round(total))
	if rounded < 0 {
		rounded = 0
	}
	if rounded > 100 {
		rounded = 100
	}
	return rounded
}
