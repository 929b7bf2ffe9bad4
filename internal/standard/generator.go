package standard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kazmin/rubrica/internal/llm"
)

// Completer is the slice of the LLM client the generator needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator drafts a full standard document for a topic by asking the
// completion endpoint to author criteria with weights and per-level anchors.
type Generator struct {
	llm    Completer
	logger *slog.Logger
}

// NewGenerator creates a Generator backed by the given completion client.
func NewGenerator(c Completer) *Generator {
	return &Generator{llm: c, logger: slog.Default()}
}

const generatePromptTemplate = `You are an expert rubric designer. Create an evaluation standard for scoring articles on the topic below.

Topic: %s

Produce %d criteria. Each criterion needs a short machine-friendly id (lowercase, hyphenated), a name, a weight between 0 and 100, a score range of [1, %d], and a description map with an anchor text for at least the lowest, middle, and highest score levels. Weights must sum to exactly 100.

Respond with ONLY a JSON object of this exact shape, no extra commentary:
{
  "name": "...",
  "description": "...",
  "total_weight": 100,
  "criteria": [
    {"id": "...", "name": "...", "weight": 0, "score_range": [1, %d], "description": {"1": "...", "3": "...", "5": "..."}}
  ]
}`

// Generate asks the model to author a standard for topic with the given
// number of criteria and score levels. The returned standard gets a fresh id;
// it is not persisted.
func (g *Generator) Generate(ctx context.Context, topic string, criteria, levels int) (Standard, error) {
	if strings.TrimSpace(topic) == "" {
		return Standard{}, fmt.Errorf("topic is required")
	}
	if criteria <= 0 {
		criteria = 4
	}
	if levels <= 1 {
		levels = 5
	}

	prompt := fmt.Sprintf(generatePromptTemplate, strings.TrimSpace(topic), criteria, levels, levels)

	text, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		return Standard{}, fmt.Errorf("generating standard: %w", err)
	}

	block, err := llm.ExtractJSONObject(text)
	if err != nil {
		return Standard{}, fmt.Errorf("locating standard JSON in completion: %w", err)
	}

	var s Standard
	if err := json.Unmarshal([]byte(block), &s); err != nil {
		return Standard{}, fmt.Errorf("decoding generated standard: %w", err)
	}

	s.ID = uuid.New().String()
	if s.TotalWeight == 0 {
		s.TotalWeight = 100
	}
	for i := range s.Criteria {
		if s.Criteria[i].ID == "" {
			s.Criteria[i].ID = fmt.Sprintf("criterion-%d", i+1)
		}
	}
	s.CheckWeights(g.logger)
	return s, nil
}
