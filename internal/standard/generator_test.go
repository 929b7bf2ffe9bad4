package standard

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockCompleter struct {
	completeFn func(ctx context.Context, prompt string) (string, error)
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return m.completeFn(ctx, prompt)
}

func TestGenerator_Generate(t *testing.T) {
	var gotPrompt string
	gen := NewGenerator(&mockCompleter{
		completeFn: func(_ context.Context, prompt string) (string, error) {
			gotPrompt = prompt
			return `Sure, here is your rubric:
{
  "name": "Technical depth",
  "description": "Evaluates engineering writing.",
  "total_weight": 100,
  "criteria": [
    {"id": "rigor", "name": "Rigor", "weight": 60, "score_range": [1, 5], "description": {"1": "hand-wavy", "5": "precise"}},
    {"id": "depth", "name": "Depth", "weight": 40, "score_range": [1, 5], "description": {"1": "shallow", "5": "thorough"}}
  ]
}`, nil
		},
	})

	s, err := gen.Generate(context.Background(), "engineering blog posts", 2, 5)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if s.ID == "" {
		t.Error("generated standard has no id")
	}
	if s.Name != "Technical depth" {
		t.Errorf("Name = %q, want Technical depth", s.Name)
	}
	if len(s.Criteria) != 2 {
		t.Fatalf("criteria count = %d, want 2", len(s.Criteria))
	}
	if s.WeightSum() != 100 {
		t.Errorf("WeightSum = %v, want 100", s.WeightSum())
	}
	for _, want := range []string{"engineering blog posts", "2 criteria"} {
		if !strings.Contains(gotPrompt, want) {
			t.Errorf("prompt does not mention %q", want)
		}
	}
}

func TestGenerator_GenerateNoJSON(t *testing.T) {
	gen := NewGenerator(&mockCompleter{
		completeFn: func(_ context.Context, _ string) (string, error) {
			return "I cannot help with that.", nil
		},
	})

	if _, err := gen.Generate(context.Background(), "anything", 3, 5); err == nil {
		t.Error("Generate succeeded on prose-only completion, want error")
	}
}

func TestGenerator_GenerateCompletionError(t *testing.T) {
	wantErr := errors.New("upstream down")
	gen := NewGenerator(&mockCompleter{
		completeFn: func(_ context.Context, _ string) (string, error) {
			return "", wantErr
		},
	})

	if _, err := gen.Generate(context.Background(), "anything", 3, 5); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestGenerator_GenerateEmptyTopic(t *testing.T) {
	gen := NewGenerator(&mockCompleter{
		completeFn: func(_ context.Context, _ string) (string, error) {
			t.Fatal("completion should not be called for empty topic")
			return "", nil
		},
	})

	if _, err := gen.Generate(context.Background(), "   ", 3, 5); err == nil {
		t.Error("Generate accepted empty topic, want error")
	}
}
