package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kazmin/rubrica/internal/standard"
)

// BuildPrompt renders the scoring instruction for one standard and one piece
// of content. The full criterion list, including every score-level anchor, is
// embedded so the model scores against the rubric's own definitions rather
// than its general taste.
func BuildPrompt(s standard.Standard, content string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a strict content evaluator. Score the article below against the evaluation standard %q.\n", s.Name)
	if s.Description != "" {
		fmt.Fprintf(&b, "Standard description: %s\n", s.Description)
	}
	b.WriteString("\nCriteria:\n")

	for _, c := range s.Criteria {
		fmt.Fprintf(&b, "- id: %s\n  name: %s\n  weight: %g\n  score range: %d to %d\n",
			c.ID, c.Name, c.Weight, c.ScoreRange[0], c.ScoreRange[1])
		if len(c.Description) > 0 {
			b.WriteString("  score anchors:\n")
			levels := make([]string, 0, len(c.Description))
			for level := range c.Description {
				levels = append(levels, level)
			}
			sort.Strings(levels)
			for _, level := range levels {
				fmt.Fprintf(&b, "    %s: %s\n", level, c.Description[level])
			}
		}
	}

	b.WriteString(`
Score every criterion within its score range. Respond with ONLY a JSON object of this exact shape, no commentary outside of it:
{
  "article_title": "a short title you infer for the article",
  "total_score": 0,
  "evaluation_date": "ISO 8601 date",
  "criteria": [{"id": "...", "name": "...", "score": 0, "max_score": 0, "comment": "one-sentence justification"}],
  "summary": "two or three sentences of overall assessment"
}

Article:
`)
	b.WriteString(content)

	return b.String()
}
