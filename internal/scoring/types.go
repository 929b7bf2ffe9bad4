package scoring

import "time"

// ScoredCriterion is one criterion's score as returned by the model.
type ScoredCriterion struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
	Comment  string  `json:"comment,omitempty"`
}

// EvaluationResult is the outcome of scoring one piece of content against one
// standard. Immutable once created; owned by the queue item that produced it
// until it is persisted.
type EvaluationResult struct {
	ID             string            `json:"id"`
	ArticleTitle   string            `json:"article_title"`
	ArticleContent string            `json:"article_content"`
	TotalScore     int               `json:"total_score"` // 0-100, rounded
	EvaluationDate time.Time         `json:"evaluation_date"`
	Criteria       []ScoredCriterion `json:"criteria"`
	Summary        string            `json:"summary,omitempty"`
	StandardID     string            `json:"standard_id"`
	StandardName   string            `json:"standard_name"`
}
