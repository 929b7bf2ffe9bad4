package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kazmin/rubrica/internal/config"
	"github.com/kazmin/rubrica/internal/evalstore"
	"github.com/kazmin/rubrica/internal/runner"
	"github.com/kazmin/rubrica/internal/scoring"
	"github.com/kazmin/rubrica/internal/standard"
)

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	return MCPDeps{
		Standards: standard.NewRepository(newMemDocs()),
		Evals:     evalstore.New(newMemDocs(), nil),
		Runner:    runner.New(&mockScorer{}),
		LLM:       validLLM(),
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_EvaluateArticle(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpEvaluateArticle(deps)

	req := makeCallToolRequest("evaluate_article", map[string]interface{}{
		"content": "An article about distributed systems.",
		"title":   "Distributed Systems Primer",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var outcomes []struct {
		StandardID string `json:"standard_id"`
		Status     string `json:"status"`
		TotalScore *int   `json:"total_score"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &outcomes); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome (seeded standard), got %d", len(outcomes))
	}
	if outcomes[0].Status != "completed" || outcomes[0].TotalScore == nil {
		t.Fatalf("outcome = %+v, want completed with score", outcomes[0])
	}

	// Results were stored; the group carries the supplied title.
	groups, err := deps.Evals.Groups()
	if err != nil {
		t.Fatalf("listing groups: %v", err)
	}
	if len(groups) != 1 || groups[0].ArticleTitle != "Distributed Systems Primer" {
		t.Fatalf("groups = %+v, want one group with the supplied title", groups)
	}
}

func TestMCPTool_EvaluateArticle_SelectedStandards(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Standards.Save(standard.Standard{
		ID: "extra", Name: "Extra", TotalWeight: 100,
		Criteria: []standard.Criterion{{ID: "c1", Name: "C", Weight: 100, ScoreRange: [2]int{1, 5}}},
	})
	handler := mcpEvaluateArticle(deps)

	req := makeCallToolRequest("evaluate_article", map[string]interface{}{
		"content":      "body",
		"standard_ids": []string{"extra"},
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var outcomes []struct {
		StandardID string `json:"standard_id"`
	}
	json.Unmarshal([]byte(toolText(t, result)), &outcomes)
	if len(outcomes) != 1 || outcomes[0].StandardID != "extra" {
		t.Fatalf("outcomes = %+v, want only the selected standard", outcomes)
	}
}

func TestMCPTool_EvaluateArticle_Validation(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpEvaluateArticle(deps)

	result, err := handler(context.Background(), makeCallToolRequest("evaluate_article", map[string]interface{}{
		"content": "   ",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for blank content")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("evaluate_article", map[string]interface{}{
		"content":      "body",
		"standard_ids": []string{"ghost"},
	}))
	if !result.IsError {
		t.Fatal("expected error for unknown standard id")
	}

	deps.LLM = config.LLMConfig{}
	handler = mcpEvaluateArticle(deps)
	result, _ = handler(context.Background(), makeCallToolRequest("evaluate_article", map[string]interface{}{
		"content": "body",
	}))
	if !result.IsError {
		t.Fatal("expected error for incomplete connection settings")
	}
}

func TestMCPTool_ListStandards(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpListStandards(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_standards", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var standards []standard.Standard
	if err := json.Unmarshal([]byte(toolText(t, result)), &standards); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(standards) != 1 || standards[0].ID != "general-quality" {
		t.Fatalf("standards = %+v, want the seeded default", standards)
	}
}

func TestMCPTool_ListGroups(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Evals.Add([]scoring.EvaluationResult{{
		ID: "e1", ArticleTitle: "Alpha", ArticleContent: "body",
		TotalScore: 80, EvaluationDate: time.Now().UTC(), StandardID: "s1",
	}}, nil)
	handler := mcpListGroups(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_groups", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var summaries []struct {
		ArticleTitle    string `json:"article_title"`
		WeightedVerdict int    `json:"weighted_verdict"`
		Evaluations     int    `json:"evaluations"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &summaries); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ArticleTitle != "Alpha" || summaries[0].Evaluations != 1 {
		t.Fatalf("summaries = %+v", summaries)
	}
}

func TestMCPResource_Groups(t *testing.T) {
	deps := newTestMCPDeps(t)
	deps.Evals.Add([]scoring.EvaluationResult{{
		ID: "e1", ArticleTitle: "Alpha", ArticleContent: "body",
		TotalScore: 80, EvaluationDate: time.Now().UTC(), StandardID: "s1",
	}}, nil)

	handler := mcpResourceGroups(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("rubrica://groups"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var groups []evalstore.Group
	if err := json.Unmarshal([]byte(tc.Text), &groups); err != nil {
		t.Fatalf("failed to parse groups JSON: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Evaluations) != 1 {
		t.Fatalf("groups = %+v", groups)
	}
}
