package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kazmin/rubrica/internal/config"
	"github.com/kazmin/rubrica/internal/evalstore"
	"github.com/kazmin/rubrica/internal/runner"
	"github.com/kazmin/rubrica/internal/standard"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Standards *standard.Repository
	Evals     *evalstore.Store
	Runner    *runner.Runner // synchronous evaluation path
	LLM       config.LLMConfig
}

// NewMCPServer creates an MCP server with the evaluation tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"rubrica",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("rubrica: rubric-based article evaluation via a local scoring model."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("evaluate_article",
			mcp.WithDescription("Score an article against one or more evaluation standards and store the results."),
			mcp.WithString("content", mcp.Description("The article text to evaluate"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Optional article title; defaults to the model's reading")),
			mcp.WithArray("standard_ids", mcp.Description("Standards to score against; all standards when omitted")),
		),
		mcpEvaluateArticle(deps),
	)

	s.AddTool(
		mcp.NewTool("list_standards",
			mcp.WithDescription("List the available evaluation standards with their criteria and weights."),
		),
		mcpListStandards(deps),
	)

	s.AddTool(
		mcp.NewTool("list_groups",
			mcp.WithDescription("List stored evaluation groups: per-article score summaries across standards."),
		),
		mcpListGroups(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"rubrica://groups",
			"Evaluation Groups",
			mcp.WithResourceDescription("All evaluation groups as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceGroups(deps),
	)

	return s
}

func mcpEvaluateArticle(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil || strings.TrimSpace(content) == "" {
			return mcpError("content is required and must not be empty"), nil
		}
		if err := deps.LLM.Validate(); err != nil {
			return mcpError(fmt.Sprintf("scoring endpoint not configured: %v", err)), nil
		}

		ids := req.GetStringSlice("standard_ids", nil)
		var standards []standard.Standard
		if len(ids) == 0 {
			standards, err = deps.Standards.List()
			if err != nil {
				return mcpError(fmt.Sprintf("listing standards: %v", err)), nil
			}
		} else {
			for _, id := range ids {
				s, err := deps.Standards.Get(id)
				if err != nil {
					return mcpError(fmt.Sprintf("unknown standard id %q", id)), nil
				}
				standards = append(standards, s)
			}
		}
		if len(standards) == 0 {
			return mcpError("no standards available to evaluate against"), nil
		}

		results, run := deps.Runner.Run(ctx, standards, content)

		if title := req.GetString("title", ""); title != "" {
			for i := range results {
				results[i].ArticleTitle = title
			}
		}
		if len(results) > 0 {
			if err := deps.Evals.Add(results, nil); err != nil {
				return mcpError(fmt.Sprintf("evaluated but failed to store results: %v", err)), nil
			}
		}

		type itemOutcome struct {
			StandardID   string `json:"standard_id"`
			StandardName string `json:"standard_name"`
			Status       string `json:"status"`
			TotalScore   *int   `json:"total_score,omitempty"`
			Error        string `json:"error,omitempty"`
		}
		items := run.Queue().Items()
		outcomes := make([]itemOutcome, len(items))
		for i, it := range items {
			outcomes[i] = itemOutcome{
				StandardID:   it.Standard.ID,
				StandardName: it.Standard.Name,
				Status:       string(it.Status),
				Error:        it.Err,
			}
			if it.Result != nil {
				score := it.Result.TotalScore
				outcomes[i].TotalScore = &score
			}
		}

		b, err := json.Marshal(outcomes)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListStandards(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		standards, err := deps.Standards.List()
		if err != nil {
			return mcpError(fmt.Sprintf("listing standards: %v", err)), nil
		}
		b, err := json.Marshal(standards)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal standards: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListGroups(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		groups, err := deps.Evals.Groups()
		if err != nil {
			return mcpError(fmt.Sprintf("listing groups: %v", err)), nil
		}

		type groupSummary struct {
			ID              string  `json:"id"`
			ArticleTitle    string  `json:"article_title"`
			LatestDate      string  `json:"latest_date"`
			AverageScore    float64 `json:"average_score"`
			WeightedVerdict int     `json:"weighted_verdict"`
			Evaluations     int     `json:"evaluations"`
		}
		summaries := make([]groupSummary, len(groups))
		for i, g := range groups {
			summaries[i] = groupSummary{
				ID:              g.ID,
				ArticleTitle:    g.ArticleTitle,
				LatestDate:      g.LatestDate.Format("2006-01-02"),
				AverageScore:    g.AverageScore,
				WeightedVerdict: g.WeightedVerdict,
				Evaluations:     len(g.Evaluations),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal groups: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceGroups(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		groups, err := deps.Evals.Groups()
		if err != nil {
			return nil, fmt.Errorf("failed to list groups: %w", err)
		}
		b, err := json.Marshal(groups)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal groups: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
