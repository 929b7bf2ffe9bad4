package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kazmin/rubrica/internal/article"
	"github.com/kazmin/rubrica/internal/config"
	"github.com/kazmin/rubrica/internal/evalstore"
	"github.com/kazmin/rubrica/internal/scoring"
	"github.com/kazmin/rubrica/internal/standard"
)

// --- evaluate ---

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate an article against one or more standards",
	Long: `Evaluate an article against one or more standards.

The article comes from --text, --file (plain text or PDF), or --url.
Without --standards, every stored standard is used.

Examples:
  rubrica evaluate --text "..." --standards general-quality
  rubrica evaluate --file ./draft.md --title "My draft"
  rubrica evaluate --file ./paper.pdf --standards tech-depth,general-quality
  rubrica evaluate --url https://example.com/post --weights tech-depth=0.7,general-quality=0.3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		url, _ := cmd.Flags().GetString("url")
		title, _ := cmd.Flags().GetString("title")
		standardsStr, _ := cmd.Flags().GetString("standards")
		weightsStr, _ := cmd.Flags().GetString("weights")
		abortOnFail, _ := cmd.Flags().GetBool("abort-on-failure")

		ctx := cmd.Context()

		content, extractedTitle, err := resolveArticle(ctx, text, file, url)
		if err != nil {
			return err
		}
		if title == "" {
			title = extractedTitle
		}

		weights, err := parseWeights(weightsStr)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ids := splitList(standardsStr)
		if len(ids) == 0 {
			ids, err = allStandardIDs(ctx, client)
			if err != nil {
				return err
			}
		}

		req := map[string]any{
			"standard_ids": ids,
			"content":      content,
		}
		if title != "" {
			req["title"] = title
		}
		if len(weights) > 0 {
			req["weights"] = weights
		}
		if abortOnFail {
			req["abort_on_failure"] = true
		}

		resp, err := client.post(ctx, "/runs", req)
		if err != nil {
			return err
		}
		var run runView
		if err := decodeJSON(resp, &run); err != nil {
			return err
		}

		printStep("Evaluating against %d standard(s)...", len(run.Items))
		final, err := waitForRun(ctx, client, run.ID)
		if err != nil {
			return err
		}
		printRun(final)
		return nil
	},
}

func init() {
	evaluateCmd.Flags().String("text", "", "article text to evaluate")
	evaluateCmd.Flags().String("file", "", "article file to evaluate (plain text or PDF)")
	evaluateCmd.Flags().String("url", "", "article URL to fetch and evaluate")
	evaluateCmd.Flags().String("title", "", "article title (defaults to file name, page title, or the model's reading)")
	evaluateCmd.Flags().String("standards", "", "comma-separated standard ids (default: all)")
	evaluateCmd.Flags().String("weights", "", "per-standard verdict weights, e.g. id1=0.7,id2=0.3")
	evaluateCmd.Flags().Bool("abort-on-failure", false, "stop the run when an evaluation fails")
}

func resolveArticle(ctx context.Context, text, file, url string) (content, title string, err error) {
	set := 0
	for _, v := range []string{text, file, url} {
		if v != "" {
			set++
		}
	}
	if set == 0 {
		return "", "", fmt.Errorf("one of --text, --file, or --url is required")
	}
	if set > 1 {
		return "", "", fmt.Errorf("--text, --file, and --url are mutually exclusive")
	}

	switch {
	case text != "":
		return text, "", nil
	case file != "":
		a, err := article.FromFile(file)
		if err != nil {
			return "", "", err
		}
		return a.Content, a.Title, nil
	default:
		a, err := article.FromURL(ctx, url)
		if err != nil {
			return "", "", err
		}
		return a.Content, a.Title, nil
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseWeights(s string) (map[string]float64, error) {
	if s == "" {
		return nil, nil
	}
	weights := map[string]float64{}
	for _, pair := range splitList(s) {
		id, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q, expected id=value", pair)
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight value in %q: %w", pair, err)
		}
		weights[strings.TrimSpace(id)] = f
	}
	return weights, nil
}

func allStandardIDs(ctx context.Context, client *apiClient) ([]string, error) {
	resp, err := client.get(ctx, "/standards")
	if err != nil {
		return nil, err
	}
	var standards []standard.Standard
	if err := decodeJSON(resp, &standards); err != nil {
		return nil, err
	}
	ids := make([]string, len(standards))
	for i, s := range standards {
		ids[i] = s.ID
	}
	return ids, nil
}

// runView mirrors the server's run snapshot.
type runView struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Items    []struct {
		Status   string                    `json:"status"`
		Error    string                    `json:"error"`
		Standard standard.Standard         `json:"standard"`
		Result   *scoring.EvaluationResult `json:"result"`
	} `json:"items"`
	Results []scoring.EvaluationResult `json:"results"`
}

func waitForRun(ctx context.Context, client *apiClient, id string) (runView, error) {
	for {
		resp, err := client.get(ctx, "/runs/"+id)
		if err != nil {
			return runView{}, err
		}
		var run runView
		if err := decodeJSON(resp, &run); err != nil {
			return runView{}, err
		}
		if run.Status != "running" {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return runView{}, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func printRun(run runView) {
	for _, it := range run.Items {
		switch it.Status {
		case "completed":
			score := 0
			if it.Result != nil {
				score = it.Result.TotalScore
			}
			printSuccess("%s: %d/100", it.Standard.Name, score)
			if it.Result != nil && it.Result.Summary != "" {
				fmt.Fprintf(os.Stderr, "  %s\n", it.Result.Summary)
			}
		case "failed":
			printError("%s: %s", it.Standard.Name, it.Error)
		default:
			printWarning("%s: %s", it.Standard.Name, it.Status)
		}
	}

	if run.Status != "completed" {
		printWarning("Run finished with status %q", run.Status)
	}
}

// --- standards ---

var standardsCmd = &cobra.Command{
	Use:   "standards",
	Short: "Manage evaluation standards",
}

var standardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored standards",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/standards")
		if err != nil {
			return err
		}
		var standards []standard.Standard
		if err := decodeJSON(resp, &standards); err != nil {
			return err
		}
		if len(standards) == 0 {
			fmt.Println("No standards stored.")
			return nil
		}
		for _, s := range standards {
			fmt.Printf("%s  %s (%d criteria, total weight %.0f)\n",
				colorize(colorCyan, s.ID), s.Name, len(s.Criteria), s.TotalWeight)
		}
		return nil
	},
}

var standardsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a standard as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/standards/"+args[0])
		if err != nil {
			return err
		}
		var s any
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	},
}

var standardsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Add or replace a standard from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		var s standard.Standard
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("parsing standard: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/standards", s)
		if err != nil {
			return err
		}
		var saved standard.Standard
		if err := decodeJSON(resp, &saved); err != nil {
			return err
		}
		printSuccess("Saved standard %s", saved.ID)
		return nil
	},
}

var standardsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a standard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/standards/"+args[0])
		if err != nil {
			return err
		}
		if err := checkStatus(resp, 204); err != nil {
			return err
		}
		printSuccess("Deleted standard %s", args[0])
		return nil
	},
}

var standardsGenerateCmd = &cobra.Command{
	Use:   "generate <topic>",
	Short: "Draft a standard for a topic using the scoring model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		criteria, _ := cmd.Flags().GetInt("criteria")
		levels, _ := cmd.Flags().GetInt("levels")
		save, _ := cmd.Flags().GetBool("save")
		topic := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Generating standard for %q...", topic)
		resp, err := client.post(cmd.Context(), "/standards/generate", map[string]any{
			"topic":    topic,
			"criteria": criteria,
			"levels":   levels,
			"save":     save,
		})
		if err != nil {
			return err
		}
		var s standard.Standard
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return err
		}
		if save {
			printSuccess("Saved standard %s", s.ID)
		}
		return nil
	},
}

func init() {
	standardsGenerateCmd.Flags().Int("criteria", 0, "number of criteria (0 lets the model decide)")
	standardsGenerateCmd.Flags().Int("levels", 0, "number of score levels per criterion (0 lets the model decide)")
	standardsGenerateCmd.Flags().Bool("save", false, "store the generated standard")

	standardsCmd.AddCommand(standardsListCmd)
	standardsCmd.AddCommand(standardsShowCmd)
	standardsCmd.AddCommand(standardsAddCmd)
	standardsCmd.AddCommand(standardsDeleteCmd)
	standardsCmd.AddCommand(standardsGenerateCmd)
}

// --- groups ---

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Browse stored evaluation groups",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation groups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/groups")
		if err != nil {
			return err
		}
		var groups []evalstore.Group
		if err := decodeJSON(resp, &groups); err != nil {
			return err
		}
		if len(groups) == 0 {
			fmt.Println("No evaluations stored.")
			return nil
		}
		for _, g := range groups {
			fmt.Printf("%s  %s  %s  avg %.1f  verdict %d  (%d evaluations)\n",
				colorize(colorCyan, g.ID),
				g.LatestDate.Format("2006-01-02"),
				colorize(colorBold, g.ArticleTitle),
				g.AverageScore,
				g.WeightedVerdict,
				len(g.Evaluations),
			)
		}
		return nil
	},
}

var groupsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a group with all its evaluations as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/groups/"+args[0])
		if err != nil {
			return err
		}
		var g any
		if err := decodeJSON(resp, &g); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	},
}

var groupsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a group and all its evaluations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/groups/"+args[0])
		if err != nil {
			return err
		}
		if err := checkStatus(resp, 204); err != nil {
			return err
		}
		printSuccess("Deleted group %s", args[0])
		return nil
	},
}

func init() {
	groupsCmd.AddCommand(groupsListCmd)
	groupsCmd.AddCommand(groupsShowCmd)
	groupsCmd.AddCommand(groupsDeleteCmd)
}

// --- evaluations ---

var evaluationsCmd = &cobra.Command{
	Use:   "evaluations",
	Short: "Manage individual evaluation records",
}

var evaluationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a single evaluation record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/evaluations/"+args[0])
		if err != nil {
			return err
		}
		if err := checkStatus(resp, 204); err != nil {
			return err
		}
		printSuccess("Deleted evaluation %s", args[0])
		return nil
	},
}

func init() {
	evaluationsCmd.AddCommand(evaluationsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
