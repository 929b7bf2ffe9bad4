package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "rubrica",
	Short:   "Rubric-based article evaluation via a local scoring model",
	Version: version,
	Long: `rubrica scores articles against weighted evaluation standards using an
OpenAI-compatible completion endpoint, and keeps the accumulated results
grouped per article.`,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(standardsCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(evaluationsCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
