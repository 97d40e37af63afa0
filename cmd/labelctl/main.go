package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/cexll/jiralabel/internal/labels"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	keywordsFile string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "labelctl",
	Short: "Label Jira issues with research projects from the terminal",
	Long: `labelctl walks a Jira filter issue by issue and sets the research project
field, showing keyword suggestions and the assignee's recent time distribution.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !verbose {
			log.SetOutput(io.Discard)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&keywordsFile, "keywords", "", "keyword table (defaults to KEYWORDS_FILE, then the built-in table)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log Jira requests to stderr")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadRules() (*labels.Rules, error) {
	path := keywordsFile
	if path == "" {
		path = os.Getenv("KEYWORDS_FILE")
	}
	rules, err := labels.LoadRules(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword rules: %w", err)
	}
	return rules, nil
}

func loadHighlighter() (*highlight.Highlighter, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, err
	}
	return highlight.New(rules)
}
