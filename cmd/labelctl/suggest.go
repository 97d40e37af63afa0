package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/spf13/cobra"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest [text...]",
	Short: "Show the labels whose keywords occur in a text",
	Long: `Highlight research project keywords in the given text, or in stdin when no
arguments are given, and list the labels they suggest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(data)
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("no text given")
		}

		hl, err := loadHighlighter()
		if err != nil {
			return err
		}
		writeSuggestions(cmd.OutOrStdout(), hl, text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)
}

func writeSuggestions(out io.Writer, hl *highlight.Highlighter, text string) {
	p := &printer{out: out, hl: hl}
	fmt.Fprintln(out, strings.TrimRight(p.highlighted(text), "\n"))
	fmt.Fprintln(out)

	suggested := hl.Suggestions(text)
	if len(suggested) == 0 {
		fmt.Fprintln(out, quietColor.Sprint("No label suggested."))
		return
	}
	names := make([]string, len(suggested))
	for i, l := range suggested {
		names[i] = suggestColor.Sprint(string(l))
	}
	fmt.Fprintf(out, "Suggested: %s\n", strings.Join(names, ", "))
}
