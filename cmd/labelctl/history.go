package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cexll/jiralabel/internal/audit"
	"github.com/cexll/jiralabel/internal/config"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently applied labels from the local audit database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		store, err := audit.Open(cfg.AuditDBPath)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return writeHistory(ctx, cmd.OutOrStdout(), store, historyLimit)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
	rootCmd.AddCommand(historyCmd)
}

func writeHistory(ctx context.Context, out io.Writer, store *audit.Store, limit int) error {
	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, quietColor.Sprint("No updates recorded."))
		return nil
	}
	for _, e := range entries {
		next := e.NextIssue
		if next == "" {
			next = "-"
		}
		fmt.Fprintf(out, "%s  %-10s %-22s %-24s next: %s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"), e.IssueKey, e.Label, e.Actor, next)
	}
	return nil
}
