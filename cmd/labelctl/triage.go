package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cexll/jiralabel/internal/audit"
	"github.com/cexll/jiralabel/internal/config"
	"github.com/cexll/jiralabel/internal/jira"
	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/labels"
	"github.com/cexll/jiralabel/internal/triage"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	filterID     string
	instanceFlag string
	noAudit      bool
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Label the issues of a filter interactively",
	Long: `Walk the issues of a Jira filter one by one. Credentials are read from
JIRA_EMAIL and JIRA_API_TOKEN.

At the prompt enter a label number or name to set it and move on,
'r' to reload the issue and 'q' to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTriage(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	triageCmd.Flags().StringVarP(&filterID, "filter", "f", "", "Jira filter id (defaults to DEFAULT_FILTER_ID)")
	triageCmd.Flags().StringVar(&instanceFlag, "instance", "", "Jira instance (defaults to JIRA_INSTANCE)")
	triageCmd.Flags().BoolVar(&noAudit, "no-audit", false, "do not record updates in the local audit database")
	rootCmd.AddCommand(triageCmd)
}

func runTriage(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	hl, err := loadHighlighter()
	if err != nil {
		return err
	}

	email := os.Getenv("JIRA_EMAIL")
	instance := instanceFlag
	if instance == "" {
		instance = cfg.JiraInstance
	}
	client, err := jira.NewClient(jira.Credentials{
		Email:    email,
		APIToken: os.Getenv("JIRA_API_TOKEN"),
		Instance: instance,
	}, cfg.JiraOptions())
	if err != nil {
		return fmt.Errorf("JIRA_EMAIL and JIRA_API_TOKEN: %w", err)
	}

	var recorder labeling.Recorder
	if !noAudit {
		store, err := audit.Open(cfg.AuditDBPath)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	svc := labeling.NewService(client, cfg.ServiceOptions(email), recorder)
	user, err := svc.Login(ctx)
	if err != nil {
		return fmt.Errorf("login to %s failed: %w", instance, err)
	}
	fmt.Fprintf(out, "Logged in to %s as %s\n", instance, user.DisplayName)

	res, err := svc.SearchIssue(ctx, filterID)
	if err != nil {
		if errors.Is(err, labeling.ErrNoIssues) {
			fmt.Fprintln(out, "No issues found for the given filter.")
			return nil
		}
		return err
	}

	view := triage.NewController(svc, hl, triage.Options{ChargeableID: cfg.ChargeableID})
	defer view.Close()

	loop := &triageLoop{view: view, print: &printer{out: out, hl: hl}}
	if err := loop.enter(ctx, triage.Route{IssueKey: res.IssueKey, TotalIssues: res.TotalIssues}); err != nil {
		return err
	}
	return loop.run(ctx)
}

// triageLoop drives one controller from line input.
type triageLoop struct {
	view  *triage.Controller
	print *printer
}

func (l *triageLoop) enter(ctx context.Context, route triage.Route) error {
	l.view.Enter(route)
	if err := l.view.Wait(ctx); err != nil {
		return err
	}
	l.show()
	return nil
}

func (l *triageLoop) show() {
	l.print.state(l.view.Snapshot(), l.view.Buttons())
}

func (l *triageLoop) run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            color.New(color.FgCyan).Sprint("label> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		done, err := l.handle(ctx, line)
		if err != nil {
			l.print.errorf("%v", err)
		}
		if done {
			return nil
		}
	}
}

// handle processes one line of input. done reports that the session is over.
func (l *triageLoop) handle(ctx context.Context, line string) (done bool, err error) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return false, nil
	case "q", "quit", "exit":
		return true, nil
	case "?", "help":
		l.help()
		return false, nil
	case "r", "reload":
		return false, l.enter(ctx, l.view.Snapshot().Route)
	}

	label, ok := resolveLabel(line)
	if !ok {
		return false, fmt.Errorf("unknown label %q (enter 1-%d or a label name)", line, len(labels.All()))
	}

	before := l.view.Snapshot().Route
	if err := l.view.Select(ctx, label); err != nil {
		return false, err
	}

	s := l.view.Snapshot()
	if s.Complete {
		fmt.Fprintf(l.print.out, "%s %s\n", suggestColor.Sprint("Done:"), s.Message)
		return true, nil
	}
	if s.Route != before {
		fmt.Fprintf(l.print.out, "%s %s set to %s\n", suggestColor.Sprint("OK:"), before.IssueKey, label)
		if err := l.view.Wait(ctx); err != nil {
			return false, err
		}
	}
	l.show()
	return false, nil
}

func (l *triageLoop) help() {
	fmt.Fprintln(l.print.out, "  1-10 or a label name  set the research project and continue")
	fmt.Fprintln(l.print.out, "  r                     reload the current issue")
	fmt.Fprintln(l.print.out, "  q                     quit")
}

// resolveLabel accepts a 1-based position in the label list or a label name
// in any case.
func resolveLabel(input string) (labels.Label, bool) {
	all := labels.All()
	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > len(all) {
			return "", false
		}
		return all[n-1], true
	}
	for _, l := range all {
		if strings.EqualFold(string(l), input) {
			return l, true
		}
	}
	return "", false
}
