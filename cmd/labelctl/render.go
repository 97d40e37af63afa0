package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/triage"
	"github.com/fatih/color"
)

var (
	keywordColor = color.New(color.FgYellow, color.Bold)
	headerColor  = color.New(color.FgCyan, color.Bold)
	suggestColor = color.New(color.FgGreen)
	quietColor   = color.New(color.FgHiBlack)
	errorColor   = color.New(color.FgRed)
)

// printer writes the terminal view of an issue.
type printer struct {
	out io.Writer
	hl  *highlight.Highlighter
}

// highlighted colors every keyword span of text.
func (p *printer) highlighted(text string) string {
	if p.hl == nil {
		return text
	}
	var b strings.Builder
	for _, seg := range p.hl.Segments(text) {
		if seg.Match {
			b.WriteString(keywordColor.Sprint(seg.Text))
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

func (p *printer) errorf(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", errorColor.Sprint("Error:"), fmt.Sprintf(format, args...))
}

func (p *printer) state(s triage.State, buttons []triage.Button) {
	primary, ok := s.Primary()
	if !ok {
		if s.Err != nil {
			p.errorf("%v", s.Err)
		}
		return
	}
	batch := s.Batch

	fmt.Fprintf(p.out, "\n%s  %s\n", headerColor.Sprint(primary.Key), primary.Name)
	fmt.Fprintf(p.out, "Assignee: %s   Current: %s   %s\n", primary.AssigneeName, primary.ResearchProject, remaining(s))
	if batch.TaskTimeSpent > 0 {
		fmt.Fprintf(p.out, "Time spent on task: %.2fh\n", batch.TaskTimeSpent)
	}

	fmt.Fprintln(p.out)
	for _, line := range strings.Split(p.highlighted(primary.Description), "\n") {
		fmt.Fprintf(p.out, "  %s\n", line)
	}

	var related []labeling.Issue
	for _, issue := range batch.Issues {
		if issue.LinkType != labeling.LinkSelf {
			related = append(related, issue)
		}
	}
	if len(related) > 0 {
		fmt.Fprintf(p.out, "\n%s\n", headerColor.Sprint("Related"))
		for _, issue := range related {
			fmt.Fprintf(p.out, "  %-22s %-10s %s [%s]\n", issue.LinkType, issue.Key, issue.Name, issue.ResearchProject)
		}
	}

	if len(batch.SortedProjects) > 0 {
		fmt.Fprintf(p.out, "\n%s\n", headerColor.Sprint("Recent time by project"))
		for _, ph := range batch.SortedProjects {
			fmt.Fprintf(p.out, "  %-22s %6.2fh\n", ph.Project, ph.Hours)
		}
	}

	fmt.Fprintf(p.out, "\n%s\n", headerColor.Sprint("Labels"))
	for i, b := range buttons {
		marker := " "
		if b.Selected {
			marker = ">"
		}
		name := string(b.Label)
		switch {
		case b.Suggested:
			name = suggestColor.Sprint(name + " *")
		case b.NoSignal:
			name = quietColor.Sprint(name)
		}
		fmt.Fprintf(p.out, "%s %2d) %s\n", marker, i+1, name)
	}

	if s.Message != "" {
		fmt.Fprintf(p.out, "\n%s\n", s.Message)
	}
	if s.Err != nil {
		p.errorf("%v", s.Err)
	}
}

func remaining(s triage.State) string {
	switch {
	case s.Complete:
		return "all issues labeled"
	case s.Remaining == labeling.UnknownTotal:
		return "remaining: unknown"
	case s.Remaining == 1:
		return "1 issue remaining"
	default:
		return fmt.Sprintf("%d issues remaining", s.Remaining)
	}
}
