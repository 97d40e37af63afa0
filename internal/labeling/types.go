package labeling

import (
	"github.com/cexll/jiralabel/internal/labels"
)

// UnknownTotal marks a remaining-issue count that is not known.
const UnknownTotal = -1

// Link types of the issues in a batch.
const (
	LinkSelf   = "Self"
	LinkParent = "Parent"
)

// NoProject is shown for issues without a research project.
const NoProject = "N/A"

// Issue is one issue of a batch: the primary issue or a related one.
type Issue struct {
	Key             string  `json:"key"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	AssigneeName    string  `json:"assignee_name"`
	AssigneeID      string  `json:"assignee_id,omitempty"`
	TimeSpent       float64 `json:"timespent"`
	ResearchProject string  `json:"research_project"`
	LinkType        string  `json:"link_type"`
}

// Label returns the issue's research project when it is a known label.
func (i *Issue) Label() (labels.Label, bool) {
	l, err := labels.Parse(i.ResearchProject)
	return l, err == nil
}

// WorklogIssue is an issue the assignee logged time on recently.
type WorklogIssue struct {
	Key             string  `json:"key"`
	Name            string  `json:"name"`
	ResearchProject string  `json:"research_project"`
	Hours           float64 `json:"time_spent_hours"`
}

// ProjectHours is the time logged on one research project.
type ProjectHours struct {
	Project string  `json:"project"`
	Hours   float64 `json:"hours"`
}

// IssueBatch is everything shown while labeling one issue.
type IssueBatch struct {
	Issues              []Issue        `json:"issues"`
	TotalIssues         int            `json:"total_issues"`
	AssigneeName        string         `json:"assignee_name"`
	TaskTimeSpent       float64        `json:"task_time_spent"`
	WorklogIssues       []WorklogIssue `json:"worklog_issues"`
	SortedProjects      []ProjectHours `json:"sorted_projects"`
	ProjectsWithoutTime []string       `json:"projects_without_time"`
}

// Primary returns the single issue with the Self link type. It reports
// false when there is none or more than one.
func (b *IssueBatch) Primary() (*Issue, bool) {
	var primary *Issue
	for i := range b.Issues {
		if b.Issues[i].LinkType != LinkSelf {
			continue
		}
		if primary != nil {
			return nil, false
		}
		primary = &b.Issues[i]
	}
	return primary, primary != nil
}

// HasHours reports whether l has logged time in the batch's time
// distribution or is already set on one of the batch's issues.
func (b *IssueBatch) HasHours(l labels.Label) bool {
	for _, p := range b.SortedProjects {
		if p.Project == string(l) {
			return true
		}
	}
	for _, issue := range b.Issues {
		if issue.ResearchProject == string(l) {
			return true
		}
	}
	return false
}

// SearchResult is the first issue of a filter and the filter's size.
type SearchResult struct {
	IssueKey    string `json:"issue_key"`
	TotalIssues int    `json:"total_issues"`
}

// UpdateResult answers a label update. NextIssue is empty when the filter
// has no further issues.
type UpdateResult struct {
	Message     string `json:"message"`
	NextIssue   string `json:"next_issue,omitempty"`
	TotalIssues *int   `json:"total_issues,omitempty"`
}
