package jira

import (
	"encoding/json"
	"strings"
)

// User is a Jira account.
type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

// IssueRef is the abbreviated issue embedded in parents and links.
type IssueRef struct {
	ID  string `json:"id,omitempty"`
	Key string `json:"key"`
}

// LinkType names both directions of an issue link.
type LinkType struct {
	Name    string `json:"name"`
	Inward  string `json:"inward"`
	Outward string `json:"outward"`
}

// IssueLink is one entry of the issuelinks field. Exactly one of
// InwardIssue and OutwardIssue is set.
type IssueLink struct {
	Type         LinkType  `json:"type"`
	InwardIssue  *IssueRef `json:"inwardIssue,omitempty"`
	OutwardIssue *IssueRef `json:"outwardIssue,omitempty"`
}

// Worklog is a single time entry.
type Worklog struct {
	TimeSpentSeconds int   `json:"timeSpentSeconds"`
	Author           *User `json:"author,omitempty"`
}

// Worklogs is the worklog field of an issue.
type Worklogs struct {
	Total    int       `json:"total"`
	Worklogs []Worklog `json:"worklogs"`
}

// Hours returns the summed time of all entries in hours.
func (w *Worklogs) Hours() float64 {
	if w == nil {
		return 0
	}
	seconds := 0
	for _, wl := range w.Worklogs {
		seconds += wl.TimeSpentSeconds
	}
	return float64(seconds) / 3600
}

// HoursBy sums the entries logged by accountID. Entries without an author
// are counted, since search results may omit it.
func (w *Worklogs) HoursBy(accountID string) float64 {
	if w == nil {
		return 0
	}
	seconds := 0
	for _, wl := range w.Worklogs {
		if wl.Author != nil && wl.Author.AccountID != "" && wl.Author.AccountID != accountID {
			continue
		}
		seconds += wl.TimeSpentSeconds
	}
	return float64(seconds) / 3600
}

// Fields holds the issue fields this service reads. Fields not modelled
// explicitly, such as custom fields, stay available through Raw.
type Fields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description,omitempty"`
	Assignee    *User           `json:"assignee,omitempty"`
	Parent      *IssueRef       `json:"parent,omitempty"`
	IssueLinks  []IssueLink     `json:"issuelinks,omitempty"`
	Worklog     *Worklogs       `json:"worklog,omitempty"`

	Raw map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the modelled fields and keeps every field raw.
func (f *Fields) UnmarshalJSON(data []byte) error {
	type plain Fields
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Fields(p)
	f.Raw = raw
	return nil
}

// OptionValue returns the value of a single-select custom field such as
// {"value": "6G-NETFAB"}. It reports false when the field is unset or not
// an option object.
func (f *Fields) OptionValue(fieldID string) (string, bool) {
	raw, ok := f.Raw[fieldID]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var opt struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &opt); err != nil {
		return "", false
	}
	return opt.Value, strings.TrimSpace(opt.Value) != ""
}

// Issue is a Jira issue as returned by the issue and search endpoints.
type Issue struct {
	ID     string `json:"id,omitempty"`
	Key    string `json:"key"`
	Fields Fields `json:"fields"`
}

// Filter is a saved Jira filter.
type Filter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	JQL  string `json:"jql"`
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields,omitempty"`
}

type searchResponse struct {
	Issues        []Issue `json:"issues"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
	IsLast        bool    `json:"isLast"`
}

type countRequest struct {
	JQL string `json:"jql"`
}

type countResponse struct {
	Count int `json:"count"`
}
