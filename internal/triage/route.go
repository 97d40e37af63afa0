package triage

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/cexll/jiralabel/internal/labeling"
)

// ErrMissingIssueKey is returned when a route has no issue key.
var ErrMissingIssueKey = errors.New("route has no issue key")

// Route identifies the issue on screen and the remaining-issue count carried
// with it. TotalIssues is labeling.UnknownTotal when the count is not known.
type Route struct {
	IssueKey    string
	TotalIssues int
}

// ParseRoute builds a route from the issue key path segment and the raw
// total_issues query value. A missing or malformed count is unknown.
func ParseRoute(issueKey, totalIssues string) (Route, error) {
	issueKey = strings.TrimSpace(issueKey)
	if issueKey == "" {
		return Route{}, ErrMissingIssueKey
	}
	route := Route{IssueKey: issueKey, TotalIssues: labeling.UnknownTotal}
	if n, err := strconv.Atoi(strings.TrimSpace(totalIssues)); err == nil && n >= 0 {
		route.TotalIssues = n
	}
	return route, nil
}

// Path renders the route as /issue/{key}?total_issues={n}. The query is
// omitted for an unknown count.
func (r Route) Path() string {
	p := "/issue/" + url.PathEscape(r.IssueKey)
	if r.TotalIssues < 0 {
		return p
	}
	return p + "?total_issues=" + strconv.Itoa(r.TotalIssues)
}

func (r Route) String() string {
	return r.Path()
}
