package labeling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/cexll/jiralabel/internal/audit"
	"github.com/cexll/jiralabel/internal/jira"
	"github.com/cexll/jiralabel/internal/labels"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoIssues is returned when a filter matches no issues.
	ErrNoIssues = errors.New("no issues found for the given filter")
	// ErrMissingIssueKey is returned when an operation needs an issue key.
	ErrMissingIssueKey = errors.New("issue key is required")
	// ErrIssueNotFound is returned when the primary issue cannot be read.
	ErrIssueNotFound = errors.New("issue not found or unauthorized access")
	// ErrIssueBusy is returned when another session is writing the same issue.
	ErrIssueBusy = errors.New("issue is being updated by another session")
)

// JiraClient is the part of the Jira API the service uses.
type JiraClient interface {
	Myself(ctx context.Context) (*jira.User, error)
	FilterJQL(ctx context.Context, filterID string) (string, error)
	CountIssues(ctx context.Context, jql string) (int, error)
	SearchIssues(ctx context.Context, jql string, maxResults int, fields ...string) ([]jira.Issue, error)
	GetIssue(ctx context.Context, key string, fields ...string) (*jira.Issue, error)
	UpdateFields(ctx context.Context, key string, fields map[string]any) error
	AddWatcher(ctx context.Context, key, accountID string) error
}

// Recorder stores applied label updates.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// IssueLocker serializes writes to one issue across services.
type IssueLocker interface {
	TryAcquire(key string) bool
	Release(key string)
}

// Options configure a Service.
type Options struct {
	ResearchProjectField string
	ChargeableField      string
	DefaultFilterID      string
	WorklogLookbackDays  int
	MaxHierarchyIssues   int
	FetchConcurrency     int
	Actor                string
	// Locks is optional.
	Locks IssueLocker
}

func (o Options) normalized() Options {
	if o.ResearchProjectField == "" {
		o.ResearchProjectField = "customfield_10097"
	}
	if o.ChargeableField == "" {
		o.ChargeableField = "customfield_10384"
	}
	if o.DefaultFilterID == "" {
		o.DefaultFilterID = "10456"
	}
	if o.WorklogLookbackDays <= 0 {
		o.WorklogLookbackDays = 14
	}
	if o.MaxHierarchyIssues <= 0 {
		o.MaxHierarchyIssues = 25
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 4
	}
	return o
}

// Service implements search, fetch and update for one Jira user.
type Service struct {
	client   JiraClient
	opts     Options
	recorder Recorder

	mu        sync.Mutex
	filterID  string
	accountID string
}

// NewService creates a service. recorder may be nil.
func NewService(client JiraClient, opts Options, recorder Recorder) *Service {
	opts = opts.normalized()
	return &Service{
		client:   client,
		opts:     opts,
		recorder: recorder,
		filterID: opts.DefaultFilterID,
	}
}

// Login checks the credentials against Jira and remembers the account id
// used for watchers.
func (s *Service) Login(ctx context.Context) (*jira.User, error) {
	user, err := s.client.Myself(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.accountID = user.AccountID
	s.mu.Unlock()
	return user, nil
}

// FilterID returns the filter the session searches for the next issue.
func (s *Service) FilterID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterID
}

// SearchIssue remembers filterID and returns its first issue and size.
func (s *Service) SearchIssue(ctx context.Context, filterID string) (*SearchResult, error) {
	filterID = strings.TrimSpace(filterID)
	if filterID == "" {
		filterID = s.opts.DefaultFilterID
	}
	s.mu.Lock()
	s.filterID = filterID
	s.mu.Unlock()

	jql, err := s.client.FilterJQL(ctx, filterID)
	if err != nil {
		return nil, err
	}

	total, err := s.client.CountIssues(ctx, jql)
	if err != nil {
		log.Printf("[Labeling] Failed to count issues for filter %s: %v", filterID, err)
		total = 0
	}

	issues, err := s.client.SearchIssues(ctx, jql, 1, "key")
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, ErrNoIssues
	}
	if total < 1 {
		total = 1
	}

	log.Printf("[Labeling] Filter %s: first issue %s, total %d", filterID, issues[0].Key, total)
	return &SearchResult{IssueKey: issues[0].Key, TotalIssues: total}, nil
}

// FetchIssue loads the issue hierarchy around key and the assignee's recent
// time distribution. A positive totalHint is echoed as the remaining count;
// otherwise the current filter is counted.
func (s *Service) FetchIssue(ctx context.Context, key string, totalHint int) (*IssueBatch, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingIssueKey
	}

	issues, err := s.hierarchy(ctx, key)
	if err != nil {
		return nil, err
	}
	primary := issues[0]

	worklogIssues, hours := s.recentWorklogs(ctx, primary.AssigneeID)

	sorted := make([]ProjectHours, 0, len(hours))
	for project, h := range hours {
		sorted = append(sorted, ProjectHours{Project: project, Hours: round2(h)})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Hours != sorted[j].Hours {
			return sorted[i].Hours > sorted[j].Hours
		}
		return sorted[i].Project < sorted[j].Project
	})

	without := []string{}
	for _, l := range labels.All() {
		if _, ok := hours[string(l)]; !ok {
			without = append(without, string(l))
		}
	}

	total := totalHint
	if total <= 0 {
		total = s.countCurrentFilter(ctx)
	}

	return &IssueBatch{
		Issues:              issues,
		TotalIssues:         total,
		AssigneeName:        primary.AssigneeName,
		TaskTimeSpent:       primary.TimeSpent,
		WorklogIssues:       worklogIssues,
		SortedProjects:      sorted,
		ProjectsWithoutTime: without,
	}, nil
}

// UpdateIssue writes label (and the chargeable id, when set) to key, adds the
// user as watcher, records the update, and looks up the next issue of the
// current filter.
func (s *Service) UpdateIssue(ctx context.Context, key string, label labels.Label, chargeableID string) (*UpdateResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingIssueKey
	}
	if !label.Valid() {
		return nil, fmt.Errorf("%q: %w", label, labels.ErrUnknownLabel)
	}
	if s.opts.Locks != nil {
		if !s.opts.Locks.TryAcquire(key) {
			return nil, ErrIssueBusy
		}
		defer s.opts.Locks.Release(key)
	}

	fields := map[string]any{
		s.opts.ResearchProjectField: map[string]string{"value": string(label)},
	}
	if chargeableID != "" {
		fields[s.opts.ChargeableField] = map[string]string{"id": chargeableID}
	}

	log.Printf("[Labeling] Updating issue %s: research project -> %s, chargeable -> %s", key, label, chargeableID)
	if err := s.client.UpdateFields(ctx, key, fields); err != nil {
		return nil, err
	}

	s.addWatcher(ctx, key)

	result := &UpdateResult{Message: "Issue updated, but no more issues found."}
	next, err := s.SearchIssue(ctx, s.FilterID())
	switch {
	case err == nil:
		total := next.TotalIssues
		result.Message = "Issue updated successfully."
		result.NextIssue = next.IssueKey
		result.TotalIssues = &total
	case errors.Is(err, ErrNoIssues):
	default:
		log.Printf("[Labeling] Failed to look up next issue after %s: %v", key, err)
		result.Message = "Issue updated, but the next issue could not be loaded."
	}

	if s.recorder != nil {
		entry := audit.Entry{
			IssueKey:     key,
			Label:        string(label),
			ChargeableID: chargeableID,
			Actor:        s.opts.Actor,
			NextIssue:    result.NextIssue,
		}
		if err := s.recorder.Record(ctx, entry); err != nil {
			log.Printf("[Labeling] Failed to record update of %s: %v", key, err)
		}
	}

	return result, nil
}

func (s *Service) addWatcher(ctx context.Context, key string) {
	s.mu.Lock()
	accountID := s.accountID
	s.mu.Unlock()

	if accountID == "" {
		user, err := s.client.Myself(ctx)
		if err != nil {
			log.Printf("[Labeling] Failed to get user info for watcher: %v", err)
			return
		}
		accountID = user.AccountID
		s.mu.Lock()
		s.accountID = accountID
		s.mu.Unlock()
	}
	if accountID == "" {
		log.Printf("[Labeling] Could not get accountId for watcher")
		return
	}

	if err := s.client.AddWatcher(ctx, key, accountID); err != nil {
		log.Printf("[Labeling] Failed to add watcher to %s: %v", key, err)
	}
}

func (s *Service) countCurrentFilter(ctx context.Context) int {
	filterID := s.FilterID()
	jql, err := s.client.FilterJQL(ctx, filterID)
	if err != nil {
		log.Printf("[Labeling] Failed to resolve filter %s for count: %v", filterID, err)
		return UnknownTotal
	}
	total, err := s.client.CountIssues(ctx, jql)
	if err != nil {
		log.Printf("[Labeling] Failed to count filter %s: %v", filterID, err)
		return UnknownTotal
	}
	return total
}

type queuedIssue struct {
	key      string
	linkType string
}

func (s *Service) issueFields() []string {
	return []string{"summary", "description", "assignee", "parent", "issuelinks", "worklog", s.opts.ResearchProjectField}
}

// hierarchy walks parent and link relations breadth-first from key. Each
// level is fetched concurrently; results keep queue order. Linked issues
// that cannot be read are skipped.
func (s *Service) hierarchy(ctx context.Context, key string) ([]Issue, error) {
	visited := map[string]bool{}
	level := []queuedIssue{{key: key, linkType: LinkSelf}}
	var out []Issue

	for len(level) > 0 && len(out) < s.opts.MaxHierarchyIssues {
		var batch []queuedIssue
		for _, q := range level {
			if visited[q.key] || len(out)+len(batch) >= s.opts.MaxHierarchyIssues {
				continue
			}
			visited[q.key] = true
			batch = append(batch, q)
		}

		results := make([]*jira.Issue, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.FetchConcurrency)
		for i, q := range batch {
			g.Go(func() error {
				issue, err := s.client.GetIssue(gctx, q.key, s.issueFields()...)
				if err != nil {
					if q.linkType == LinkSelf {
						if jira.IsNotFound(err) || jira.IsUnauthorized(err) {
							return fmt.Errorf("%s: %w", q.key, ErrIssueNotFound)
						}
						return err
					}
					log.Printf("[Labeling] Skipping linked issue %s: %v", q.key, err)
					return nil
				}
				results[i] = issue
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []queuedIssue
		for i, issue := range results {
			if issue == nil {
				continue
			}
			out = append(out, s.toIssue(issue, batch[i].linkType))
			next = append(next, relatedIssues(issue)...)
		}
		level = next
	}

	if len(out) == 0 || out[0].LinkType != LinkSelf {
		return nil, fmt.Errorf("%s: %w", key, ErrIssueNotFound)
	}
	return out, nil
}

func (s *Service) toIssue(issue *jira.Issue, linkType string) Issue {
	out := Issue{
		Key:             issue.Key,
		Name:            issue.Fields.Summary,
		Description:     jira.DescriptionText(issue.Fields.Description),
		AssigneeName:    "Unassigned",
		TimeSpent:       round2(issue.Fields.Worklog.Hours()),
		ResearchProject: NoProject,
		LinkType:        linkType,
	}
	if out.Name == "" {
		out.Name = "No Title"
	}
	if a := issue.Fields.Assignee; a != nil {
		if a.DisplayName != "" {
			out.AssigneeName = a.DisplayName
		}
		out.AssigneeID = a.AccountID
	}
	if v, ok := issue.Fields.OptionValue(s.opts.ResearchProjectField); ok {
		out.ResearchProject = v
	}
	return out
}

func relatedIssues(issue *jira.Issue) []queuedIssue {
	var out []queuedIssue
	if p := issue.Fields.Parent; p != nil && p.Key != "" {
		out = append(out, queuedIssue{key: p.Key, linkType: LinkParent})
	}
	for _, link := range issue.Fields.IssueLinks {
		if link.InwardIssue != nil {
			out = append(out, queuedIssue{key: link.InwardIssue.Key, linkType: "Inward: " + link.Type.Inward})
		}
		if link.OutwardIssue != nil {
			out = append(out, queuedIssue{key: link.OutwardIssue.Key, linkType: "Outward: " + link.Type.Outward})
		}
	}
	return out
}

// recentWorklogs returns the issues accountID logged time on within the
// lookback window and the hours per research project. Failures are logged
// and yield empty results.
func (s *Service) recentWorklogs(ctx context.Context, accountID string) ([]WorklogIssue, map[string]float64) {
	hours := map[string]float64{}
	if accountID == "" {
		log.Printf("[Labeling] No assignee id, skipping worklog lookup")
		return []WorklogIssue{}, hours
	}

	jql := fmt.Sprintf("worklogAuthor = %q AND worklogDate >= -%dd", accountID, s.opts.WorklogLookbackDays)
	issues, err := s.client.SearchIssues(ctx, jql, 100, "summary", "worklog", s.opts.ResearchProjectField)
	if err != nil {
		log.Printf("[Labeling] Failed to fetch worklogs for %s: %v", accountID, err)
		return []WorklogIssue{}, hours
	}

	out := make([]WorklogIssue, 0, len(issues))
	for _, issue := range issues {
		project, ok := issue.Fields.OptionValue(s.opts.ResearchProjectField)
		if !ok {
			project = "Unknown Project"
		}
		h := issue.Fields.Worklog.HoursBy(accountID)
		hours[project] += h

		name := issue.Fields.Summary
		if name == "" {
			name = "No Title"
		}
		out = append(out, WorklogIssue{
			Key:             issue.Key,
			Name:            name,
			ResearchProject: project,
			Hours:           round2(h),
		})
	}
	return out, hours
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
