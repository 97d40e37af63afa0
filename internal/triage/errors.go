package triage

import (
	"errors"
	"fmt"

	"github.com/cexll/jiralabel/internal/labels"
)

var (
	// ErrSubmitting is returned when a label is selected while a submission
	// is in flight. The selection is ignored.
	ErrSubmitting = errors.New("a submission is already in progress")
	// ErrNotLoaded is returned when a label is selected before the issue
	// has loaded or after loading failed.
	ErrNotLoaded = errors.New("no issue is loaded")
	// ErrNoLabel is wrapped by ValidationError when no label was chosen.
	ErrNoLabel = errors.New("no label selected")
	// ErrNoPrimaryIssue is wrapped by FetchError when a batch does not hold
	// exactly one Self issue.
	ErrNoPrimaryIssue = errors.New("batch has no single primary issue")
	// ErrSuperseded is returned by Select when a newer navigation replaced
	// the view while the update was in flight.
	ErrSuperseded = errors.New("view was superseded by a newer navigation")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("controller closed")
)

// ValidationError rejects a selection locally; nothing is sent to Jira.
type ValidationError struct {
	Label labels.Label
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed for label %q: %v", e.Label, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// FetchError reports that the issue batch could not be loaded.
type FetchError struct {
	IssueKey string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to load issue %s: %v", e.IssueKey, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmitError reports a failed label update. The selection is kept so the
// user can retry.
type SubmitError struct {
	IssueKey string
	Label    labels.Label
	Err      error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("failed to set %s on %s: %v", e.Label, e.IssueKey, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// NavigationError reports that moving to the next issue failed after the
// update was applied. The update is not retried.
type NavigationError struct {
	Route Route
	Err   error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("issue updated, but navigating to %s failed: %v", e.Route.Path(), e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }
