package triage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/labels"
)

// Phase is the lifecycle state of the issue view.
type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
	Submitting
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Submitting:
		return "submitting"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// IssueService loads issue batches and applies label updates.
// *labeling.Service implements it.
type IssueService interface {
	FetchIssue(ctx context.Context, key string, totalHint int) (*labeling.IssueBatch, error)
	UpdateIssue(ctx context.Context, key string, label labels.Label, chargeableID string) (*labeling.UpdateResult, error)
}

// Navigator is told about a move to the next issue before the controller
// enters it. A non-nil error aborts the move.
type Navigator interface {
	Navigate(ctx context.Context, route Route) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, route Route) error

func (f NavigatorFunc) Navigate(ctx context.Context, route Route) error {
	return f(ctx, route)
}

// State is a point-in-time copy of the view. Batch is shared and must not be
// modified.
type State struct {
	Route     Route
	Phase     Phase
	Batch     *labeling.IssueBatch
	Selected  labels.Label
	Remaining int
	Message   string
	Err       error
	// Complete is set once an update reported no further issues.
	Complete bool
}

// Primary returns the issue being labeled, if a batch is loaded.
func (s State) Primary() (*labeling.Issue, bool) {
	if s.Batch == nil {
		return nil, false
	}
	return s.Batch.Primary()
}

// Options configure a Controller.
type Options struct {
	// ChargeableID is sent with every update.
	ChargeableID string
	// Navigator is optional.
	Navigator Navigator
}

// Controller is the state machine of one issue-labeling view. It runs at
// most one fetch at a time; responses belonging to an earlier navigation are
// dropped. All methods are safe for concurrent use.
type Controller struct {
	svc          IssueService
	hl           *highlight.Highlighter
	chargeableID string
	nav          Navigator

	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	gen    uint64
	genCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}
	state  State
	closed bool
}

// NewController returns an Idle controller. hl may be nil, in which case no
// label is suggested by keyword.
func NewController(svc IssueService, hl *highlight.Highlighter, opts Options) *Controller {
	base, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	close(done)
	return &Controller{
		svc:          svc,
		hl:           hl,
		chargeableID: opts.ChargeableID,
		nav:          opts.Navigator,
		base:         base,
		stop:         stop,
		genCtx:       base,
		done:         done,
		state:        State{Remaining: labeling.UnknownTotal},
	}
}

// Enter starts a fresh view for route: the previous fetch is cancelled,
// transient fields are reset and the issue is fetched in the background.
// The returned channel is closed once that fetch has been applied or
// discarded.
func (c *Controller) Enter(route Route) <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enterLocked(route)
}

// enterIfCurrent enters route only while gen is still the live generation, so
// a late update cannot replace a newer navigation.
func (c *Controller) enterIfCurrent(gen uint64, route Route) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.closed {
		return ErrSuperseded
	}
	c.enterLocked(route)
	return nil
}

func (c *Controller) enterLocked(route Route) <-chan struct{} {
	done := make(chan struct{})
	if c.closed {
		close(done)
		return done
	}
	if c.cancel != nil {
		c.cancel()
	}

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(c.base)
	c.genCtx, c.cancel, c.done = ctx, cancel, done
	c.state = State{Route: route, Phase: Loading, Remaining: route.TotalIssues}

	log.Printf("[Triage] Entering %s (generation %d)", route.Path(), gen)
	go c.fetch(ctx, gen, route, done)
	return done
}

// Settled returns a channel closed when the current fetch has settled.
func (c *Controller) Settled() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Wait blocks until the current fetch has settled or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.Settled():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) fetch(ctx context.Context, gen uint64, route Route, done chan struct{}) {
	defer close(done)

	batch, err := c.svc.FetchIssue(ctx, route.IssueKey, route.TotalIssues)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.closed {
		log.Printf("[Triage] Dropping stale response for %s (generation %d)", route.IssueKey, gen)
		return
	}

	var primary *labeling.Issue
	if err == nil {
		var ok bool
		if primary, ok = batch.Primary(); !ok {
			err = ErrNoPrimaryIssue
		}
	}
	if err != nil {
		log.Printf("[Triage] Failed to load %s: %v", route.IssueKey, err)
		c.state.Phase = Error
		c.state.Err = &FetchError{IssueKey: route.IssueKey, Err: err}
		return
	}

	c.state.Phase = Loaded
	c.state.Batch = batch
	if l, ok := primary.Label(); ok {
		c.state.Selected = l
	}
	if batch.TotalIssues != labeling.UnknownTotal {
		c.state.Remaining = batch.TotalIssues
	}
}

// Select sets label on the loaded issue and submits it at once. It returns
// ErrSubmitting, and changes nothing, while a submission is in flight. An
// empty or unknown label yields a *ValidationError without any call to the
// service. A failed update yields a *SubmitError with the selection kept.
// When the service names a next issue the controller navigates to it;
// otherwise the view becomes complete.
func (c *Controller) Select(ctx context.Context, label labels.Label) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.state.Phase {
	case Submitting:
		c.mu.Unlock()
		return ErrSubmitting
	case Loaded:
	default:
		c.mu.Unlock()
		return ErrNotLoaded
	}

	if label == "" {
		err := &ValidationError{Err: ErrNoLabel}
		c.state.Err = err
		c.mu.Unlock()
		return err
	}
	if !label.Valid() {
		err := &ValidationError{Label: label, Err: labels.ErrUnknownLabel}
		c.state.Err = err
		c.mu.Unlock()
		return err
	}

	gen := c.gen
	genCtx := c.genCtx
	key := c.state.Route.IssueKey
	c.state.Selected = label
	c.state.Phase = Submitting
	c.state.Err = nil
	c.state.Message = ""
	c.state.Complete = false
	c.mu.Unlock()

	sctx, cancel := context.WithCancel(genCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	log.Printf("[Triage] Submitting %s for %s", label, key)
	res, err := c.svc.UpdateIssue(sctx, key, label, c.chargeableID)

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		log.Printf("[Triage] Dropping stale update result for %s", key)
		return ErrSuperseded
	}

	if err != nil {
		serr := &SubmitError{IssueKey: key, Label: label, Err: err}
		c.state.Phase = Loaded
		c.state.Err = serr
		c.mu.Unlock()
		log.Printf("[Triage] %v", serr)
		return serr
	}

	if res.NextIssue == "" {
		c.state.Phase = Loaded
		c.state.Complete = true
		c.state.Message = res.Message
		if c.state.Message == "" {
			c.state.Message = "No more issues found."
		}
		c.state.Remaining = 0
		if res.TotalIssues != nil {
			c.state.Remaining = *res.TotalIssues
		}
		c.mu.Unlock()
		log.Printf("[Triage] %s labeled %s, no more issues", key, label)
		return nil
	}

	next := Route{IssueKey: res.NextIssue, TotalIssues: nextTotal(c.state.Remaining, res.TotalIssues)}
	c.state.Message = res.Message
	c.state.Remaining = next.TotalIssues
	c.mu.Unlock()

	if err := c.navigate(ctx, gen, next); err != nil {
		if errors.Is(err, ErrSuperseded) {
			log.Printf("[Triage] Dropping navigation to %s, view moved on", next.IssueKey)
			return err
		}
		nerr := &NavigationError{Route: next, Err: err}
		c.mu.Lock()
		if gen == c.gen && !c.closed {
			c.state.Phase = Error
			c.state.Err = nerr
		}
		c.mu.Unlock()
		log.Printf("[Triage] %v", nerr)
		return nerr
	}
	return nil
}

// navigate moves to route on behalf of the submission made in generation gen.
// The navigator is skipped once a newer navigation has started.
func (c *Controller) navigate(ctx context.Context, gen uint64, route Route) error {
	if c.nav != nil {
		if !c.current(gen) {
			return ErrSuperseded
		}
		if err := c.nav.Navigate(ctx, route); err != nil {
			return err
		}
	}
	return c.enterIfCurrent(gen, route)
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && !c.closed
}

// nextTotal is the count carried to the next issue: the service's value when
// given, otherwise one less than the current count.
func nextTotal(current int, fromService *int) int {
	if fromService != nil {
		return *fromService
	}
	if current > 0 {
		return current - 1
	}
	return labeling.UnknownTotal
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Buttons returns the label buttons for the loaded issue, or nil before a
// batch is loaded.
func (c *Controller) Buttons() []Button {
	s := c.Snapshot()
	if s.Batch == nil {
		return nil
	}
	return ButtonsFor(s.Batch, s.Selected, c.hl)
}

// Close tears the view down. In-flight work is cancelled and later
// responses are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.gen++
	c.stop()
}
