package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/cexll/jiralabel/internal/jira"
	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/labels"
	"github.com/cexll/jiralabel/internal/session"
	"github.com/cexll/jiralabel/internal/triage"
	"github.com/gorilla/mux"
)

//go:embed templates/*
var templatesFS embed.FS

const sessionKey ctxKey = "session"

type ctxKey string

// Handler serves the browser front end.
type Handler struct {
	sessions        *session.Manager
	hl              *highlight.Highlighter
	defaultInstance string
	templates       *template.Template
}

// NewHandler creates a new web handler
func NewHandler(sessions *session.Manager, defaultInstance string) (*Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"buttonClass": buttonClass,
		"join":        strings.Join,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		sessions:        sessions,
		hl:              sessions.Highlighter(),
		defaultInstance: defaultInstance,
		templates:       tmpl,
	}, nil
}

// RegisterRoutes registers web UI routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleRoot).Methods("GET")
	r.HandleFunc("/login", h.handleLoginPage).Methods("GET")
	r.HandleFunc("/login", h.handleLogin).Methods("POST")
	r.HandleFunc("/logout", h.handleLogout).Methods("POST")

	guarded := r.NewRoute().Subrouter()
	guarded.Use(h.requireSession)
	guarded.HandleFunc("/search", h.handleSearchPage).Methods("GET")
	guarded.HandleFunc("/search", h.handleSearch).Methods("POST")
	guarded.HandleFunc("/issue/{issueKey}", h.handleIssue).Methods("GET")
	guarded.HandleFunc("/issue/{issueKey}/label", h.handleLabel).Methods("POST")
}

// requireSession redirects requests without a live session to /login.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.sessions.Current(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey).(*session.Session)
	return sess
}

type page struct {
	Title string
	Email string
	Error string
}

type loginPage struct {
	page
	FormEmail       string
	DefaultInstance string
}

type searchPage struct {
	page
	FilterID string
}

type issuePage struct {
	page
	State       triage.State
	Primary     *labeling.Issue
	Related     []labeling.Issue
	Description template.HTML
	Remaining   string
	Buttons     []triage.Button
	LabelAction string
	Submitting  bool
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.Current(r); ok {
		http.Redirect(w, r, "/search", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.Current(r); ok {
		http.Redirect(w, r, "/search", http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "login.html", loginPage{
		page:            page{Title: "Log in"},
		DefaultInstance: h.defaultInstance,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	token := r.FormValue("api_token")
	data := loginPage{
		page:            page{Title: "Log in"},
		FormEmail:       email,
		DefaultInstance: h.defaultInstance,
	}
	if email == "" || strings.TrimSpace(token) == "" {
		data.Error = "Email and API token are required."
		h.render(w, http.StatusBadRequest, "login.html", data)
		return
	}

	sess, err := h.sessions.Login(r.Context(), email, token, r.FormValue("jira_instance"))
	if err != nil {
		status := http.StatusBadGateway
		data.Error = "Could not reach Jira. Check the instance name."
		if errors.Is(err, session.ErrInvalidCredentials) {
			status = http.StatusUnauthorized
			data.Error = "Invalid credentials."
		} else {
			log.Printf("[Web] Login failed: %v", err)
		}
		h.render(w, status, "login.html", data)
		return
	}
	if err := h.sessions.Attach(w, sess); err != nil {
		log.Printf("[Web] Failed to issue session cookie: %v", err)
		http.Error(w, "Could not create session", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/search", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	h.render(w, http.StatusOK, "search.html", searchPage{
		page:     page{Title: "Search", Email: sess.Email},
		FilterID: sess.Service.FilterID(),
	})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	filterID := strings.TrimSpace(r.FormValue("filter_id"))

	res, err := sess.Service.SearchIssue(r.Context(), filterID)
	if err != nil {
		data := searchPage{
			page:     page{Title: "Search", Email: sess.Email},
			FilterID: filterID,
		}
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, labeling.ErrNoIssues):
			status = http.StatusNotFound
			data.Error = "No issues found for the given filter."
		case jira.IsNotFound(err):
			status = http.StatusNotFound
			data.Error = fmt.Sprintf("Filter %s does not exist or is not shared with you.", filterID)
		default:
			log.Printf("[Web] Search for filter %q failed: %v", filterID, err)
			data.Error = "Searching Jira failed: " + err.Error()
		}
		h.render(w, status, "search.html", data)
		return
	}

	route := triage.Route{IssueKey: res.IssueKey, TotalIssues: res.TotalIssues}
	http.Redirect(w, r, route.Path(), http.StatusSeeOther)
}

// handleIssue is a route change: the view is entered unless it already shows
// this route.
func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	route, err := triage.ParseRoute(mux.Vars(r)["issueKey"], r.URL.Query().Get("total_issues"))
	if err != nil {
		http.Redirect(w, r, "/search", http.StatusSeeOther)
		return
	}

	view := sess.View
	current := view.Snapshot()
	if current.Route != route || current.Phase == triage.Idle || current.Phase == triage.Error {
		view.Enter(route)
	}
	if err := view.Wait(r.Context()); err != nil {
		return
	}

	status := http.StatusOK
	if view.Snapshot().Phase == triage.Error {
		status = http.StatusBadGateway
	}
	h.renderIssue(w, status, sess, nil)
}

// handleLabel is a label selection on the issue in the path.
func (h *Handler) handleLabel(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	route, err := triage.ParseRoute(mux.Vars(r)["issueKey"], r.FormValue("total_issues"))
	if err != nil {
		http.Redirect(w, r, "/search", http.StatusSeeOther)
		return
	}

	view := sess.View
	if view.Snapshot().Route.IssueKey != route.IssueKey {
		// The form belongs to another issue than the one on screen.
		view.Enter(route)
		if err := view.Wait(r.Context()); err != nil {
			return
		}
	}

	err = view.Select(r.Context(), labels.Label(strings.TrimSpace(r.FormValue("label"))))
	if err == nil {
		if next := view.Snapshot().Route; next.IssueKey != route.IssueKey {
			http.Redirect(w, r, next.Path(), http.StatusSeeOther)
			return
		}
		h.renderIssue(w, http.StatusOK, sess, nil)
		return
	}

	var (
		verr *triage.ValidationError
		serr *triage.SubmitError
		nerr *triage.NavigationError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, triage.ErrSubmitting), errors.Is(err, triage.ErrNotLoaded), errors.Is(err, triage.ErrSuperseded),
		errors.Is(err, labeling.ErrIssueBusy):
		status = http.StatusConflict
	case errors.As(err, &serr):
		status = http.StatusBadGateway
	case errors.As(err, &nerr):
		status = http.StatusInternalServerError
	}
	h.renderIssue(w, status, sess, err)
}

func (h *Handler) renderIssue(w http.ResponseWriter, status int, sess *session.Session, err error) {
	state := sess.View.Snapshot()
	data := issuePage{
		page:        page{Title: state.Route.IssueKey, Email: sess.Email},
		State:       state,
		Remaining:   remainingText(state),
		Buttons:     sess.View.Buttons(),
		LabelAction: "/issue/" + url.PathEscape(state.Route.IssueKey) + "/label",
		Submitting:  state.Phase == triage.Submitting,
	}
	if err == nil {
		err = state.Err
	}
	if err != nil {
		data.Error = err.Error()
	}
	if primary, ok := state.Primary(); ok {
		data.Primary = primary
		if h.hl != nil {
			data.Description = h.hl.HTML(primary.Description)
		} else {
			data.Description = template.HTML(template.HTMLEscapeString(primary.Description))
		}
		for _, issue := range state.Batch.Issues {
			if issue.LinkType != labeling.LinkSelf {
				data.Related = append(data.Related, issue)
			}
		}
	}
	h.render(w, status, "issue.html", data)
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("[Web] Failed to render %s: %v", name, err)
	}
}

func remainingText(s triage.State) string {
	switch {
	case s.Complete:
		return "All issues of this filter are labeled."
	case s.Remaining == labeling.UnknownTotal:
		return "Remaining issues: unknown"
	case s.Remaining == 1:
		return "1 issue remaining"
	default:
		return fmt.Sprintf("%d issues remaining", s.Remaining)
	}
}

func buttonClass(b triage.Button) string {
	var classes []string
	if b.Selected {
		classes = append(classes, "selected")
	}
	if b.Suggested {
		classes = append(classes, "suggested")
	}
	if b.NoSignal {
		classes = append(classes, "no-signal")
	}
	if b.Sentinel {
		classes = append(classes, "sentinel")
	}
	return strings.Join(classes, " ")
}
