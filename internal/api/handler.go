package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/cexll/jiralabel/internal/audit"
	"github.com/cexll/jiralabel/internal/jira"
	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/labels"
	"github.com/cexll/jiralabel/internal/session"
	"github.com/gorilla/mux"
)

const sessionKey contextKey = "session"

// UpdateLister returns recently applied label updates.
type UpdateLister interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Handler serves the JSON API under /api.
type Handler struct {
	sessions *session.Manager
	updates  UpdateLister
}

// NewHandler creates the API handler. updates may be nil.
func NewHandler(sessions *session.Manager, updates UpdateLister) *Handler {
	return &Handler{sessions: sessions, updates: updates}
}

// RegisterRoutes registers the API routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", h.handleLogin).Methods("POST")
	api.HandleFunc("/logout", h.handleLogout).Methods("POST")
	api.HandleFunc("/session", h.handleSession).Methods("GET")

	authed := api.NewRoute().Subrouter()
	authed.Use(h.requireSession)
	authed.HandleFunc("/search_issue", h.handleSearchIssue).Methods("POST")
	authed.HandleFunc("/fetch_issue", h.handleFetchIssue).Methods("GET")
	authed.HandleFunc("/update_issue", h.handleUpdateIssue).Methods("POST")
	authed.HandleFunc("/updates", h.handleUpdates).Methods("GET")
}

func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.sessions.Current(r)
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	sess, _ := r.Context().Value(sessionKey).(*session.Session)
	return sess
}

type loginRequest struct {
	Email        string `json:"email"`
	APIToken     string `json:"api_token"`
	JiraInstance string `json:"jira_instance"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.APIToken) == "" {
		writeMessage(w, http.StatusBadRequest, "Email and API token are required")
		return
	}

	sess, err := h.sessions.Login(r.Context(), req.Email, req.APIToken, req.JiraInstance)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		case errors.Is(err, jira.ErrMissingCredentials):
			writeMessage(w, http.StatusBadRequest, "Email and API token are required")
		default:
			log.Printf("[API] Login failed: %v", err)
			writeMessage(w, http.StatusBadGateway, "Could not reach Jira")
		}
		return
	}

	if err := h.sessions.Attach(w, sess); err != nil {
		log.Printf("[API] Failed to issue session cookie: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Could not create session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":       "Login successful",
		"jira_instance": sess.Instance,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(w, r)
	writeMessage(w, http.StatusOK, "Logged out")
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	JiraInstance  string `json:"jira_instance,omitempty"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Current(r)
	if !ok {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		Email:         sess.Email,
		JiraInstance:  sess.Instance,
	})
}

type searchRequest struct {
	FilterID string `json:"filter_id"`
}

func (h *Handler) handleSearchIssue(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	res, err := sessionFrom(r).Service.SearchIssue(r.Context(), req.FilterID)
	if errors.Is(err, labeling.ErrNoIssues) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"message":      "No issues found for the given filter.",
			"issue_key":    nil,
			"total_issues": 0,
		})
		return
	}
	if err != nil {
		writeError(w, "search issue", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleFetchIssue(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("issue_key"))
	if key == "" {
		writeMessage(w, http.StatusBadRequest, "Issue key is required")
		return
	}
	total := labeling.UnknownTotal
	if n, err := strconv.Atoi(r.URL.Query().Get("total_issues")); err == nil && n >= 0 {
		total = n
	}

	batch, err := sessionFrom(r).Service.FetchIssue(r.Context(), key, total)
	if err != nil {
		writeError(w, "fetch issue "+key, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

type updateRequest struct {
	IssueKey        string `json:"issue_key"`
	ResearchProject string `json:"research_project"`
	Chargeable      string `json:"chargeable"`
}

func (h *Handler) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.IssueKey) == "" || strings.TrimSpace(req.ResearchProject) == "" {
		writeMessage(w, http.StatusBadRequest, "Issue key and research project are required")
		return
	}
	label, err := labels.Parse(req.ResearchProject)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Unknown research project: "+req.ResearchProject)
		return
	}
	chargeable := strings.TrimSpace(req.Chargeable)
	if chargeable == "" {
		chargeable = h.sessions.ChargeableID()
	}

	res, err := sessionFrom(r).Service.UpdateIssue(r.Context(), req.IssueKey, label, chargeable)
	if err != nil {
		writeError(w, "update issue "+req.IssueKey, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if h.updates == nil {
		writeJSON(w, http.StatusOK, []audit.Entry{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.updates.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, "list updates", err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// StatusFor maps a service error to the HTTP status answered for it. Jira
// statuses are passed through.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, labeling.ErrIssueNotFound), errors.Is(err, labeling.ErrNoIssues):
		return http.StatusNotFound
	case errors.Is(err, labeling.ErrMissingIssueKey), errors.Is(err, labels.ErrUnknownLabel):
		return http.StatusBadRequest
	case errors.Is(err, labeling.ErrIssueBusy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if status := jira.StatusOf(err); status >= 400 {
		return status
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	log.Printf("[API] Failed to %s: %v", op, err)
	writeMessage(w, status, err.Error())
}
