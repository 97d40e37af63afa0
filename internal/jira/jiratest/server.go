// Package jiratest provides an in-memory Jira Cloud server for tests.
package jiratest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

// Default credentials and field accepted by a new Server.
const (
	Email     = "dev@example.com"
	Token     = "token"
	AccountID = "acc-dev"
	Field     = "customfield_10097"
)

// Update is a field update received by the server.
type Update struct {
	Key    string
	Fields map[string]any
}

type issue struct {
	key         string
	summary     string
	description string
	project     string
	parent      string
	worklog     []worklog
}

type worklog struct {
	accountID string
	seconds   int
}

// Server fakes the Jira REST endpoints the labeling service uses. Every
// filter matches the issues, in insertion order, whose research project is
// still empty; a worklogAuthor query matches issues with worklogs by that
// account.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	filters  map[string]string
	issues   map[string]*issue
	order    []string
	updates  []Update
	watchers []string
	failPut  int
}

// NewServer starts a server; Close it when done.
func NewServer() *Server {
	s := &Server{
		filters: map[string]string{"10456": "project = ABC AND cf[10097] is EMPTY"},
		issues:  map[string]*issue{},
	}

	r := mux.NewRouter()
	r.Use(s.auth)
	api := r.PathPrefix("/rest/api/3").Subrouter()
	api.HandleFunc("/myself", s.handleMyself).Methods("GET")
	api.HandleFunc("/filter/{id}", s.handleFilter).Methods("GET")
	api.HandleFunc("/search/approximate-count", s.handleCount).Methods("POST")
	api.HandleFunc("/search/jql", s.handleSearch).Methods("POST")
	api.HandleFunc("/issue/{key}", s.handleGetIssue).Methods("GET")
	api.HandleFunc("/issue/{key}", s.handleUpdate).Methods("PUT")
	api.HandleFunc("/issue/{key}/watchers", s.handleWatcher).Methods("POST")

	s.Server = httptest.NewServer(r)
	return s
}

// AddFilter registers a filter id.
func (s *Server) AddFilter(id, jql string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[id] = jql
}

// AddIssue adds an issue. An empty project leaves it in every filter.
func (s *Server) AddIssue(key, summary, description, project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[key]; !ok {
		s.order = append(s.order, key)
	}
	s.issues[key] = &issue{key: key, summary: summary, description: description, project: project}
}

// SetParent makes parent the parent of key.
func (s *Server) SetParent(key, parent string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if is, ok := s.issues[key]; ok {
		is.parent = parent
	}
}

// AddWorklog logs seconds on key by accountID.
func (s *Server) AddWorklog(key, accountID string, seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if is, ok := s.issues[key]; ok {
		is.worklog = append(is.worklog, worklog{accountID: accountID, seconds: seconds})
	}
}

// FailUpdates makes the next n issue updates answer 500.
func (s *Server) FailUpdates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut = n
}

// Updates returns the updates received so far.
func (s *Server) Updates() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Update(nil), s.updates...)
}

// Project returns the research project currently set on key.
func (s *Server) Project(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if is, ok := s.issues[key]; ok {
		return is.project
	}
	return ""
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, token, ok := r.BasicAuth()
		if !ok || user != Email || token != Token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"errorMessages": []string{"Client must be authenticated"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMyself(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"accountId": AccountID, "displayName": "Dev User", "emailAddress": Email})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	jql, ok := s.filters[id]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"filter not found"}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "name": "Filter " + id, "jql": jql})
}

type searchBody struct {
	JQL        string `json:"jql"`
	MaxResults int    `json:"maxResults"`
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	n := len(s.match(body.JQL))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	matched := s.match(body.JQL)
	if body.MaxResults > 0 && len(matched) > body.MaxResults {
		matched = matched[:body.MaxResults]
	}
	issues := make([]map[string]any, 0, len(matched))
	for _, is := range matched {
		issues = append(issues, s.render(is))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"issues": issues, "isLast": true})
}

func (s *Server) match(jql string) []*issue {
	var out []*issue
	if strings.HasPrefix(jql, "worklogAuthor") {
		for _, key := range s.order {
			is := s.issues[key]
			for _, wl := range is.worklog {
				if strings.Contains(jql, `"`+wl.accountID+`"`) {
					out = append(out, is)
					break
				}
			}
		}
		return out
	}
	for _, key := range s.order {
		if is := s.issues[key]; is.project == "" {
			out = append(out, is)
		}
	}
	return out
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	s.mu.Lock()
	is, ok := s.issues[key]
	var body map[string]any
	if ok {
		body = s.render(is)
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Issue does not exist or you do not have permission to see it."}})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) render(is *issue) map[string]any {
	fields := map[string]any{
		"summary":  is.summary,
		"assignee": map[string]string{"accountId": AccountID, "displayName": "Dev User"},
		"description": map[string]any{
			"type": "doc",
			"content": []any{map[string]any{
				"type":    "paragraph",
				"content": []any{map[string]any{"type": "text", "text": is.description}},
			}},
		},
		"issuelinks": []any{},
		Field:        nil,
	}
	if is.project != "" {
		fields[Field] = map[string]string{"value": is.project}
	}
	if is.parent != "" {
		fields["parent"] = map[string]string{"key": is.parent}
	}
	logs := make([]map[string]any, 0, len(is.worklog))
	for _, wl := range is.worklog {
		logs = append(logs, map[string]any{
			"timeSpentSeconds": wl.seconds,
			"author":           map[string]string{"accountId": wl.accountID},
		})
	}
	fields["worklog"] = map[string]any{"total": len(logs), "worklogs": logs}
	return map[string]any{"key": is.key, "fields": fields}
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var body struct {
		Fields map[string]any `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errorMessages": []string{err.Error()}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut > 0 {
		s.failPut--
		writeJSON(w, http.StatusInternalServerError, map[string]any{"errorMessages": []string{"update failed"}})
		return
	}
	is, ok := s.issues[key]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Issue does not exist"}})
		return
	}
	if v, ok := body.Fields[Field].(map[string]any); ok {
		is.project, _ = v["value"].(string)
	}
	s.updates = append(s.updates, Update{Key: key, Fields: body.Fields})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWatcher(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.watchers = append(s.watchers, mux.Vars(r)["key"]+":"+strings.Trim(string(data), `"`))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
