package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cexll/jiralabel/internal/audit"
	"github.com/cexll/jiralabel/internal/config"
	"github.com/cexll/jiralabel/internal/jira"
	"github.com/cexll/jiralabel/internal/jira/jiratest"
	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/labels"
	"github.com/cexll/jiralabel/internal/session"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	jira    *jiratest.Server
	audit   *audit.Store
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := jiratest.NewServer()
	t.Cleanup(fake.Close)

	store, err := audit.Open(filepath.Join(t.TempDir(), "updates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		JiraInstance:         fake.URL,
		ResearchProjectField: jiratest.Field,
		ChargeableField:      "customfield_10384",
		ChargeableID:         "10396",
		DefaultFilterID:      "10456",
	}
	mgr := session.NewManager(cfg, session.NewStore(time.Hour), session.NewCodec("secret", time.Hour, false), nil, store)

	r := mux.NewRouter()
	r.Use(RequestID, Logger, Recovery)
	NewHandler(mgr, store).RegisterRoutes(r)
	return &testEnv{jira: fake, audit: store, handler: r}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/login", map[string]string{
		"email":     jiratest.Email,
		"api_token": jiratest.Token,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/login", map[string]string{"email": jiratest.Email})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/login", map[string]string{"email": jiratest.Email, "api_token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/login", map[string]string{"email": jiratest.Email, "api_token": jiratest.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "Login successful", body["message"])
	assert.Equal(t, env.jira.URL, body["jira_instance"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSessionAndLogout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, sessionResponse{}, decode[sessionResponse](t, rec))

	cookie := env.login(t)
	rec = env.do(t, http.MethodGet, "/api/session", nil, cookie)
	got := decode[sessionResponse](t, rec)
	assert.True(t, got.Authenticated)
	assert.Equal(t, jiratest.Email, got.Email)

	rec = env.do(t, http.MethodPost, "/api/logout", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/session", nil, cookie)
	assert.False(t, decode[sessionResponse](t, rec).Authenticated)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/search_issue"},
		{http.MethodGet, "/api/fetch_issue?issue_key=ABC-1"},
		{http.MethodPost, "/api/update_issue"},
		{http.MethodGet, "/api/updates"},
	}
	for _, rt := range routes {
		t.Run(rt.path, func(t *testing.T) {
			rec := env.do(t, rt.method, rt.path, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Unauthorized", decode[map[string]string](t, rec)["message"])
		})
	}
}

func TestSearchFetchUpdateFlow(t *testing.T) {
	env := newTestEnv(t)
	for i := 1; i <= 5; i++ {
		env.jira.AddIssue(fmt.Sprintf("ABC-%d", i), fmt.Sprintf("Task %d", i), "uses NETCONF daily", "")
	}
	env.jira.AddIssue("OLD-1", "Earlier work", "", "SHINKA")
	env.jira.AddWorklog("OLD-1", jiratest.AccountID, 7200)
	env.jira.AddWorklog("ABC-1", jiratest.AccountID, 1800)
	cookie := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/search_issue", map[string]string{"filter_id": "10456"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, labeling.SearchResult{IssueKey: "ABC-1", TotalIssues: 5}, decode[labeling.SearchResult](t, rec))

	rec = env.do(t, http.MethodGet, "/api/fetch_issue?issue_key=ABC-1&total_issues=5", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	batch := decode[labeling.IssueBatch](t, rec)
	assert.Equal(t, 5, batch.TotalIssues)
	require.Len(t, batch.Issues, 1)
	assert.Equal(t, "uses NETCONF daily", batch.Issues[0].Description)
	assert.Equal(t, labeling.LinkSelf, batch.Issues[0].LinkType)
	assert.Equal(t, 0.5, batch.TaskTimeSpent)
	require.NotEmpty(t, batch.SortedProjects)
	assert.Equal(t, labeling.ProjectHours{Project: "SHINKA", Hours: 2}, batch.SortedProjects[0])

	rec = env.do(t, http.MethodPost, "/api/update_issue", map[string]string{
		"issue_key":        "ABC-1",
		"research_project": "6G-NETFAB",
		"chargeable":       "10396",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[labeling.UpdateResult](t, rec)
	assert.Equal(t, "Issue updated successfully.", res.Message)
	assert.Equal(t, "ABC-2", res.NextIssue)
	require.NotNil(t, res.TotalIssues)
	assert.Equal(t, 4, *res.TotalIssues)
	assert.Equal(t, "6G-NETFAB", env.jira.Project("ABC-1"))

	updates := env.jira.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, map[string]any{"id": "10396"}, updates[0].Fields["customfield_10384"])

	rec = env.do(t, http.MethodGet, "/api/updates?limit=5", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]audit.Entry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "ABC-1", entries[0].IssueKey)
	assert.Equal(t, "ABC-2", entries[0].NextIssue)
	assert.Equal(t, jiratest.Email, entries[0].Actor)
}

func TestSearchIssue_NoIssues(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/search_issue", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Nil(t, body["issue_key"])
	assert.Equal(t, float64(0), body["total_issues"])
}

func TestFetchIssue_Errors(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rec := env.do(t, http.MethodGet, "/api/fetch_issue", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/fetch_issue?issue_key=NOPE-1", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateIssue_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.jira.AddIssue("ABC-1", "Task", "", "")
	cookie := env.login(t)

	rec := env.do(t, http.MethodPost, "/api/update_issue", map[string]string{"issue_key": "ABC-1"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/update_issue", map[string]string{"issue_key": "ABC-1", "research_project": "BOGUS"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.jira.Updates())

	env.jira.FailUpdates(1)
	rec = env.do(t, http.MethodPost, "/api/update_issue", map[string]string{"issue_key": "ABC-1", "research_project": "SHINKA"}, cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// Chargeable defaults to the configured id.
	rec = env.do(t, http.MethodPost, "/api/update_issue", map[string]string{"issue_key": "ABC-1", "research_project": "SHINKA"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[labeling.UpdateResult](t, rec)
	assert.Equal(t, "Issue updated, but no more issues found.", res.Message)
	assert.Empty(t, res.NextIssue)
	updates := env.jira.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, map[string]any{"id": "10396"}, updates[0].Fields["customfield_10384"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{labeling.ErrIssueNotFound, http.StatusNotFound},
		{labeling.ErrNoIssues, http.StatusNotFound},
		{fmt.Errorf("x: %w", labels.ErrUnknownLabel), http.StatusBadRequest},
		{labeling.ErrMissingIssueKey, http.StatusBadRequest},
		{labeling.ErrIssueBusy, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("wrapped: %w", &jira.APIError{StatusCode: http.StatusForbidden}), http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
