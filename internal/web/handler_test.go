package web

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cexll/jiralabel/internal/config"
	"github.com/cexll/jiralabel/internal/highlight"
	"github.com/cexll/jiralabel/internal/jira/jiratest"
	"github.com/cexll/jiralabel/internal/labels"
	"github.com/cexll/jiralabel/internal/session"
	"github.com/cexll/jiralabel/internal/triage"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	jira    *jiratest.Server
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := jiratest.NewServer()
	t.Cleanup(fake.Close)

	rules, err := labels.DefaultRules()
	require.NoError(t, err)
	hl, err := highlight.New(rules)
	require.NoError(t, err)

	cfg := &config.Config{
		JiraInstance:         fake.URL,
		ResearchProjectField: jiratest.Field,
		ChargeableField:      "customfield_10384",
		ChargeableID:         "10396",
		DefaultFilterID:      "10456",
	}
	mgr := session.NewManager(cfg, session.NewStore(time.Hour), session.NewCodec("secret", time.Hour, false), hl, nil)

	handler, err := NewHandler(mgr, cfg.JiraInstance)
	require.NoError(t, err)
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	return &testEnv{jira: fake, handler: r}
}

func (e *testEnv) get(target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) post(target string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	w := e.post("/login", url.Values{"email": {jiratest.Email}, "api_token": {jiratest.Token}}, nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/search", w.Header().Get("Location"))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1, "expected one session cookie")
	return cookies[0]
}

func TestHandler_UnauthenticatedRedirects(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{"/", "/search", "/issue/ABC-1?total_issues=3"} {
		w := env.get(target, nil)
		assert.Equal(t, http.StatusSeeOther, w.Code, "GET %s", target)
		assert.Equal(t, "/login", w.Header().Get("Location"), "GET %s", target)
	}

	w := env.post("/issue/ABC-1/label", url.Values{"label": {"SHINKA"}}, nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Empty(t, env.jira.Updates(), "unauthenticated label must not reach Jira")
}

func TestHandler_LoginPage(t *testing.T) {
	env := newTestEnv(t)

	w := env.get("/login", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="api_token"`)

	w = env.post("/login", url.Values{"email": {jiratest.Email}, "api_token": {"wrong"}}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid credentials.")

	w = env.post("/login", url.Values{"email": {jiratest.Email}}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	cookie := env.login(t)
	assert.Equal(t, http.StatusSeeOther, env.get("/login", cookie).Code, "logged-in GET /login")
}

func TestHandler_LabelingFlow(t *testing.T) {
	env := newTestEnv(t)
	env.jira.AddIssue("ABC-1", "Fabric rollout", "uses NETCONF daily", "")
	env.jira.AddIssue("ABC-2", "Pool sizing", "Tune the resource pool & quotas", "")
	cookie := env.login(t)

	w := env.post("/search", url.Values{"filter_id": {"10456"}}, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code)
	require.Equal(t, "/issue/ABC-1?total_issues=2", w.Header().Get("Location"))

	w = env.get("/issue/ABC-1?total_issues=2", cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Contains(t, body, "uses <mark>NETCONF</mark> daily")
	assert.Contains(t, body, `value="6G-NETFAB" class="suggested"`)
	assert.Contains(t, body, "2 issues remaining")

	w = env.post("/issue/ABC-1/label", url.Values{"label": {"6G-NETFAB"}, "total_issues": {"2"}}, cookie)
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	require.Equal(t, "/issue/ABC-2?total_issues=1", w.Header().Get("Location"))
	require.Equal(t, "6G-NETFAB", env.jira.Project("ABC-1"))

	w = env.get("/issue/ABC-2?total_issues=1", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<mark>resource pool</mark> &amp; quotas", "longest phrase highlighted and text escaped")

	w = env.post("/issue/ABC-2/label", url.Values{"label": {"SHINKA"}, "total_issues": {"1"}}, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, "Issue updated, but no more issues found.")
	assert.Contains(t, body, "All issues of this filter are labeled.")
	assert.Len(t, env.jira.Updates(), 2)
}

func TestHandler_LabelErrors(t *testing.T) {
	env := newTestEnv(t)
	env.jira.AddIssue("ABC-1", "Task", "", "")
	cookie := env.login(t)

	require.Equal(t, http.StatusOK, env.get("/issue/ABC-1?total_issues=1", cookie).Code)

	w := env.post("/issue/ABC-1/label", url.Values{"label": {""}}, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty label")
	w = env.post("/issue/ABC-1/label", url.Values{"label": {"BOGUS"}}, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown label")
	require.Empty(t, env.jira.Updates(), "invalid labels must not reach Jira")

	env.jira.FailUpdates(1)
	w = env.post("/issue/ABC-1/label", url.Values{"label": {"SASPIT"}}, cookie)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `value="SASPIT" class="selected`, "selection retained")
}

func TestHandler_MissingIssue(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	w := env.get("/issue/NOPE-1", cookie)
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "failed to load issue NOPE-1")
}

func TestHandler_SearchNoIssues(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	w := env.post("/search", url.Values{"filter_id": {""}}, cookie)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No issues found")

	w = env.post("/search", url.Values{"filter_id": {"999"}}, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown filter")
}

func TestButtonClass(t *testing.T) {
	tests := []struct {
		b    triage.Button
		want string
	}{
		{triage.Button{Suggested: true}, "suggested"},
		{triage.Button{Selected: true, NoSignal: true}, "selected no-signal"},
		{triage.Button{Sentinel: true}, "sentinel"},
		{triage.Button{}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, buttonClass(tt.b), "buttonClass(%+v)", tt.b)
	}
}
