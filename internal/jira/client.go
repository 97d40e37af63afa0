package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const apiPrefix = "/rest/api/3"

// Credentials identify a Jira Cloud user. Instance is a host name such as
// "example.atlassian.net" or a full base URL.
type Credentials struct {
	Email    string
	APIToken string
	Instance string
}

// Options tune the HTTP behaviour of a Client.
type Options struct {
	Timeout      time.Duration
	RateLimit    float64 // requests per second; <= 0 disables throttling
	MaxRetries   int
	InitialDelay time.Duration
	HTTPClient   *http.Client
}

// Client talks to the Jira Cloud REST API v3 with basic auth.
type Client struct {
	baseURL      string
	creds        Credentials
	http         *http.Client
	limiter      *rate.Limiter
	maxRetries   int
	initialDelay time.Duration
}

// NewClient validates creds and builds a client for their instance.
func NewClient(creds Credentials, opts Options) (*Client, error) {
	if strings.TrimSpace(creds.Email) == "" || strings.TrimSpace(creds.APIToken) == "" {
		return nil, ErrMissingCredentials
	}
	base, err := BaseURL(creds.Instance)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	initialDelay := opts.InitialDelay
	if initialDelay <= 0 {
		initialDelay = defaultInitialDelay
	}

	return &Client{
		baseURL:      base,
		creds:        creds,
		http:         httpClient,
		limiter:      limiter,
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
	}, nil
}

// BaseURL turns an instance name into the site URL. Values with a scheme
// are used as given.
func BaseURL(instance string) (string, error) {
	instance = strings.TrimSpace(instance)
	if instance == "" {
		return "", fmt.Errorf("jira instance is required")
	}
	if !strings.Contains(instance, "://") {
		instance = "https://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid jira instance %q", instance)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// Instance returns the configured instance as given by the user.
func (c *Client) Instance() string {
	return c.creds.Instance
}

// Email returns the account email the client authenticates as.
func (c *Client) Email() string {
	return c.creds.Email
}

// Myself returns the authenticated user. It doubles as a credential check.
func (c *Client) Myself(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, apiPrefix+"/myself", &user); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &user, nil
}

// FilterJQL returns the JQL of a saved filter.
func (c *Client) FilterJQL(ctx context.Context, filterID string) (string, error) {
	var filter Filter
	if err := c.get(ctx, apiPrefix+"/filter/"+url.PathEscape(filterID), &filter); err != nil {
		return "", fmt.Errorf("failed to get filter %s: %w", filterID, err)
	}
	if strings.TrimSpace(filter.JQL) == "" {
		return "", fmt.Errorf("filter %s has no JQL", filterID)
	}
	return filter.JQL, nil
}

// CountIssues returns the (approximate) number of issues matching jql.
func (c *Client) CountIssues(ctx context.Context, jql string) (int, error) {
	var resp countResponse
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, apiPrefix+"/search/approximate-count", countRequest{JQL: jql}, &resp, http.StatusOK)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return resp.Count, nil
}

// SearchIssues returns up to maxResults issues matching jql with the given fields.
// Search is read-only, so it is retried like a GET.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int, fields ...string) ([]Issue, error) {
	req := searchRequest{JQL: jql, MaxResults: maxResults, Fields: fields}
	var resp searchResponse
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, apiPrefix+"/search/jql", req, &resp, http.StatusOK)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}
	return resp.Issues, nil
}

// GetIssue fetches one issue. With no fields, Jira returns all navigable fields.
func (c *Client) GetIssue(ctx context.Context, key string, fields ...string) (*Issue, error) {
	path := apiPrefix + "/issue/" + url.PathEscape(key)
	if len(fields) > 0 {
		path += "?fields=" + url.QueryEscape(strings.Join(fields, ","))
	}
	var issue Issue
	if err := c.get(ctx, path, &issue); err != nil {
		return nil, fmt.Errorf("failed to fetch issue %s: %w", key, err)
	}
	return &issue, nil
}

// UpdateFields sets fields on an issue. Jira answers 204 on success.
// Updates are never retried.
func (c *Client) UpdateFields(ctx context.Context, key string, fields map[string]any) error {
	body := map[string]any{"fields": fields}
	if err := c.do(ctx, http.MethodPut, apiPrefix+"/issue/"+url.PathEscape(key), body, nil, http.StatusNoContent); err != nil {
		return fmt.Errorf("failed to update issue %s: %w", key, err)
	}
	return nil
}

// AddWatcher adds accountID to the watchers of an issue. Jira answers 400
// when the user already watches it, which is treated as success.
func (c *Client) AddWatcher(ctx context.Context, key, accountID string) error {
	err := c.do(ctx, http.MethodPost, apiPrefix+"/issue/"+url.PathEscape(key)+"/watchers", accountID, nil, http.StatusNoContent)
	if StatusOf(err) == http.StatusBadRequest {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to add watcher to %s: %w", key, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, nil, out, http.StatusOK)
	})
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	return retryWithBackoff(ctx, c.maxRetries, c.initialDelay, fn)
}

// do sends one request and decodes the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any, expect int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.creds.Email, c.creds.APIToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != expect {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Printf("[Jira] %s %s returned %d", method, path, resp.StatusCode)
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
