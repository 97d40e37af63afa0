package jira

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingCredentials is returned when the email or API token is empty.
var ErrMissingCredentials = errors.New("jira email and API token are required")

// APIError is a non-success response from the Jira REST API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API error: %s %s: %d - %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// StatusOf returns the HTTP status of an *APIError in err's chain, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from Jira.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsUnauthorized reports whether Jira rejected the credentials.
func IsUnauthorized(err error) bool {
	status := StatusOf(err)
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
