package jira

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 500 * time.Millisecond
)

// retryWithBackoff runs fn until it succeeds, fails permanently, or the
// attempts run out. The delay doubles after every attempt.
func retryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error
	delay := initialDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[Jira] Retry attempt %d/%d after %v", attempt+1, maxRetries+1, delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}

	log.Printf("[Jira] All %d attempts failed, giving up", maxRetries+1)
	return lastErr
}

// isRetryableError reports whether err looks transient: throttling, gateway
// errors, or a dropped connection.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch StatusOf(err) {
	case 0:
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"eof",
		"timeout",
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
