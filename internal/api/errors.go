package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the story service, carrying the
// server-supplied message when one was present.
type APIError struct {
	StatusCode int
	Message    string
	Operation  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Operation, e.StatusCode)
}

// Recoverable reports whether retrying the request later could succeed.
// Client errors are final, except request timeouts and rate limiting;
// server errors and transport failures are transient.
func (e *APIError) Recoverable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return false
	default:
		return true
	}
}

// IsRecoverable classifies err for retry decisions. Anything that is not a
// definitive server rejection (a network error, a truncated body) counts as
// recoverable.
func IsRecoverable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Recoverable()
	}
	return true
}
