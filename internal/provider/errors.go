package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Common errors returned by providers and remote clients.
var (
	// ErrNotFound indicates the resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrNoHost indicates the service could not be reached at all.
	ErrNoHost = errors.New("host unreachable")

	// ErrAuth indicates missing or rejected credentials.
	ErrAuth = errors.New("authentication error")

	// ErrRateLimited indicates the rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidResponse indicates an unexpected response body.
	ErrInvalidResponse = errors.New("invalid response")
)

// APIError represents a non-success HTTP status from a remote service.
type APIError struct {
	StatusCode int
	Provider   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsNoHost returns true for connectivity failures: DNS, refused or
// unroutable connections, dial timeouts.
func IsNoHost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoHost) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH)
}

// IsAuthError returns true if the error indicates an authentication problem.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuth) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// Classify maps an error to a response status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case IsNotFound(err):
		return StatusNotFound
	case IsNoHost(err):
		return StatusNoHost
	default:
		return StatusError
	}
}

// Message returns a user-legible description of a failed call.
func Message(key string, status Status, err error) string {
	switch status {
	case StatusOK:
		return ""
	case StatusNotFound:
		return fmt.Sprintf("No results from %s", key)
	case StatusNoHost:
		return fmt.Sprintf("Unable to reach %s. Please check your network connection.", key)
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s did not respond in time", key)
	case IsAuthError(err):
		return fmt.Sprintf("%s rejected the configured credentials", key)
	case IsRateLimited(err):
		return fmt.Sprintf("%s is rate limiting requests; try again shortly", key)
	case err != nil:
		return fmt.Sprintf("Error searching %s: %v", key, err)
	default:
		return fmt.Sprintf("Error searching %s", key)
	}
}
