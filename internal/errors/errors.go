// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnsupported is returned by an adapter for a capability its provider cannot serve.
	ErrUnsupported = errors.New("operation not supported by host")

	// ErrRecordNotFound is returned by the store when no row matches.
	ErrRecordNotFound = errors.New("record not found")

	// ErrConflict is returned by the store when a write loses a unique-constraint race.
	ErrConflict = errors.New("record already exists")
)

// Kind classifies a failed upstream call.
type Kind string

const (
	KindNotFound                   Kind = "not_found"
	KindForbidden                  Kind = "forbidden"
	KindRateLimited                Kind = "rate_limited"
	KindServerError                Kind = "server_error"
	KindUnavailableForLegalReasons Kind = "unavailable_for_legal_reasons"
	KindTimeout                    Kind = "timeout"
	KindTooManyRedirects           Kind = "too_many_redirects"
)

// HostError is a classified failure from a hosting provider's API.
type HostError struct {
	Host       string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *HostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Host, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Host, e.Kind, e.StatusCode)
}

func (e *HostError) Unwrap() error { return e.Err }

// KindForStatus maps an HTTP status code to an error kind.
// ok is false for statuses outside the classified set.
func KindForStatus(code int) (kind Kind, ok bool) {
	switch {
	case code == http.StatusNotFound, code == http.StatusGone:
		return KindNotFound, true
	case code == http.StatusForbidden, code == http.StatusUnauthorized:
		return KindForbidden, true
	case code == http.StatusTooManyRequests:
		return KindRateLimited, true
	case code == http.StatusUnavailableForLegalReasons:
		return KindUnavailableForLegalReasons, true
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout, true
	case code >= 500:
		return KindServerError, true
	}
	return "", false
}

// NewStatusError builds a HostError from an HTTP status code.
// Unclassified statuses produce a plain error, which callers treat as hard failures.
func NewStatusError(host string, code int, err error) error {
	kind, ok := KindForStatus(code)
	if !ok {
		if err == nil {
			return fmt.Errorf("%s: unexpected status %d", host, code)
		}
		return fmt.Errorf("%s: unexpected status %d: %w", host, code, err)
	}
	return &HostError{Host: host, Kind: kind, StatusCode: code, Err: err}
}

// IsNotFound reports whether upstream confirmed the entity does not exist.
func IsNotFound(err error) bool {
	var he *HostError
	return errors.As(err, &he) && he.Kind == KindNotFound
}

// IsIgnorable reports whether err is a soft provider failure that callers log and skip.
// NotFound is excluded; it drives removal handling instead.
func IsIgnorable(err error) bool {
	var he *HostError
	return errors.As(err, &he) && he.Kind != KindNotFound
}

// ErrInvalidFullName is returned when a repository path is not in 'owner/name' form.
type ErrInvalidFullName struct {
	FullName string
}

func (e *ErrInvalidFullName) Error() string {
	return fmt.Sprintf("invalid repository full name: %q, expected 'owner/name'", e.FullName)
}

// ErrInvalidConfig is returned when a configuration value fails validation.
type ErrInvalidConfig struct {
	Key    string
	Reason string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
}
