// internal/errors/errors_test.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStatusError(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		notFound  bool
		ignorable bool
	}{
		{"not found", http.StatusNotFound, true, false},
		{"gone", http.StatusGone, true, false},
		{"forbidden", http.StatusForbidden, false, true},
		{"rate limited", http.StatusTooManyRequests, false, true},
		{"server error", http.StatusBadGateway, false, true},
		{"legal", http.StatusUnavailableForLegalReasons, false, true},
		{"bad request", http.StatusBadRequest, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewStatusError("github.com", tc.status, nil)
			wrapped := fmt.Errorf("fetch repository: %w", err)

			assert.Equal(t, tc.notFound, IsNotFound(wrapped))
			assert.Equal(t, tc.ignorable, IsIgnorable(wrapped))
		})
	}
}

func TestHostError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &HostError{Host: "gitlab.com", Kind: KindServerError, StatusCode: 502, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "gitlab.com")
	assert.Contains(t, err.Error(), string(KindServerError))
}

func TestErrInvalidFullName(t *testing.T) {
	err := &ErrInvalidFullName{FullName: "no-slash"}
	assert.Equal(t, `invalid repository full name: "no-slash", expected 'owner/name'`, err.Error())
}
