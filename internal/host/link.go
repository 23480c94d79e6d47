// internal/host/link.go
package host

import (
	"net/http"
	"strings"
	"time"
)

// NextLink returns the rel="next" target of an RFC 8288 Link header, or "".
func NextLink(h http.Header) string {
	for _, part := range strings.Split(h.Get("Link"), ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, attr := range segments[1:] {
			if strings.ReplaceAll(strings.TrimSpace(attr), " ", "") == `rel="next"` {
				return target
			}
		}
	}
	return ""
}

// Cutoff converts an EnumerateRecent window into an absolute time.
func Cutoff(since time.Duration) time.Time {
	return time.Now().Add(-since)
}

// TimePtr returns nil for the zero time.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

// ParseTime parses an RFC 3339 timestamp, returning nil when s is empty or malformed.
func ParseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return TimePtr(t)
}
