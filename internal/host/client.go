// internal/host/client.go
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	custom_errors "forge-sync/internal/errors"
)

var errTooManyRedirects = errors.New("stopped after 10 redirects")

// Client is the JSON-over-HTTP transport shared by the REST and GraphQL adapters.
// It applies default headers, maps statuses to *errors.HostError and retries
// server errors with a doubling delay.
type Client struct {
	name       string
	http       *http.Client
	headers    map[string]string
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewClient builds a Client from adapter options. headers are sent on every request.
func NewClient(opts Options, headers map[string]string) *Client {
	opts = opts.withDefaults()
	hc := *opts.HTTPClient
	hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errTooManyRedirects
		}
		return nil
	}
	return &Client{
		name:       opts.Host.Name,
		http:       &hc,
		headers:    headers,
		logger:     opts.Logger,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// Get decodes the JSON body of url into v and returns the response headers.
func (c *Client) Get(ctx context.Context, url string, v any) (http.Header, error) {
	return c.do(ctx, http.MethodGet, url, nil, v)
}

// Post sends body as JSON and decodes the response into v.
func (c *Client) Post(ctx context.Context, url string, body, v any) (http.Header, error) {
	return c.do(ctx, http.MethodPost, url, body, v)
}

// Head returns the status code of a HEAD request. Transport failures are errors;
// statuses are not.
func (c *Client) Head(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	c.applyHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, c.transportError(err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, v any) (http.Header, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}

	var header http.Header
	delay := c.retryDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		header, lastErr = c.attempt(ctx, method, url, payload, v)
		if lastErr == nil || !retryable(lastErr) {
			return header, lastErr
		}
		if attempt == c.maxRetries {
			break
		}
		c.logger.Debug("Retrying upstream request", "host", c.name, "url", url, "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, v any) (http.Header, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		var cause error
		if len(snippet) > 0 {
			cause = errors.New(string(bytes.TrimSpace(snippet)))
		}
		return nil, custom_errors.NewStatusError(c.name, resp.StatusCode, cause)
	}
	if v == nil {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return nil, fmt.Errorf("%s: decoding %s: %w", c.name, url, err)
	}
	return resp.Header, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

func (c *Client) transportError(err error) error {
	if errors.Is(err, errTooManyRedirects) {
		return &custom_errors.HostError{Host: c.name, Kind: custom_errors.KindTooManyRedirects, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &custom_errors.HostError{Host: c.name, Kind: custom_errors.KindTimeout, Err: err}
	}
	return fmt.Errorf("%s: %w", c.name, err)
}

func retryable(err error) bool {
	var he *custom_errors.HostError
	return errors.As(err, &he) && he.Kind == custom_errors.KindServerError
}
