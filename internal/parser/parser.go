// internal/parser/parser.go

// Package parser talks to the external dependency-parsing service. A parse is
// an asynchronous job: Submit hands it a source-archive URL and Poll reports
// the job's status and, once complete, its manifests.
package parser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

// Job statuses reported by the service.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusError    = "error"
)

// ErrNotConfigured is returned when no service URL was configured.
var ErrNotConfigured = errors.New("dependency parser is not configured")

// Result is the state of one parse job.
type Result struct {
	ID        string
	Status    string
	Error     string
	Manifests []model.Manifest
}

type jobResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Error   string `json:"error"`
	Results struct {
		Manifests []manifestResponse `json:"manifests"`
	} `json:"results"`
}

type manifestResponse struct {
	Ecosystem    string               `json:"ecosystem"`
	Filepath     string               `json:"filepath"`
	Kind         string               `json:"kind"`
	Dependencies []dependencyResponse `json:"dependencies"`
}

type dependencyResponse struct {
	PackageName string `json:"package_name"`
	Ecosystem   string `json:"ecosystem"`
	Requirement string `json:"requirement"`
	Type        string `json:"type"`
}

// Client is the parsing-service client.
type Client struct {
	baseURL string
	http    *host.Client
}

// NewClient returns a client for the service at baseURL, sharing the
// adapters' transport settings. An empty baseURL yields a client whose calls
// fail with ErrNotConfigured.
func NewClient(baseURL string, opts host.Options) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	opts.Host = model.Host{Name: "parser", URL: baseURL}
	return &Client{baseURL: baseURL, http: host.NewClient(opts, nil)}
}

// Submit starts parsing the archive at archiveURL and returns the job id.
func (c *Client) Submit(ctx context.Context, archiveURL string) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}
	endpoint := c.baseURL + "/api/v1/jobs?url=" + url.QueryEscape(archiveURL)
	var resp jobResponse
	if _, err := c.http.Post(ctx, endpoint, nil, &resp); err != nil {
		return "", fmt.Errorf("submit parse job: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("submit parse job: response carried no job id")
	}
	return resp.ID, nil
}

// Poll fetches the state of a parse job.
func (c *Client) Poll(ctx context.Context, jobID string) (*Result, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	var resp jobResponse
	if _, err := c.http.Get(ctx, c.baseURL+"/api/v1/jobs/"+url.PathEscape(jobID), &resp); err != nil {
		return nil, fmt.Errorf("poll parse job %s: %w", jobID, err)
	}

	result := &Result{ID: jobID, Status: resp.Status, Error: resp.Error}
	if result.Status == "" {
		result.Status = StatusPending
	}
	for _, m := range resp.Results.Manifests {
		manifest := model.Manifest{Ecosystem: m.Ecosystem, Filepath: m.Filepath, Kind: m.Kind}
		for _, d := range m.Dependencies {
			if d.PackageName == "" {
				continue
			}
			manifest.Dependencies = append(manifest.Dependencies, model.Dependency{
				PackageName:  d.PackageName,
				Ecosystem:    d.Ecosystem,
				Requirements: d.Requirement,
				Kind:         d.Type,
			})
		}
		result.Manifests = append(result.Manifests, manifest)
	}
	return result, nil
}
