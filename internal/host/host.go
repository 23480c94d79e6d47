// internal/host/host.go

// Package host defines the seam between the sync engine and hosting
// providers. Each provider lives in its own subpackage and registers a
// Factory for its kind; the engine only ever sees the Adapter interface and
// the canonical record shapes in package model.
package host

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"forge-sync/internal/model"
)

// MaxRecent bounds a single EnumerateRecent invocation.
const MaxRecent = 1000

// Adapter translates one provider's API into canonical records.
//
// Capabilities a provider cannot serve return errors.ErrUnsupported.
// Upstream failures are reported as *errors.HostError so callers can tell
// NotFound and the ignorable kinds apart from hard failures.
type Adapter interface {
	Kind() string

	// FetchRepository resolves by UUID when set, otherwise by FullName.
	FetchRepository(ctx context.Context, id model.Identifier) (*model.CanonicalRepository, error)
	FetchOwner(ctx context.Context, login string) (*model.CanonicalOwner, error)

	// EnumerateRecent yields full names changed within since, newest first.
	// The sequence stops at the cutoff, at the provider's page limit, or at MaxRecent.
	EnumerateRecent(ctx context.Context, since time.Duration) iter.Seq2[string, error]

	// CrawlPage returns one page of the full enumeration starting after cursor.
	// An empty cursor starts from the beginning.
	CrawlPage(ctx context.Context, cursor string) (Page, error)

	FetchTags(ctx context.Context, fullName string) ([]model.CanonicalTag, error)
	FetchReleases(ctx context.Context, fullName string) ([]model.CanonicalRelease, error)

	// FetchFiles lists the root file names of ref.
	FetchFiles(ctx context.Context, fullName, ref string) ([]string, error)

	OwnerURL(login string) string
	RepositoryURL(fullName string) string
	ArchiveURL(fullName, ref string) string
}

// Page is one step of a full crawl.
type Page struct {
	Names []string
	Next  string
	Done  bool
}

// Options configures an adapter for one Host row.
type Options struct {
	Host       model.Host
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Timeout == 0 {
		o.Timeout = 20 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var names []string
	for name, err := range seq {
		if err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}
