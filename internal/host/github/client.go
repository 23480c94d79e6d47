// internal/host/github/client.go
package github

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

const (
	perPage = 100

	// The public events feed is capped at 300 entries.
	maxEventPages = 3

	// maxRateLimitWait is the longest the client sleeps for a rate-limit reset
	// before giving up and reporting the request as rate limited.
	maxRateLimitWait = 5 * time.Second
)

func init() {
	host.Register(model.KindGitHub, New)
}

// Client is a wrapper around the go-github client.
type Client struct {
	gh         *github.Client
	name       string
	webURL     string
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

// New creates a Client for a GitHub or GitHub Enterprise host.
// A non-empty token is used to create an authenticated http.Client.
func New(opts host.Options) (host.Adapter, error) {
	hc := opts.HTTPClient
	if opts.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		hc = oauth2.NewClient(ctx, ts)
	}

	gh := github.NewClient(hc)
	webURL := strings.TrimSuffix(opts.Host.URL, "/")
	if webURL == "" {
		webURL = "https://github.com"
	}
	if u, err := url.Parse(webURL); err == nil && u.Host != "github.com" {
		var err error
		if gh, err = gh.WithEnterpriseURLs(webURL, webURL); err != nil {
			return nil, fmt.Errorf("configuring enterprise urls for %s: %w", opts.Host.Name, err)
		}
	}

	return &Client{
		gh:         gh,
		name:       opts.Host.Name,
		webURL:     webURL,
		logger:     opts.Logger,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}, nil
}

func (c *Client) Kind() string { return model.KindGitHub }

// FetchRepository fetches repository details and translates them to the canonical shape.
func (c *Client) FetchRepository(ctx context.Context, id model.Identifier) (*model.CanonicalRepository, error) {
	var repo *github.Repository
	err := c.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		if id.UUID != "" {
			numeric, perr := strconv.ParseInt(id.UUID, 10, 64)
			if perr != nil {
				return nil, fmt.Errorf("github repository id %q: %w", id.UUID, perr)
			}
			repo, resp, err = c.gh.Repositories.GetByID(ctx, numeric)
			return resp, err
		}
		owner, name, serr := model.SplitFullName(id.FullName)
		if serr != nil {
			return nil, serr
		}
		repo, resp, err = c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return toCanonicalRepository(repo), nil
}

func (c *Client) FetchOwner(ctx context.Context, login string) (*model.CanonicalOwner, error) {
	var user *github.User
	err := c.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		user, resp, err = c.gh.Users.Get(ctx, login)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return toCanonicalOwner(user), nil
}

// EnumerateRecent walks the public events feed, which is the only
// change-ordered listing GitHub offers.
func (c *Client) EnumerateRecent(ctx context.Context, since time.Duration) iter.Seq2[string, error] {
	cutoff := host.Cutoff(since)
	return func(yield func(string, error) bool) {
		seen := make(map[string]struct{})
		opts := &github.ListOptions{PerPage: perPage}
		for page := 1; page <= maxEventPages; page++ {
			opts.Page = page
			c.logger.Debug("Fetching events page", "host", c.name, "page", page)

			var events []*github.Event
			var resp *github.Response
			err := c.call(ctx, func() (*github.Response, error) {
				var err error
				events, resp, err = c.gh.Activity.ListEvents(ctx, opts)
				return resp, err
			})
			if err != nil {
				yield("", err)
				return
			}

			for _, e := range events {
				if e.GetCreatedAt().Time.Before(cutoff) {
					return
				}
				name := e.GetRepo().GetName()
				if _, dup := seen[strings.ToLower(name)]; dup || name == "" {
					continue
				}
				seen[strings.ToLower(name)] = struct{}{}
				if !yield(name, nil) || len(seen) >= host.MaxRecent {
					return
				}
			}
			if resp == nil || resp.NextPage == 0 {
				return
			}
		}
	}
}

// CrawlPage lists all public repositories in id order. The cursor is the last seen id.
func (c *Client) CrawlPage(ctx context.Context, cursor string) (host.Page, error) {
	var since int64
	if cursor != "" {
		var err error
		if since, err = strconv.ParseInt(cursor, 10, 64); err != nil {
			return host.Page{}, fmt.Errorf("github crawl cursor %q: %w", cursor, err)
		}
	}

	var repos []*github.Repository
	err := c.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		repos, resp, err = c.gh.Repositories.ListAll(ctx, &github.RepositoryListAllOptions{Since: since})
		return resp, err
	})
	if err != nil {
		return host.Page{}, err
	}
	if len(repos) == 0 {
		return host.Page{Next: cursor, Done: true}, nil
	}

	page := host.Page{Names: make([]string, 0, len(repos))}
	for _, r := range repos {
		page.Names = append(page.Names, r.GetFullName())
	}
	page.Next = strconv.FormatInt(repos[len(repos)-1].GetID(), 10)
	return page, nil
}

// FetchTags fetches all tags. It handles API pagination transparently.
func (c *Client) FetchTags(ctx context.Context, fullName string) ([]model.CanonicalTag, error) {
	owner, name, err := model.SplitFullName(fullName)
	if err != nil {
		return nil, err
	}

	var tags []model.CanonicalTag
	opts := &github.ListOptions{PerPage: perPage}
	for {
		var page []*github.RepositoryTag
		var resp *github.Response
		err := c.call(ctx, func() (*github.Response, error) {
			var err error
			page, resp, err = c.gh.Repositories.ListTags(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			tags = append(tags, model.CanonicalTag{Name: t.GetName(), SHA: t.GetCommit().GetSHA(), Kind: "commit"})
		}
		if resp.NextPage == 0 {
			return tags, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) FetchReleases(ctx context.Context, fullName string) ([]model.CanonicalRelease, error) {
	owner, name, err := model.SplitFullName(fullName)
	if err != nil {
		return nil, err
	}

	var releases []model.CanonicalRelease
	opts := &github.ListOptions{PerPage: perPage}
	for {
		var page []*github.RepositoryRelease
		var resp *github.Response
		err := c.call(ctx, func() (*github.Response, error) {
			var err error
			page, resp, err = c.gh.Repositories.ListReleases(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			releases = append(releases, toCanonicalRelease(r))
		}
		if resp.NextPage == 0 {
			return releases, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) FetchFiles(ctx context.Context, fullName, ref string) ([]string, error) {
	owner, name, err := model.SplitFullName(fullName)
	if err != nil {
		return nil, err
	}

	var entries []*github.RepositoryContent
	err = c.call(ctx, func() (*github.Response, error) {
		var resp *github.Response
		var err error
		_, entries, resp, err = c.gh.Repositories.GetContents(ctx, owner, name, "", &github.RepositoryContentGetOptions{Ref: ref})
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.GetType() == "file" {
			names = append(names, e.GetName())
		}
	}
	return names, nil
}

func (c *Client) OwnerURL(login string) string { return c.webURL + "/" + login }

func (c *Client) RepositoryURL(fullName string) string { return c.webURL + "/" + fullName }

func (c *Client) ArchiveURL(fullName, ref string) string {
	return c.webURL + "/" + fullName + "/archive/" + url.PathEscape(ref) + ".zip"
}

// call runs fn, retrying server errors and short rate-limit waits, and
// classifies the final error.
func (c *Client) call(ctx context.Context, fn func() (*github.Response, error)) error {
	delay := c.retryDelay
	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		_, err = fn()
		if err == nil {
			return nil
		}

		var wait time.Duration
		var rle *github.RateLimitError
		var er *github.ErrorResponse
		switch {
		case errors.As(err, &rle):
			wait = time.Until(rle.Rate.Reset.Time)
			if wait > maxRateLimitWait {
				return c.classify(err)
			}
			c.logger.Warn("Rate limit hit, waiting for reset", "host", c.name, "wait", wait)
		case errors.As(err, &er) && er.Response != nil && er.Response.StatusCode >= 500:
			wait = delay
			delay *= 2
			c.logger.Debug("Retrying after server error", "host", c.name, "attempt", attempt, "status", er.Response.StatusCode)
		default:
			return c.classify(err)
		}

		if attempt == c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(max(wait, 0)):
		}
	}
	return c.classify(err)
}

// classify maps go-github errors onto HostError kinds.
func (c *Client) classify(err error) error {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return &custom_errors.HostError{Host: c.name, Kind: custom_errors.KindRateLimited, StatusCode: statusOf(rle.Response), Err: err}
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return &custom_errors.HostError{Host: c.name, Kind: custom_errors.KindRateLimited, StatusCode: statusOf(abuse.Response), Err: err}
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return custom_errors.NewStatusError(c.name, er.Response.StatusCode, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &custom_errors.HostError{Host: c.name, Kind: custom_errors.KindTimeout, Err: err}
	}
	return err
}
