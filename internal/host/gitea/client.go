// internal/host/gitea/client.go

// Package gitea adapts Gitea and Forgejo instances, which share the v1 API.
package gitea

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

const (
	perPage        = 50
	maxRecentPages = 20
)

func init() {
	host.Register(model.KindGitea, New)
	host.Register(model.KindForgejo, New)
}

// Client speaks the Gitea v1 API, which Forgejo serves unchanged.
type Client struct {
	http   *host.Client
	kind   string
	webURL string
	apiURL string
	logger *slog.Logger
}

// New creates a Client for a Gitea or Forgejo host.
func New(opts host.Options) (host.Adapter, error) {
	webURL := strings.TrimSuffix(opts.Host.URL, "/")
	if webURL == "" {
		return nil, fmt.Errorf("gitea host %s has no url", opts.Host.Name)
	}
	headers := map[string]string{}
	if opts.Token != "" {
		headers["Authorization"] = "token " + opts.Token
	}
	kind := opts.Host.Kind
	if kind == "" {
		kind = model.KindGitea
	}
	return &Client{
		http:   host.NewClient(opts, headers),
		kind:   kind,
		webURL: webURL,
		apiURL: webURL + "/api/v1",
		logger: opts.Logger,
	}, nil
}

func (c *Client) Kind() string { return c.kind }

func (c *Client) repoPath(fullName string) (string, error) {
	owner, name, err := model.SplitFullName(fullName)
	if err != nil {
		return "", err
	}
	return c.apiURL + "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name), nil
}

func (c *Client) FetchRepository(ctx context.Context, id model.Identifier) (*model.CanonicalRepository, error) {
	var u string
	if id.UUID != "" {
		u = c.apiURL + "/repositories/" + url.PathEscape(id.UUID)
	} else {
		var err error
		if u, err = c.repoPath(id.FullName); err != nil {
			return nil, err
		}
	}

	var r repository
	if _, err := c.http.Get(ctx, u, &r); err != nil {
		return nil, err
	}
	return r.canonical(), nil
}

// FetchOwner tries the organization endpoint when no user matches.
func (c *Client) FetchOwner(ctx context.Context, login string) (*model.CanonicalOwner, error) {
	var u user
	_, err := c.http.Get(ctx, c.apiURL+"/users/"+url.PathEscape(login), &u)
	if err == nil {
		return u.canonical(), nil
	}
	if !custom_errors.IsNotFound(err) {
		return nil, err
	}

	var o organization
	if _, err := c.http.Get(ctx, c.apiURL+"/orgs/"+url.PathEscape(login), &o); err != nil {
		return nil, err
	}
	return o.canonical(), nil
}

func (c *Client) EnumerateRecent(ctx context.Context, since time.Duration) iter.Seq2[string, error] {
	cutoff := host.Cutoff(since)
	return func(yield func(string, error) bool) {
		count := 0
		for page := 1; page <= maxRecentPages; page++ {
			repos, err := c.search(ctx, "updated", "desc", page)
			if err != nil {
				yield("", err)
				return
			}
			for _, r := range repos {
				if at := host.ParseTime(r.UpdatedAt); at != nil && at.Before(cutoff) {
					return
				}
				count++
				if !yield(r.FullName, nil) || count >= host.MaxRecent {
					return
				}
			}
			if len(repos) < perPage {
				return
			}
		}
	}
}

// CrawlPage walks the search listing in id order. The cursor is the next page number.
func (c *Client) CrawlPage(ctx context.Context, cursor string) (host.Page, error) {
	page := 1
	if cursor != "" {
		var err error
		if page, err = strconv.Atoi(cursor); err != nil || page < 1 {
			return host.Page{}, fmt.Errorf("gitea crawl cursor %q: invalid page", cursor)
		}
	}

	repos, err := c.search(ctx, "id", "asc", page)
	if err != nil {
		return host.Page{}, err
	}
	if len(repos) == 0 {
		return host.Page{Next: strconv.Itoa(page), Done: true}, nil
	}

	p := host.Page{Names: make([]string, 0, len(repos)), Next: strconv.Itoa(page + 1)}
	for _, r := range repos {
		p.Names = append(p.Names, r.FullName)
	}
	return p, nil
}

func (c *Client) search(ctx context.Context, sort, order string, page int) ([]repository, error) {
	var res searchResult
	u := fmt.Sprintf("%s/repos/search?sort=%s&order=%s&limit=%d&page=%d", c.apiURL, sort, order, perPage, page)
	if _, err := c.http.Get(ctx, u, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (c *Client) FetchTags(ctx context.Context, fullName string) ([]model.CanonicalTag, error) {
	base, err := c.repoPath(fullName)
	if err != nil {
		return nil, err
	}

	var tags []model.CanonicalTag
	next := fmt.Sprintf("%s/tags?limit=%d", base, perPage)
	for next != "" {
		var page []tag
		header, err := c.http.Get(ctx, next, &page)
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			tags = append(tags, model.CanonicalTag{
				Name:        t.Name,
				SHA:         t.Commit.SHA,
				Kind:        "commit",
				PublishedAt: host.ParseTime(t.Commit.Created),
			})
		}
		next = host.NextLink(header)
	}
	return tags, nil
}

func (c *Client) FetchReleases(ctx context.Context, fullName string) ([]model.CanonicalRelease, error) {
	base, err := c.repoPath(fullName)
	if err != nil {
		return nil, err
	}

	var releases []model.CanonicalRelease
	next := fmt.Sprintf("%s/releases?limit=%d", base, perPage)
	for next != "" {
		var page []release
		header, err := c.http.Get(ctx, next, &page)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			releases = append(releases, r.canonical())
		}
		next = host.NextLink(header)
	}
	return releases, nil
}

func (c *Client) FetchFiles(ctx context.Context, fullName, ref string) ([]string, error) {
	base, err := c.repoPath(fullName)
	if err != nil {
		return nil, err
	}

	var entries []contentEntry
	if _, err := c.http.Get(ctx, base+"/contents?ref="+url.QueryEscape(ref), &entries); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type == "file" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

func (c *Client) OwnerURL(login string) string { return c.webURL + "/" + login }

func (c *Client) RepositoryURL(fullName string) string { return c.webURL + "/" + fullName }

func (c *Client) ArchiveURL(fullName, ref string) string {
	return c.webURL + "/" + fullName + "/archive/" + url.PathEscape(ref) + ".zip"
}
