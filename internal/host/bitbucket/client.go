// internal/host/bitbucket/client.go
package bitbucket

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

const perPage = 100

func init() {
	host.Register(model.KindBitbucket, New)
}

// Client speaks the Bitbucket Cloud 2.0 API. Bitbucket exposes no owner
// profiles and no change-ordered listing, so those capabilities are unsupported.
type Client struct {
	http   *host.Client
	webURL string
	apiURL string
}

// New creates a Client for Bitbucket Cloud.
func New(opts host.Options) (host.Adapter, error) {
	webURL := strings.TrimSuffix(opts.Host.URL, "/")
	if webURL == "" {
		webURL = "https://bitbucket.org"
	}
	apiURL := webURL + "/2.0"
	if u, err := url.Parse(webURL); err == nil && u.Host == "bitbucket.org" {
		apiURL = "https://api.bitbucket.org/2.0"
	}

	headers := map[string]string{}
	if opts.Token != "" {
		headers["Authorization"] = "Bearer " + opts.Token
	}
	return &Client{
		http:   host.NewClient(opts, headers),
		webURL: webURL,
		apiURL: apiURL,
	}, nil
}

func (c *Client) Kind() string { return model.KindBitbucket }

func (c *Client) repoPath(fullName string) (string, error) {
	workspace, slug, err := model.SplitFullName(fullName)
	if err != nil {
		return "", err
	}
	return c.apiURL + "/repositories/" + url.PathEscape(workspace) + "/" + url.PathEscape(slug), nil
}

// FetchRepository resolves by name only; Bitbucket UUIDs are not addressable
// without the workspace.
func (c *Client) FetchRepository(ctx context.Context, id model.Identifier) (*model.CanonicalRepository, error) {
	if id.FullName == "" {
		return nil, custom_errors.ErrUnsupported
	}
	u, err := c.repoPath(id.FullName)
	if err != nil {
		return nil, err
	}

	var r repository
	if _, err := c.http.Get(ctx, u, &r); err != nil {
		return nil, err
	}
	return r.canonical(), nil
}

func (c *Client) FetchOwner(context.Context, string) (*model.CanonicalOwner, error) {
	return nil, custom_errors.ErrUnsupported
}

func (c *Client) EnumerateRecent(context.Context, time.Duration) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", custom_errors.ErrUnsupported)
	}
}

// CrawlPage walks /repositories by creation time. The cursor is the "after"
// value of the previous page's next link.
func (c *Client) CrawlPage(ctx context.Context, cursor string) (host.Page, error) {
	u := fmt.Sprintf("%s/repositories?pagelen=%d", c.apiURL, perPage)
	if cursor != "" {
		u += "&after=" + url.QueryEscape(cursor)
	}

	var res paginated[repository]
	if _, err := c.http.Get(ctx, u, &res); err != nil {
		return host.Page{}, err
	}

	page := host.Page{Names: make([]string, 0, len(res.Values)), Next: cursor}
	for _, r := range res.Values {
		page.Names = append(page.Names, r.FullName)
	}
	if res.Next == "" {
		page.Done = true
		return page, nil
	}
	next, err := url.Parse(res.Next)
	if err != nil {
		return host.Page{}, fmt.Errorf("bitbucket next link %q: %w", res.Next, err)
	}
	page.Next = next.Query().Get("after")
	return page, nil
}

func (c *Client) FetchTags(ctx context.Context, fullName string) ([]model.CanonicalTag, error) {
	base, err := c.repoPath(fullName)
	if err != nil {
		return nil, err
	}

	var tags []model.CanonicalTag
	next := fmt.Sprintf("%s/refs/tags?pagelen=%d", base, perPage)
	for next != "" {
		var res paginated[ref]
		if _, err := c.http.Get(ctx, next, &res); err != nil {
			return nil, err
		}
		for _, t := range res.Values {
			tags = append(tags, model.CanonicalTag{
				Name:        t.Name,
				SHA:         t.Target.Hash,
				Kind:        "commit",
				PublishedAt: host.ParseTime(t.Target.Date),
			})
		}
		next = res.Next
	}
	return tags, nil
}

func (c *Client) FetchReleases(context.Context, string) ([]model.CanonicalRelease, error) {
	return nil, custom_errors.ErrUnsupported
}

func (c *Client) FetchFiles(ctx context.Context, fullName, revision string) ([]string, error) {
	base, err := c.repoPath(fullName)
	if err != nil {
		return nil, err
	}

	var res paginated[srcEntry]
	if _, err := c.http.Get(ctx, base+"/src/"+url.PathEscape(revision)+"/?pagelen=100", &res); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Values))
	for _, e := range res.Values {
		if e.Type == "commit_file" {
			names = append(names, e.Path)
		}
	}
	return names, nil
}

func (c *Client) OwnerURL(login string) string { return c.webURL + "/" + login + "/" }

func (c *Client) RepositoryURL(fullName string) string { return c.webURL + "/" + fullName }

func (c *Client) ArchiveURL(fullName, revision string) string {
	return c.webURL + "/" + fullName + "/get/" + url.PathEscape(revision) + ".zip"
}
