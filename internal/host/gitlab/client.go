// internal/host/gitlab/client.go
package gitlab

import (
	"context"
	"errors"
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
	perPage = 100

	// GitLab caps offset pagination, so recent enumeration stops here.
	maxRecentPages = 10
)

func init() {
	host.Register(model.KindGitLab, New)
}

// Client speaks the GitLab v4 REST API.
type Client struct {
	http   *host.Client
	name   string
	webURL string
	apiURL string
	logger *slog.Logger
}

// New creates a Client for gitlab.com or a self-managed instance.
func New(opts host.Options) (host.Adapter, error) {
	webURL := strings.TrimSuffix(opts.Host.URL, "/")
	if webURL == "" {
		return nil, fmt.Errorf("gitlab host %s has no url", opts.Host.Name)
	}
	headers := map[string]string{}
	if opts.Token != "" {
		headers["PRIVATE-TOKEN"] = opts.Token
	}
	return &Client{
		http:   host.NewClient(opts, headers),
		name:   opts.Host.Name,
		webURL: webURL,
		apiURL: webURL + "/api/v4",
		logger: opts.Logger,
	}, nil
}

func (c *Client) Kind() string { return model.KindGitLab }

// projectPath addresses a project by numeric id or URL-encoded namespace path.
func projectPath(idOrPath string) string {
	return "/projects/" + url.PathEscape(idOrPath)
}

func (c *Client) FetchRepository(ctx context.Context, id model.Identifier) (*model.CanonicalRepository, error) {
	key := id.UUID
	if key == "" {
		if _, _, err := model.SplitFullName(id.FullName); err != nil {
			return nil, err
		}
		key = id.FullName
	}

	var p project
	if _, err := c.http.Get(ctx, c.apiURL+projectPath(key)+"?license=true", &p); err != nil {
		return nil, err
	}
	return p.canonical(), nil
}

// FetchOwner resolves users first and falls back to groups.
func (c *Client) FetchOwner(ctx context.Context, login string) (*model.CanonicalOwner, error) {
	var users []user
	if _, err := c.http.Get(ctx, c.apiURL+"/users?username="+url.QueryEscape(login), &users); err != nil {
		return nil, err
	}
	if len(users) > 0 {
		return users[0].canonical(), nil
	}

	var g group
	if _, err := c.http.Get(ctx, c.apiURL+"/groups/"+url.PathEscape(login)+"?with_projects=false", &g); err != nil {
		return nil, err
	}
	return g.canonical(), nil
}

func (c *Client) EnumerateRecent(ctx context.Context, since time.Duration) iter.Seq2[string, error] {
	cutoff := host.Cutoff(since)
	return func(yield func(string, error) bool) {
		count := 0
		for page := 1; page <= maxRecentPages; page++ {
			var projects []project
			u := fmt.Sprintf("%s/projects?order_by=last_activity_at&sort=desc&simple=true&per_page=%d&page=%d", c.apiURL, perPage, page)
			if _, err := c.http.Get(ctx, u, &projects); err != nil {
				yield("", err)
				return
			}
			for _, p := range projects {
				if at := host.ParseTime(p.LastActivityAt); at != nil && at.Before(cutoff) {
					return
				}
				count++
				if !yield(p.PathWithNamespace, nil) || count >= host.MaxRecent {
					return
				}
			}
			if len(projects) < perPage {
				return
			}
		}
	}
}

// CrawlPage uses keyset pagination ordered by id. The cursor is the last seen id.
func (c *Client) CrawlPage(ctx context.Context, cursor string) (host.Page, error) {
	if cursor == "" {
		cursor = "0"
	}
	if _, err := strconv.ParseInt(cursor, 10, 64); err != nil {
		return host.Page{}, fmt.Errorf("gitlab crawl cursor %q: %w", cursor, err)
	}

	var projects []project
	u := fmt.Sprintf("%s/projects?order_by=id&sort=asc&simple=true&per_page=%d&id_after=%s", c.apiURL, perPage, cursor)
	if _, err := c.http.Get(ctx, u, &projects); err != nil {
		return host.Page{}, err
	}
	if len(projects) == 0 {
		return host.Page{Next: cursor, Done: true}, nil
	}

	page := host.Page{Names: make([]string, 0, len(projects))}
	for _, p := range projects {
		page.Names = append(page.Names, p.PathWithNamespace)
	}
	page.Next = strconv.FormatInt(projects[len(projects)-1].ID, 10)
	return page, nil
}

func (c *Client) FetchTags(ctx context.Context, fullName string) ([]model.CanonicalTag, error) {
	var tags []model.CanonicalTag
	next := fmt.Sprintf("%s%s/repository/tags?per_page=%d", c.apiURL, projectPath(fullName), perPage)
	for next != "" {
		var page []tag
		header, err := c.http.Get(ctx, next, &page)
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			tags = append(tags, model.CanonicalTag{
				Name:        t.Name,
				SHA:         t.Commit.ID,
				Kind:        "commit",
				PublishedAt: host.ParseTime(t.Commit.CreatedAt),
			})
		}
		next = host.NextLink(header)
	}
	return tags, nil
}

func (c *Client) FetchReleases(ctx context.Context, fullName string) ([]model.CanonicalRelease, error) {
	var releases []model.CanonicalRelease
	next := fmt.Sprintf("%s%s/releases?per_page=%d", c.apiURL, projectPath(fullName), perPage)
	for next != "" {
		var page []release
		header, err := c.http.Get(ctx, next, &page)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			releases = append(releases, model.CanonicalRelease{
				TagName:     r.TagName,
				Name:        r.Name,
				Body:        r.Description,
				Prerelease:  r.UpcomingRelease,
				PublishedAt: host.ParseTime(r.ReleasedAt),
				CreatedAt:   host.ParseTime(r.CreatedAt),
				AuthorLogin: r.Author.Username,
			})
		}
		next = host.NextLink(header)
	}
	return releases, nil
}

func (c *Client) FetchFiles(ctx context.Context, fullName, ref string) ([]string, error) {
	var entries []treeEntry
	u := fmt.Sprintf("%s%s/repository/tree?per_page=%d&ref=%s", c.apiURL, projectPath(fullName), perPage, url.QueryEscape(ref))
	if _, err := c.http.Get(ctx, u, &entries); err != nil {
		var he *custom_errors.HostError
		if errors.As(err, &he) && he.Kind == custom_errors.KindNotFound {
			// Empty repositories have no tree.
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type == "blob" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

func (c *Client) OwnerURL(login string) string { return c.webURL + "/" + login }

func (c *Client) RepositoryURL(fullName string) string { return c.webURL + "/" + fullName }

func (c *Client) ArchiveURL(fullName, ref string) string {
	_, name, _ := model.SplitFullName(fullName)
	return fmt.Sprintf("%s/%s/-/archive/%s/%s-%s.zip", c.webURL, fullName, ref, name, ref)
}
