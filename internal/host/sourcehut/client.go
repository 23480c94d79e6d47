// internal/host/sourcehut/client.go

// Package sourcehut adapts git.sr.ht through its GraphQL API. SourceHut offers
// no public repository listing, so enumeration is unsupported.
package sourcehut

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

func init() {
	host.Register(model.KindSourceHut, New)
}

// Client reads git.sr.ht through its GraphQL endpoint.
type Client struct {
	http     *host.Client
	name     string
	webURL   string
	queryURL string
}

// New creates a Client for a SourceHut host.
func New(opts host.Options) (host.Adapter, error) {
	webURL := strings.TrimSuffix(opts.Host.URL, "/")
	if webURL == "" {
		webURL = "https://git.sr.ht"
	}
	headers := map[string]string{}
	if opts.Token != "" {
		headers["Authorization"] = "Bearer " + opts.Token
	}
	return &Client{
		http:     host.NewClient(opts, headers),
		name:     opts.Host.Name,
		webURL:   webURL,
		queryURL: webURL + "/query",
	}, nil
}

func (c *Client) Kind() string { return model.KindSourceHut }

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// query runs a GraphQL request and decodes data into v.
func (c *Client) query(ctx context.Context, q string, vars map[string]any, v any) error {
	var res graphQLResponse
	if _, err := c.http.Post(ctx, c.queryURL, graphQLRequest{Query: q, Variables: vars}, &res); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		msg := res.Errors[0].Message
		if strings.Contains(strings.ToLower(msg), "no rows") || strings.Contains(strings.ToLower(msg), "not found") {
			return custom_errors.NewStatusError(c.name, http.StatusNotFound, fmt.Errorf("graphql: %s", msg))
		}
		return fmt.Errorf("%s: graphql: %s", c.name, msg)
	}
	return json.Unmarshal(res.Data, v)
}

const repositoryFields = `id name description visibility created updated
	HEAD { name }
	owner { canonicalName }`

const repositoryByOwnerQuery = `query($owner: String!, $repo: String!) {
	repositoryByOwner(owner: $owner, repo: $repo) { ` + repositoryFields + ` }
}`

const repositoryByIDQuery = `query($id: Int!) {
	repository(id: $id) { ` + repositoryFields + ` }
}`

func (c *Client) FetchRepository(ctx context.Context, id model.Identifier) (*model.CanonicalRepository, error) {
	var data struct {
		ByOwner *repository `json:"repositoryByOwner"`
		ByID    *repository `json:"repository"`
	}

	if id.UUID != "" {
		numeric, err := strconv.Atoi(id.UUID)
		if err != nil {
			return nil, fmt.Errorf("sourcehut repository id %q: %w", id.UUID, err)
		}
		if err := c.query(ctx, repositoryByIDQuery, map[string]any{"id": numeric}, &data); err != nil {
			return nil, err
		}
	} else {
		owner, name, err := model.SplitFullName(id.FullName)
		if err != nil {
			return nil, err
		}
		vars := map[string]any{"owner": strings.TrimPrefix(owner, "~"), "repo": name}
		if err := c.query(ctx, repositoryByOwnerQuery, vars, &data); err != nil {
			return nil, err
		}
	}

	r := data.ByOwner
	if r == nil {
		r = data.ByID
	}
	if r == nil {
		return nil, custom_errors.NewStatusError(c.name, http.StatusNotFound, nil)
	}
	return r.canonical(), nil
}

const userQuery = `query($username: String!) {
	userByName(username: $username) { id canonicalName username email url location bio }
}`

func (c *Client) FetchOwner(ctx context.Context, login string) (*model.CanonicalOwner, error) {
	var data struct {
		User *user `json:"userByName"`
	}
	if err := c.query(ctx, userQuery, map[string]any{"username": strings.TrimPrefix(login, "~")}, &data); err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, custom_errors.NewStatusError(c.name, http.StatusNotFound, nil)
	}
	return data.User.canonical(), nil
}

func (c *Client) EnumerateRecent(context.Context, time.Duration) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", custom_errors.ErrUnsupported)
	}
}

func (c *Client) CrawlPage(context.Context, string) (host.Page, error) {
	return host.Page{}, custom_errors.ErrUnsupported
}

const referencesQuery = `query($owner: String!, $repo: String!, $cursor: Cursor) {
	repositoryByOwner(owner: $owner, repo: $repo) {
		references(cursor: $cursor) { results { name target } cursor }
	}
}`

// FetchTags pages through git references and keeps refs/tags/*.
func (c *Client) FetchTags(ctx context.Context, fullName string) ([]model.CanonicalTag, error) {
	owner, name, err := model.SplitFullName(fullName)
	if err != nil {
		return nil, err
	}

	var tags []model.CanonicalTag
	var cursor *string
	for {
		var data struct {
			Repository *struct {
				References struct {
					Results []struct {
						Name   string `json:"name"`
						Target string `json:"target"`
					} `json:"results"`
					Cursor *string `json:"cursor"`
				} `json:"references"`
			} `json:"repositoryByOwner"`
		}
		vars := map[string]any{"owner": strings.TrimPrefix(owner, "~"), "repo": name, "cursor": cursor}
		if err := c.query(ctx, referencesQuery, vars, &data); err != nil {
			return nil, err
		}
		if data.Repository == nil {
			return nil, custom_errors.NewStatusError(c.name, http.StatusNotFound, nil)
		}
		for _, ref := range data.Repository.References.Results {
			if tag, ok := strings.CutPrefix(ref.Name, "refs/tags/"); ok {
				tags = append(tags, model.CanonicalTag{Name: tag, SHA: ref.Target, Kind: "commit"})
			}
		}
		cursor = data.Repository.References.Cursor
		if cursor == nil {
			return tags, nil
		}
	}
}

func (c *Client) FetchReleases(context.Context, string) ([]model.CanonicalRelease, error) {
	return nil, custom_errors.ErrUnsupported
}

func (c *Client) FetchFiles(context.Context, string, string) ([]string, error) {
	return nil, custom_errors.ErrUnsupported
}

func (c *Client) OwnerURL(login string) string {
	if !strings.HasPrefix(login, "~") {
		login = "~" + login
	}
	return c.webURL + "/" + login
}

func (c *Client) RepositoryURL(fullName string) string { return c.webURL + "/" + fullName }

func (c *Client) ArchiveURL(fullName, ref string) string {
	return fmt.Sprintf("%s/%s/archive/%s.tar.gz", c.webURL, fullName, ref)
}

type repository struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`
	HEAD        *struct {
		Name string `json:"name"`
	} `json:"HEAD"`
	Owner struct {
		CanonicalName string `json:"canonicalName"`
	} `json:"owner"`
}

func (r repository) canonical() *model.CanonicalRepository {
	c := &model.CanonicalRepository{
		UUID:        strconv.Itoa(r.ID),
		FullName:    r.Owner.CanonicalName + "/" + r.Name,
		Owner:       r.Owner.CanonicalName,
		Description: r.Description,
		Private:     r.Visibility == "PRIVATE",
		CreatedAt:   host.ParseTime(r.Created),
		UpdatedAt:   host.ParseTime(r.Updated),
		PushedAt:    host.ParseTime(r.Updated),
	}
	if r.HEAD != nil {
		c.DefaultBranch = strings.TrimPrefix(r.HEAD.Name, "refs/heads/")
	}
	return c
}

type user struct {
	ID            int    `json:"id"`
	CanonicalName string `json:"canonicalName"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	URL           string `json:"url"`
	Location      string `json:"location"`
	Bio           string `json:"bio"`
}

func (u user) canonical() *model.CanonicalOwner {
	return &model.CanonicalOwner{
		UUID:        strconv.Itoa(u.ID),
		Login:       u.CanonicalName,
		Kind:        model.OwnerKindUser,
		Name:        u.Username,
		Description: u.Bio,
		Email:       u.Email,
		Website:     u.URL,
		Location:    u.Location,
	}
}
