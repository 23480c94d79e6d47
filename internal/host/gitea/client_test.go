// internal/host/gitea/client_test.go
package gitea

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

const forgejoRepo = `{
	"id": 1,
	"full_name": "forgejo/forgejo",
	"owner": {"login": "forgejo"},
	"description": "Beyond coding. We forge.",
	"website": "https://forgejo.org",
	"default_branch": "forgejo",
	"topics": ["git", "forge"],
	"licenses": ["GPL-3.0-or-later"],
	"fork": false,
	"stars_count": 2400,
	"forks_count": 500,
	"watchers_count": 90,
	"has_issues": true,
	"created_at": "2022-11-13T11:00:00+01:00",
	"updated_at": "2024-06-01T09:30:00+02:00"
}`

func setupTestClient(t *testing.T, kind string, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := host.New(
		model.Host{Name: "codeberg.org", Kind: kind, URL: server.URL},
		host.Options{HTTPClient: server.Client(), Token: "secret", RetryDelay: time.Millisecond},
	)
	require.NoError(t, err)
	return adapter.(*Client)
}

func TestClient_FetchRepository(t *testing.T) {
	client := setupTestClient(t, model.KindForgejo, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repos/forgejo/forgejo", r.URL.Path)
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))
		fmt.Fprintln(w, forgejoRepo)
	}))

	repo, err := client.FetchRepository(context.Background(), model.Identifier{FullName: "forgejo/forgejo"})

	require.NoError(t, err)
	assert.Equal(t, model.KindForgejo, client.Kind())
	assert.Equal(t, "1", repo.UUID)
	assert.Equal(t, "forgejo/forgejo", repo.FullName)
	assert.Equal(t, "forgejo", repo.Owner)
	assert.False(t, repo.Fork)
	assert.Equal(t, "GPL-3.0-or-later", repo.License)
	assert.Equal(t, 90, repo.SubscribersCount)
	require.NotNil(t, repo.UpdatedAt)
	assert.Equal(t, 7, repo.UpdatedAt.Hour(), "timestamps are normalized to UTC")
}

func TestClient_FetchRepositoryByID(t *testing.T) {
	client := setupTestClient(t, model.KindGitea, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repositories/1", r.URL.Path)
		fmt.Fprintln(w, forgejoRepo)
	}))

	repo, err := client.FetchRepository(context.Background(), model.Identifier{UUID: "1"})

	require.NoError(t, err)
	assert.Equal(t, "forgejo/forgejo", repo.FullName)
}

func TestClient_FetchOwnerFallsBackToOrg(t *testing.T) {
	client := setupTestClient(t, model.KindGitea, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/orgs/forgejo":
			fmt.Fprintln(w, `{"id": 7, "name": "forgejo", "full_name": "Forgejo", "website": "https://forgejo.org"}`)
		default:
			http.NotFound(w, r)
		}
	}))

	owner, err := client.FetchOwner(context.Background(), "forgejo")

	require.NoError(t, err)
	assert.Equal(t, model.OwnerKindOrganization, owner.Kind)
	assert.Equal(t, "Forgejo", owner.Name)
}

func TestClient_FetchOwnerForbiddenIsNotRetriedAsOrg(t *testing.T) {
	calls := 0
	client := setupTestClient(t, model.KindGitea, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.FetchOwner(context.Background(), "someone")

	assert.True(t, custom_errors.IsIgnorable(err))
	assert.Equal(t, 1, calls)
}

func TestClient_CrawlPage(t *testing.T) {
	client := setupTestClient(t, model.KindGitea, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repos/search", r.URL.Path)
		assert.Equal(t, "id", r.URL.Query().Get("sort"))
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprintln(w, `{"ok": true, "data": [{"id": 1, "full_name": "a/b"}]}`)
			return
		}
		fmt.Fprintln(w, `{"ok": true, "data": []}`)
	}))

	page, err := client.CrawlPage(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b"}, page.Names)
	assert.Equal(t, "2", page.Next)

	page, err = client.CrawlPage(context.Background(), page.Next)
	require.NoError(t, err)
	assert.True(t, page.Done)

	_, err = client.CrawlPage(context.Background(), "zero")
	assert.Error(t, err)
}

func TestClient_EnumerateRecent(t *testing.T) {
	now := time.Now().UTC()
	client := setupTestClient(t, model.KindGitea, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "updated", r.URL.Query().Get("sort"))
		fmt.Fprintf(w, `{"ok": true, "data": [
			{"full_name": "x/fresh", "updated_at": %q},
			{"full_name": "x/stale", "updated_at": %q}]}`,
			now.Format(time.RFC3339), now.Add(-3*time.Hour).Format(time.RFC3339))
	}))

	names, err := host.Collect(client.EnumerateRecent(context.Background(), time.Hour))

	require.NoError(t, err)
	assert.Equal(t, []string{"x/fresh"}, names)
}

func TestClient_FetchReleases(t *testing.T) {
	client := setupTestClient(t, model.KindGitea, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/repos/forgejo/forgejo/releases", r.URL.Path)
		fmt.Fprintln(w, `[{"id": 3, "tag_name": "v7.0.0", "prerelease": false, "author": {"login": "earl"}}]`)
	}))

	releases, err := client.FetchReleases(context.Background(), "forgejo/forgejo")

	require.NoError(t, err)
	require.Len(t, releases, 1)
	assert.Equal(t, "v7.0.0", releases[0].TagName)
	assert.Equal(t, "earl", releases[0].AuthorLogin)
}
