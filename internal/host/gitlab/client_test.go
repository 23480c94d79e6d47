// internal/host/gitlab/client_test.go
package gitlab

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

const gitlabProject = `{
	"id": 278964,
	"path_with_namespace": "gitlab-org/gitlab",
	"namespace": {"full_path": "gitlab-org"},
	"description": "GitLab is an open source end-to-end software development platform",
	"default_branch": "master",
	"topics": ["devops"],
	"visibility": "public",
	"star_count": 4200,
	"forks_count": 9000,
	"issues_enabled": true,
	"pages_access_level": "enabled",
	"license": {"key": "mit"},
	"created_at": "2015-05-20T10:47:11.949Z",
	"last_activity_at": "2024-03-01T08:00:00.000Z"
}`

func setupTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := host.New(
		model.Host{Name: "GitLab.com", Kind: model.KindGitLab, URL: server.URL},
		host.Options{HTTPClient: server.Client(), Token: "glpat", RetryDelay: time.Millisecond},
	)
	require.NoError(t, err)
	return adapter.(*Client)
}

func TestClient_FetchRepository(t *testing.T) {
	t.Run("by path escapes the namespace", func(t *testing.T) {
		client := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v4/projects/gitlab-org%2Fgitlab", r.URL.EscapedPath())
			assert.Equal(t, "glpat", r.Header.Get("PRIVATE-TOKEN"))
			fmt.Fprintln(w, gitlabProject)
		}))

		repo, err := client.FetchRepository(context.Background(), model.Identifier{FullName: "gitlab-org/gitlab"})

		require.NoError(t, err)
		assert.Equal(t, "278964", repo.UUID)
		assert.Equal(t, "gitlab-org/gitlab", repo.FullName)
		assert.Equal(t, "gitlab-org", repo.Owner)
		assert.False(t, repo.Fork)
		assert.Equal(t, "mit", repo.License)
		assert.True(t, repo.HasPages)
		assert.Equal(t, 4200, repo.StargazersCount)
		require.NotNil(t, repo.CreatedAt)
	})

	t.Run("forks carry their source", func(t *testing.T) {
		client := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v4/projects/42", r.URL.Path)
			fmt.Fprintln(w, `{"id": 42, "path_with_namespace": "me/gitlab", "namespace": {"full_path": "me"},
				"forked_from_project": {"path_with_namespace": "gitlab-org/gitlab"}}`)
		}))

		repo, err := client.FetchRepository(context.Background(), model.Identifier{UUID: "42"})

		require.NoError(t, err)
		assert.True(t, repo.Fork)
		assert.Equal(t, "gitlab-org/gitlab", repo.SourceName)
	})

	t.Run("rejects malformed names", func(t *testing.T) {
		client := setupTestClient(t, http.NotFoundHandler())

		_, err := client.FetchRepository(context.Background(), model.Identifier{FullName: "nope"})

		var invalid *custom_errors.ErrInvalidFullName
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestClient_FetchOwner(t *testing.T) {
	t.Run("user", func(t *testing.T) {
		client := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v4/users", r.URL.Path)
			assert.Equal(t, "sytses", r.URL.Query().Get("username"))
			fmt.Fprintln(w, `[{"id": 5, "username": "sytses", "name": "Sid"}]`)
		}))

		owner, err := client.FetchOwner(context.Background(), "sytses")

		require.NoError(t, err)
		assert.Equal(t, model.OwnerKindUser, owner.Kind)
		assert.Equal(t, "5", owner.UUID)
	})

	t.Run("falls back to group", func(t *testing.T) {
		client := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/v4/users":
				fmt.Fprintln(w, `[]`)
			case "/api/v4/groups/gitlab-org":
				fmt.Fprintln(w, `{"id": 9970, "full_path": "gitlab-org", "name": "GitLab.org"}`)
			default:
				http.NotFound(w, r)
			}
		}))

		owner, err := client.FetchOwner(context.Background(), "gitlab-org")

		require.NoError(t, err)
		assert.Equal(t, model.OwnerKindOrganization, owner.Kind)
		assert.Equal(t, "group:9970", owner.UUID)
	})

	t.Run("missing everywhere is not found", func(t *testing.T) {
		client := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/v4/users" {
				fmt.Fprintln(w, `[]`)
				return
			}
			http.NotFound(w, r)
		}))

		_, err := client.FetchOwner(context.Background(), "ghost")

		assert.True(t, custom_errors.IsNotFound(err))
	})
}

func TestClient_CrawlPage(t *testing.T) {
	client := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id", r.URL.Query().Get("order_by"))
		if r.URL.Query().Get("id_after") == "0" {
			fmt.Fprintln(w, `[{"id": 3, "path_with_namespace": "a/b"}, {"id": 7, "path_with_namespace": "c/d"}]`)
			return
		}
		fmt.Fprintln(w, `[]`)
	}))

	page, err := client.CrawlPage(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b", "c/d"}, page.Names)
	assert.Equal(t, "7", page.Next)

	page, err = client.CrawlPage(context.Background(), page.Next)
	require.NoError(t, err)
	assert.True(t, page.Done)
}

func TestClient_EnumerateRecentStopsAtCutoff(t *testing.T) {
	now := time.Now().UTC()
	client := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "last_activity_at", r.URL.Query().Get("order_by"))
		fmt.Fprintf(w, `[{"path_with_namespace": "a/new", "last_activity_at": %q},
			{"path_with_namespace": "a/old", "last_activity_at": %q}]`,
			now.Format(time.RFC3339), now.Add(-48*time.Hour).Format(time.RFC3339))
	}))

	names, err := host.Collect(client.EnumerateRecent(context.Background(), 24*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, []string{"a/new"}, names)
}

func TestClient_FetchTagsFollowsLinks(t *testing.T) {
	client := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprintln(w, `[{"name": "v1.0.0", "commit": {"id": "bbb"}}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2>; rel="next"`, r.Host, r.URL.EscapedPath()))
		fmt.Fprintln(w, `[{"name": "v2.0.0", "commit": {"id": "aaa", "created_at": "2024-01-01T00:00:00Z"}}]`)
	}))

	tags, err := client.FetchTags(context.Background(), "gitlab-org/gitlab")

	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "aaa", tags[0].SHA)
	assert.NotNil(t, tags[0].PublishedAt)
	assert.Equal(t, "v1.0.0", tags[1].Name)
}

func TestClient_FetchFilesOnEmptyRepository(t *testing.T) {
	client := setupTestClient(t, http.NotFoundHandler())

	files, err := client.FetchFiles(context.Background(), "a/empty", "main")

	require.NoError(t, err)
	assert.Empty(t, files)
}
