//go:build integration

// cmd/service/integration_test.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"forge-sync/internal/api"
	"forge-sync/internal/model"
)

func setupTestDatabase(ctx context.Context, t *testing.T) string {
	t.Helper()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

// forgejoServer serves a single user with a single repository.
func forgejoServer(t *testing.T) *httptest.Server {
	t.Helper()
	routes := map[string]string{
		"/api/v1/repos/forgejo/runner": `{
			"id": 4242, "full_name": "forgejo/runner", "description": "A daemon that runs jobs",
			"language": "Go", "default_branch": "main", "licenses": ["MIT"], "stars_count": 12,
			"created_at": "2023-01-02T03:04:05Z", "updated_at": "2024-06-01T10:00:00Z",
			"owner": {"login": "forgejo"}
		}`,
		"/api/v1/users/forgejo":                 `{"id": 7, "login": "forgejo", "full_name": "Forgejo", "followers_count": 3}`,
		"/api/v1/repos/forgejo/runner/contents": `[{"name": "README.md", "type": "file"}, {"name": "LICENSE", "type": "file"}, {"name": "cmd", "type": "dir"}]`,
		"/api/v1/repos/forgejo/runner/tags":     `[{"name": "v3.4.1", "commit": {"sha": "abc", "created": "2024-05-01T00:00:00Z"}}]`,
		"/api/v1/repos/forgejo/runner/releases": `[]`,
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestSyncAndRead_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	t.Setenv("DB_URL", setupTestDatabase(ctx, t))
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("MIGRATIONS_PATH", "file://../../migrations")

	a, err := newApp(ctx)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.migrate())

	upstream := forgejoServer(t)
	defer upstream.Close()
	_, err = a.pool.Exec(ctx, `UPDATE hosts SET url = $1 WHERE name = 'codeberg.org'`, upstream.URL)
	require.NoError(t, err)

	h, err := a.host(ctx, "Codeberg.org")
	require.NoError(t, err)

	// --- ACT ---
	repo, err := a.engine.SyncRepository(ctx, h, model.Identifier{FullName: "forgejo/runner"})
	require.NoError(t, err)
	require.NotNil(t, repo)

	n, err := a.newWorker().Drain(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 4)

	// --- ASSERT ---
	stored, err := a.store.GetRepositoryByFullName(ctx, h.ID, "FORGEJO/runner")
	require.NoError(t, err)
	assert.Equal(t, "4242", stored.UUID)
	assert.Equal(t, "MIT", stored.License)
	assert.Equal(t, 1, stored.TagsCount)
	assert.Equal(t, "v3.4.1", stored.Metadata["latest_tag"])

	owner, err := a.store.GetOwnerByLogin(ctx, h.ID, "forgejo")
	require.NoError(t, err)
	assert.Equal(t, 1, owner.RepositoriesCount)
	assert.Equal(t, int64(12), owner.TotalStars)

	router := api.NewRouter(a.store, a.broker, a.logger)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/hosts/codeberg.org/repositories/forgejo/runner", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "forgejo/runner", body["full_name"])
	assert.Equal(t, upstream.URL+"/forgejo/runner", body["html_url"])
}
