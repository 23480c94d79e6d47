//go:build integration

// internal/database/store_integration_test.go
package database

import (
	"context"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
)

func setupStore(ctx context.Context, t *testing.T) *Store {
	t.Helper()

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("forge-sync"),
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

	m, err := migrate.New("file://../../migrations", connStr)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewStore(pool)
}

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	store := setupStore(ctx, t)

	host, err := store.GetHostByName(ctx, "github")
	require.NoError(t, err)
	assert.Equal(t, model.KindGitHub, host.Kind)

	pushed := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	repo := &model.Repository{
		HostID:          host.ID,
		UUID:            "1296269",
		FullName:        "octocat/Hello-World",
		Owner:           "octocat",
		Topics:          []string{"demo"},
		StargazersCount: 80,
		PushedAt:        &pushed,
		Metadata:        model.Metadata{"files": map[string]any{"readme": "README"}},
	}

	t.Run("create and look up case-insensitively", func(t *testing.T) {
		require.NoError(t, store.CreateRepository(ctx, repo))
		require.NotZero(t, repo.ID)

		got, err := store.GetRepositoryByFullName(ctx, host.ID, "OCTOCAT/hello-world")
		require.NoError(t, err)
		assert.Equal(t, repo.ID, got.ID)
		assert.True(t, pushed.Equal(*got.PushedAt))
		assert.Equal(t, []string{"demo"}, got.Topics)
		assert.Empty(t, got.Status)
		assert.Contains(t, got.Metadata, "files")
	})

	t.Run("duplicate uuid is a conflict", func(t *testing.T) {
		dup := *repo
		dup.ID = 0
		dup.FullName = "octocat/other"
		err := store.CreateRepository(ctx, &dup)
		assert.ErrorIs(t, err, custom_errors.ErrConflict)
	})

	t.Run("previous names resolve", func(t *testing.T) {
		repo.PreviousNames = []string{"octocat/Old-World"}
		require.NoError(t, store.UpdateRepository(ctx, repo))

		got, err := store.GetRepositoryByPreviousName(ctx, host.ID, "octocat/old-world")
		require.NoError(t, err)
		assert.Equal(t, repo.ID, got.ID)
	})

	t.Run("follow-up columns survive a repository update", func(t *testing.T) {
		at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		stale := *repo
		require.NoError(t, store.UpdateRepositoryTags(ctx, repo.ID, 3, at, "v1.1.0"))
		require.NoError(t, store.SetRepositoryMetadata(ctx, repo.ID, "files", map[string]any{"readme": true}))
		require.NoError(t, store.MarkDependenciesParsed(ctx, repo.ID, at, "parser exploded"))

		stale.StargazersCount = 81
		require.NoError(t, store.UpdateRepository(ctx, &stale))

		got, err := store.GetRepositoryByID(ctx, repo.ID)
		require.NoError(t, err)
		assert.Equal(t, 81, got.StargazersCount)
		assert.Equal(t, 3, got.TagsCount)
		assert.Equal(t, "v1.1.0", got.Metadata["latest_tag"])
		assert.Equal(t, map[string]any{"readme": true}, got.Metadata["files"])
		assert.Equal(t, "parser exploded", got.Metadata["dependency_error"])
		require.NotNil(t, got.DependenciesParsedAt)

		require.NoError(t, store.UpdateRepositoryTags(ctx, repo.ID, 0, at, ""))
		require.NoError(t, store.MarkDependenciesParsed(ctx, repo.ID, at, ""))
		got, err = store.GetRepositoryByID(ctx, repo.ID)
		require.NoError(t, err)
		assert.NotContains(t, got.Metadata, "latest_tag")
		assert.NotContains(t, got.Metadata, "dependency_error")
	})

	t.Run("owner stats exclude removed repositories", func(t *testing.T) {
		removed := &model.Repository{HostID: host.ID, UUID: "2", FullName: "octocat/gone", Owner: "octocat",
			StargazersCount: 10, Status: model.StatusRemoved}
		require.NoError(t, store.CreateRepository(ctx, removed))

		count, stars, err := store.OwnerRepositoryStats(ctx, host.ID, "OctoCat")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Equal(t, int64(80), stars)
	})

	t.Run("tags are replaced", func(t *testing.T) {
		n, err := store.SyncTags(ctx, repo.ID, []model.Tag{{Name: "v1.0.0"}, {Name: "v1.1.0"}})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = store.SyncTags(ctx, repo.ID, []model.Tag{{Name: "v1.1.0", SHA: "abc"}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		names, err := store.ListTagNames(ctx, repo.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"v1.1.0"}, names)
	})

	t.Run("manifests are replaced", func(t *testing.T) {
		written, err := store.SyncManifests(ctx, repo.ID, []model.Manifest{{
			Ecosystem: "npm", Filepath: "package.json", Kind: "manifest",
			Dependencies: []model.Dependency{{PackageName: "left-pad", Requirements: "^1.0.0", Kind: "runtime", Direct: true}},
		}})
		require.NoError(t, err)
		assert.Equal(t, 1, written)
	})

	t.Run("checkpoints default to empty", func(t *testing.T) {
		cursor, err := store.GetCheckpoint(ctx, host.ID, "github:repositories")
		require.NoError(t, err)
		assert.Empty(t, cursor)

		require.NoError(t, store.SetCheckpoint(ctx, host.ID, "github:repositories", "42"))
		cursor, err = store.GetCheckpoint(ctx, host.ID, "github:repositories")
		require.NoError(t, err)
		assert.Equal(t, "42", cursor)
	})

	t.Run("deleting a repository cascades", func(t *testing.T) {
		require.NoError(t, store.DeleteRepository(ctx, repo.ID))
		_, err := store.GetRepositoryByID(ctx, repo.ID)
		assert.ErrorIs(t, err, custom_errors.ErrRecordNotFound)
	})
}
