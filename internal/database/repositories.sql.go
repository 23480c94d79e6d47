// internal/database/repositories.sql.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"forge-sync/internal/model"
)

// repositoryWriteColumns excludes id and the record timestamps. Order matches repositoryArgs.
const repositoryWriteColumns = `host_id, uuid, full_name, owner, previous_names, description, homepage,
	language, license, default_branch, topics, fork, source_name, archived, private, template,
	mirror_url, stargazers_count, forks_count, open_issues_count, subscribers_count, size,
	tags_count, has_issues, has_wiki, has_pages, repo_created_at, repo_updated_at, pushed_at,
	last_synced_at, dependencies_parsed_at, tags_last_synced_at, status, metadata`

const repositoryColumns = `id, ` + repositoryWriteColumns + `, created_at, updated_at`

const repositoryWriteCount = 34

func repositoryArgs(r *model.Repository) []any {
	return []any{
		r.HostID, r.UUID, r.FullName, r.Owner, stringsOrEmpty(r.PreviousNames), r.Description, r.Homepage,
		r.Language, r.License, r.DefaultBranch, stringsOrEmpty(r.Topics), r.Fork, r.SourceName, r.Archived, r.Private, r.Template,
		r.MirrorURL, r.StargazersCount, r.ForksCount, r.OpenIssuesCount, r.SubscribersCount, r.Size,
		r.TagsCount, r.HasIssues, r.HasWiki, r.HasPages, utc(r.RepoCreatedAt), utc(r.RepoUpdatedAt), utc(r.PushedAt),
		utc(r.LastSyncedAt), utc(r.DependenciesParsedAt), utc(r.TagsLastSyncedAt), nullIfEmpty(r.Status), metadataOrEmpty(r.Metadata),
	}
}

func scanRepository(row pgx.Row) (model.Repository, error) {
	var r model.Repository
	var status *string
	err := row.Scan(
		&r.ID, &r.HostID, &r.UUID, &r.FullName, &r.Owner, &r.PreviousNames, &r.Description, &r.Homepage,
		&r.Language, &r.License, &r.DefaultBranch, &r.Topics, &r.Fork, &r.SourceName, &r.Archived, &r.Private, &r.Template,
		&r.MirrorURL, &r.StargazersCount, &r.ForksCount, &r.OpenIssuesCount, &r.SubscribersCount, &r.Size,
		&r.TagsCount, &r.HasIssues, &r.HasWiki, &r.HasPages, &r.RepoCreatedAt, &r.RepoUpdatedAt, &r.PushedAt,
		&r.LastSyncedAt, &r.DependenciesParsedAt, &r.TagsLastSyncedAt, &status, &r.Metadata,
		&r.DBCreatedAt, &r.DBUpdatedAt,
	)
	r.Status = derefString(status)
	return r, translate(err)
}

const getRepositoryByFullName = `SELECT ` + repositoryColumns + `
FROM repositories WHERE host_id = $1 AND LOWER(full_name) = LOWER($2)`

// GetRepositoryByFullName matches full_name case-insensitively within a host.
func (q *Queries) GetRepositoryByFullName(ctx context.Context, hostID int64, fullName string) (model.Repository, error) {
	return scanRepository(q.db.QueryRow(ctx, getRepositoryByFullName, hostID, fullName))
}

const getRepositoryByUUID = `SELECT ` + repositoryColumns + `
FROM repositories WHERE host_id = $1 AND uuid = $2`

func (q *Queries) GetRepositoryByUUID(ctx context.Context, hostID int64, uuid string) (model.Repository, error) {
	return scanRepository(q.db.QueryRow(ctx, getRepositoryByUUID, hostID, uuid))
}

const getRepositoryByID = `SELECT ` + repositoryColumns + ` FROM repositories WHERE id = $1`

func (q *Queries) GetRepositoryByID(ctx context.Context, id int64) (model.Repository, error) {
	return scanRepository(q.db.QueryRow(ctx, getRepositoryByID, id))
}

const getRepositoryByPreviousName = `SELECT ` + repositoryColumns + `
FROM repositories
WHERE host_id = $1
  AND EXISTS (SELECT 1 FROM UNNEST(previous_names) AS p WHERE LOWER(p) = LOWER($2))
ORDER BY updated_at DESC
LIMIT 1`

// GetRepositoryByPreviousName finds the repository that most recently held fullName.
func (q *Queries) GetRepositoryByPreviousName(ctx context.Context, hostID int64, fullName string) (model.Repository, error) {
	return scanRepository(q.db.QueryRow(ctx, getRepositoryByPreviousName, hostID, fullName))
}

const createRepository = `INSERT INTO repositories (` + repositoryWriteColumns + `)
VALUES (` + "%s" + `)
RETURNING id, created_at, updated_at`

var createRepositorySQL = sprintfSQL(createRepository, placeholders(1, repositoryWriteCount))

// CreateRepository inserts r and sets its ID. A lost unique race returns ErrConflict.
func (q *Queries) CreateRepository(ctx context.Context, r *model.Repository) error {
	err := q.db.QueryRow(ctx, createRepositorySQL, repositoryArgs(r)...).Scan(&r.ID, &r.DBCreatedAt, &r.DBUpdatedAt)
	return translate(err)
}

// repositorySyncColumns are the columns a repository sync owns. Tag, parse and
// metadata columns belong to the follow-up jobs and have their own statements.
// Order matches repositorySyncArgs.
const repositorySyncColumns = `uuid, full_name, owner, previous_names, description, homepage,
	language, license, default_branch, topics, fork, source_name, archived, private, template,
	mirror_url, stargazers_count, forks_count, open_issues_count, subscribers_count, size,
	has_issues, has_wiki, has_pages, repo_created_at, repo_updated_at, pushed_at,
	last_synced_at, status`

const repositorySyncCount = 29

func repositorySyncArgs(r *model.Repository) []any {
	return []any{
		r.UUID, r.FullName, r.Owner, stringsOrEmpty(r.PreviousNames), r.Description, r.Homepage,
		r.Language, r.License, r.DefaultBranch, stringsOrEmpty(r.Topics), r.Fork, r.SourceName, r.Archived, r.Private, r.Template,
		r.MirrorURL, r.StargazersCount, r.ForksCount, r.OpenIssuesCount, r.SubscribersCount, r.Size,
		r.HasIssues, r.HasWiki, r.HasPages, utc(r.RepoCreatedAt), utc(r.RepoUpdatedAt), utc(r.PushedAt),
		utc(r.LastSyncedAt), nullIfEmpty(r.Status),
	}
}

const updateRepository = `UPDATE repositories SET (` + repositorySyncColumns + `, updated_at) = (` + "%s" + `, NOW())
WHERE id = $1
RETURNING updated_at`

var updateRepositorySQL = sprintfSQL(updateRepository, placeholders(2, repositorySyncCount))

// UpdateRepository writes the sync-owned columns of r. A unique race returns ErrConflict.
func (q *Queries) UpdateRepository(ctx context.Context, r *model.Repository) error {
	args := append([]any{r.ID}, repositorySyncArgs(r)...)
	return translate(q.db.QueryRow(ctx, updateRepositorySQL, args...).Scan(&r.DBUpdatedAt))
}

const updateRepositoryTags = `
UPDATE repositories SET
	tags_count = $2,
	tags_last_synced_at = $3,
	metadata = CASE WHEN $4::text = '' THEN metadata - 'latest_tag'
		ELSE metadata || jsonb_build_object('latest_tag', $4::text) END,
	updated_at = NOW()
WHERE id = $1`

// UpdateRepositoryTags records a finished tag sync. An empty latestTag clears metadata.latest_tag.
func (q *Queries) UpdateRepositoryTags(ctx context.Context, id int64, count int, syncedAt time.Time, latestTag string) error {
	_, err := q.db.Exec(ctx, updateRepositoryTags, id, count, syncedAt.UTC(), latestTag)
	return translate(err)
}

const setRepositoryMetadata = `
UPDATE repositories SET metadata = jsonb_set(metadata, ARRAY[$2::text], $3::jsonb, true), updated_at = NOW()
WHERE id = $1`

// SetRepositoryMetadata sets one top-level metadata key, leaving the others alone.
func (q *Queries) SetRepositoryMetadata(ctx context.Context, id int64, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding metadata %s: %w", key, err)
	}
	_, err = q.db.Exec(ctx, setRepositoryMetadata, id, key, string(raw))
	return translate(err)
}

const markDependenciesParsed = `
UPDATE repositories SET
	dependencies_parsed_at = $2,
	metadata = CASE WHEN $3::text = '' THEN metadata - 'dependency_error'
		ELSE metadata || jsonb_build_object('dependency_error', $3::text) END,
	updated_at = NOW()
WHERE id = $1`

// MarkDependenciesParsed stamps a finished parse. A non-empty parseError is kept
// under metadata.dependency_error; an empty one clears it.
func (q *Queries) MarkDependenciesParsed(ctx context.Context, id int64, at time.Time, parseError string) error {
	_, err := q.db.Exec(ctx, markDependenciesParsed, id, at.UTC(), parseError)
	return translate(err)
}

const touchRepository = `UPDATE repositories SET last_synced_at = $2 WHERE id = $1`

// TouchRepository bumps last_synced_at only.
func (q *Queries) TouchRepository(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.Exec(ctx, touchRepository, id, at.UTC())
	return translate(err)
}

const deleteRepository = `DELETE FROM repositories WHERE id = $1`

func (q *Queries) DeleteRepository(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, deleteRepository, id)
	return translate(err)
}

const listOwnerRepositoryNames = `
SELECT full_name FROM repositories
WHERE host_id = $1 AND LOWER(owner) = LOWER($2) AND status IS NULL
ORDER BY full_name`

// ListOwnerRepositoryNames lists the active repositories of an owner.
func (q *Queries) ListOwnerRepositoryNames(ctx context.Context, hostID int64, owner string) ([]string, error) {
	rows, err := q.db.Query(ctx, listOwnerRepositoryNames, hostID, owner)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const ownerRepositoryStats = `
SELECT COUNT(*), COALESCE(SUM(stargazers_count), 0)
FROM repositories
WHERE host_id = $1 AND LOWER(owner) = LOWER($2) AND status IS NULL`

// OwnerRepositoryStats recomputes an owner's counters from its repositories.
func (q *Queries) OwnerRepositoryStats(ctx context.Context, hostID int64, owner string) (count int, stars int64, err error) {
	err = q.db.QueryRow(ctx, ownerRepositoryStats, hostID, owner).Scan(&count, &stars)
	return count, stars, translate(err)
}

const listRepositoriesPendingParse = `
SELECT id FROM repositories
WHERE host_id = $1 AND status IS NULL AND fork = FALSE AND dependencies_parsed_at IS NULL
ORDER BY stargazers_count DESC
LIMIT $2`

// ListRepositoriesPendingParse returns repositories that have never had dependencies parsed.
func (q *Queries) ListRepositoriesPendingParse(ctx context.Context, hostID int64, limit int) ([]int64, error) {
	rows, err := q.db.Query(ctx, listRepositoriesPendingParse, hostID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
