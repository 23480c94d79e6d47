// internal/database/children.sql.go
package database

import (
	"context"
	"fmt"

	"forge-sync/internal/model"
)

const upsertTag = `
INSERT INTO tags (repository_id, name, sha, kind, published_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (repository_id, name) DO UPDATE
SET sha = EXCLUDED.sha, kind = EXCLUDED.kind, published_at = EXCLUDED.published_at, updated_at = NOW()`

const deleteStaleTags = `DELETE FROM tags WHERE repository_id = $1 AND NOT (name = ANY($2))`

const countTags = `SELECT COUNT(*) FROM tags WHERE repository_id = $1`

// SyncTags replaces the tag set of a repository and returns the resulting count.
func (s *Store) SyncTags(ctx context.Context, repositoryID int64, tags []model.Tag) (int, error) {
	var count int
	err := s.InTx(ctx, func(q *Queries) error {
		names := make([]string, 0, len(tags))
		for _, t := range tags {
			if _, err := q.db.Exec(ctx, upsertTag, repositoryID, t.Name, t.SHA, t.Kind, utc(t.PublishedAt)); err != nil {
				return fmt.Errorf("upserting tag %q: %w", t.Name, translate(err))
			}
			names = append(names, t.Name)
		}
		if _, err := q.db.Exec(ctx, deleteStaleTags, repositoryID, names); err != nil {
			return fmt.Errorf("deleting stale tags: %w", err)
		}
		return q.db.QueryRow(ctx, countTags, repositoryID).Scan(&count)
	})
	return count, err
}

const listTagNames = `SELECT name FROM tags WHERE repository_id = $1 ORDER BY name`

func (q *Queries) ListTagNames(ctx context.Context, repositoryID int64) ([]string, error) {
	rows, err := q.db.Query(ctx, listTagNames, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

const upsertRelease = `
INSERT INTO releases (repository_id, tag_name, uuid, name, target_commitish, body, draft, prerelease,
	published_at, release_created_at, author_login)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (repository_id, tag_name) DO UPDATE
SET uuid = EXCLUDED.uuid, name = EXCLUDED.name, target_commitish = EXCLUDED.target_commitish,
	body = EXCLUDED.body, draft = EXCLUDED.draft, prerelease = EXCLUDED.prerelease,
	published_at = EXCLUDED.published_at, release_created_at = EXCLUDED.release_created_at,
	author_login = EXCLUDED.author_login, updated_at = NOW()`

const deleteStaleReleases = `DELETE FROM releases WHERE repository_id = $1 AND NOT (tag_name = ANY($2))`

// SyncReleases replaces the release set of a repository.
func (s *Store) SyncReleases(ctx context.Context, repositoryID int64, releases []model.Release) (int, error) {
	err := s.InTx(ctx, func(q *Queries) error {
		tagNames := make([]string, 0, len(releases))
		for _, r := range releases {
			_, err := q.db.Exec(ctx, upsertRelease, repositoryID, r.TagName, r.UUID, r.Name, r.TargetCommitish, r.Body,
				r.Draft, r.Prerelease, utc(r.PublishedAt), utc(r.ReleaseCreated), r.AuthorLogin)
			if err != nil {
				return fmt.Errorf("upserting release %q: %w", r.TagName, translate(err))
			}
			tagNames = append(tagNames, r.TagName)
		}
		_, err := q.db.Exec(ctx, deleteStaleReleases, repositoryID, tagNames)
		return err
	})
	return len(releases), err
}

const upsertManifest = `
INSERT INTO manifests (repository_id, ecosystem, filepath, kind)
VALUES ($1, $2, $3, $4)
ON CONFLICT (repository_id, ecosystem, filepath) DO UPDATE
SET kind = EXCLUDED.kind, updated_at = NOW()
RETURNING id`

const deleteManifestDependencies = `DELETE FROM dependencies WHERE manifest_id = $1`

const insertDependency = `
INSERT INTO dependencies (manifest_id, repository_id, package_name, ecosystem, requirements, kind, direct, optional)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const deleteStaleManifests = `
DELETE FROM manifests
WHERE repository_id = $1 AND NOT (id = ANY($2))`

// SyncManifests replaces the manifests and dependencies of a repository.
// It returns the number of dependencies written.
func (s *Store) SyncManifests(ctx context.Context, repositoryID int64, manifests []model.Manifest) (int, error) {
	var written int
	err := s.InTx(ctx, func(q *Queries) error {
		ids := make([]int64, 0, len(manifests))
		for _, m := range manifests {
			var id int64
			if err := q.db.QueryRow(ctx, upsertManifest, repositoryID, m.Ecosystem, m.Filepath, m.Kind).Scan(&id); err != nil {
				return fmt.Errorf("upserting manifest %s: %w", m.Filepath, translate(err))
			}
			ids = append(ids, id)

			if _, err := q.db.Exec(ctx, deleteManifestDependencies, id); err != nil {
				return err
			}
			for _, d := range m.Dependencies {
				ecosystem := d.Ecosystem
				if ecosystem == "" {
					ecosystem = m.Ecosystem
				}
				_, err := q.db.Exec(ctx, insertDependency, id, repositoryID, d.PackageName, ecosystem,
					d.Requirements, d.Kind, d.Direct, d.Optional)
				if err != nil {
					return fmt.Errorf("inserting dependency %s: %w", d.PackageName, err)
				}
				written++
			}
		}
		_, err := q.db.Exec(ctx, deleteStaleManifests, repositoryID, ids)
		return err
	})
	return written, err
}
