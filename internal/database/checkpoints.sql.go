// internal/database/checkpoints.sql.go
package database

import (
	"context"
	"errors"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
)

const getCheckpoint = `SELECT cursor FROM crawl_checkpoints WHERE host_id = $1 AND name = $2`

// GetCheckpoint returns the saved cursor, or "" when the crawl has not started.
func (q *Queries) GetCheckpoint(ctx context.Context, hostID int64, name string) (string, error) {
	var cursor string
	err := translate(q.db.QueryRow(ctx, getCheckpoint, hostID, name).Scan(&cursor))
	if errors.Is(err, custom_errors.ErrRecordNotFound) {
		return "", nil
	}
	return cursor, err
}

const setCheckpoint = `
INSERT INTO crawl_checkpoints (host_id, name, cursor)
VALUES ($1, $2, $3)
ON CONFLICT (host_id, name) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = NOW()`

func (q *Queries) SetCheckpoint(ctx context.Context, hostID int64, name, cursor string) error {
	_, err := q.db.Exec(ctx, setCheckpoint, hostID, name, cursor)
	return translate(err)
}

const getImportByFilename = `
SELECT id, filename, success, events_count, repositories_count, error, created_at
FROM imports WHERE filename = $1`

func (q *Queries) GetImportByFilename(ctx context.Context, filename string) (model.Import, error) {
	var i model.Import
	err := q.db.QueryRow(ctx, getImportByFilename, filename).Scan(
		&i.ID, &i.Filename, &i.Success, &i.EventsCount, &i.RepositoriesCount, &i.Error, &i.DBCreatedAt,
	)
	return i, translate(err)
}

const saveImport = `
INSERT INTO imports (filename, success, events_count, repositories_count, error)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (filename) DO UPDATE
SET success = EXCLUDED.success, events_count = EXCLUDED.events_count,
	repositories_count = EXCLUDED.repositories_count, error = EXCLUDED.error
RETURNING id, created_at`

// SaveImport records the outcome of an import. A retried filename overwrites its previous row.
func (q *Queries) SaveImport(ctx context.Context, i *model.Import) error {
	err := q.db.QueryRow(ctx, saveImport, i.Filename, i.Success, i.EventsCount, i.RepositoriesCount, i.Error).
		Scan(&i.ID, &i.DBCreatedAt)
	return translate(err)
}
