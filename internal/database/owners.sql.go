// internal/database/owners.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"forge-sync/internal/model"
)

const ownerWriteColumns = `host_id, uuid, login, kind, name, company, description, email, website,
	location, twitter_username, avatar_url, hidden, repositories_count, total_stars, followers,
	following, last_synced_at, metadata`

const ownerColumns = `id, ` + ownerWriteColumns + `, created_at, updated_at`

const ownerWriteCount = 19

func ownerArgs(o *model.Owner) []any {
	return []any{
		o.HostID, o.UUID, o.Login, o.Kind, o.Name, o.Company, o.Description, o.Email, o.Website,
		o.Location, o.TwitterUsername, o.AvatarURL, o.Hidden, o.RepositoriesCount, o.TotalStars, o.Followers,
		o.Following, utc(o.LastSyncedAt), metadataOrEmpty(o.Metadata),
	}
}

func scanOwner(row pgx.Row) (model.Owner, error) {
	var o model.Owner
	err := row.Scan(
		&o.ID, &o.HostID, &o.UUID, &o.Login, &o.Kind, &o.Name, &o.Company, &o.Description, &o.Email, &o.Website,
		&o.Location, &o.TwitterUsername, &o.AvatarURL, &o.Hidden, &o.RepositoriesCount, &o.TotalStars, &o.Followers,
		&o.Following, &o.LastSyncedAt, &o.Metadata, &o.DBCreatedAt, &o.DBUpdatedAt,
	)
	return o, translate(err)
}

const getOwnerByLogin = `SELECT ` + ownerColumns + `
FROM owners WHERE host_id = $1 AND LOWER(login) = LOWER($2)`

func (q *Queries) GetOwnerByLogin(ctx context.Context, hostID int64, login string) (model.Owner, error) {
	return scanOwner(q.db.QueryRow(ctx, getOwnerByLogin, hostID, login))
}

const getOwnerByUUID = `SELECT ` + ownerColumns + `
FROM owners WHERE host_id = $1 AND uuid = $2 AND uuid <> ''`

func (q *Queries) GetOwnerByUUID(ctx context.Context, hostID int64, uuid string) (model.Owner, error) {
	return scanOwner(q.db.QueryRow(ctx, getOwnerByUUID, hostID, uuid))
}

var createOwnerSQL = sprintfSQL(`INSERT INTO owners (`+ownerWriteColumns+`)
VALUES (%s)
RETURNING id, created_at, updated_at`, placeholders(1, ownerWriteCount))

func (q *Queries) CreateOwner(ctx context.Context, o *model.Owner) error {
	err := q.db.QueryRow(ctx, createOwnerSQL, ownerArgs(o)...).Scan(&o.ID, &o.DBCreatedAt, &o.DBUpdatedAt)
	return translate(err)
}

var updateOwnerSQL = sprintfSQL(`UPDATE owners SET (`+ownerWriteColumns+`, updated_at) = (%s, NOW())
WHERE id = $1
RETURNING updated_at`, placeholders(2, ownerWriteCount))

func (q *Queries) UpdateOwner(ctx context.Context, o *model.Owner) error {
	args := append([]any{o.ID}, ownerArgs(o)...)
	return translate(q.db.QueryRow(ctx, updateOwnerSQL, args...).Scan(&o.DBUpdatedAt))
}

const deleteOwner = `DELETE FROM owners WHERE id = $1`

func (q *Queries) DeleteOwner(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, deleteOwner, id)
	return translate(err)
}
