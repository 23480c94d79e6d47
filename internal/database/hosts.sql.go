// internal/database/hosts.sql.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"forge-sync/internal/model"
)

const hostColumns = `id, name, url, kind, status, version, last_crawled_at, created_at, updated_at`

func scanHost(row pgx.Row) (model.Host, error) {
	var h model.Host
	err := row.Scan(&h.ID, &h.Name, &h.URL, &h.Kind, &h.Status, &h.Version, &h.LastCrawledAt, &h.DBCreatedAt, &h.DBUpdatedAt)
	return h, translate(err)
}

const getHostByName = `SELECT ` + hostColumns + ` FROM hosts WHERE LOWER(name) = LOWER($1)`

// GetHostByName looks a host up by its case-insensitive name.
func (q *Queries) GetHostByName(ctx context.Context, name string) (model.Host, error) {
	return scanHost(q.db.QueryRow(ctx, getHostByName, name))
}

const getHost = `SELECT ` + hostColumns + ` FROM hosts WHERE id = $1`

func (q *Queries) GetHost(ctx context.Context, id int64) (model.Host, error) {
	return scanHost(q.db.QueryRow(ctx, getHost, id))
}

const listHosts = `SELECT ` + hostColumns + ` FROM hosts ORDER BY id`

func (q *Queries) ListHosts(ctx context.Context) ([]model.Host, error) {
	rows, err := q.db.Query(ctx, listHosts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hosts []model.Host
	for rows.Next() {
		h, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

const updateHostCrawlStatus = `
UPDATE hosts SET status = $2, last_crawled_at = $3, updated_at = NOW()
WHERE id = $1`

// UpdateHostCrawlStatus records the outcome of the latest crawl of a host.
func (q *Queries) UpdateHostCrawlStatus(ctx context.Context, id int64, status string, at time.Time) error {
	_, err := q.db.Exec(ctx, updateHostCrawlStatus, id, status, at.UTC())
	return translate(err)
}
