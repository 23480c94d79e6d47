// internal/database/db_test.go
package database

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(pgx.ErrNoRows), custom_errors.ErrRecordNotFound)
	assert.ErrorIs(t, translate(fmt.Errorf("scan: %w", pgx.ErrNoRows)), custom_errors.ErrRecordNotFound)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "index_repositories_on_host_id_uuid"}
	err := translate(dup)
	assert.ErrorIs(t, err, custom_errors.ErrConflict)
	assert.Contains(t, err.Error(), "index_repositories_on_host_id_uuid")

	other := errors.New("connection reset")
	assert.Equal(t, other, translate(other))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1, $2, $3", placeholders(1, 3))
	assert.Equal(t, "$2", placeholders(2, 1))
}

func TestStatementShapes(t *testing.T) {
	// Column lists and argument builders must stay in step.
	assert.Len(t, strings.Split(repositoryWriteColumns, ","), repositoryWriteCount)
	assert.Len(t, repositoryArgs(&model.Repository{}), repositoryWriteCount)
	assert.Len(t, strings.Split(ownerWriteColumns, ","), ownerWriteCount)
	assert.Len(t, ownerArgs(&model.Owner{}), ownerWriteCount)

	assert.Contains(t, createRepositorySQL, "$34)")
	assert.Len(t, strings.Split(repositorySyncColumns, ","), repositorySyncCount)
	assert.Len(t, repositorySyncArgs(&model.Repository{}), repositorySyncCount)
	assert.Contains(t, updateRepositorySQL, "$30, NOW())")
	assert.NotContains(t, updateRepositorySQL, "metadata")
	assert.NotContains(t, updateRepositorySQL, "tags_count")
	assert.NotContains(t, createRepositorySQL, "%s")
}

func TestRepositoryArgsNormalizes(t *testing.T) {
	local := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	args := repositoryArgs(&model.Repository{PushedAt: &local})

	assert.Equal(t, []string{}, args[4], "previous_names")
	assert.Equal(t, []string{}, args[10], "topics")
	assert.Equal(t, time.UTC, args[28].(*time.Time).Location())
	assert.Nil(t, args[32], "empty status is stored as NULL")
	assert.Equal(t, model.Metadata{}, args[33])
}
