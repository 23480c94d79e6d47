// internal/syncer/details_test.go
package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

func TestSyncExtraDetails_RecordsFileFlags(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.store.seedRepository(model.Repository{HostID: testHost.ID, UUID: "1", FullName: "a/b", Owner: "a", DefaultBranch: "main"})
	h.adapter.On("FetchFiles", mock.Anything, "a/b", "main").
		Return([]string{"README.md", "LICENSE", ".github", "FUNDING.yml", "src", "CITATION.cff"}, nil).Twice()

	repo, err := h.engine.SyncExtraDetails(ctx, testHost, "a/b")

	require.NoError(t, err)
	files, ok := repo.Metadata["files"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, files["readme"])
	assert.Equal(t, true, files["license"])
	assert.Equal(t, true, files["funding"])
	assert.Equal(t, true, files["citation"])
	assert.Equal(t, false, files["changelog"])
	assert.Equal(t, false, files["security"])
	assert.Equal(t, files, h.store.repository(id).Metadata["files"])

	tagJobs := h.queue.Jobs(queue.KindSyncTags)
	require.Len(t, tagJobs, 1)
	assert.Equal(t, "a/b", tagJobs[0].Arg("full_name"))

	t.Run("unchanged flags are not rewritten", func(t *testing.T) {
		writes := h.store.writes
		_, err := h.engine.SyncExtraDetails(ctx, testHost, "a/b")
		require.NoError(t, err)
		assert.Equal(t, writes, h.store.writes)
	})
}

func TestSyncExtraDetails_UnsupportedIsQuiet(t *testing.T) {
	h := newHarness(t)
	h.store.seedRepository(model.Repository{HostID: testHost.ID, UUID: "1", FullName: "a/b", Owner: "a", DefaultBranch: "main"})
	h.adapter.On("FetchFiles", mock.Anything, "a/b", "main").Return(nil, custom_errors.ErrUnsupported).Once()

	repo, err := h.engine.SyncExtraDetails(context.Background(), testHost, "a/b")

	require.NoError(t, err)
	assert.NotContains(t, repo.Metadata, "files")
	assert.Zero(t, h.store.writes)
	assert.Len(t, h.queue.Jobs(queue.KindSyncTags), 1, "tags are synced regardless")
}

func TestSyncExtraDetails_HardFailure(t *testing.T) {
	h := newHarness(t)
	h.store.seedRepository(model.Repository{HostID: testHost.ID, UUID: "1", FullName: "a/b", Owner: "a", DefaultBranch: "main"})
	h.adapter.On("FetchFiles", mock.Anything, "a/b", "main").
		Return(nil, errors.New("connection reset by peer")).Once()

	_, err := h.engine.SyncExtraDetails(context.Background(), testHost, "a/b")

	require.Error(t, err)
	assert.Zero(t, h.store.writes)
}

func TestDetectFiles(t *testing.T) {
	flags := detectFiles([]string{"docs/README.md", "COPYING", "CHANGES.rst", "Code-Of-Conduct.md"})

	assert.Len(t, flags, len(fileFlags))
	assert.Equal(t, true, flags["readme"])
	assert.Equal(t, true, flags["license"])
	assert.Equal(t, true, flags["changelog"])
	assert.Equal(t, true, flags["code_of_conduct"])
	assert.Equal(t, false, flags["contributing"])
}
