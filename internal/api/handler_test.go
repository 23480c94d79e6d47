// internal/api/handler_test.go
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListHosts(ctx context.Context) ([]model.Host, error) {
	args := m.Called(ctx)
	hosts, _ := args.Get(0).([]model.Host)
	return hosts, args.Error(1)
}

func (m *MockStore) GetHostByName(ctx context.Context, name string) (model.Host, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(model.Host), args.Error(1)
}

func (m *MockStore) GetRepositoryByFullName(ctx context.Context, hostID int64, fullName string) (model.Repository, error) {
	args := m.Called(ctx, hostID, fullName)
	return args.Get(0).(model.Repository), args.Error(1)
}

func (m *MockStore) GetRepositoryByPreviousName(ctx context.Context, hostID int64, fullName string) (model.Repository, error) {
	args := m.Called(ctx, hostID, fullName)
	return args.Get(0).(model.Repository), args.Error(1)
}

func (m *MockStore) GetOwnerByLogin(ctx context.Context, hostID int64, login string) (model.Owner, error) {
	args := m.Called(ctx, hostID, login)
	return args.Get(0).(model.Owner), args.Error(1)
}

var gitlab = model.Host{ID: 2, Name: "GitLab.com", URL: "https://gitlab.com", Kind: model.KindGitLab, Status: "online"}

func setup(t *testing.T) (*MockStore, *queue.MemoryQueue, http.Handler) {
	t.Helper()
	store := new(MockStore)
	q := queue.NewMemoryQueue()
	store.On("GetHostByName", mock.Anything, "GitLab.com").Return(gitlab, nil).Maybe()
	store.On("GetHostByName", mock.Anything, mock.Anything).Return(model.Host{}, custom_errors.ErrRecordNotFound).Maybe()
	t.Cleanup(func() { store.AssertExpectations(t) })
	return store, q, NewRouter(store, q, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestHealthAndHosts(t *testing.T) {
	store, _, router := setup(t)
	store.On("ListHosts", mock.Anything).Return([]model.Host{gitlab}, nil).Once()

	rr := serve(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = serve(router, http.MethodGet, "/v1/hosts")
	require.Equal(t, http.StatusOK, rr.Code)
	var hosts []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hosts))
	require.Len(t, hosts, 1)
	assert.Equal(t, "GitLab.com", hosts[0]["name"])
	assert.Equal(t, "online", hosts[0]["status"])
}

func TestGetRepository(t *testing.T) {
	repo := model.Repository{
		ID: 1, HostID: gitlab.ID, UUID: "278964", FullName: "gitlab-org/ci/runner",
		Owner: "gitlab-org", StargazersCount: 42, PreviousNames: []string{"gitlab-org/gitlab-runner"},
	}

	tests := []struct {
		name         string
		path         string
		setupMock    func(m *MockStore)
		wantStatus   int
		wantLocation string
	}{
		{
			name: "nested full name",
			path: "/v1/hosts/GitLab.com/repositories/gitlab-org/ci/runner",
			setupMock: func(m *MockStore) {
				m.On("GetRepositoryByFullName", mock.Anything, gitlab.ID, "gitlab-org/ci/runner").Return(repo, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "previous name redirects",
			path: "/v1/hosts/GitLab.com/repositories/gitlab-org/gitlab-runner",
			setupMock: func(m *MockStore) {
				m.On("GetRepositoryByFullName", mock.Anything, gitlab.ID, "gitlab-org/gitlab-runner").Return(model.Repository{}, custom_errors.ErrRecordNotFound).Once()
				m.On("GetRepositoryByPreviousName", mock.Anything, gitlab.ID, "gitlab-org/gitlab-runner").Return(repo, nil).Once()
			},
			wantStatus:   http.StatusMovedPermanently,
			wantLocation: "/v1/hosts/GitLab.com/repositories/gitlab-org/ci/runner",
		},
		{
			name: "missing",
			path: "/v1/hosts/GitLab.com/repositories/a/b",
			setupMock: func(m *MockStore) {
				m.On("GetRepositoryByFullName", mock.Anything, gitlab.ID, "a/b").Return(model.Repository{}, custom_errors.ErrRecordNotFound).Once()
				m.On("GetRepositoryByPreviousName", mock.Anything, gitlab.ID, "a/b").Return(model.Repository{}, custom_errors.ErrRecordNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "removed",
			path: "/v1/hosts/GitLab.com/repositories/a/gone",
			setupMock: func(m *MockStore) {
				m.On("GetRepositoryByFullName", mock.Anything, gitlab.ID, "a/gone").Return(model.Repository{FullName: "a/gone", Status: model.StatusRemoved}, nil).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown host",
			path:       "/v1/hosts/Nowhere/repositories/a/b",
			setupMock:  func(m *MockStore) {},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "not a full name",
			path:       "/v1/hosts/GitLab.com/repositories/justone",
			setupMock:  func(m *MockStore) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "store failure",
			path: "/v1/hosts/GitLab.com/repositories/a/b",
			setupMock: func(m *MockStore) {
				m.On("GetRepositoryByFullName", mock.Anything, gitlab.ID, "a/b").Return(model.Repository{}, assert.AnError).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, router := setup(t)
			tt.setupMock(store)

			rr := serve(router, http.MethodGet, tt.path)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, rr.Header().Get("Location"))
			}
			if tt.wantStatus == http.StatusOK {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, "gitlab-org/ci/runner", body["full_name"])
				assert.Equal(t, "https://gitlab.com/gitlab-org/ci/runner", body["html_url"])
				assert.EqualValues(t, 42, body["stargazers_count"])
			}
		})
	}
}

func TestGetOwner(t *testing.T) {
	tests := []struct {
		name       string
		owner      model.Owner
		err        error
		wantStatus int
	}{
		{name: "found", owner: model.Owner{Login: "gitlab-org", Kind: model.OwnerKindOrganization, TotalStars: 99}, wantStatus: http.StatusOK},
		{name: "hidden", owner: model.Owner{Login: "gitlab-org", Hidden: true}, wantStatus: http.StatusNotFound},
		{name: "missing", err: custom_errors.ErrRecordNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _, router := setup(t)
			store.On("GetOwnerByLogin", mock.Anything, gitlab.ID, "gitlab-org").Return(tt.owner, tt.err).Once()

			rr := serve(router, http.MethodGet, "/v1/hosts/GitLab.com/owners/gitlab-org")

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, rr.Body.String(), `"total_stars":99`)
			}
		})
	}
}

func TestPing(t *testing.T) {
	_, q, router := setup(t)

	rr := serve(router, http.MethodPost, "/v1/hosts/GitLab.com/repositories/gitlab-org/ci/runner/ping")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"status":"queued"}`, rr.Body.String())

	rr = serve(router, http.MethodPost, "/v1/hosts/GitLab.com/repositories/GITLAB-ORG/ci/runner/ping")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"status":"already_queued"}`, rr.Body.String())

	rr = serve(router, http.MethodPost, "/v1/hosts/GitLab.com/owners/gitlab-org/ping")
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = serve(router, http.MethodPost, "/v1/hosts/GitLab.com/repositories/gitlab-org/runner")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	jobs := q.Jobs(queue.KindSyncRepository)
	require.Len(t, jobs, 1)
	assert.Equal(t, "gitlab-org/ci/runner", jobs[0].Arg("full_name"))
	assert.Equal(t, "GitLab.com", jobs[0].Arg("host"))
	owners := q.Jobs(queue.KindSyncOwner)
	require.Len(t, owners, 1)
	assert.Equal(t, "gitlab-org", owners[0].Arg("login"))
	assert.Equal(t, "false", owners[0].Arg("force"))
}
