// internal/syncer/fakes_test.go
package syncer

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
	"forge-sync/internal/parser"
	"forge-sync/internal/queue"
)

// fakeStore is an in-memory Store enforcing the same unique keys as the schema.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	hosts     map[int64]model.Host
	repos     map[int64]*model.Repository
	owners    map[int64]*model.Owner
	tags      map[int64][]model.Tag
	releases  map[int64][]model.Release
	manifests map[int64][]model.Manifest
	writes    int
	touches   int
	hooks     map[string]func()
}

func newFakeStore(hosts ...model.Host) *fakeStore {
	s := &fakeStore{
		hosts:     map[int64]model.Host{},
		repos:     map[int64]*model.Repository{},
		owners:    map[int64]*model.Owner{},
		tags:      map[int64][]model.Tag{},
		releases:  map[int64][]model.Release{},
		manifests: map[int64][]model.Manifest{},
		nextID:    100,
		hooks:     map[string]func(){},
	}
	for _, h := range hosts {
		s.hosts[h.ID] = h
	}
	return s
}

// interleave runs fn once, outside the lock, right before the next call of op.
func (s *fakeStore) interleave(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[op] = fn
}

func (s *fakeStore) runHook(op string) {
	s.mu.Lock()
	fn := s.hooks[op]
	delete(s.hooks, op)
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

// seedRepository inserts r as is and returns its id.
func (s *fakeStore) seedRepository(r model.Repository) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	if r.Metadata == nil {
		r.Metadata = model.Metadata{}
	}
	s.repos[r.ID] = cloneRepository(&r)
	return r.ID
}

func (s *fakeStore) seedOwner(o model.Owner) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		o.ID = s.id()
	}
	s.owners[o.ID] = &o
	return o.ID
}

func (s *fakeStore) repository(id int64) *model.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return nil
	}
	return cloneRepository(r)
}

func (s *fakeStore) repositoryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.repos)
}

func (s *fakeStore) GetHost(_ context.Context, id int64) (model.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hosts[id]
	if !ok {
		return model.Host{}, custom_errors.ErrRecordNotFound
	}
	return h, nil
}

func (s *fakeStore) GetHostByName(_ context.Context, name string) (model.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.hosts {
		if strings.EqualFold(h.Name, name) {
			return h, nil
		}
	}
	return model.Host{}, custom_errors.ErrRecordNotFound
}

func (s *fakeStore) findRepo(match func(r *model.Repository) bool) (model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := slices.Sorted(maps.Keys(s.repos))
	for _, id := range ids {
		if r := s.repos[id]; match(r) {
			return *cloneRepository(r), nil
		}
	}
	return model.Repository{}, custom_errors.ErrRecordNotFound
}

func (s *fakeStore) GetRepositoryByID(_ context.Context, id int64) (model.Repository, error) {
	return s.findRepo(func(r *model.Repository) bool { return r.ID == id })
}

func (s *fakeStore) GetRepositoryByFullName(_ context.Context, hostID int64, fullName string) (model.Repository, error) {
	return s.findRepo(func(r *model.Repository) bool {
		return r.HostID == hostID && strings.EqualFold(r.FullName, fullName)
	})
}

func (s *fakeStore) GetRepositoryByUUID(_ context.Context, hostID int64, uuid string) (model.Repository, error) {
	return s.findRepo(func(r *model.Repository) bool { return r.HostID == hostID && r.UUID == uuid })
}

func (s *fakeStore) conflicts(r *model.Repository) bool {
	for _, other := range s.repos {
		if other.ID == r.ID || other.HostID != r.HostID {
			continue
		}
		if other.UUID == r.UUID || strings.EqualFold(other.FullName, r.FullName) {
			return true
		}
	}
	return false
}

func (s *fakeStore) CreateRepository(_ context.Context, r *model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(r) {
		return custom_errors.ErrConflict
	}
	r.ID = s.id()
	s.repos[r.ID] = cloneRepository(r)
	s.writes++
	return nil
}

// UpdateRepository writes only the sync-owned fields, like the real statement.
func (s *fakeStore) UpdateRepository(_ context.Context, r *model.Repository) error {
	s.runHook("UpdateRepository")
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.repos[r.ID]
	if !ok {
		return custom_errors.ErrRecordNotFound
	}
	if s.conflicts(r) {
		return custom_errors.ErrConflict
	}
	next := cloneRepository(r)
	next.HostID = stored.HostID
	next.TagsCount = stored.TagsCount
	next.TagsLastSyncedAt = stored.TagsLastSyncedAt
	next.DependenciesParsedAt = stored.DependenciesParsedAt
	next.Metadata = maps.Clone(stored.Metadata)
	s.repos[r.ID] = next
	s.writes++
	return nil
}

func (s *fakeStore) UpdateRepositoryTags(_ context.Context, id int64, count int, syncedAt time.Time, latestTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return nil
	}
	r.TagsCount = count
	r.TagsLastSyncedAt = &syncedAt
	if latestTag == "" {
		delete(r.Metadata, "latest_tag")
	} else {
		r.Metadata["latest_tag"] = latestTag
	}
	s.writes++
	return nil
}

func (s *fakeStore) SetRepositoryMetadata(_ context.Context, id int64, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[id]; ok {
		r.Metadata[key] = value
		s.writes++
	}
	return nil
}

func (s *fakeStore) MarkDependenciesParsed(_ context.Context, id int64, at time.Time, parseError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return nil
	}
	r.DependenciesParsedAt = &at
	if parseError == "" {
		delete(r.Metadata, "dependency_error")
	} else {
		r.Metadata["dependency_error"] = parseError
	}
	s.writes++
	return nil
}

func (s *fakeStore) TouchRepository(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[id]; ok {
		r.LastSyncedAt = &at
	}
	s.touches++
	return nil
}

func (s *fakeStore) DeleteRepository(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, id)
	delete(s.tags, id)
	delete(s.releases, id)
	delete(s.manifests, id)
	return nil
}

func (s *fakeStore) ListOwnerRepositoryNames(_ context.Context, hostID int64, owner string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, r := range s.repos {
		if r.HostID == hostID && strings.EqualFold(r.Owner, owner) && !r.Removed() {
			names = append(names, r.FullName)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeStore) OwnerRepositoryStats(_ context.Context, hostID int64, owner string) (int, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, stars := 0, int64(0)
	for _, r := range s.repos {
		if r.HostID == hostID && strings.EqualFold(r.Owner, owner) && !r.Removed() {
			count++
			stars += int64(r.StargazersCount)
		}
	}
	return count, stars, nil
}

func (s *fakeStore) findOwner(match func(o *model.Owner) bool) (model.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.owners {
		if match(o) {
			return *o, nil
		}
	}
	return model.Owner{}, custom_errors.ErrRecordNotFound
}

func (s *fakeStore) GetOwnerByLogin(_ context.Context, hostID int64, login string) (model.Owner, error) {
	return s.findOwner(func(o *model.Owner) bool { return o.HostID == hostID && strings.EqualFold(o.Login, login) })
}

func (s *fakeStore) GetOwnerByUUID(_ context.Context, hostID int64, uuid string) (model.Owner, error) {
	return s.findOwner(func(o *model.Owner) bool { return uuid != "" && o.HostID == hostID && o.UUID == uuid })
}

func (s *fakeStore) CreateOwner(_ context.Context, o *model.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.owners {
		if other.HostID == o.HostID && strings.EqualFold(other.Login, o.Login) {
			return custom_errors.ErrConflict
		}
	}
	o.ID = s.id()
	c := *o
	s.owners[o.ID] = &c
	s.writes++
	return nil
}

func (s *fakeStore) UpdateOwner(_ context.Context, o *model.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *o
	s.owners[o.ID] = &c
	s.writes++
	return nil
}

func (s *fakeStore) DeleteOwner(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.owners, id)
	return nil
}

func (s *fakeStore) SyncTags(_ context.Context, repositoryID int64, tags []model.Tag) (int, error) {
	s.runHook("SyncTags")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[repositoryID] = slices.Clone(tags)
	return len(tags), nil
}

func (s *fakeStore) SyncReleases(_ context.Context, repositoryID int64, releases []model.Release) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[repositoryID] = slices.Clone(releases)
	return len(releases), nil
}

func (s *fakeStore) SyncManifests(_ context.Context, repositoryID int64, manifests []model.Manifest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[repositoryID] = slices.Clone(manifests)
	n := 0
	for _, m := range manifests {
		n += len(m.Dependencies)
	}
	return n, nil
}

// MockAdapter is a testify mock of host.Adapter.
type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) Kind() string { return model.KindGitHub }

func (m *MockAdapter) FetchRepository(ctx context.Context, id model.Identifier) (*model.CanonicalRepository, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*model.CanonicalRepository)
	return r, args.Error(1)
}

func (m *MockAdapter) FetchOwner(ctx context.Context, login string) (*model.CanonicalOwner, error) {
	args := m.Called(ctx, login)
	o, _ := args.Get(0).(*model.CanonicalOwner)
	return o, args.Error(1)
}

func (m *MockAdapter) EnumerateRecent(ctx context.Context, since time.Duration) iter.Seq2[string, error] {
	args := m.Called(ctx, since)
	return args.Get(0).(iter.Seq2[string, error])
}

func (m *MockAdapter) CrawlPage(ctx context.Context, cursor string) (host.Page, error) {
	args := m.Called(ctx, cursor)
	return args.Get(0).(host.Page), args.Error(1)
}

func (m *MockAdapter) FetchTags(ctx context.Context, fullName string) ([]model.CanonicalTag, error) {
	args := m.Called(ctx, fullName)
	tags, _ := args.Get(0).([]model.CanonicalTag)
	return tags, args.Error(1)
}

func (m *MockAdapter) FetchReleases(ctx context.Context, fullName string) ([]model.CanonicalRelease, error) {
	args := m.Called(ctx, fullName)
	releases, _ := args.Get(0).([]model.CanonicalRelease)
	return releases, args.Error(1)
}

func (m *MockAdapter) FetchFiles(ctx context.Context, fullName, ref string) ([]string, error) {
	args := m.Called(ctx, fullName, ref)
	files, _ := args.Get(0).([]string)
	return files, args.Error(1)
}

func (m *MockAdapter) OwnerURL(login string) string { return "https://github.com/" + login }

func (m *MockAdapter) RepositoryURL(fullName string) string { return "https://github.com/" + fullName }

func (m *MockAdapter) ArchiveURL(fullName, ref string) string {
	return "https://github.com/" + fullName + "/archive/" + ref + ".zip"
}

type staticAdapters struct{ adapter host.Adapter }

func (s staticAdapters) For(model.Host) (host.Adapter, error) { return s.adapter, nil }

// MockParser is a testify mock of the parsing service.
type MockParser struct {
	mock.Mock
}

func (m *MockParser) Submit(ctx context.Context, archiveURL string) (string, error) {
	args := m.Called(ctx, archiveURL)
	return args.String(0), args.Error(1)
}

func (m *MockParser) Poll(ctx context.Context, jobID string) (*parser.Result, error) {
	args := m.Called(ctx, jobID)
	r, _ := args.Get(0).(*parser.Result)
	return r, args.Error(1)
}

type fakeProfileChecker struct {
	status int
	urls   []string
}

func (p *fakeProfileChecker) Head(_ context.Context, url string) (int, error) {
	p.urls = append(p.urls, url)
	return p.status, nil
}

var (
	testHost = model.Host{ID: 1, Name: "GitHub", Kind: model.KindGitHub, URL: "https://github.com"}
	testNow  = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

type harness struct {
	engine   *Engine
	store    *fakeStore
	adapter  *MockAdapter
	parser   *MockParser
	profiles *fakeProfileChecker
	queue    *queue.MemoryQueue
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    newFakeStore(testHost),
		adapter:  new(MockAdapter),
		parser:   new(MockParser),
		profiles: &fakeProfileChecker{status: 200},
		clock:    testNow,
	}
	h.queue = queue.NewMemoryQueue().WithClock(func() time.Time { return h.clock })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.engine = New(h.store, staticAdapters{h.adapter}, h.queue, h.parser, h.profiles, logger).
		WithClock(func() time.Time { return h.clock })
	t.Cleanup(func() {
		h.adapter.AssertExpectations(t)
		h.parser.AssertExpectations(t)
	})
	return h
}

func ptrTime(t time.Time) *time.Time { return &t }

func helloWorld() *model.CanonicalRepository {
	return &model.CanonicalRepository{
		UUID:            "123",
		FullName:        "octocat/Hello-World",
		Owner:           "octocat",
		Description:     "My first repository on GitHub!",
		DefaultBranch:   "master",
		StargazersCount: 10,
		Topics:          []string{"demo"},
		CreatedAt:       ptrTime(time.Date(2011, 1, 26, 19, 1, 12, 0, time.UTC)),
		UpdatedAt:       ptrTime(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)),
		PushedAt:        ptrTime(time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC)),
	}
}

func kindsOf(jobs []queue.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Kind
	}
	return out
}
