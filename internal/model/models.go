// internal/model/models.go
package model

import (
	"strings"
	"time"
)

// StatusRemoved marks a repository that upstream reports as gone.
const StatusRemoved = "Removed"

// Host kinds, used to select an adapter.
const (
	KindGitHub    = "github"
	KindGitLab    = "gitlab"
	KindGitea     = "gitea"
	KindForgejo   = "forgejo"
	KindBitbucket = "bitbucket"
	KindSourceHut = "sourcehut"
)

// Host is a hosting provider instance.
type Host struct {
	ID            int64
	Name          string
	URL           string
	Kind          string
	Status        string
	Version       string
	LastCrawledAt *time.Time
	DBCreatedAt   time.Time
	DBUpdatedAt   time.Time
}

// Metadata holds derived or optional facts about a record.
type Metadata map[string]any

// Repository is the stored, normalized record of one upstream repository.
type Repository struct {
	ID                   int64
	HostID               int64
	UUID                 string
	FullName             string
	Owner                string
	PreviousNames        []string
	Description          string
	Homepage             string
	Language             string
	License              string
	DefaultBranch        string
	Topics               []string
	Fork                 bool
	SourceName           string
	Archived             bool
	Private              bool
	Template             bool
	MirrorURL            string
	StargazersCount      int
	ForksCount           int
	OpenIssuesCount      int
	SubscribersCount     int
	Size                 int
	TagsCount            int
	HasIssues            bool
	HasWiki              bool
	HasPages             bool
	RepoCreatedAt        *time.Time
	RepoUpdatedAt        *time.Time
	PushedAt             *time.Time
	LastSyncedAt         *time.Time
	DependenciesParsedAt *time.Time
	TagsLastSyncedAt     *time.Time
	Status               string
	Metadata             Metadata
	DBCreatedAt          time.Time
	DBUpdatedAt          time.Time
}

// Removed reports whether the repository has been soft-deleted.
func (r *Repository) Removed() bool { return r.Status == StatusRemoved }

// Name returns the repository path segment after the owner.
func (r *Repository) Name() string {
	if i := strings.LastIndex(r.FullName, "/"); i >= 0 {
		return r.FullName[i+1:]
	}
	return r.FullName
}

// Owner is a host-scoped user or organization account.
type Owner struct {
	ID                int64
	HostID            int64
	UUID              string
	Login             string
	Kind              string
	Name              string
	Company           string
	Description       string
	Email             string
	Website           string
	Location          string
	TwitterUsername   string
	AvatarURL         string
	Hidden            bool
	RepositoriesCount int
	TotalStars        int64
	Followers         int
	Following         int
	LastSyncedAt      *time.Time
	Metadata          Metadata
	DBCreatedAt       time.Time
	DBUpdatedAt       time.Time
}

// Owner kinds.
const (
	OwnerKindUser         = "user"
	OwnerKindOrganization = "organization"
)

// Tag is a git tag of a repository, keyed by name.
type Tag struct {
	ID           int64
	RepositoryID int64
	Name         string
	SHA          string
	Kind         string
	PublishedAt  *time.Time
}

// Release is a published release of a repository, keyed by tag name.
type Release struct {
	ID              int64
	RepositoryID    int64
	TagName         string
	UUID            string
	Name            string
	TargetCommitish string
	Body            string
	Draft           bool
	Prerelease      bool
	PublishedAt     *time.Time
	ReleaseCreated  *time.Time
	AuthorLogin     string
}

// Manifest is a dependency manifest file, keyed by ecosystem and filepath.
type Manifest struct {
	ID           int64
	RepositoryID int64
	Ecosystem    string
	Filepath     string
	Kind         string
	Dependencies []Dependency
}

// Dependency is one entry declared by a manifest.
type Dependency struct {
	ID           int64
	ManifestID   int64
	RepositoryID int64
	PackageName  string
	Ecosystem    string
	Requirements string
	Kind         string
	Direct       bool
	Optional     bool
}

// Import is the ledger row for one externally-sourced batch.
type Import struct {
	ID                int64
	Filename          string
	Success           bool
	EventsCount       int
	RepositoriesCount int
	Error             string
	DBCreatedAt       time.Time
}
