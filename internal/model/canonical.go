// internal/model/canonical.go
package model

import (
	"strings"
	"time"

	custom_errors "forge-sync/internal/errors"
)

// Identifier addresses an upstream repository. UUID is preferred because it
// survives renames; FullName is the fallback.
type Identifier struct {
	UUID     string
	FullName string
}

func (id Identifier) String() string {
	if id.UUID != "" {
		return "uuid:" + id.UUID
	}
	return id.FullName
}

// CanonicalRepository is the provider-agnostic repository shape produced by an adapter.
type CanonicalRepository struct {
	UUID             string
	FullName         string
	Owner            string
	Description      string
	Homepage         string
	Language         string
	License          string
	DefaultBranch    string
	Topics           []string
	Fork             bool
	SourceName       string
	Archived         bool
	Private          bool
	Template         bool
	MirrorURL        string
	StargazersCount  int
	ForksCount       int
	OpenIssuesCount  int
	SubscribersCount int
	Size             int
	HasIssues        bool
	HasWiki          bool
	HasPages         bool
	CreatedAt        *time.Time
	UpdatedAt        *time.Time
	PushedAt         *time.Time
}

// CanonicalOwner is the provider-agnostic owner shape produced by an adapter.
type CanonicalOwner struct {
	UUID            string
	Login           string
	Kind            string
	Name            string
	Company         string
	Description     string
	Email           string
	Website         string
	Location        string
	TwitterUsername string
	AvatarURL       string
	Followers       int
	Following       int
}

// CanonicalTag is one upstream tag.
type CanonicalTag struct {
	Name        string
	SHA         string
	Kind        string
	PublishedAt *time.Time
}

// CanonicalRelease is one upstream release.
type CanonicalRelease struct {
	UUID            string
	TagName         string
	Name            string
	TargetCommitish string
	Body            string
	Draft           bool
	Prerelease      bool
	PublishedAt     *time.Time
	CreatedAt       *time.Time
	AuthorLogin     string
}

// SplitFullName splits "owner/name" into its parts. Nested group paths keep
// everything before the last slash as the owner.
func SplitFullName(fullName string) (owner, name string, err error) {
	fullName = strings.Trim(strings.TrimSpace(fullName), "/")
	i := strings.LastIndex(fullName, "/")
	if i <= 0 || i == len(fullName)-1 {
		return "", "", &custom_errors.ErrInvalidFullName{FullName: fullName}
	}
	return fullName[:i], fullName[i+1:], nil
}
