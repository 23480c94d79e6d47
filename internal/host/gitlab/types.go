// internal/host/gitlab/types.go
package gitlab

import (
	"strconv"

	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

type project struct {
	ID                int64    `json:"id"`
	PathWithNamespace string   `json:"path_with_namespace"`
	Description       string   `json:"description"`
	DefaultBranch     string   `json:"default_branch"`
	Topics            []string `json:"topics"`
	TagList           []string `json:"tag_list"`
	Archived          bool     `json:"archived"`
	Visibility        string   `json:"visibility"`
	StarCount         int      `json:"star_count"`
	ForksCount        int      `json:"forks_count"`
	OpenIssuesCount   int      `json:"open_issues_count"`
	IssuesEnabled     bool     `json:"issues_enabled"`
	WikiEnabled       bool     `json:"wiki_enabled"`
	PagesAccessLevel  string   `json:"pages_access_level"`
	Mirror            bool     `json:"mirror"`
	ImportURL         string   `json:"import_url"`
	CreatedAt         string   `json:"created_at"`
	LastActivityAt    string   `json:"last_activity_at"`
	Namespace         struct {
		FullPath string `json:"full_path"`
	} `json:"namespace"`
	ForkedFromProject *struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"forked_from_project"`
	License *struct {
		Key string `json:"key"`
	} `json:"license"`
}

func (p project) canonical() *model.CanonicalRepository {
	topics := p.Topics
	if len(topics) == 0 {
		topics = p.TagList
	}
	r := &model.CanonicalRepository{
		UUID:            strconv.FormatInt(p.ID, 10),
		FullName:        p.PathWithNamespace,
		Owner:           p.Namespace.FullPath,
		Description:     p.Description,
		DefaultBranch:   p.DefaultBranch,
		Topics:          topics,
		Fork:            p.ForkedFromProject != nil,
		Archived:        p.Archived,
		Private:         p.Visibility == "private",
		StargazersCount: p.StarCount,
		ForksCount:      p.ForksCount,
		OpenIssuesCount: p.OpenIssuesCount,
		HasIssues:       p.IssuesEnabled,
		HasWiki:         p.WikiEnabled,
		HasPages:        p.PagesAccessLevel != "" && p.PagesAccessLevel != "disabled",
		CreatedAt:       host.ParseTime(p.CreatedAt),
		UpdatedAt:       host.ParseTime(p.LastActivityAt),
		PushedAt:        host.ParseTime(p.LastActivityAt),
	}
	if r.Owner == "" {
		r.Owner, _, _ = model.SplitFullName(p.PathWithNamespace)
	}
	if p.ForkedFromProject != nil {
		r.SourceName = p.ForkedFromProject.PathWithNamespace
	}
	if p.License != nil {
		r.License = p.License.Key
	}
	if p.Mirror {
		r.MirrorURL = p.ImportURL
	}
	return r
}

type user struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	Bio          string `json:"bio"`
	PublicEmail  string `json:"public_email"`
	WebsiteURL   string `json:"website_url"`
	Location     string `json:"location"`
	Organization string `json:"organization"`
	Twitter      string `json:"twitter"`
	AvatarURL    string `json:"avatar_url"`
	Followers    int    `json:"followers"`
	Following    int    `json:"following"`
}

func (u user) canonical() *model.CanonicalOwner {
	return &model.CanonicalOwner{
		UUID:            strconv.FormatInt(u.ID, 10),
		Login:           u.Username,
		Kind:            model.OwnerKindUser,
		Name:            u.Name,
		Company:         u.Organization,
		Description:     u.Bio,
		Email:           u.PublicEmail,
		Website:         u.WebsiteURL,
		Location:        u.Location,
		TwitterUsername: u.Twitter,
		AvatarURL:       u.AvatarURL,
		Followers:       u.Followers,
		Following:       u.Following,
	}
}

type group struct {
	ID          int64  `json:"id"`
	FullPath    string `json:"full_path"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
}

func (g group) canonical() *model.CanonicalOwner {
	// Group ids share a sequence distinct from user ids.
	return &model.CanonicalOwner{
		UUID:        "group:" + strconv.FormatInt(g.ID, 10),
		Login:       g.FullPath,
		Kind:        model.OwnerKindOrganization,
		Name:        g.Name,
		Description: g.Description,
		AvatarURL:   g.AvatarURL,
	}
}

type tag struct {
	Name   string `json:"name"`
	Commit struct {
		ID        string `json:"id"`
		CreatedAt string `json:"created_at"`
	} `json:"commit"`
}

type release struct {
	TagName         string `json:"tag_name"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	CreatedAt       string `json:"created_at"`
	ReleasedAt      string `json:"released_at"`
	UpcomingRelease bool   `json:"upcoming_release"`
	Author          struct {
		Username string `json:"username"`
	} `json:"author"`
}

type treeEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
