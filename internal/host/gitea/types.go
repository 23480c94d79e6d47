// internal/host/gitea/types.go
package gitea

import (
	"strconv"

	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

type repository struct {
	ID              int64    `json:"id"`
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	Website         string   `json:"website"`
	Language        string   `json:"language"`
	DefaultBranch   string   `json:"default_branch"`
	Topics          []string `json:"topics"`
	Licenses        []string `json:"licenses"`
	Fork            bool     `json:"fork"`
	Archived        bool     `json:"archived"`
	Private         bool     `json:"private"`
	Template        bool     `json:"template"`
	Mirror          bool     `json:"mirror"`
	OriginalURL     string   `json:"original_url"`
	StarsCount      int      `json:"stars_count"`
	ForksCount      int      `json:"forks_count"`
	OpenIssuesCount int      `json:"open_issues_count"`
	WatchersCount   int      `json:"watchers_count"`
	Size            int      `json:"size"`
	HasIssues       bool     `json:"has_issues"`
	HasWiki         bool     `json:"has_wiki"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	Owner           struct {
		Login string `json:"login"`
	} `json:"owner"`
	Parent *struct {
		FullName string `json:"full_name"`
	} `json:"parent"`
}

func (r repository) canonical() *model.CanonicalRepository {
	c := &model.CanonicalRepository{
		UUID:             strconv.FormatInt(r.ID, 10),
		FullName:         r.FullName,
		Owner:            r.Owner.Login,
		Description:      r.Description,
		Homepage:         r.Website,
		Language:         r.Language,
		DefaultBranch:    r.DefaultBranch,
		Topics:           r.Topics,
		Fork:             r.Fork,
		Archived:         r.Archived,
		Private:          r.Private,
		Template:         r.Template,
		StargazersCount:  r.StarsCount,
		ForksCount:       r.ForksCount,
		OpenIssuesCount:  r.OpenIssuesCount,
		SubscribersCount: r.WatchersCount,
		Size:             r.Size,
		HasIssues:        r.HasIssues,
		HasWiki:          r.HasWiki,
		CreatedAt:        host.ParseTime(r.CreatedAt),
		UpdatedAt:        host.ParseTime(r.UpdatedAt),
		PushedAt:         host.ParseTime(r.UpdatedAt),
	}
	if len(r.Licenses) > 0 {
		c.License = r.Licenses[0]
	}
	if r.Parent != nil {
		c.SourceName = r.Parent.FullName
	}
	if r.Mirror {
		c.MirrorURL = r.OriginalURL
	}
	return c
}

type searchResult struct {
	OK   bool         `json:"ok"`
	Data []repository `json:"data"`
}

type user struct {
	ID             int64  `json:"id"`
	Login          string `json:"login"`
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Website        string `json:"website"`
	Location       string `json:"location"`
	Description    string `json:"description"`
	AvatarURL      string `json:"avatar_url"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
}

func (u user) canonical() *model.CanonicalOwner {
	return &model.CanonicalOwner{
		UUID:        strconv.FormatInt(u.ID, 10),
		Login:       u.Login,
		Kind:        model.OwnerKindUser,
		Name:        u.FullName,
		Description: u.Description,
		Email:       u.Email,
		Website:     u.Website,
		Location:    u.Location,
		AvatarURL:   u.AvatarURL,
		Followers:   u.FollowersCount,
		Following:   u.FollowingCount,
	}
}

type organization struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Location    string `json:"location"`
	AvatarURL   string `json:"avatar_url"`
}

func (o organization) canonical() *model.CanonicalOwner {
	return &model.CanonicalOwner{
		UUID:        strconv.FormatInt(o.ID, 10),
		Login:       o.Name,
		Kind:        model.OwnerKindOrganization,
		Name:        o.FullName,
		Description: o.Description,
		Website:     o.Website,
		Location:    o.Location,
		AvatarURL:   o.AvatarURL,
	}
}

type tag struct {
	Name   string `json:"name"`
	Commit struct {
		SHA     string `json:"sha"`
		Created string `json:"created"`
	} `json:"commit"`
}

type release struct {
	ID              int64  `json:"id"`
	TagName         string `json:"tag_name"`
	Name            string `json:"name"`
	TargetCommitish string `json:"target_commitish"`
	Body            string `json:"body"`
	Draft           bool   `json:"draft"`
	Prerelease      bool   `json:"prerelease"`
	CreatedAt       string `json:"created_at"`
	PublishedAt     string `json:"published_at"`
	Author          struct {
		Login string `json:"login"`
	} `json:"author"`
}

func (r release) canonical() model.CanonicalRelease {
	return model.CanonicalRelease{
		UUID:            strconv.FormatInt(r.ID, 10),
		TagName:         r.TagName,
		Name:            r.Name,
		TargetCommitish: r.TargetCommitish,
		Body:            r.Body,
		Draft:           r.Draft,
		Prerelease:      r.Prerelease,
		PublishedAt:     host.ParseTime(r.PublishedAt),
		CreatedAt:       host.ParseTime(r.CreatedAt),
		AuthorLogin:     r.Author.Login,
	}
}

type contentEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
