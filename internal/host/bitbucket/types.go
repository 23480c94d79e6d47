// internal/host/bitbucket/types.go
package bitbucket

import (
	"strings"

	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

type paginated[T any] struct {
	Values []T    `json:"values"`
	Next   string `json:"next"`
}

type repository struct {
	UUID        string `json:"uuid"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Language    string `json:"language"`
	IsPrivate   bool   `json:"is_private"`
	HasIssues   bool   `json:"has_issues"`
	HasWiki     bool   `json:"has_wiki"`
	Size        int    `json:"size"`
	CreatedOn   string `json:"created_on"`
	UpdatedOn   string `json:"updated_on"`
	Workspace   struct {
		Slug string `json:"slug"`
	} `json:"workspace"`
	Mainbranch *struct {
		Name string `json:"name"`
	} `json:"mainbranch"`
	Parent *struct {
		FullName string `json:"full_name"`
	} `json:"parent"`
}

func (r repository) canonical() *model.CanonicalRepository {
	c := &model.CanonicalRepository{
		UUID:        strings.Trim(r.UUID, "{}"),
		FullName:    r.FullName,
		Owner:       r.Workspace.Slug,
		Description: r.Description,
		Homepage:    r.Website,
		Language:    r.Language,
		Fork:        r.Parent != nil,
		Private:     r.IsPrivate,
		HasIssues:   r.HasIssues,
		HasWiki:     r.HasWiki,
		Size:        r.Size / 1024,
		CreatedAt:   host.ParseTime(r.CreatedOn),
		UpdatedAt:   host.ParseTime(r.UpdatedOn),
		PushedAt:    host.ParseTime(r.UpdatedOn),
	}
	if c.Owner == "" {
		c.Owner, _, _ = model.SplitFullName(r.FullName)
	}
	if r.Mainbranch != nil {
		c.DefaultBranch = r.Mainbranch.Name
	}
	if r.Parent != nil {
		c.SourceName = r.Parent.FullName
	}
	return c
}

type ref struct {
	Name   string `json:"name"`
	Target struct {
		Hash string `json:"hash"`
		Date string `json:"date"`
	} `json:"target"`
}

type srcEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}
