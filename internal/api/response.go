// internal/api/response.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"forge-sync/internal/model"
)

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

type hostResponse struct {
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	LastCrawledAt *time.Time `json:"last_crawled_at"`
}

func newHostResponse(h model.Host) hostResponse {
	return hostResponse{
		Name:          h.Name,
		URL:           h.URL,
		Kind:          h.Kind,
		Status:        h.Status,
		LastCrawledAt: h.LastCrawledAt,
	}
}

type repositoryResponse struct {
	UUID                 string         `json:"uuid"`
	FullName             string         `json:"full_name"`
	Owner                string         `json:"owner"`
	Host                 string         `json:"host"`
	URL                  string         `json:"html_url"`
	PreviousNames        []string       `json:"previous_names"`
	Description          string         `json:"description"`
	Homepage             string         `json:"homepage"`
	Language             string         `json:"language"`
	License              string         `json:"license"`
	DefaultBranch        string         `json:"default_branch"`
	Topics               []string       `json:"topics"`
	Fork                 bool           `json:"fork"`
	SourceName           string         `json:"source_name"`
	Archived             bool           `json:"archived"`
	Template             bool           `json:"template"`
	MirrorURL            string         `json:"mirror_url"`
	StargazersCount      int            `json:"stargazers_count"`
	ForksCount           int            `json:"forks_count"`
	OpenIssuesCount      int            `json:"open_issues_count"`
	SubscribersCount     int            `json:"subscribers_count"`
	Size                 int            `json:"size"`
	TagsCount            int            `json:"tags_count"`
	HasIssues            bool           `json:"has_issues"`
	HasWiki              bool           `json:"has_wiki"`
	HasPages             bool           `json:"has_pages"`
	CreatedAt            *time.Time     `json:"created_at"`
	UpdatedAt            *time.Time     `json:"updated_at"`
	PushedAt             *time.Time     `json:"pushed_at"`
	LastSyncedAt         *time.Time     `json:"last_synced_at"`
	DependenciesParsedAt *time.Time     `json:"dependencies_parsed_at"`
	Metadata             model.Metadata `json:"metadata"`
}

func newRepositoryResponse(h model.Host, r model.Repository) repositoryResponse {
	return repositoryResponse{
		UUID:                 r.UUID,
		FullName:             r.FullName,
		Owner:                r.Owner,
		Host:                 h.Name,
		URL:                  h.URL + "/" + r.FullName,
		PreviousNames:        r.PreviousNames,
		Description:          r.Description,
		Homepage:             r.Homepage,
		Language:             r.Language,
		License:              r.License,
		DefaultBranch:        r.DefaultBranch,
		Topics:               r.Topics,
		Fork:                 r.Fork,
		SourceName:           r.SourceName,
		Archived:             r.Archived,
		Template:             r.Template,
		MirrorURL:            r.MirrorURL,
		StargazersCount:      r.StargazersCount,
		ForksCount:           r.ForksCount,
		OpenIssuesCount:      r.OpenIssuesCount,
		SubscribersCount:     r.SubscribersCount,
		Size:                 r.Size,
		TagsCount:            r.TagsCount,
		HasIssues:            r.HasIssues,
		HasWiki:              r.HasWiki,
		HasPages:             r.HasPages,
		CreatedAt:            r.RepoCreatedAt,
		UpdatedAt:            r.RepoUpdatedAt,
		PushedAt:             r.PushedAt,
		LastSyncedAt:         r.LastSyncedAt,
		DependenciesParsedAt: r.DependenciesParsedAt,
		Metadata:             r.Metadata,
	}
}

type ownerResponse struct {
	UUID              string     `json:"uuid"`
	Login             string     `json:"login"`
	Kind              string     `json:"kind"`
	Host              string     `json:"host"`
	Name              string     `json:"name"`
	Company           string     `json:"company"`
	Description       string     `json:"description"`
	Email             string     `json:"email"`
	Website           string     `json:"website"`
	Location          string     `json:"location"`
	TwitterUsername   string     `json:"twitter"`
	AvatarURL         string     `json:"icon_url"`
	RepositoriesCount int        `json:"repositories_count"`
	TotalStars        int64      `json:"total_stars"`
	Followers         int        `json:"followers"`
	Following         int        `json:"following"`
	LastSyncedAt      *time.Time `json:"last_synced_at"`
}

func newOwnerResponse(h model.Host, o model.Owner) ownerResponse {
	return ownerResponse{
		UUID:              o.UUID,
		Login:             o.Login,
		Kind:              o.Kind,
		Host:              h.Name,
		Name:              o.Name,
		Company:           o.Company,
		Description:       o.Description,
		Email:             o.Email,
		Website:           o.Website,
		Location:          o.Location,
		TwitterUsername:   o.TwitterUsername,
		AvatarURL:         o.AvatarURL,
		RepositoriesCount: o.RepositoriesCount,
		TotalStars:        o.TotalStars,
		Followers:         o.Followers,
		Following:         o.Following,
		LastSyncedAt:      o.LastSyncedAt,
	}
}
