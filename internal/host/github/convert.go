// internal/host/github/convert.go
package github

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/go-github/v62/github"

	"forge-sync/internal/host"
	"forge-sync/internal/model"
)

// toCanonicalRepository translates a github.Repository object to the canonical repository shape.
func toCanonicalRepository(r *github.Repository) *model.CanonicalRepository {
	source := r.GetSource().GetFullName()
	if source == "" {
		source = r.GetParent().GetFullName()
	}
	return &model.CanonicalRepository{
		UUID:             strconv.FormatInt(r.GetID(), 10),
		FullName:         r.GetFullName(),
		Owner:            r.GetOwner().GetLogin(),
		Description:      r.GetDescription(),
		Homepage:         r.GetHomepage(),
		Language:         r.GetLanguage(),
		License:          r.GetLicense().GetSPDXID(),
		DefaultBranch:    r.GetDefaultBranch(),
		Topics:           r.Topics,
		Fork:             r.GetFork(),
		SourceName:       source,
		Archived:         r.GetArchived(),
		Private:          r.GetPrivate(),
		Template:         r.GetIsTemplate(),
		MirrorURL:        r.GetMirrorURL(),
		StargazersCount:  r.GetStargazersCount(),
		ForksCount:       r.GetForksCount(),
		OpenIssuesCount:  r.GetOpenIssuesCount(),
		SubscribersCount: r.GetSubscribersCount(),
		Size:             r.GetSize(),
		HasIssues:        r.GetHasIssues(),
		HasWiki:          r.GetHasWiki(),
		HasPages:         r.GetHasPages(),
		CreatedAt:        timestamp(r.CreatedAt),
		UpdatedAt:        timestamp(r.UpdatedAt),
		PushedAt:         timestamp(r.PushedAt),
	}
}

// toCanonicalOwner translates a github.User, which covers organizations too.
func toCanonicalOwner(u *github.User) *model.CanonicalOwner {
	kind := model.OwnerKindUser
	if u.GetType() == "Organization" {
		kind = model.OwnerKindOrganization
	}
	return &model.CanonicalOwner{
		UUID:            strconv.FormatInt(u.GetID(), 10),
		Login:           u.GetLogin(),
		Kind:            kind,
		Name:            u.GetName(),
		Company:         u.GetCompany(),
		Description:     u.GetBio(),
		Email:           u.GetEmail(),
		Website:         u.GetBlog(),
		Location:        u.GetLocation(),
		TwitterUsername: u.GetTwitterUsername(),
		AvatarURL:       u.GetAvatarURL(),
		Followers:       u.GetFollowers(),
		Following:       u.GetFollowing(),
	}
}

func toCanonicalRelease(r *github.RepositoryRelease) model.CanonicalRelease {
	return model.CanonicalRelease{
		UUID:            strconv.FormatInt(r.GetID(), 10),
		TagName:         r.GetTagName(),
		Name:            r.GetName(),
		TargetCommitish: r.GetTargetCommitish(),
		Body:            r.GetBody(),
		Draft:           r.GetDraft(),
		Prerelease:      r.GetPrerelease(),
		PublishedAt:     timestamp(r.PublishedAt),
		CreatedAt:       timestamp(r.CreatedAt),
		AuthorLogin:     r.GetAuthor().GetLogin(),
	}
}

func timestamp(ts *github.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	return host.TimePtr(ts.Time)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
