// internal/syncer/tags.go
package syncer

import (
	"context"
	"errors"
	"fmt"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
	"forge-sync/internal/semver"
)

// SyncTags replaces a repository's tags and releases with upstream's and
// records the newest tag. Repositories whose tags were synced within the
// cooldown are skipped unless force is set.
func (e *Engine) SyncTags(ctx context.Context, h model.Host, fullName string, force bool) (*model.Repository, error) {
	logger := e.logger.With("host", h.Name, "repository", fullName)

	repo, err := lookup(e.store.GetRepositoryByFullName(ctx, h.ID, fullName))
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", fullName, err)
	}
	if repo == nil || repo.Removed() {
		logger.Debug("Repository not tracked, skipping tags")
		return repo, nil
	}
	if !force && repo.TagsLastSyncedAt != nil && e.now().Sub(*repo.TagsLastSyncedAt) < e.cfg.TagsCooldown {
		logger.Debug("Tags synced recently, skipping", "tags_last_synced_at", repo.TagsLastSyncedAt)
		return repo, nil
	}

	adapter, err := e.adapterFor(h)
	if err != nil {
		return nil, err
	}

	upstreamTags, err := adapter.FetchTags(ctx, repo.FullName)
	if custom_errors.IsNotFound(err) {
		// The repository itself is likely gone; its own sync decides that.
		logger.Info("Tags not found upstream")
		return repo, nil
	}
	if err != nil {
		if soft(logger, "fetch_tags", err) {
			return repo, nil
		}
		return nil, fmt.Errorf("fetching tags of %s: %w", repo.FullName, err)
	}

	tags := make([]model.Tag, 0, len(upstreamTags))
	for _, t := range upstreamTags {
		tags = append(tags, model.Tag{Name: t.Name, SHA: t.SHA, Kind: t.Kind, PublishedAt: normalizeTime(t.PublishedAt)})
	}
	count, err := e.store.SyncTags(ctx, repo.ID, tags)
	if err != nil {
		return nil, fmt.Errorf("storing tags of %s: %w", repo.FullName, err)
	}

	upstreamReleases, err := adapter.FetchReleases(ctx, repo.FullName)
	switch {
	case errors.Is(err, custom_errors.ErrUnsupported):
	case custom_errors.IsNotFound(err), custom_errors.IsIgnorable(err):
		logger.Warn("Could not fetch releases", "error", err)
	case err != nil:
		return nil, fmt.Errorf("fetching releases of %s: %w", repo.FullName, err)
	default:
		releases := make([]model.Release, 0, len(upstreamReleases))
		for _, r := range upstreamReleases {
			releases = append(releases, model.Release{
				TagName:         r.TagName,
				UUID:            r.UUID,
				Name:            r.Name,
				TargetCommitish: r.TargetCommitish,
				Body:            r.Body,
				Draft:           r.Draft,
				Prerelease:      r.Prerelease,
				PublishedAt:     normalizeTime(r.PublishedAt),
				ReleaseCreated:  normalizeTime(r.CreatedAt),
				AuthorLogin:     r.AuthorLogin,
			})
		}
		if _, err := e.store.SyncReleases(ctx, repo.ID, releases); err != nil {
			return nil, fmt.Errorf("storing releases of %s: %w", repo.FullName, err)
		}
	}

	now := e.timestamp()
	latest := latestTag(tags)
	if err := e.store.UpdateRepositoryTags(ctx, repo.ID, count, now, latest); err != nil {
		return nil, fmt.Errorf("updating %s: %w", repo.FullName, err)
	}
	logger.Info("Tags synced", "tags", count, "latest_tag", latest)

	updated := cloneRepository(repo)
	updated.TagsCount = count
	updated.TagsLastSyncedAt = &now
	if latest != "" {
		updated.Metadata["latest_tag"] = latest
	} else {
		delete(updated.Metadata, "latest_tag")
	}
	return updated, nil
}

// latestTag picks the highest semantic version, falling back to the most
// recently published tag when no name parses.
func latestTag(tags []model.Tag) string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	if latest, ok := semver.Latest(names); ok {
		return latest
	}
	var newest *model.Tag
	for i := range tags {
		t := &tags[i]
		if t.PublishedAt == nil {
			continue
		}
		if newest == nil || t.PublishedAt.After(*newest.PublishedAt) {
			newest = t
		}
	}
	if newest == nil {
		return ""
	}
	return newest.Name
}
