// internal/syncer/repository.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

// SyncRepository reconciles one repository with upstream. The returned record
// is the local state after the sync; it is nil when the repository is unknown
// both locally and upstream.
func (e *Engine) SyncRepository(ctx context.Context, h model.Host, id model.Identifier) (*model.Repository, error) {
	logger := e.logger.With("host", h.Name, "repository", id.String())

	adapter, err := e.adapterFor(h)
	if err != nil {
		return nil, err
	}

	local, err := e.findRepository(ctx, h, id)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", id, err)
	}

	fetchID := id
	if local != nil {
		fetchID = model.Identifier{UUID: local.UUID, FullName: local.FullName}
	}

	canonical, err := adapter.FetchRepository(ctx, fetchID)
	switch {
	case custom_errors.IsNotFound(err):
		if local == nil {
			logger.Info("Repository not found upstream")
			return nil, nil
		}
		return local, e.markRemoved(ctx, logger, local)
	case err != nil && soft(logger, "fetch_repository", err):
		return local, nil
	case err != nil:
		return nil, fmt.Errorf("fetching %s: %w", id, err)
	}

	if local == nil {
		// A concurrent sync may have created the record under another name.
		if local, err = lookup(e.store.GetRepositoryByUUID(ctx, h.ID, canonical.UUID)); err != nil {
			return nil, err
		}
	}
	if local == nil {
		return e.createRepository(ctx, logger, h, adapter, canonical)
	}
	return e.updateRepository(ctx, logger, h, adapter, local, canonical)
}

// findRepository resolves a local record by UUID, then full name. Previous
// names are for readers only; a vacated name may belong to a new repository.
func (e *Engine) findRepository(ctx context.Context, h model.Host, id model.Identifier) (*model.Repository, error) {
	if id.UUID != "" {
		r, err := lookup(e.store.GetRepositoryByUUID(ctx, h.ID, id.UUID))
		if r != nil || err != nil {
			return r, err
		}
	}
	if id.FullName == "" {
		return nil, nil
	}
	return lookup(e.store.GetRepositoryByFullName(ctx, h.ID, id.FullName))
}

func (e *Engine) createRepository(ctx context.Context, logger *slog.Logger, h model.Host, adapter host.Adapter, c *model.CanonicalRepository) (*model.Repository, error) {
	clash, err := lookup(e.store.GetRepositoryByFullName(ctx, h.ID, c.FullName))
	if err != nil {
		return nil, err
	}
	if clash != nil {
		won, err := e.resolveClash(ctx, logger, h, adapter, clash, c)
		if err != nil {
			return nil, err
		}
		if !won {
			logger.Warn("Name is held by another live repository, not creating", "full_name", c.FullName, "clash_uuid", clash.UUID)
			return clash, nil
		}
	}

	repo := &model.Repository{HostID: h.ID, Metadata: model.Metadata{}}
	applyCanonical(repo, c)
	now := e.timestamp()
	repo.LastSyncedAt = &now

	if err := e.store.CreateRepository(ctx, repo); err != nil {
		if !errors.Is(err, custom_errors.ErrConflict) {
			return nil, fmt.Errorf("creating %s: %w", c.FullName, err)
		}
		// Lost a create race; merge into the winner.
		existing, lerr := lookup(e.store.GetRepositoryByUUID(ctx, h.ID, c.UUID))
		if lerr != nil || existing == nil {
			return nil, fmt.Errorf("creating %s: %w", c.FullName, err)
		}
		return e.updateRepository(ctx, logger, h, adapter, existing, c)
	}
	logger.Info("Repository created", "id", repo.ID, "full_name", repo.FullName)

	e.followUp(ctx, logger, h, nil, repo)
	return repo, nil
}

func (e *Engine) updateRepository(ctx context.Context, logger *slog.Logger, h model.Host, adapter host.Adapter, local *model.Repository, c *model.CanonicalRepository) (*model.Repository, error) {
	logger = logger.With("id", local.ID)

	if c.UUID != local.UUID {
		holder, err := lookup(e.store.GetRepositoryByUUID(ctx, h.ID, c.UUID))
		if err != nil {
			return nil, err
		}
		if holder != nil && holder.ID != local.ID {
			return e.mergeInto(ctx, logger, h, adapter, holder, local, c)
		}
	}

	updated := cloneRepository(local)
	if c.FullName != local.FullName {
		if !strings.EqualFold(c.FullName, local.FullName) {
			clash, err := lookup(e.store.GetRepositoryByFullName(ctx, h.ID, c.FullName))
			if err != nil {
				return nil, err
			}
			if clash != nil && clash.ID != local.ID {
				won, err := e.resolveClash(ctx, logger, h, adapter, clash, c)
				if err != nil {
					return nil, err
				}
				if !won {
					logger.Warn("Rename rejected, name is held by another live repository",
						"from", local.FullName, "to", c.FullName, "clash_id", clash.ID)
					return local, e.touch(ctx, local)
				}
			}
		}
		logger.Info("Repository renamed", "from", local.FullName, "to", c.FullName)
		if !strings.EqualFold(local.FullName, c.FullName) {
			updated.PreviousNames = appendPreviousName(updated.PreviousNames, local.FullName, c.FullName)
		}
	}

	applyCanonical(updated, c)

	if !repositoryChanged(local, updated) {
		logger.Debug("Repository unchanged")
		return local, e.touch(ctx, local)
	}

	now := e.timestamp()
	updated.LastSyncedAt = &now
	if err := e.store.UpdateRepository(ctx, updated); err != nil {
		if !errors.Is(err, custom_errors.ErrConflict) {
			return nil, fmt.Errorf("updating %s: %w", updated.FullName, err)
		}
		// Another sync recorded the UUID under a different row meanwhile.
		holder, lerr := lookup(e.store.GetRepositoryByUUID(ctx, h.ID, c.UUID))
		if lerr != nil || holder == nil || holder.ID == local.ID {
			return nil, fmt.Errorf("updating %s: %w", updated.FullName, err)
		}
		return e.mergeInto(ctx, logger, h, adapter, holder, local, c)
	}
	logger.Info("Repository updated", "full_name", updated.FullName)

	e.followUp(ctx, logger, h, local, updated)
	return updated, nil
}

// mergeInto reconciles c onto holder, the record already tracking c's UUID.
// stale resolved to the same upstream repository and is re-resolved like any
// name clash; it is left alone if it still looks live.
func (e *Engine) mergeInto(ctx context.Context, logger *slog.Logger, h model.Host, adapter host.Adapter, holder, stale *model.Repository, c *model.CanonicalRepository) (*model.Repository, error) {
	logger.Info("Upstream repository is already tracked by another record",
		"uuid", c.UUID, "holder_id", holder.ID, "holder_full_name", holder.FullName)
	won, err := e.resolveClash(ctx, logger, h, adapter, stale, c)
	if err != nil {
		return nil, err
	}
	if !won {
		return stale, e.touch(ctx, stale)
	}
	return e.updateRepository(ctx, e.logger.With("host", h.Name, "repository", c.FullName), h, adapter, holder, c)
}

// resolveClash re-resolves a record occupying the name an incoming repository
// wants. It reports whether the incoming repository may take the name, which
// is the case when the clash is gone upstream or its name now belongs to a
// different repository. The clash is destroyed when the incoming one wins.
func (e *Engine) resolveClash(ctx context.Context, logger *slog.Logger, h model.Host, adapter host.Adapter, clash *model.Repository, incoming *model.CanonicalRepository) (bool, error) {
	logger = logger.With("clash_id", clash.ID, "clash_full_name", clash.FullName)

	fetched, err := adapter.FetchRepository(ctx, model.Identifier{UUID: clash.UUID, FullName: clash.FullName})
	switch {
	case custom_errors.IsNotFound(err):
		logger.Info("Clashing repository is gone upstream, removing it")
		return true, e.destroy(ctx, clash)
	case err != nil && soft(logger, "fetch_repository", err):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("re-resolving %s: %w", clash.FullName, err)
	}

	if fetched.UUID != clash.UUID {
		logger.Info("Name now belongs to a different repository, removing stale record", "upstream_uuid", fetched.UUID)
		return true, e.destroy(ctx, clash)
	}
	if !strings.EqualFold(fetched.FullName, incoming.FullName) {
		logger.Info("Clashing repository moved upstream, removing it and resyncing", "moved_to", fetched.FullName)
		if err := e.destroy(ctx, clash); err != nil {
			return false, err
		}
		e.enqueue(ctx, logger, queue.SyncRepositoryJob(h.Name, fetched.FullName))
		return true, nil
	}
	return false, nil
}

func (e *Engine) destroy(ctx context.Context, r *model.Repository) error {
	if err := e.store.DeleteRepository(ctx, r.ID); err != nil {
		return fmt.Errorf("deleting %s: %w", r.FullName, err)
	}
	return nil
}

func (e *Engine) touch(ctx context.Context, r *model.Repository) error {
	now := e.timestamp()
	if err := e.store.TouchRepository(ctx, r.ID, now); err != nil {
		return fmt.Errorf("touching %s: %w", r.FullName, err)
	}
	r.LastSyncedAt = &now
	return nil
}

func (e *Engine) markRemoved(ctx context.Context, logger *slog.Logger, r *model.Repository) error {
	if r.Removed() {
		return e.touch(ctx, r)
	}
	logger.Info("Repository gone upstream, marking removed", "id", r.ID)
	now := e.timestamp()
	r.Status = model.StatusRemoved
	r.LastSyncedAt = &now
	if err := e.store.UpdateRepository(ctx, r); err != nil {
		return fmt.Errorf("marking %s removed: %w", r.FullName, err)
	}
	return nil
}

// followUp enqueues the work a changed repository triggers. before is nil for
// a newly created record.
func (e *Engine) followUp(ctx context.Context, logger *slog.Logger, h model.Host, before, after *model.Repository) {
	e.enqueue(ctx, logger, queue.ParseDependenciesJob(after.ID))

	var prevPushed *time.Time
	if before != nil {
		prevPushed = before.PushedAt
	}
	if !after.Fork && pushedAdvanced(prevPushed, after.PushedAt) {
		e.enqueue(ctx, logger, queue.SyncExtraDetailsJob(h.Name, after.FullName))
	}

	owner, err := lookup(e.store.GetOwnerByLogin(ctx, h.ID, after.Owner))
	if err != nil {
		logger.Error("Failed to look up owner", "owner", after.Owner, "error", err)
		return
	}
	if owner == nil {
		e.enqueue(ctx, logger, queue.SyncOwnerJob(h.Name, after.Owner, false))
	}
}

func applyCanonical(r *model.Repository, c *model.CanonicalRepository) {
	r.UUID = c.UUID
	r.FullName = c.FullName
	r.Owner = c.Owner
	r.Description = c.Description
	r.Homepage = c.Homepage
	r.Language = c.Language
	r.License = c.License
	r.DefaultBranch = c.DefaultBranch
	r.Topics = slices.Clone(c.Topics)
	r.Fork = c.Fork
	r.SourceName = c.SourceName
	r.Archived = c.Archived
	r.Private = c.Private
	r.Template = c.Template
	r.MirrorURL = c.MirrorURL
	r.StargazersCount = c.StargazersCount
	r.ForksCount = c.ForksCount
	r.OpenIssuesCount = c.OpenIssuesCount
	r.SubscribersCount = c.SubscribersCount
	r.Size = c.Size
	r.HasIssues = c.HasIssues
	r.HasWiki = c.HasWiki
	r.HasPages = c.HasPages
	r.RepoCreatedAt = normalizeTime(c.CreatedAt)
	r.RepoUpdatedAt = normalizeTime(c.UpdatedAt)
	r.PushedAt = normalizeTime(c.PushedAt)
	r.Status = ""
}

// repositoryChanged compares every column a sync can write.
func repositoryChanged(a, b *model.Repository) bool {
	return a.UUID != b.UUID ||
		a.FullName != b.FullName ||
		a.Owner != b.Owner ||
		!slices.Equal(a.PreviousNames, b.PreviousNames) ||
		a.Description != b.Description ||
		a.Homepage != b.Homepage ||
		a.Language != b.Language ||
		a.License != b.License ||
		a.DefaultBranch != b.DefaultBranch ||
		!slices.Equal(a.Topics, b.Topics) ||
		a.Fork != b.Fork ||
		a.SourceName != b.SourceName ||
		a.Archived != b.Archived ||
		a.Private != b.Private ||
		a.Template != b.Template ||
		a.MirrorURL != b.MirrorURL ||
		a.StargazersCount != b.StargazersCount ||
		a.ForksCount != b.ForksCount ||
		a.OpenIssuesCount != b.OpenIssuesCount ||
		a.SubscribersCount != b.SubscribersCount ||
		a.Size != b.Size ||
		a.HasIssues != b.HasIssues ||
		a.HasWiki != b.HasWiki ||
		a.HasPages != b.HasPages ||
		!sameTime(a.RepoCreatedAt, b.RepoCreatedAt) ||
		!sameTime(a.RepoUpdatedAt, b.RepoUpdatedAt) ||
		!sameTime(a.PushedAt, b.PushedAt) ||
		a.Status != b.Status
}

func cloneRepository(r *model.Repository) *model.Repository {
	c := *r
	c.PreviousNames = slices.Clone(r.PreviousNames)
	c.Topics = slices.Clone(r.Topics)
	c.Metadata = maps.Clone(r.Metadata)
	if c.Metadata == nil {
		c.Metadata = model.Metadata{}
	}
	return &c
}

// appendPreviousName records old as a previous name, never duplicating an
// entry and never listing the current name.
func appendPreviousName(names []string, old, current string) []string {
	out := names[:0:0]
	for _, n := range names {
		if !strings.EqualFold(n, current) && !strings.EqualFold(n, old) {
			out = append(out, n)
		}
	}
	return append(out, old)
}

func pushedAdvanced(before, after *time.Time) bool {
	if after == nil {
		return false
	}
	return before == nil || after.After(*before)
}

// Stored timestamps carry microsecond precision in UTC.
func normalizeTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	n := t.UTC().Truncate(time.Microsecond)
	return &n
}

func sameTime(a, b *time.Time) bool {
	na, nb := normalizeTime(a), normalizeTime(b)
	if na == nil || nb == nil {
		return na == nil && nb == nil
	}
	return na.Equal(*nb)
}
