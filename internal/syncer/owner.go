// internal/syncer/owner.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

// SyncOwner reconciles one owner with upstream. An owner synced within the
// cooldown is returned as is without contacting upstream unless force is set.
// After a successful sync every repository known for the owner is queued.
func (e *Engine) SyncOwner(ctx context.Context, h model.Host, login string, force bool) (*model.Owner, error) {
	logger := e.logger.With("host", h.Name, "login", login)

	local, err := lookup(e.store.GetOwnerByLogin(ctx, h.ID, login))
	if err != nil {
		return nil, fmt.Errorf("looking up owner %s: %w", login, err)
	}
	if local != nil && !force && local.LastSyncedAt != nil && e.now().Sub(*local.LastSyncedAt) < e.cfg.OwnerCooldown {
		logger.Debug("Owner synced recently, skipping", "last_synced_at", local.LastSyncedAt)
		return local, nil
	}

	adapter, err := e.adapterFor(h)
	if err != nil {
		return nil, err
	}

	canonical, err := adapter.FetchOwner(ctx, login)
	switch {
	case custom_errors.IsNotFound(err):
		return e.checkOwner(ctx, logger, adapter, local)
	case err != nil && soft(logger, "fetch_owner", err):
		return local, nil
	case err != nil:
		return nil, fmt.Errorf("fetching owner %s: %w", login, err)
	}

	if canonical.Login == "" {
		canonical.Login = login
	}

	owner := local
	if canonical.UUID != "" {
		byUUID, err := lookup(e.store.GetOwnerByUUID(ctx, h.ID, canonical.UUID))
		if err != nil {
			return nil, err
		}
		if byUUID != nil {
			if local != nil && local.ID != byUUID.ID {
				// The login was taken over by the owner we already track under another name.
				logger.Info("Removing stale owner holding the login", "stale_id", local.ID)
				if err := e.store.DeleteOwner(ctx, local.ID); err != nil {
					return nil, fmt.Errorf("deleting stale owner %s: %w", login, err)
				}
			}
			owner = byUUID
		}
	}
	if owner == nil {
		owner = &model.Owner{HostID: h.ID, Metadata: model.Metadata{}}
	}

	applyOwner(owner, canonical)
	count, stars, err := e.store.OwnerRepositoryStats(ctx, h.ID, owner.Login)
	if err != nil {
		return nil, fmt.Errorf("owner stats for %s: %w", owner.Login, err)
	}
	owner.RepositoriesCount = count
	owner.TotalStars = stars
	owner.Hidden = false
	now := e.timestamp()
	owner.LastSyncedAt = &now

	if err := e.saveOwner(ctx, owner); err != nil {
		return nil, err
	}
	logger.Info("Owner synced", "id", owner.ID, "repositories", count, "stars", stars)

	names, err := e.store.ListOwnerRepositoryNames(ctx, h.ID, owner.Login)
	if err != nil {
		return owner, fmt.Errorf("listing repositories of %s: %w", owner.Login, err)
	}
	for _, name := range names {
		e.enqueue(ctx, logger, queue.SyncRepositoryJob(h.Name, name))
	}
	return owner, nil
}

func (e *Engine) saveOwner(ctx context.Context, o *model.Owner) error {
	if o.ID != 0 {
		if err := e.store.UpdateOwner(ctx, o); err != nil {
			return fmt.Errorf("updating owner %s: %w", o.Login, err)
		}
		return nil
	}
	err := e.store.CreateOwner(ctx, o)
	if !errors.Is(err, custom_errors.ErrConflict) {
		if err != nil {
			return fmt.Errorf("creating owner %s: %w", o.Login, err)
		}
		return nil
	}
	// Lost a create race; overwrite the winner.
	existing, lerr := lookup(e.store.GetOwnerByLogin(ctx, o.HostID, o.Login))
	if lerr != nil || existing == nil {
		return fmt.Errorf("creating owner %s: %w", o.Login, err)
	}
	o.ID = existing.ID
	if err := e.store.UpdateOwner(ctx, o); err != nil {
		return fmt.Errorf("updating owner %s: %w", o.Login, err)
	}
	return nil
}

// checkOwner decides what a NotFound from the owner API means. Providers
// report NotFound for owners that still exist, so the profile page decides.
func (e *Engine) checkOwner(ctx context.Context, logger *slog.Logger, adapter host.Adapter, local *model.Owner) (*model.Owner, error) {
	if local == nil {
		logger.Info("Owner not found upstream")
		return nil, nil
	}
	status, err := e.profiles.Head(ctx, adapter.OwnerURL(local.Login))
	if err != nil {
		if soft(logger, "owner_liveness", err) {
			return local, nil
		}
		return nil, fmt.Errorf("checking owner %s: %w", local.Login, err)
	}
	if status != http.StatusNotFound {
		logger.Info("Owner API reported not found but profile responds", "status", status)
		return local, nil
	}
	logger.Info("Owner gone upstream, deleting", "id", local.ID)
	if err := e.store.DeleteOwner(ctx, local.ID); err != nil {
		return nil, fmt.Errorf("deleting owner %s: %w", local.Login, err)
	}
	return nil, nil
}

func applyOwner(o *model.Owner, c *model.CanonicalOwner) {
	o.UUID = c.UUID
	o.Login = c.Login
	o.Kind = c.Kind
	if o.Kind == "" {
		o.Kind = model.OwnerKindUser
	}
	o.Name = c.Name
	o.Company = c.Company
	o.Description = c.Description
	o.Email = c.Email
	o.Website = c.Website
	o.Location = c.Location
	o.TwitterUsername = c.TwitterUsername
	o.AvatarURL = c.AvatarURL
	o.Followers = c.Followers
	o.Following = c.Following
}
