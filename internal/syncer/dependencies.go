// internal/syncer/dependencies.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
	"forge-sync/internal/parser"
	"forge-sync/internal/queue"
)

// ParseStep is one entry into the dependency parse state machine.
type ParseStep struct {
	RepositoryID int64
	State        string
	ParseJobID   string
	Polls        int
}

// ParseDependencies advances the parse of one repository's manifests.
//
// pending submits the source archive and re-enters as polling after a delay.
// polling re-enters with a delay until the service reports complete or error,
// or until the poll budget is spent. complete stores the manifests; error
// records the failure. Both set dependencies_parsed_at.
func (e *Engine) ParseDependencies(ctx context.Context, step ParseStep) error {
	logger := e.logger.With("repository_id", step.RepositoryID, "state", step.State, "polls", step.Polls)

	repo, err := lookup(e.store.GetRepositoryByID(ctx, step.RepositoryID))
	if err != nil {
		return fmt.Errorf("looking up repository %d: %w", step.RepositoryID, err)
	}
	if repo == nil || repo.Removed() {
		logger.Debug("Repository not tracked, skipping dependency parse")
		return nil
	}
	logger = logger.With("repository", repo.FullName)

	switch step.State {
	case "", queue.ParseStatePending:
		return e.submitParse(ctx, logger, repo)
	case queue.ParseStatePolling:
		return e.pollParse(ctx, logger, repo, step)
	default:
		return queue.Permanent(fmt.Errorf("unknown parse state %q", step.State))
	}
}

func (e *Engine) submitParse(ctx context.Context, logger *slog.Logger, repo *model.Repository) error {
	h, err := e.store.GetHost(ctx, repo.HostID)
	if err != nil {
		return fmt.Errorf("host of %s: %w", repo.FullName, err)
	}
	adapter, err := e.adapterFor(h)
	if err != nil {
		return err
	}

	archive := adapter.ArchiveURL(repo.FullName, repo.DefaultBranch)
	jobID, err := e.parser.Submit(ctx, archive)
	if errors.Is(err, parser.ErrNotConfigured) {
		logger.Debug("Dependency parser not configured, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("submitting %s: %w", archive, err)
	}

	logger.Info("Dependency parse submitted", "parse_job_id", jobID)
	return e.queue.EnqueueDelayed(ctx, queue.PollDependenciesJob(repo.ID, jobID, 0), e.cfg.ParsePollDelay)
}

func (e *Engine) pollParse(ctx context.Context, logger *slog.Logger, repo *model.Repository, step ParseStep) error {
	result, err := e.parser.Poll(ctx, step.ParseJobID)
	if custom_errors.IsNotFound(err) {
		return e.failParse(ctx, logger, repo, "parse job expired")
	}
	if err != nil {
		return fmt.Errorf("polling parse job %s: %w", step.ParseJobID, err)
	}

	switch result.Status {
	case parser.StatusComplete:
		return e.completeParse(ctx, logger, repo, result.Manifests)
	case parser.StatusError:
		return e.failParse(ctx, logger, repo, result.Error)
	}

	polls := step.Polls + 1
	if polls >= e.cfg.ParsePollBudget {
		return e.failParse(ctx, logger, repo, "timed out waiting for parser")
	}
	return e.queue.EnqueueDelayed(ctx, queue.PollDependenciesJob(repo.ID, step.ParseJobID, polls), e.cfg.ParsePollDelay)
}

func (e *Engine) completeParse(ctx context.Context, logger *slog.Logger, repo *model.Repository, manifests []model.Manifest) error {
	n, err := e.store.SyncManifests(ctx, repo.ID, manifests)
	if err != nil {
		return fmt.Errorf("storing manifests of %s: %w", repo.FullName, err)
	}
	if err := e.store.MarkDependenciesParsed(ctx, repo.ID, e.timestamp(), ""); err != nil {
		return fmt.Errorf("updating %s: %w", repo.FullName, err)
	}
	logger.Info("Dependencies parsed", "state", queue.ParseStateComplete, "manifests", len(manifests), "dependencies", n)
	return nil
}

func (e *Engine) failParse(ctx context.Context, logger *slog.Logger, repo *model.Repository, reason string) error {
	if reason == "" {
		reason = "unknown parser error"
	}
	if err := e.store.MarkDependenciesParsed(ctx, repo.ID, e.timestamp(), reason); err != nil {
		return fmt.Errorf("updating %s: %w", repo.FullName, err)
	}
	logger.Warn("Dependency parse failed", "state", queue.ParseStateError, "reason", reason)
	return nil
}
