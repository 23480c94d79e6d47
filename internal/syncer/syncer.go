// internal/syncer/syncer.go

// Package syncer reconciles canonical records from hosting providers with the
// local store. Every entry point is idempotent: running it again with no
// upstream change writes nothing beyond last_synced_at.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
	"forge-sync/internal/parser"
	"forge-sync/internal/queue"
)

// Store is the persistence the engine needs. *database.Store satisfies it.
type Store interface {
	GetHost(ctx context.Context, id int64) (model.Host, error)
	GetHostByName(ctx context.Context, name string) (model.Host, error)

	GetRepositoryByID(ctx context.Context, id int64) (model.Repository, error)
	GetRepositoryByFullName(ctx context.Context, hostID int64, fullName string) (model.Repository, error)
	GetRepositoryByUUID(ctx context.Context, hostID int64, uuid string) (model.Repository, error)
	CreateRepository(ctx context.Context, r *model.Repository) error
	// UpdateRepository writes the columns a repository sync owns.
	UpdateRepository(ctx context.Context, r *model.Repository) error
	UpdateRepositoryTags(ctx context.Context, id int64, count int, syncedAt time.Time, latestTag string) error
	SetRepositoryMetadata(ctx context.Context, id int64, key string, value any) error
	MarkDependenciesParsed(ctx context.Context, id int64, at time.Time, parseError string) error
	TouchRepository(ctx context.Context, id int64, at time.Time) error
	DeleteRepository(ctx context.Context, id int64) error
	ListOwnerRepositoryNames(ctx context.Context, hostID int64, owner string) ([]string, error)
	OwnerRepositoryStats(ctx context.Context, hostID int64, owner string) (count int, stars int64, err error)

	GetOwnerByLogin(ctx context.Context, hostID int64, login string) (model.Owner, error)
	GetOwnerByUUID(ctx context.Context, hostID int64, uuid string) (model.Owner, error)
	CreateOwner(ctx context.Context, o *model.Owner) error
	UpdateOwner(ctx context.Context, o *model.Owner) error
	DeleteOwner(ctx context.Context, id int64) error

	SyncTags(ctx context.Context, repositoryID int64, tags []model.Tag) (int, error)
	SyncReleases(ctx context.Context, repositoryID int64, releases []model.Release) (int, error)
	SyncManifests(ctx context.Context, repositoryID int64, manifests []model.Manifest) (int, error)
}

// Adapters resolves the adapter serving a host. *host.Set satisfies it.
type Adapters interface {
	For(h model.Host) (host.Adapter, error)
}

// Parser is the dependency-parsing service. *parser.Client satisfies it.
type Parser interface {
	Submit(ctx context.Context, archiveURL string) (string, error)
	Poll(ctx context.Context, jobID string) (*parser.Result, error)
}

// ProfileChecker issues liveness checks against profile URLs. *host.Client satisfies it.
type ProfileChecker interface {
	Head(ctx context.Context, url string) (int, error)
}

// Config holds the engine's timing knobs.
type Config struct {
	OwnerCooldown   time.Duration
	TagsCooldown    time.Duration
	ParsePollDelay  time.Duration
	ParsePollBudget int
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		OwnerCooldown:   24 * time.Hour,
		TagsCooldown:    24 * time.Hour,
		ParsePollDelay:  30 * time.Second,
		ParsePollBudget: 30,
	}
}

// Engine is the sync engine.
type Engine struct {
	store    Store
	adapters Adapters
	queue    queue.Queue
	parser   Parser
	profiles ProfileChecker
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// New creates an Engine with DefaultConfig.
func New(store Store, adapters Adapters, q queue.Queue, p Parser, profiles ProfileChecker, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		adapters: adapters,
		queue:    q,
		parser:   p,
		profiles: profiles,
		logger:   logger,
		cfg:      DefaultConfig(),
		now:      time.Now,
	}
}

// WithConfig replaces the timing knobs.
func (e *Engine) WithConfig(cfg Config) *Engine {
	e.cfg = cfg
	return e
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// soft reports whether err from an adapter should end the operation quietly.
// It logs the classified error when it does.
func soft(logger *slog.Logger, op string, err error) bool {
	if errors.Is(err, custom_errors.ErrUnsupported) {
		logger.Debug("Host does not support operation", "operation", op)
		return true
	}
	if custom_errors.IsIgnorable(err) {
		var he *custom_errors.HostError
		errors.As(err, &he)
		logger.Warn("Upstream request failed, skipping", "operation", op, "kind", he.Kind, "error", err)
		return true
	}
	return false
}

// enqueue schedules follow-up work. Failures are logged rather than returned
// because the record they follow has already been written.
func (e *Engine) enqueue(ctx context.Context, logger *slog.Logger, job queue.Job) {
	if _, err := e.queue.EnqueueUnique(ctx, job, queue.UniqueTTL); err != nil {
		logger.Error("Failed to enqueue follow-up job", "job_kind", job.Kind, "error", err)
	}
}

func (e *Engine) adapterFor(h model.Host) (host.Adapter, error) {
	a, err := e.adapters.For(h)
	if err != nil {
		return nil, fmt.Errorf("adapter for host %s: %w", h.Name, err)
	}
	return a, nil
}

func lookup[T any](v T, err error) (*T, error) {
	if errors.Is(err, custom_errors.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
