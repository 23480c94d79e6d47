// internal/crawler/crawler.go

// Package crawler turns provider enumerations into queued sync jobs. It
// never syncs inline: every discovered name becomes a sync_repository job,
// and admission control keeps each queue below a fixed ceiling.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/host"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

// Host crawl outcomes recorded on hosts.status.
const (
	HostStatusOnline = "online"
	HostStatusError  = "error"
)

const (
	crawlAllLock      = "crawl_all"
	pendingParseBatch = 500
	hostConcurrency   = 4
)

// Store is the persistence the scheduler needs.
type Store interface {
	ListHosts(ctx context.Context) ([]model.Host, error)
	GetHostByName(ctx context.Context, name string) (model.Host, error)
	UpdateHostCrawlStatus(ctx context.Context, id int64, status string, at time.Time) error
	GetCheckpoint(ctx context.Context, hostID int64, name string) (string, error)
	SetCheckpoint(ctx context.Context, hostID int64, name, cursor string) error
	ListRepositoriesPendingParse(ctx context.Context, hostID int64, limit int) ([]int64, error)
}

// Adapters resolves the adapter serving a host.
type Adapters interface {
	For(h model.Host) (host.Adapter, error)
}

// Ceilings caps queue depth per job class. Zero disables the check.
type Ceilings struct {
	Sync    int64
	Details int64
	Parse   int64
}

// Config holds scheduler timings and queue ceilings.
type Config struct {
	RecentInterval time.Duration
	RecentWindow   time.Duration
	CrawlInterval  time.Duration
	LockTTL        time.Duration
	Timeout        time.Duration
	Ceilings       Ceilings
}

// DefaultConfig returns the intervals and queue ceilings used when none are configured.
func DefaultConfig() Config {
	return Config{
		RecentInterval: 10 * time.Minute,
		RecentWindow:   time.Hour,
		CrawlInterval:  time.Hour,
		LockTTL:        2 * time.Hour,
		Timeout:        time.Hour,
		Ceilings:       Ceilings{Sync: 10000, Details: 2000, Parse: 5000},
	}
}

// Scheduler is the crawl scheduler.
type Scheduler struct {
	store    Store
	adapters Adapters
	queue    queue.Queue
	locker   queue.Locker
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// New returns a Scheduler with DefaultConfig and the wall clock.
func New(store Store, adapters Adapters, q queue.Queue, locker queue.Locker, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		adapters: adapters,
		queue:    q,
		locker:   locker,
		logger:   logger,
		cfg:      DefaultConfig(),
		now:      time.Now,
	}
}

// WithConfig replaces the scheduler configuration.
func (s *Scheduler) WithConfig(cfg Config) *Scheduler {
	s.cfg = cfg
	return s
}

// WithClock replaces the clock used to stamp host crawl status.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) ceiling(kind string) int64 {
	switch kind {
	case queue.KindSyncRepository, queue.KindSyncOwner:
		return s.cfg.Ceilings.Sync
	case queue.KindSyncExtraDetails, queue.KindSyncTags:
		return s.cfg.Ceilings.Details
	case queue.KindParseDependencies:
		return s.cfg.Ceilings.Parse
	}
	return 0
}

// room reports how many more jobs of kind the queue accepts, or -1 when the
// kind is uncapped.
func (s *Scheduler) room(ctx context.Context, kind string) (int64, error) {
	limit := s.ceiling(kind)
	if limit <= 0 {
		return -1, nil
	}
	depth, err := s.queue.Depth(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("queue depth of %s: %w", kind, err)
	}
	return max(limit-depth, 0), nil
}

// admit reports whether kind is below its ceiling, logging when it is not.
func (s *Scheduler) admit(ctx context.Context, logger *slog.Logger, kind string) (bool, error) {
	room, err := s.room(ctx, kind)
	if err != nil {
		return false, err
	}
	if room == 0 {
		logger.Warn("Queue at capacity, skipping", "job_kind", kind, "ceiling", s.ceiling(kind))
		return false, nil
	}
	return true, nil
}

// soft reports whether an enumeration error ends the run quietly.
func soft(logger *slog.Logger, op string, err error) bool {
	if errors.Is(err, custom_errors.ErrUnsupported) {
		logger.Debug("Host does not support operation", "operation", op)
		return true
	}
	if custom_errors.IsIgnorable(err) || custom_errors.IsNotFound(err) {
		logger.Warn("Enumeration failed, skipping", "operation", op, "error", err)
		return true
	}
	return false
}

func (s *Scheduler) adapterFor(h model.Host) (host.Adapter, error) {
	a, err := s.adapters.For(h)
	if err != nil {
		return nil, fmt.Errorf("adapter for host %s: %w", h.Name, err)
	}
	return a, nil
}

func (s *Scheduler) enqueueSync(ctx context.Context, h model.Host, fullName string) (bool, error) {
	ok, err := s.queue.EnqueueUnique(ctx, queue.SyncRepositoryJob(h.Name, fullName), queue.UniqueTTL)
	if err != nil {
		return false, fmt.Errorf("enqueueing sync of %s: %w", fullName, err)
	}
	return ok, nil
}

// SyncRecentlyChanged enqueues a sync for each repository the host reports
// as changed within since. At most host.MaxRecent names are taken.
func (s *Scheduler) SyncRecentlyChanged(ctx context.Context, h model.Host, since time.Duration) (int, error) {
	logger := s.logger.With("host", h.Name, "since", since.String())

	ok, err := s.admit(ctx, logger, queue.KindSyncRepository)
	if err != nil || !ok {
		return 0, err
	}
	adapter, err := s.adapterFor(h)
	if err != nil {
		return 0, err
	}

	taken, enqueued := 0, 0
	for name, err := range adapter.EnumerateRecent(ctx, since) {
		if err != nil {
			if soft(logger, "enumerate_recent", err) {
				break
			}
			return enqueued, fmt.Errorf("enumerating recent repositories on %s: %w", h.Name, err)
		}
		if taken >= host.MaxRecent {
			break
		}
		taken++
		added, err := s.enqueueSync(ctx, h, name)
		if err != nil {
			return enqueued, err
		}
		if added {
			enqueued++
		}
	}

	logger.Info("Recently changed repositories queued", "candidates", taken, "enqueued", enqueued)
	return enqueued, nil
}

func checkpointName(h model.Host) string {
	return h.Kind + ":repositories"
}

// CrawlRepositories advances the host's full crawl by one page and saves the
// new cursor after the page's syncs are queued.
func (s *Scheduler) CrawlRepositories(ctx context.Context, h model.Host) (int, error) {
	logger := s.logger.With("host", h.Name)

	ok, err := s.admit(ctx, logger, queue.KindSyncRepository)
	if err != nil || !ok {
		return 0, err
	}
	adapter, err := s.adapterFor(h)
	if err != nil {
		return 0, err
	}

	name := checkpointName(h)
	cursor, err := s.store.GetCheckpoint(ctx, h.ID, name)
	if err != nil {
		return 0, fmt.Errorf("reading checkpoint %s: %w", name, err)
	}
	logger = logger.With("cursor", cursor)

	page, err := adapter.CrawlPage(ctx, cursor)
	if err != nil {
		if soft(logger, "crawl_page", err) {
			return 0, nil
		}
		return 0, fmt.Errorf("crawling %s: %w", h.Name, err)
	}

	enqueued := 0
	for _, fullName := range page.Names {
		added, err := s.enqueueSync(ctx, h, fullName)
		if err != nil {
			return enqueued, err
		}
		if added {
			enqueued++
		}
	}

	if page.Next != "" && page.Next != cursor {
		if err := s.store.SetCheckpoint(ctx, h.ID, name, page.Next); err != nil {
			return enqueued, fmt.Errorf("saving checkpoint %s: %w", name, err)
		}
	}
	if page.Done {
		logger.Info("Crawl caught up", "enqueued", enqueued)
	} else {
		logger.Info("Crawl page queued", "names", len(page.Names), "enqueued", enqueued, "next", page.Next)
	}
	return enqueued, nil
}

// SchedulePendingParses queues dependency parses for repositories never
// parsed, filling the parse queue up to its ceiling.
func (s *Scheduler) SchedulePendingParses(ctx context.Context, h model.Host) (int, error) {
	logger := s.logger.With("host", h.Name)

	room, err := s.room(ctx, queue.KindParseDependencies)
	if err != nil {
		return 0, err
	}
	limit := pendingParseBatch
	if room >= 0 && room < int64(limit) {
		limit = int(room)
	}
	if limit == 0 {
		logger.Warn("Queue at capacity, skipping", "job_kind", queue.KindParseDependencies, "ceiling", s.ceiling(queue.KindParseDependencies))
		return 0, nil
	}

	ids, err := s.store.ListRepositoriesPendingParse(ctx, h.ID, limit)
	if err != nil {
		return 0, fmt.Errorf("listing repositories pending parse: %w", err)
	}
	enqueued := 0
	for _, id := range ids {
		added, err := s.queue.EnqueueUnique(ctx, queue.ParseDependenciesJob(id), queue.UniqueTTL)
		if err != nil {
			return enqueued, fmt.Errorf("enqueueing parse of repository %d: %w", id, err)
		}
		if added {
			enqueued++
		}
	}
	if enqueued > 0 {
		logger.Info("Pending dependency parses queued", "enqueued", enqueued)
	}
	return enqueued, nil
}
