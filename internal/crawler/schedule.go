// internal/crawler/schedule.go
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

// Start runs the periodic schedule until ctx is cancelled: a sync_recent job
// per host every RecentInterval, and a locked CrawlAll every CrawlInterval.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler",
		"recent_interval", s.cfg.RecentInterval.String(),
		"crawl_interval", s.cfg.CrawlInterval.String())

	recent := time.NewTicker(s.cfg.RecentInterval)
	defer recent.Stop()
	crawl := time.NewTicker(s.cfg.CrawlInterval)
	defer crawl.Stop()

	s.runRecent(ctx)
	s.runCrawl(ctx)

	for {
		select {
		case <-recent.C:
			s.runRecent(ctx)
		case <-crawl.C:
			s.runCrawl(ctx)
		case <-ctx.Done():
			s.logger.Info("Scheduler shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (s *Scheduler) runRecent(ctx context.Context) {
	if _, err := s.ScheduleRecent(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Failed to schedule recent syncs", "error", err)
	}
}

func (s *Scheduler) runCrawl(ctx context.Context) {
	if err := s.CrawlAll(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Crawl cycle failed", "error", err)
	}
}

// ScheduleRecent enqueues one sync_recent job per host.
func (s *Scheduler) ScheduleRecent(ctx context.Context) (int, error) {
	hosts, err := s.store.ListHosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing hosts: %w", err)
	}
	for i, h := range hosts {
		if err := s.queue.Enqueue(ctx, queue.SyncRecentJob(h.Name)); err != nil {
			return i, fmt.Errorf("enqueueing recent sync of %s: %w", h.Name, err)
		}
	}
	return len(hosts), nil
}

// CrawlAll crawls every host under the crawl lock. A run that outlives
// Timeout is abandoned and the lock released. Returns nil without doing
// anything when another process holds the lock.
func (s *Scheduler) CrawlAll(ctx context.Context) error {
	release, ok, err := s.locker.Acquire(ctx, crawlAllLock, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquiring crawl lock: %w", err)
	}
	if !ok {
		s.logger.Info("Crawl already running elsewhere, skipping")
		return nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("Failed to release crawl lock", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	hosts, err := s.store.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("listing hosts: %w", err)
	}

	s.logger.Info("Starting crawl cycle", "hosts", len(hosts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hostConcurrency)
	for _, h := range hosts {
		g.Go(func() error {
			s.crawlHost(gctx, h)
			return nil
		})
	}
	_ = g.Wait()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("Crawl cycle timed out", "timeout", s.cfg.Timeout.String())
		return nil
	}
	s.logger.Info("Crawl cycle finished")
	return nil
}

// crawlHost advances one host's crawl and records the outcome on the host.
func (s *Scheduler) crawlHost(ctx context.Context, h model.Host) {
	logger := s.logger.With("host", h.Name)
	status := HostStatusOnline

	if _, err := s.CrawlRepositories(ctx, h); err != nil {
		logger.Error("Failed to crawl repositories", "error", err)
		status = HostStatusError
	}
	if _, err := s.SchedulePendingParses(ctx, h); err != nil {
		logger.Error("Failed to schedule dependency parses", "error", err)
	}
	if ctx.Err() != nil {
		return
	}

	if err := s.store.UpdateHostCrawlStatus(ctx, h.ID, status, s.now().UTC()); err != nil {
		logger.Error("Failed to record host status", "error", err)
	}
}

// Register installs the scheduler's job handlers on w.
func (s *Scheduler) Register(w *queue.Worker) {
	w.Handle(queue.KindSyncRecent, func(ctx context.Context, job queue.Job) error {
		h, err := s.jobHost(ctx, job)
		if err != nil {
			return err
		}
		_, err = s.SyncRecentlyChanged(ctx, h, s.cfg.RecentWindow)
		return err
	})
	w.Handle(queue.KindCrawl, func(ctx context.Context, job queue.Job) error {
		h, err := s.jobHost(ctx, job)
		if err != nil {
			return err
		}
		_, err = s.CrawlRepositories(ctx, h)
		return err
	})
}

func (s *Scheduler) jobHost(ctx context.Context, job queue.Job) (model.Host, error) {
	name := job.Arg("host")
	h, err := s.store.GetHostByName(ctx, name)
	if errors.Is(err, custom_errors.ErrRecordNotFound) {
		return model.Host{}, queue.Permanent(fmt.Errorf("unknown host %q", name))
	}
	if err != nil {
		return model.Host{}, fmt.Errorf("looking up host %q: %w", name, err)
	}
	return h, nil
}
