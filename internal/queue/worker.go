// internal/queue/worker.go
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
)

// Handler executes one job. A returned error schedules a retry unless it
// wraps ErrPermanent.
type Handler func(ctx context.Context, job Job) error

// ErrPermanent marks a failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent job failure")

// Permanent wraps err so the worker dead-letters the job instead of retrying.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

const maxBackoff = 6 * time.Hour

// WorkerConfig tunes the worker runtime.
type WorkerConfig struct {
	Concurrency  int
	MaxAttempts  int
	BaseBackoff  time.Duration
	PollInterval time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// Worker pulls jobs from a Broker and dispatches them to handlers by kind.
type Worker struct {
	broker   Broker
	logger   *slog.Logger
	cfg      WorkerConfig
	handlers map[string]Handler
	now      func() time.Time
	jitter   func(time.Duration) time.Duration
}

// NewWorker returns a Worker with no handlers registered.
func NewWorker(broker Broker, logger *slog.Logger, cfg WorkerConfig) *Worker {
	return &Worker{
		broker:   broker,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		handlers: map[string]Handler{},
		now:      time.Now,
		jitter: func(d time.Duration) time.Duration {
			if d <= 0 {
				return 0
			}
			return rand.N(d)
		},
	}
}

// Handle registers h for kind.
func (w *Worker) Handle(kind string, h Handler) {
	w.handlers[kind] = h
}

// Kinds returns the registered kinds in AllKinds order, then any others.
func (w *Worker) Kinds() []string {
	var kinds []string
	seen := map[string]bool{}
	for _, k := range AllKinds {
		if _, ok := w.handlers[k]; ok {
			kinds = append(kinds, k)
			seen[k] = true
		}
	}
	for k := range w.handlers {
		if !seen[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Backoff returns the retry delay after the given attempt (1-based).
func (w *Worker) Backoff(attempt int) time.Duration {
	d := w.cfg.BaseBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d + w.jitter(w.cfg.BaseBackoff)
}

// Start runs the worker until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	kinds := w.Kinds()
	w.logger.Info("Starting worker", "concurrency", w.cfg.Concurrency, "kinds", kinds)

	if n, err := w.broker.Recover(ctx); err != nil {
		w.logger.Error("Failed to recover in-flight jobs", "error", err)
	} else if n > 0 {
		w.logger.Info("Recovered in-flight jobs", "count", n)
	}

	go w.promote(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)

	for {
		if gctx.Err() != nil {
			break
		}
		job, err := w.broker.Dequeue(gctx, kinds)
		if err != nil {
			w.logger.Error("Failed to dequeue job", "error", err)
		}
		if job == nil {
			select {
			case <-gctx.Done():
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}
		g.Go(func() error {
			// Dequeued jobs settle on a detached context.
			w.Process(context.WithoutCancel(gctx), job)
			return nil
		})
	}

	err := g.Wait()
	w.logger.Info("Worker shutting down", "reason", ctx.Err())
	return err
}

func (w *Worker) promote(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := w.broker.PromoteDue(ctx, w.now()); err != nil && ctx.Err() == nil {
				w.logger.Error("Failed to promote delayed jobs", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Drain processes runnable jobs one at a time until none are left, promoting
// delayed jobs that are already due. It returns the number processed.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	kinds := w.Kinds()
	n := 0
	for {
		if _, err := w.broker.PromoteDue(ctx, w.now()); err != nil {
			return n, err
		}
		job, err := w.broker.Dequeue(ctx, kinds)
		if err != nil {
			return n, err
		}
		if job == nil {
			return n, nil
		}
		w.Process(ctx, job)
		n++
	}
}

// Process runs one dequeued job and settles it: ack on success, delayed retry
// on failure, dead letter once attempts are exhausted.
func (w *Worker) Process(ctx context.Context, job *Job) {
	logger := w.logger.With("job_kind", job.Kind, "job_id", job.ID, "attempt", job.Attempt+1)

	handler, ok := w.handlers[job.Kind]
	var err error
	if !ok {
		err = Permanent(fmt.Errorf("no handler for job kind %q", job.Kind))
	} else {
		err = w.run(ctx, handler, *job)
	}

	if err == nil {
		if ackErr := w.broker.Ack(ctx, job); ackErr != nil {
			logger.Error("Failed to acknowledge job", "error", ackErr)
		}
		return
	}

	job.Attempt++
	job.LastError = err.Error()
	if errors.Is(err, ErrPermanent) || job.Attempt >= w.cfg.MaxAttempts {
		logger.Error("Job failed permanently, moving to dead letter", "error", err)
		if dlErr := w.broker.DeadLetter(ctx, job); dlErr != nil {
			logger.Error("Failed to dead-letter job", "error", dlErr)
		}
		return
	}

	delay := w.Backoff(job.Attempt)
	logger.Error("Job failed, scheduling retry", "error", err, "retry_in", delay.String())
	retry := *job
	retry.UniqueKey = ""
	if rErr := w.broker.EnqueueDelayed(ctx, retry, delay); rErr != nil {
		logger.Error("Failed to schedule retry", "error", rErr)
		return
	}
	if ackErr := w.broker.Ack(ctx, job); ackErr != nil {
		logger.Error("Failed to acknowledge job", "error", ackErr)
	}
}

func (w *Worker) run(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, job)
}
