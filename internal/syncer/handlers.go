// internal/syncer/handlers.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

// Register installs the engine's job handlers on w.
func (e *Engine) Register(w *queue.Worker) {
	w.Handle(queue.KindSyncRepository, func(ctx context.Context, job queue.Job) error {
		h, err := e.jobHost(ctx, job)
		if err != nil {
			return err
		}
		fullName := job.Arg("full_name")
		if _, _, err := model.SplitFullName(fullName); err != nil {
			return queue.Permanent(err)
		}
		_, err = e.SyncRepository(ctx, h, model.Identifier{FullName: fullName})
		return err
	})
	w.Handle(queue.KindSyncOwner, func(ctx context.Context, job queue.Job) error {
		h, err := e.jobHost(ctx, job)
		if err != nil {
			return err
		}
		_, err = e.SyncOwner(ctx, h, job.Arg("login"), job.Arg("force") == "true")
		return err
	})
	w.Handle(queue.KindSyncExtraDetails, func(ctx context.Context, job queue.Job) error {
		h, err := e.jobHost(ctx, job)
		if err != nil {
			return err
		}
		_, err = e.SyncExtraDetails(ctx, h, job.Arg("full_name"))
		return err
	})
	w.Handle(queue.KindSyncTags, func(ctx context.Context, job queue.Job) error {
		h, err := e.jobHost(ctx, job)
		if err != nil {
			return err
		}
		_, err = e.SyncTags(ctx, h, job.Arg("full_name"), job.Arg("force") == "true")
		return err
	})
	w.Handle(queue.KindParseDependencies, func(ctx context.Context, job queue.Job) error {
		id, err := strconv.ParseInt(job.Arg("repository_id"), 10, 64)
		if err != nil {
			return queue.Permanent(fmt.Errorf("invalid repository_id %q", job.Arg("repository_id")))
		}
		polls, _ := strconv.Atoi(job.Arg("polls"))
		return e.ParseDependencies(ctx, ParseStep{
			RepositoryID: id,
			State:        job.Arg("state"),
			ParseJobID:   job.Arg("parse_job_id"),
			Polls:        polls,
		})
	})
}

// jobHost resolves the host named by a job. Unknown hosts fail permanently.
func (e *Engine) jobHost(ctx context.Context, job queue.Job) (model.Host, error) {
	name := job.Arg("host")
	h, err := e.store.GetHostByName(ctx, name)
	if errors.Is(err, custom_errors.ErrRecordNotFound) {
		return model.Host{}, queue.Permanent(fmt.Errorf("unknown host %q", name))
	}
	if err != nil {
		return model.Host{}, fmt.Errorf("looking up host %q: %w", name, err)
	}
	return h, nil
}
