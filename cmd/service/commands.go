// cmd/service/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"forge-sync/internal/api"
	"forge-sync/internal/config"
	"forge-sync/internal/model"
)

// withApp builds the shared components around fn and tears them down after.
func withApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API",
		Long:  "Serve the read API. With the memory queue backend the worker and scheduler run in the same process.",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			if err := a.migrate(); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           api.NewRouter(a.store, a.broker, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("HTTP server listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if a.cfg.QueueBackend == config.QueueMemory {
				g.Go(func() error { return a.newWorker().Start(gctx) })
				g.Go(func() error {
					a.scheduler.Start(gctx)
					return nil
				})
			}

			err := g.Wait()
			a.logger.Info("Shutdown signal received. Exiting.")
			return err
		}),
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued sync jobs",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			w := a.newWorker()
			a.logger.Info("Worker started", "kinds", w.Kinds(), "concurrency", a.cfg.WorkerConcurrency)
			return w.Start(cmd.Context())
		}),
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Periodically queue recent-change syncs and crawl every host",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			a.scheduler.Start(cmd.Context())
			return nil
		}),
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: withApp(func(_ *cobra.Command, a *app, _ []string) error {
			return a.migrate()
		}),
	}
}

func newSyncCmd() *cobra.Command {
	var drain bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync a single record now",
	}
	cmd.PersistentFlags().BoolVar(&drain, "drain", false, "process follow-up jobs in this process before exiting")

	finish := func(ctx context.Context, a *app, record any) error {
		if drain {
			n, err := a.newWorker().Drain(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("Follow-up jobs processed", "jobs", n)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "repository HOST FULL_NAME",
		Short: "Sync one repository",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			h, err := a.host(ctx, args[0])
			if err != nil {
				return err
			}
			if _, _, err := model.SplitFullName(args[1]); err != nil {
				return err
			}
			repo, err := a.engine.SyncRepository(ctx, h, model.Identifier{FullName: args[1]})
			if err != nil {
				return err
			}
			return finish(ctx, a, repo)
		}),
	})

	var force bool
	ownerCmd := &cobra.Command{
		Use:   "owner HOST LOGIN",
		Short: "Sync one owner",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			h, err := a.host(ctx, args[0])
			if err != nil {
				return err
			}
			owner, err := a.engine.SyncOwner(ctx, h, args[1], force)
			if err != nil {
				return err
			}
			return finish(ctx, a, owner)
		}),
	}
	ownerCmd.Flags().BoolVar(&force, "force", false, "ignore the owner cooldown")
	cmd.AddCommand(ownerCmd)

	return cmd
}

func newCrawlCmd() *cobra.Command {
	var (
		hostName string
		recent   bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Queue discovered repositories for sync",
		Long:  "Without --host, crawls every host under the crawl lock. With --host, advances that host's crawl by one page, or queues its recently changed repositories with --recent.",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			if hostName == "" {
				return a.scheduler.CrawlAll(ctx)
			}
			h, err := a.host(ctx, hostName)
			if err != nil {
				return err
			}
			var n int
			if recent {
				n, err = a.scheduler.SyncRecentlyChanged(ctx, h, a.cfg.RecentWindow)
			} else {
				n, err = a.scheduler.CrawlRepositories(ctx, h)
			}
			if err != nil {
				return err
			}
			a.logger.Info("Crawl finished", "host", h.Name, "enqueued", n)
			return nil
		}),
	}
	cmd.Flags().StringVar(&hostName, "host", "", "crawl only this host")
	cmd.Flags().BoolVar(&recent, "recent", false, "queue recently changed repositories instead of the next crawl page")
	return cmd
}

func newImportCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "import [FILENAME...]",
		Short: "Import GH Archive hour files",
		Long:  "Import the named GH Archive files (e.g. 2024-06-01-15.json.gz), or the last --hours hours when none are named.",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 {
				return a.importer.ImportRecent(ctx, time.Now(), hours)
			}
			var errs []error
			for _, filename := range args {
				if _, err := a.importer.Import(ctx, filename); err != nil {
					errs = append(errs, err)
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d imports failed: %w", len(errs), len(args), errors.Join(errs...))
			}
			return nil
		}),
	}
	cmd.Flags().IntVar(&hours, "hours", 1, "number of past hours to import when no filename is given")
	return cmd
}
