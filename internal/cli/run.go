package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/wqingest/internal/core"
	"github.com/JonMunkholm/wqingest/internal/notify"
	"github.com/JonMunkholm/wqingest/internal/watch"
	"github.com/JonMunkholm/wqingest/internal/web"
)

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the inbox and process extracts until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}
}

// run is the daemon: startup checks, then the worker until shutdown or a
// fatal inbox error.
func (a *app) run(ctx context.Context) error {
	cfg := a.cfg
	notifier := newNotifier(cfg)

	slog.Info("starting",
		"source", cfg.Ingest.SourceTag,
		"inbox", cfg.Ingest.InboxDir,
		"archive", cfg.Ingest.ArchiveDir,
		"table", cfg.Database.Table,
		"job", cfg.Job.Name,
		"mail", cfg.Notify.MailEnabled(),
	)

	comps, err := build(ctx, cfg, notifier)
	if err != nil {
		return startupFailed(ctx, notifier, err)
	}
	defer comps.Close()

	if err := runStartupChecks(ctx, comps.startupChecks()); err != nil {
		return startupFailed(ctx, notifier, err)
	}

	inbox, err := watch.NewInbox(cfg.Ingest.InboxDir, cfg.Ingest.QueueSize)
	if err != nil {
		return startupFailed(ctx, notifier, err)
	}
	defer inbox.Close()

	pipeline := comps.pipeline(core.NewDirArchiver(cfg.Ingest.ArchiveDir))
	worker := core.NewWorker(inbox, pipeline, notifier, cfg.Ingest.SettleDelay)

	var server *web.Server
	if cfg.Status.Enabled() {
		server = web.NewServer(comps.history, worker, web.Info{
			SourceTag: cfg.Ingest.SourceTag,
			Inbox:     cfg.Ingest.InboxDir,
			Archive:   cfg.Ingest.ArchiveDir,
			Target:    comps.table.Name().String(),
			Job:       cfg.Job.Name,
		}, web.Options{
			ReadTimeout:  cfg.Status.ReadTimeout,
			WriteTimeout: cfg.Status.WriteTimeout,
		})
		go func() {
			if err := server.Start(cfg.Status.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status server stopped", "error", err)
			}
		}()
	}

	inbox.Start(cfg.Ingest.ScanOnStart)
	runErr := worker.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Status.ShutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("status server shutdown", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		return runErr
	}
	slog.Info("stopped", "processed", worker.Processed())
	return nil
}

// startupFailed reports a startup failure by notification and returns it.
func startupFailed(ctx context.Context, notifier core.Notifier, err error) error {
	notifier.Notify(context.WithoutCancel(ctx), notify.Error,
		fmt.Sprintf("wqingest could not start; no files will be processed.\n\n%s\n\nDetail: %v",
			core.FormatUserError(err), err))
	return err
}
