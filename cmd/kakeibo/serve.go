package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	kakeibohttp "kakeibo/internal/http"
	"kakeibo/internal/log"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(e *env) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local JSON API",
		Long: `serve runs the HTTP API together with the change relay (when AMQP_URL is
set), the summary cache sweeper and the fixed cost scheduler. Fixed costs
for the current month are posted at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, e, noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not post fixed costs from this process")
	return cmd
}

func serve(ctx context.Context, e *env, noScheduler bool) error {
	app, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer e.close(app)

	logger := e.logger
	srv := kakeibohttp.NewServer(":"+e.cfg.Port, app, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(gctx, "HTTP server listening", "addr", srv.Addr, log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return app.Caches.Run(gctx, e.cfg.SummaryCacheTTL)
	})
	if app.Relay != nil {
		g.Go(func() error { return app.Relay.Run(gctx) })
	}

	if noScheduler {
		if _, err := app.Poster.AutoPostCurrentMonth(ctx); err != nil {
			logger.ErrorContext(ctx, "Startup fixed cost posting failed", log.FieldError, err)
		}
	} else {
		if err := app.Scheduler.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.Scheduler.Stop(stopCtx)
		})
	}

	return g.Wait()
}
