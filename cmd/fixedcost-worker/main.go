package main

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/backend"
	"kakeibo/internal/cli"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger, app, err := cli.Bootstrap(context.Background())
	if err != nil {
		log.Default().Error("Failed to start fixedcost-worker", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Starting fixedcost-worker", "db_path", cfg.SQLiteDBPath, "check_interval", cfg.FixedCostCheckInterval)

	var wg sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(shutdownCtx context.Context) {
		if err := app.Scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("Scheduler stop failed", log.FieldError, err)
		}
		wg.Wait()
		if err := app.Cleanup(); err != nil {
			logger.Warn("Cleanup failed", log.FieldError, err)
		}
	})

	if err := app.Scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		os.Exit(1)
	}

	if app.Relay != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = app.Relay.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			err := app.Broker.ConsumeLedgerChanges(ctx, onLedgerChange(ctx, app, logger))
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Ledger change consumption failed", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("AMQP disabled, only the schedule triggers posting")
	}

	cli.WaitForShutdown(ctx, done)
}

// onLedgerChange re-runs the posting check whenever another process reports
// a fixed cost edit. Posting is guarded per month, so repeats are no-ops.
func onLedgerChange(ctx context.Context, app *backend.App, logger *log.Logger) func(*amqp.LedgerChangeMessage) error {
	return func(msg *amqp.LedgerChangeMessage) error {
		if !slices.Contains(msg.Tables, storage.TableFixedCosts) {
			return nil
		}
		res, err := app.Poster.AutoPostCurrentMonth(ctx)
		if err != nil {
			return err
		}
		logger.DebugContext(ctx, "Fixed cost change handled",
			log.FieldMonth, res.Month,
			log.FieldCount, res.Posted,
			log.FieldAlreadyPosted, res.AlreadyPosted)
		return nil
	}
}
