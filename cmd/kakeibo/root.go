package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"kakeibo/internal/backend"
	"kakeibo/internal/cli"
	"kakeibo/internal/config"
	"kakeibo/internal/log"
)

// env is the state the root command prepares for its subcommands.
type env struct {
	cfg    *config.Config
	logger *log.Logger
}

// open builds the backend. Callers must run the returned cleanup.
func (e *env) open(ctx context.Context) (*backend.App, error) {
	bc, err := backend.FromAppConfig(e.cfg)
	if err != nil {
		return nil, err
	}
	app, err := backend.NewFactory(e.logger).Build(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("build backend: %w", err)
	}
	return app, nil
}

func (e *env) close(app *backend.App) {
	if err := app.Cleanup(); err != nil {
		e.logger.Warn("Cleanup failed", log.FieldError, err)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var dbPath string

	root := &cobra.Command{
		Use:           "kakeibo",
		Short:         "Local household ledger",
		Long:          "kakeibo keeps expenses, incomes and monthly fixed costs in a local SQLite file.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.SQLiteDBPath = dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = cli.SetupLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides SQLITE_DB_PATH)")

	root.AddCommand(
		newServeCmd(e),
		newPostFixedCmd(e),
		newImportCmd(e),
		newExportCmd(e),
		newSummaryCmd(e),
		newMigrateCmd(e),
	)
	return root
}
