package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kakeibo/internal/storage"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `migrate opens the database, applies pending migrations and seeds the
default categories, payment methods and income sources into a new file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storage.Open(cmd.Context(), e.cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			if err := st.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", e.cfg.SQLiteDBPath, storage.SchemaVersion)
			return nil
		},
	}
}
