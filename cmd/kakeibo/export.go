package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kakeibo/internal/core"
	"kakeibo/internal/csvio"
)

func newExportCmd(e *env) *cobra.Command {
	var start, end, month, kind, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a period of the ledger as CSV",
		Long: `export writes the expenses (or incomes with --kind incomes) dated within
the period to a CSV file. The file name defaults to kakeibo_<start>_<end>.csv;
pass -o - to write to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer e.close(app)

			start, end, err := resolvePeriod(app.Poster.CurrentMonth(), month, start, end)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			var n int
			filename := csvio.ExportFilename(start, end)
			switch kind {
			case "expenses":
				n, err = app.Exporter.ExportPeriod(ctx, &buf, start, end)
			case "incomes":
				n, err = app.Exporter.ExportIncomes(ctx, &buf, start, end)
				filename = csvio.IncomeExportFilename(start, end)
			default:
				return fmt.Errorf("--kind must be expenses or incomes, got %q", kind)
			}
			if err != nil {
				return err
			}

			if output == "-" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if output == "" {
				output = filename
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day YYYY-MM-DD")
	cmd.Flags().StringVar(&month, "month", "", "export a whole month YYYY-MM")
	cmd.Flags().StringVar(&kind, "kind", "expenses", "expenses or incomes")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout")
	return cmd
}

// resolvePeriod turns the period flags into an inclusive day range. --month
// wins over --start/--end; with nothing set the current month is used.
func resolvePeriod(current core.YearMonth, month, start, end string) (string, string, error) {
	if month != "" {
		ym, err := core.ParseYearMonth(month)
		if err != nil {
			return "", "", err
		}
		return ym.FirstDay(), ym.LastDay(), nil
	}
	if start == "" && end == "" {
		return current.FirstDay(), current.LastDay(), nil
	}
	if start == "" || end == "" {
		return "", "", fmt.Errorf("--start and --end must be given together")
	}
	return start, end, nil
}
