package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSummaryCmd(e *env) *cobra.Command {
	var start, end, month, format string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print totals for a period",
		Args:  cobra.NoArgs,
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
			sum, err := app.Summary.Period(ctx, start, end)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(sum); err != nil {
					return err
				}
				return enc.Close()
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			default:
				return fmt.Errorf("--format must be yaml or json, got %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last day YYYY-MM-DD")
	cmd.Flags().StringVar(&month, "month", "", "summarize a whole month YYYY-MM")
	cmd.Flags().StringVar(&format, "format", "yaml", "yaml or json")
	return cmd
}
