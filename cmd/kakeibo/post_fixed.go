package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kakeibo/internal/core"
)

func newPostFixedCmd(e *env) *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "post-fixed",
		Short: "Post active fixed costs as expenses for a month",
		Long: `post-fixed copies every active fixed cost into the month as an expense
dated on its first day. A month that already has posted fixed costs is left
alone. Without --month the current month is posted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer e.close(app)

			out := cmd.OutOrStdout()
			if month == "" {
				res, err := app.Poster.AutoPostCurrentMonth(ctx)
				if err != nil {
					return err
				}
				if res.AlreadyPosted {
					fmt.Fprintf(out, "%s: already posted\n", res.Month)
					return nil
				}
				fmt.Fprintf(out, "%s: posted %d fixed costs\n", res.Month, res.Posted)
				return nil
			}

			ym, err := core.ParseYearMonth(month)
			if err != nil {
				return err
			}
			n, err := app.Poster.PostForMonth(ctx, ym)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s: posted %d fixed costs\n", ym, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month to post as YYYY-MM (default: current month)")
	return cmd
}
