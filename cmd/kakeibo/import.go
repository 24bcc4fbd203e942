package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kakeibo/internal/backend"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

func newImportCmd(e *env) *cobra.Command {
	var (
		paymentMethod   string
		maps            []string
		createMissing   bool
		noSkipDuplicate bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import expenses from a CSV file",
		Long: `import reads a CSV file (comma or tab separated, with or without the
export header) and adds its rows as expenses.

Every category label in the file must map to a category. Mappings saved by
earlier imports are reused; --map label="major (minor)" adds more. With
--create-missing a new category is created for each remaining label,
otherwise the command lists suggestions and fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			app, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer e.close(app)

			opts := importOptions{
				paymentMethod:  paymentMethod,
				maps:           maps,
				createMissing:  createMissing,
				skipDuplicates: !noSkipDuplicate,
			}
			return runImport(ctx, cmd.OutOrStdout(), app, f, opts)
		},
	}
	cmd.Flags().StringVar(&paymentMethod, "pm", "", "payment method name (default: the default payment method)")
	cmd.Flags().StringArrayVar(&maps, "map", nil, `map a label to a category, label="major (minor)"; repeatable`)
	cmd.Flags().BoolVar(&createMissing, "create-missing", false, "create a category for every unmapped label")
	cmd.Flags().BoolVar(&noSkipDuplicate, "no-skip-duplicates", false, "import rows even if an identical expense exists")
	return cmd
}

type importOptions struct {
	paymentMethod  string
	maps           []string
	createMissing  bool
	skipDuplicates bool
}

func runImport(ctx context.Context, out io.Writer, app *backend.App, r io.Reader, opts importOptions) error {
	session := app.Importer.NewSession()
	if err := session.Load(ctx, r); err != nil {
		return err
	}

	if len(opts.maps) > 0 {
		cats, err := app.Categories.ListActive(ctx)
		if err != nil {
			return err
		}
		byLabel := make(map[string]string, len(cats))
		for _, c := range cats {
			byLabel[c.Label()] = c.ID
		}
		for _, m := range opts.maps {
			label, target, ok := strings.Cut(m, "=")
			if !ok || label == "" || target == "" {
				return fmt.Errorf("--map %q: want label=category", m)
			}
			id, ok := byLabel[target]
			if !ok {
				return fmt.Errorf("--map %q: category %q: %w", m, target, storage.ErrNotFound)
			}
			if err := session.Resolve(ctx, label, id); err != nil {
				return err
			}
		}
	}

	view := session.View()
	if len(view.Unmapped) > 0 {
		if !opts.createMissing {
			for _, label := range view.Unmapped {
				sugg, err := app.Importer.Suggest(ctx, label, 3)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(sugg))
				for _, s := range sugg {
					names = append(names, s.Category.Label())
				}
				fmt.Fprintf(out, "unmapped %q; closest: %s\n", label, strings.Join(names, ", "))
			}
			return fmt.Errorf("%w: %v", services.ErrUnmappedLabels, view.Unmapped)
		}
		for _, label := range view.Unmapped {
			cat, err := session.CreateCategory(ctx, label, "", "")
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "created category %q\n", cat.Label())
		}
	}

	pmID := ""
	if opts.paymentMethod != "" {
		methods, err := app.PaymentMethods.ListActive(ctx)
		if err != nil {
			return err
		}
		for _, pm := range methods {
			if pm.Name == opts.paymentMethod {
				pmID = pm.ID
				break
			}
		}
		if pmID == "" {
			return fmt.Errorf("payment method %q: %w", opts.paymentMethod, storage.ErrNotFound)
		}
	}

	res, err := session.Confirm(ctx, pmID, opts.skipDuplicates)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d, skipped %d\n", res.Imported, res.Skipped)
	for _, msg := range res.Errors {
		fmt.Fprintf(out, "error: %s\n", msg)
	}
	return nil
}
