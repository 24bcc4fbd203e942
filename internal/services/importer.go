package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"kakeibo/internal/core"
	"kakeibo/internal/csvio"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// ImportResult summarizes one confirmed import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Importer turns parsed CSV rows into expenses and remembers how foreign
// category labels map onto categories.
type Importer struct {
	store      *storage.Store
	categories *CategoryService
	methods    *PaymentMethodService
	logger     *log.Logger
}

func NewImporter(store *storage.Store, categories *CategoryService, methods *PaymentMethodService, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.Default()
	}
	return &Importer{store: store, categories: categories, methods: methods, logger: logger.WithComponent(log.ComponentImport)}
}

// Mappings returns every persisted label mapping, by label.
func (im *Importer) Mappings(ctx context.Context) ([]core.CategoryMapping, error) {
	return storage.OrderBy(ctx, im.store.DB(), storage.CategoryMappings, "csv_category")
}

// MappingFor returns the mapping of one label, or storage.ErrNotFound.
func (im *Importer) MappingFor(ctx context.Context, label string) (core.CategoryMapping, error) {
	ms, err := storage.Select(ctx, im.store.DB(), storage.CategoryMappings, storage.WhereEquals("csv_category", label))
	if err != nil {
		return core.CategoryMapping{}, err
	}
	if len(ms) == 0 {
		return core.CategoryMapping{}, fmt.Errorf("mapping for %q: %w", label, storage.ErrNotFound)
	}
	return ms[0], nil
}

// SaveMapping points label at categoryID, replacing any earlier mapping.
func (im *Importer) SaveMapping(ctx context.Context, label, categoryID string) error {
	err := im.store.Write(ctx, func(w *storage.Writer) error {
		if _, err := storage.Get(ctx, w, storage.Categories, categoryID); err != nil {
			return err
		}
		return saveMappingTx(ctx, w, label, categoryID)
	})
	if err != nil {
		return fmt.Errorf("save mapping %q: %w", label, err)
	}
	im.logger.InfoContext(ctx, "Category mapping saved", log.FieldLabel, label, log.FieldCategoryID, categoryID)
	return nil
}

func saveMappingTx(ctx context.Context, w *storage.Writer, label, categoryID string) error {
	now := w.Now()
	return storage.Upsert(ctx, w, storage.CategoryMappings, core.CategoryMapping{
		ID:          core.NewID(),
		CSVCategory: label,
		CategoryID:  categoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, "csv_category", "category_id", "updated_at")
}

// CreateCategoryFor adds a category for an unmapped label and maps the label
// to it in the same transaction. An empty major defaults to the label.
func (im *Importer) CreateCategoryFor(ctx context.Context, label, major, minor string) (core.Category, error) {
	if strings.TrimSpace(major) == "" {
		major = label
	}
	var cat core.Category
	err := im.store.Write(ctx, func(w *storage.Writer) error {
		var err error
		if cat, err = im.categories.addTx(ctx, w, major, minor); err != nil {
			return err
		}
		return saveMappingTx(ctx, w, label, cat.ID)
	})
	if err != nil {
		return cat, fmt.Errorf("create category for %q: %w", label, err)
	}
	im.logger.InfoContext(ctx, "Category created from import", log.FieldLabel, label, log.FieldCategoryID, cat.ID)
	return cat, nil
}

// signature identifies an expense for duplicate detection. Payment method
// and rating are not part of it.
func signature(date, categoryID string, amount int64, description, memo string) string {
	return strings.Join([]string{date, categoryID, strconv.FormatInt(amount, 10), description, memo}, "|")
}

// ImportExpenses inserts rows as expenses. Labels are resolved through
// categoryMap; unmapped rows are reported in Errors and skipped. With
// skipDuplicates, rows whose signature matches a live expense, or an
// earlier row of the same batch, are counted as skipped. The duplicate scan
// and the insert share one transaction, and the insert is all or nothing.
func (im *Importer) ImportExpenses(ctx context.Context, rows []csvio.Row, categoryMap map[string]string, paymentMethodID string, skipDuplicates bool) (ImportResult, error) {
	res := ImportResult{Errors: []string{}}
	if strings.TrimSpace(paymentMethodID) == "" {
		return res, core.ErrMissingPaymentMethod
	}

	err := im.store.Write(ctx, func(w *storage.Writer) error {
		seen := map[string]struct{}{}
		if skipDuplicates {
			existing, err := storage.Select(ctx, w, storage.Expenses, storage.WhereEquals("deleted", false))
			if err != nil {
				return err
			}
			for _, e := range existing {
				seen[signature(e.Date, e.CategoryID, e.Amount, e.Description, e.Memo)] = struct{}{}
			}
		}

		now := w.Now()
		staged := make([]core.Expense, 0, len(rows))
		for _, row := range rows {
			categoryID, ok := categoryMap[row.Category]
			if !ok || categoryID == "" {
				res.Errors = append(res.Errors, fmt.Sprintf("no category mapping for %q", row.Category))
				continue
			}
			sig := signature(row.Date, categoryID, row.Amount, row.Description, row.Memo)
			if skipDuplicates {
				if _, dup := seen[sig]; dup {
					res.Skipped++
					continue
				}
			}
			staged = append(staged, core.Expense{
				ID:              core.NewID(),
				Date:            row.Date,
				CategoryID:      categoryID,
				PaymentMethodID: paymentMethodID,
				Amount:          row.Amount,
				Description:     row.Description,
				Rating:          row.Rating,
				Memo:            row.Memo,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			seen[sig] = struct{}{}
		}

		if err := storage.BulkInsert(ctx, w, storage.Expenses, staged); err != nil {
			return err
		}
		res.Imported = len(staged)
		return nil
	})
	if err != nil {
		return ImportResult{Errors: []string{}}, fmt.Errorf("import expenses: %w", err)
	}

	im.logger.InfoContext(ctx, "Import complete",
		log.FieldOperation, log.OpImport,
		log.FieldImported, res.Imported,
		log.FieldSkipped, res.Skipped,
		log.FieldErrors, len(res.Errors))
	if len(res.Errors) > 0 {
		im.logger.WarnContext(ctx, "Import rows without category mapping", log.FieldCount, len(res.Errors))
	}
	return res, nil
}

// Suggestion is an active category ranked against a foreign label.
type Suggestion struct {
	Category core.Category `json:"category"`
	Score    float64       `json:"score"` // 1 is an exact match
}

// Suggest ranks active categories by how closely their major name, minor
// name or full label resembles label. At most limit results are returned;
// limit <= 0 means all.
func (im *Importer) Suggest(ctx context.Context, label string, limit int) ([]Suggestion, error) {
	cats, err := im.categories.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(cats))
	for _, c := range cats {
		best := 0.0
		for _, name := range []string{c.MajorName, c.MinorName, c.Label()} {
			if name == "" {
				continue
			}
			if s := similarity(label, name); s > best {
				best = s
			}
		}
		out = append(out, Suggestion{Category: c, Score: best})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// ImportState is a step of the interactive import flow.
type ImportState string

const (
	StateUpload  ImportState = "upload"
	StateMapping ImportState = "mapping"
	StateConfirm ImportState = "confirm"
	StateDone    ImportState = "done"
)

var (
	ErrInvalidState   = errors.New("operation not allowed in current import state")
	ErrNoImportRows   = errors.New("no importable rows")
	ErrUnmappedLabels = errors.New("some category labels are not mapped")
)
