package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"kakeibo/internal/core"
)

// ExpenseHeader is the fixed column order of an expense export.
var ExpenseHeader = []string{
	"date", "major_category", "minor_category", "amount",
	"description", "rating", "payment_method", "memo",
}

// ExportFilename names the file for an export covering start..end.
func ExportFilename(start, end string) string {
	return "kakeibo_" + start + "_" + end + ".csv"
}

// IncomeExportFilename names the file for an income export.
func IncomeExportFilename(start, end string) string {
	return "kakeibo_incomes_" + start + "_" + end + ".csv"
}

// Quote wraps a field in double quotes only when it contains a comma, a
// double quote or a newline, doubling any embedded quotes.
func Quote(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// FormatExpenses renders expenses oldest first (date, then created_at),
// resolving category and payment-method names through the given lookups.
// Missing lookups render as empty fields. Lines are joined by "\n" with no
// trailing newline.
func FormatExpenses(expenses []core.Expense, categories []core.Category, methods []core.PaymentMethod) string {
	cats := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		cats[c.ID] = c
	}
	pms := make(map[string]string, len(methods))
	for _, p := range methods {
		pms[p.ID] = p.Name
	}

	sorted := make([]core.Expense, len(expenses))
	copy(sorted, expenses)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	lines := make([]string, 0, len(sorted)+1)
	lines = append(lines, strings.Join(ExpenseHeader, ","))
	for _, e := range sorted {
		cat := cats[e.CategoryID]
		lines = append(lines, strings.Join([]string{
			e.Date,
			Quote(cat.MajorName),
			Quote(cat.MinorName),
			strconv.FormatInt(e.Amount, 10),
			Quote(e.Description),
			Quote(string(e.Rating)),
			Quote(pms[e.PaymentMethodID]),
			Quote(e.Memo),
		}, ","))
	}
	return strings.Join(lines, "\n")
}

// WriteExpenses writes FormatExpenses output to w as UTF-8 without a BOM.
func WriteExpenses(w io.Writer, expenses []core.Expense, categories []core.Category, methods []core.PaymentMethod) error {
	if _, err := io.WriteString(w, FormatExpenses(expenses, categories, methods)); err != nil {
		return fmt.Errorf("write expense csv: %w", err)
	}
	return nil
}

type incomeRow struct {
	Date   string `csv:"date"`
	Source string `csv:"source"`
	Amount int64  `csv:"amount"`
	Memo   string `csv:"memo"`
}

// WriteIncomes writes incomes oldest first with columns
// date,source,amount,memo.
func WriteIncomes(w io.Writer, incomes []core.Income, sources []core.IncomeSource) error {
	names := make(map[string]string, len(sources))
	for _, s := range sources {
		names[s.ID] = s.Name
	}

	sorted := make([]core.Income, len(incomes))
	copy(sorted, incomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	rows := make([]incomeRow, 0, len(sorted))
	for _, in := range sorted {
		rows = append(rows, incomeRow{Date: in.Date, Source: names[in.SourceID], Amount: in.Amount, Memo: in.Memo})
	}

	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csv.NewWriter(w))); err != nil {
		return fmt.Errorf("write income csv: %w", err)
	}
	return nil
}
