package services

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kakeibo/internal/core"
	"kakeibo/internal/csvio"
	"kakeibo/internal/storage"
)

const exampleCSV = `2024/5/1,食費,"1,200",ランチ,〇,`

func parse(t *testing.T, text string) csvio.ParseResult {
	t.Helper()
	res, err := csvio.Parse(strings.NewReader(text))
	require.NoError(t, err)
	return res
}

func TestImportExampleRow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	food := e.category(t, "食費 (外食)")
	pm := e.method(t, PaymentMethodCash)
	rows := parse(t, exampleCSV).Rows
	mapping := map[string]string{"食費": food.ID}

	res, err := e.importer.ImportExpenses(ctx, rows, mapping, pm.ID, true)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 1, Errors: []string{}}, res)

	list, err := e.expenses.Daily(ctx, "2024-05-01")
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, "2024-05-01", got.Date)
	assert.Equal(t, int64(1200), got.Amount)
	assert.Equal(t, "ランチ", got.Description)
	assert.Equal(t, core.RatingGood, got.Rating)
	assert.Empty(t, got.Memo)
	assert.Equal(t, food.ID, got.CategoryID)
	assert.Equal(t, pm.ID, got.PaymentMethodID)
	assert.False(t, got.IsFixed)

	res, err = e.importer.ImportExpenses(ctx, rows, mapping, pm.ID, true)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Imported: 0, Skipped: 1, Errors: []string{}}, res)
}

func TestImportDuplicates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	food := e.category(t, "食費 (外食)")
	pm := e.method(t, PaymentMethodCash)
	rows := parse(t, exampleCSV+"\n"+exampleCSV).Rows
	mapping := map[string]string{"食費": food.ID}

	t.Run("within one batch", func(t *testing.T) {
		res, err := e.importer.ImportExpenses(ctx, rows, mapping, pm.ID, true)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Imported)
		assert.Equal(t, 1, res.Skipped)
	})

	t.Run("deleted rows do not block", func(t *testing.T) {
		list, err := e.expenses.Daily(ctx, "2024-05-01")
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.NoError(t, e.expenses.Delete(ctx, list[0].ID))

		res, err := e.importer.ImportExpenses(ctx, rows[:1], mapping, pm.ID, true)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Imported)
	})

	t.Run("payment method and rating are ignored", func(t *testing.T) {
		variant := rows[0]
		variant.Rating = core.RatingBad
		res, err := e.importer.ImportExpenses(ctx, []csvio.Row{variant}, mapping, e.method(t, "振込").ID, true)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Imported)
		assert.Equal(t, 1, res.Skipped)
	})

	t.Run("skipping disabled", func(t *testing.T) {
		res, err := e.importer.ImportExpenses(ctx, rows, mapping, pm.ID, false)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Imported)
		assert.Zero(t, res.Skipped)
	})
}

func TestImportUnmappedAndMissingPaymentMethod(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rows := parse(t, "2024-05-01,謎,100,a,,\n2024-05-02,その他,200,b,,").Rows
	mapping := map[string]string{"その他": e.category(t, "その他").ID}

	_, err := e.importer.ImportExpenses(ctx, rows, mapping, "", true)
	assert.ErrorIs(t, err, core.ErrMissingPaymentMethod)

	res, err := e.importer.ImportExpenses(ctx, rows, mapping, e.method(t, PaymentMethodCash).ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, []string{`no category mapping for "謎"`}, res.Errors)
}

func TestImportCancelledWritesNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rows := parse(t, "2024-05-01,その他,100,a,,\n2024-05-02,その他,200,b,,").Rows
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := e.importer.ImportExpenses(cctx, rows, map[string]string{"その他": e.category(t, "その他").ID}, e.method(t, PaymentMethodCash).ID, false)
	require.Error(t, err)

	n, err := storage.Count(ctx, e.store.DB(), storage.Expenses, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCategoryMappings(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	food := e.category(t, "食費 (外食)")
	grocery := e.category(t, "食費 (スーパー)")

	_, err := e.importer.MappingFor(ctx, "食費")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, e.importer.SaveMapping(ctx, "食費", food.ID))
	require.NoError(t, e.importer.SaveMapping(ctx, "食費", grocery.ID))
	m, err := e.importer.MappingFor(ctx, "食費")
	require.NoError(t, err)
	assert.Equal(t, grocery.ID, m.CategoryID)

	err = e.importer.SaveMapping(ctx, "交通", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	all, err := e.importer.Mappings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateCategoryFor(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	cat, err := e.importer.CreateCategoryFor(ctx, "カフェ", "", "")
	require.NoError(t, err)
	assert.Equal(t, "カフェ", cat.MajorName)
	assert.Equal(t, 15, cat.SortOrder)

	m, err := e.importer.MappingFor(ctx, "カフェ")
	require.NoError(t, err)
	assert.Equal(t, cat.ID, m.CategoryID)

	cat, err = e.importer.CreateCategoryFor(ctx, "Starbucks", "食費", "カフェ")
	require.NoError(t, err)
	assert.Equal(t, "食費 (カフェ)", cat.Label())
}

func TestSuggest(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	got, err := e.importer.Suggest(ctx, "外食", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "食費 (外食)", got[0].Category.Label())
	assert.Equal(t, 1.0, got[0].Score)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)

	all, err := e.importer.Suggest(ctx, "x", 0)
	require.NoError(t, err)
	assert.Len(t, all, 15)

	assert.Zero(t, similarity("", ""))
	assert.InDelta(t, 0.5, similarity("ab", "ac"), 1e-9)
}

type logicalRow struct {
	date, description, memo string
	amount                  int64
}

func logicalRows(expenses []core.Expense) []logicalRow {
	out := make([]logicalRow, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, logicalRow{e.Date, e.Description, e.Memo, e.Amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].date != out[j].date {
			return out[i].date < out[j].date
		}
		return out[i].description < out[j].description
	})
	return out
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestEnv(t)
	ctx := context.Background()
	food := src.category(t, "食費 (外食)")
	other := src.category(t, "その他")
	src.addExpense(t, "2024-05-01", food, 1200, "ランチ")
	src.addExpense(t, "2024-05-01", other, 300, `"引用", 付き`)
	exp := src.addExpense(t, "2024-05-20", food, 4500, "夕食")
	memo := "メモ, 付き"
	_, err := src.expenses.Update(ctx, exp.ID, ExpensePatch{Memo: &memo})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := src.exporter.ExportPeriod(ctx, &buf, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	parsed := parse(t, buf.String())
	require.Len(t, parsed.Rows, 3)
	assert.Equal(t, []string{"その他", "食費 (外食)"}, parsed.Categories)

	dst := newTestEnv(t)
	mapping := map[string]string{}
	for _, label := range parsed.Categories {
		mapping[label] = dst.category(t, label).ID
	}
	pm := dst.method(t, PaymentMethodCash).ID

	res, err := dst.importer.ImportExpenses(ctx, parsed.Rows, mapping, pm, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)

	want, err := src.expenses.Period(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	got, err := dst.expenses.Period(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	assert.Equal(t, logicalRows(want), logicalRows(got))

	res, err = dst.importer.ImportExpenses(ctx, parsed.Rows, mapping, pm, true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 3, res.Skipped)
}

func TestExportPeriodUsesHiddenLabels(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	cat := e.category(t, "交通 (電車)")
	e.addExpense(t, "2024-05-02", cat, 220, "通勤")
	_, err := e.categories.Delete(ctx, cat.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = e.exporter.ExportPeriod(ctx, &buf, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	assert.Equal(t,
		strings.Join(csvio.ExpenseHeader, ",")+"\n2024-05-02,交通,電車,220,通勤,,現金,",
		buf.String())

	_, err = e.exporter.ExportPeriod(ctx, &buf, "bad", "2024-05-31")
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestExportIncomes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	_, err := e.incomes.Add(ctx, IncomeInput{Date: "2024-05-25", SourceID: e.source(t, "給与").ID, Amount: 250000, Memo: "5月分"})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := e.exporter.ExportIncomes(ctx, &buf, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "date,source,amount,memo\n2024-05-25,給与,250000,5月分\n", buf.String())
}
