package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

func TestExpenseDailyNewestFirst(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	cat := e.category(t, "食費 (外食)")

	first := e.addExpense(t, "2024-05-01", cat, 500, "朝")
	second := e.addExpense(t, "2024-05-01", cat, 900, "昼")
	e.addExpense(t, "2024-05-02", cat, 100, "翌日")

	list, err := e.expenses.Daily(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, first.ID}, ids(list, expenseID))

	_, err = e.expenses.Daily(ctx, "2024/05/01")
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestExpenseSoftDeleteKeepsRow(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	exp := e.addExpense(t, "2024-05-01", e.category(t, "その他"), 300, "")

	require.NoError(t, e.expenses.Delete(ctx, exp.ID))

	list, err := e.expenses.Daily(ctx, "2024-05-01")
	require.NoError(t, err)
	assert.Empty(t, list)

	raw, err := storage.Get(ctx, e.store.DB(), storage.Expenses, exp.ID)
	require.NoError(t, err)
	assert.True(t, raw.Deleted)

	assert.ErrorIs(t, e.expenses.Delete(ctx, "missing"), storage.ErrNotFound)
}

func TestExpensePeriodIsInclusive(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	cat := e.category(t, "その他")
	for _, d := range []string{"2024-04-30", "2024-05-01", "2024-05-31", "2024-06-01"} {
		e.addExpense(t, d, cat, 100, d)
	}

	list, err := e.expenses.Period(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-05-31", list[0].Date)
	assert.Equal(t, "2024-05-01", list[1].Date)

	_, err = e.expenses.Period(ctx, "2024-05-01", "bad")
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestExpenseUpdate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	exp := e.addExpense(t, "2024-05-01", e.category(t, "その他"), 300, "before")

	t.Run("merges fields", func(t *testing.T) {
		amount := int64(450)
		rating := core.RatingFair
		desc := "after"
		got, err := e.expenses.Update(ctx, exp.ID, ExpensePatch{Amount: &amount, Rating: &rating, Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, int64(450), got.Amount)
		assert.Equal(t, "2024-05-01", got.Date)
		assert.True(t, got.UpdatedAt.After(got.CreatedAt))

		stored, err := e.expenses.Get(ctx, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, core.RatingFair, stored.Rating)
		assert.Equal(t, "after", stored.Description)
		assert.Equal(t, exp.CreatedAt.UTC(), stored.CreatedAt.UTC())
	})

	t.Run("invalid merge is rejected", func(t *testing.T) {
		negative := int64(-1)
		_, err := e.expenses.Update(ctx, exp.ID, ExpensePatch{Amount: &negative})
		assert.ErrorIs(t, err, core.ErrInvalidAmount)

		stored, err := e.expenses.Get(ctx, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(450), stored.Amount)
	})

	t.Run("unknown id", func(t *testing.T) {
		memo := "x"
		_, err := e.expenses.Update(ctx, "missing", ExpensePatch{Memo: &memo})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestExpenseAddValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	cat := e.category(t, "その他")
	pm := e.method(t, PaymentMethodCash)

	tests := []struct {
		name string
		in   ExpenseInput
		want error
	}{
		{"bad date", ExpenseInput{Date: "2024-02-30", CategoryID: cat.ID, PaymentMethodID: pm.ID}, core.ErrInvalidDate},
		{"no category", ExpenseInput{Date: "2024-05-01", PaymentMethodID: pm.ID}, core.ErrMissingCategory},
		{"no payment method", ExpenseInput{Date: "2024-05-01", CategoryID: cat.ID}, core.ErrMissingPaymentMethod},
		{"negative", ExpenseInput{Date: "2024-05-01", CategoryID: cat.ID, PaymentMethodID: pm.ID, Amount: -5}, core.ErrInvalidAmount},
		{"rating", ExpenseInput{Date: "2024-05-01", CategoryID: cat.ID, PaymentMethodID: pm.ID, Rating: "?"}, core.ErrInvalidRating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.expenses.Add(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	n, err := storage.Count(ctx, e.store.DB(), storage.Expenses, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIncomeLifecycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	salary := e.source(t, "給与")

	in, err := e.incomes.Add(ctx, IncomeInput{Date: "2024-05-25", SourceID: salary.ID, Amount: 250000})
	require.NoError(t, err)

	_, err = e.incomes.Add(ctx, IncomeInput{Date: "2024-05-25", Amount: 1})
	assert.ErrorIs(t, err, core.ErrMissingSource)

	memo := "賞与込み"
	got, err := e.incomes.Update(ctx, in.ID, IncomePatch{Memo: &memo})
	require.NoError(t, err)
	assert.Equal(t, memo, got.Memo)

	list, err := e.incomes.Period(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, e.incomes.Delete(ctx, in.ID))
	list, err = e.incomes.Daily(ctx, "2024-05-25")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSearch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	food := e.category(t, "食費 (外食)")
	other := e.category(t, "その他")
	card := e.method(t, "クレジットカード")

	e.addExpense(t, "2024-05-01", food, 1000, "a")
	e.addExpense(t, "2024-05-02", other, 200, "b")
	_, err := e.expenses.Add(ctx, ExpenseInput{Date: "2024-05-03", CategoryID: food.ID, PaymentMethodID: card.ID, Amount: 50, Rating: core.RatingGood})
	require.NoError(t, err)
	e.addFixedCost(t, "家賃", 80000)
	_, err = e.poster.PostForMonth(ctx, "2024-05")
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter ExpenseFilter
		count  int
		total  int64
	}{
		{"all", ExpenseFilter{}, 4, 81250},
		{"category", ExpenseFilter{CategoryID: food.ID}, 2, 1050},
		{"payment method", ExpenseFilter{PaymentMethodID: card.ID}, 1, 50},
		{"rating", ExpenseFilter{Rating: core.RatingGood}, 1, 50},
		{"fixed", ExpenseFilter{Fixed: ptr(true)}, 1, 80000},
		{"variable", ExpenseFilter{Fixed: ptr(false)}, 3, 1250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Search(ctx, e.expenses, e.incomes, SearchQuery{
				Kind: core.KindExpense, Start: "2024-05-01", End: "2024-05-31", Expense: tt.filter,
			})
			require.NoError(t, err)
			assert.Len(t, res.Records, tt.count)
			assert.Equal(t, tt.total, res.Total)
			for _, r := range res.Records {
				assert.Equal(t, core.KindExpense, r.Kind)
				assert.Nil(t, r.Income)
			}
		})
	}

	_, err = e.incomes.Add(ctx, IncomeInput{Date: "2024-05-25", SourceID: e.source(t, "給与").ID, Amount: 300000})
	require.NoError(t, err)
	res, err := Search(ctx, e.expenses, e.incomes, SearchQuery{Kind: core.KindIncome, Start: "2024-05-01", End: "2024-05-31"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(300000), res.Records[0].Amount())

	_, err = Search(ctx, e.expenses, e.incomes, SearchQuery{Kind: "transfer", Start: "2024-05-01", End: "2024-05-31"})
	assert.Error(t, err)
}

func TestWatchDailySeesNewExpense(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := e.expenses.WatchDaily(ctx, "2024-05-01")
	first := <-ch
	require.NoError(t, first.Err)
	assert.Empty(t, first.Value)

	exp := e.addExpense(t, "2024-05-01", e.category(t, "その他"), 10, "")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case r := <-ch:
			require.NoError(t, r.Err)
			if len(r.Value) == 1 {
				assert.Equal(t, exp.ID, r.Value[0].ID)
				return
			}
		case <-deadline:
			t.Fatal("no update after insert")
		}
	}
}

func ptr[T any](v T) *T { return &v }
