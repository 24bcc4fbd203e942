package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

func TestCategoryDeleteHidesWhenUsed(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	used := e.category(t, "交通 (電車)")
	exp := e.addExpense(t, "2024-05-01", used, 220, "")
	// Soft-deleted expenses still count as references.
	require.NoError(t, e.expenses.Delete(ctx, exp.ID))

	outcome, err := e.categories.Delete(ctx, used.ID)
	require.NoError(t, err)
	assert.Equal(t, Hidden, outcome)

	got, err := e.categories.Get(ctx, used.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	active, err := e.categories.ListActive(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids(active, func(c core.Category) string { return c.ID }), used.ID)
	all, err := e.categories.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids(all, func(c core.Category) string { return c.ID }), used.ID)
}

func TestCategoryDeleteRemovesWhenUnused(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	unused := e.category(t, "教育 (習い事)")

	outcome, err := e.categories.Delete(ctx, unused.ID)
	require.NoError(t, err)
	assert.Equal(t, Removed, outcome)

	_, err = e.categories.Get(ctx, unused.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = e.categories.Delete(ctx, unused.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReferenceDeleteUsageByKind(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	salary := e.source(t, "給与")
	_, err := e.incomes.Add(ctx, IncomeInput{Date: "2024-05-25", SourceID: salary.ID, Amount: 1})
	require.NoError(t, err)
	outcome, err := e.sources.Delete(ctx, salary.ID)
	require.NoError(t, err)
	assert.Equal(t, Hidden, outcome)

	outcome, err = e.sources.Delete(ctx, e.source(t, "臨時収入").ID)
	require.NoError(t, err)
	assert.Equal(t, Removed, outcome)

	e.addExpense(t, "2024-05-01", e.category(t, "その他"), 1, "")
	outcome, err = e.methods.Delete(ctx, e.method(t, PaymentMethodCash).ID)
	require.NoError(t, err)
	assert.Equal(t, Hidden, outcome)

	rent := e.addFixedCost(t, "家賃", 80000)
	outcome, err = e.fixed.Delete(ctx, e.addFixedCost(t, "ジム", 7000).ID)
	require.NoError(t, err)
	assert.Equal(t, Removed, outcome)
	_, err = e.poster.PostForMonth(ctx, "2024-05")
	require.NoError(t, err)
	outcome, err = e.fixed.Delete(ctx, rent.ID)
	require.NoError(t, err)
	assert.Equal(t, Hidden, outcome)
}

func sortOrders(t *testing.T, e *testEnv) map[string]int {
	t.Helper()
	cats, err := e.categories.List(context.Background())
	require.NoError(t, err)
	out := map[string]int{}
	for _, c := range cats {
		out[c.ID] = c.SortOrder
	}
	return out
}

func TestCategoryMove(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	active, err := e.categories.ListActive(ctx)
	require.NoError(t, err)
	first, second, last := active[0], active[1], active[len(active)-1]

	t.Run("first up is a no-op", func(t *testing.T) {
		before := sortOrders(t, e)
		require.NoError(t, e.categories.Move(ctx, first.ID, MoveUp))
		assert.Equal(t, before, sortOrders(t, e))
	})

	t.Run("last down is a no-op", func(t *testing.T) {
		before := sortOrders(t, e)
		require.NoError(t, e.categories.Move(ctx, last.ID, MoveDown))
		assert.Equal(t, before, sortOrders(t, e))
	})

	t.Run("down swaps with neighbour", func(t *testing.T) {
		require.NoError(t, e.categories.Move(ctx, first.ID, MoveDown))
		after, err := e.categories.ListActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, after[0].ID)
		assert.Equal(t, first.ID, after[1].ID)
		assert.Equal(t, first.SortOrder, after[0].SortOrder)
		assert.Equal(t, second.SortOrder, after[1].SortOrder)
	})

	t.Run("hidden rows are skipped", func(t *testing.T) {
		// active is now: second, first, third...
		third := active[2]
		e.addExpense(t, "2024-05-01", first, 1, "")
		_, err := e.categories.Delete(ctx, first.ID)
		require.NoError(t, err)

		require.NoError(t, e.categories.Move(ctx, third.ID, MoveUp))
		after, err := e.categories.ListActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, third.ID, after[0].ID)
		assert.Equal(t, second.ID, after[1].ID)

		assert.ErrorIs(t, e.categories.Move(ctx, first.ID, MoveUp), storage.ErrNotFound)
	})

	t.Run("invalid direction", func(t *testing.T) {
		assert.ErrorIs(t, e.categories.Move(ctx, second.ID, "sideways"), ErrInvalidDirection)
		_, err := ParseDirection("left")
		assert.ErrorIs(t, err, ErrInvalidDirection)
	})

	t.Run("fixed costs are unordered", func(t *testing.T) {
		fc := e.addFixedCost(t, "保険", 3000)
		assert.Error(t, e.fixed.Move(ctx, fc.ID, MoveUp))
	})
}

func TestCategoryAddAndUpdate(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	c, err := e.categories.Add(ctx, " 特別費 ", "")
	require.NoError(t, err)
	assert.Equal(t, "特別費", c.MajorName)
	assert.Equal(t, 15, c.SortOrder)
	assert.True(t, c.IsActive)

	_, err = e.categories.Add(ctx, "  ", "x")
	assert.ErrorIs(t, err, core.ErrEmptyName)

	minor := "冠婚葬祭"
	got, err := e.categories.Update(ctx, c.ID, CategoryPatch{MinorName: &minor})
	require.NoError(t, err)
	assert.Equal(t, "特別費 (冠婚葬祭)", got.Label())

	empty := ""
	_, err = e.categories.Update(ctx, c.ID, CategoryPatch{MajorName: &empty})
	assert.ErrorIs(t, err, core.ErrEmptyName)
	stored, err := e.categories.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "特別費", stored.MajorName)

	all, err := e.categories.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 16)
}

func TestFixedCostValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.fixed.Add(ctx, FixedCostInput{Name: "家賃", PaymentMethodID: "pm", Amount: 1})
	assert.ErrorIs(t, err, core.ErrMissingCategory)
	_, err = e.fixed.Add(ctx, FixedCostInput{CategoryID: "c", PaymentMethodID: "pm"})
	assert.ErrorIs(t, err, core.ErrEmptyName)

	fc := e.addFixedCost(t, "家賃", 80000)
	off := false
	got, err := e.fixed.Update(ctx, fc.ID, FixedCostPatch{IsActive: &off})
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	active, err := e.fixed.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestDefaultPaymentMethod(t *testing.T) {
	pm := func(name string) core.PaymentMethod { return core.PaymentMethod{ID: name, Name: name} }

	tests := []struct {
		name   string
		active []core.PaymentMethod
		want   string
	}{
		{"cash wins", []core.PaymentMethod{pm("クレジットカード"), pm(PaymentMethodUnset), pm(PaymentMethodCash)}, PaymentMethodCash},
		{"unset next", []core.PaymentMethod{pm("クレジットカード"), pm(PaymentMethodUnset)}, PaymentMethodUnset},
		{"first active", []core.PaymentMethod{pm("電子マネー"), pm("振込")}, "電子マネー"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultPaymentMethod(tt.active)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Name)
		})
	}

	_, err := DefaultPaymentMethod(nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPaymentMethodDefaultSkipsHidden(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	got, err := e.methods.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCash, got.Name)

	off := false
	_, err = e.methods.Update(ctx, got.ID, NamedPatch{IsActive: &off})
	require.NoError(t, err)
	got, err = e.methods.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodUnset, got.Name)
}
