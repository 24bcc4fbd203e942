package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// stepClock advances one millisecond per call so created_at is strictly
// increasing across writes.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type testEnv struct {
	store      *storage.Store
	expenses   *ExpenseService
	incomes    *IncomeService
	categories *CategoryService
	methods    *PaymentMethodService
	sources    *IncomeSourceService
	fixed      *FixedCostService
	poster     *FixedCostPoster
	importer   *Importer
	exporter   *Exporter
	summary    *SummaryService
	cache      *cache.LRUCache[core.PeriodSummary]
}

// posterNow is the wall time the poster sees in tests.
var posterNow = time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := log.Discard()

	clock := &stepClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store, err := storage.Open(ctx, filepath.Join(t.TempDir(), "kakeibo.db"), storage.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := &testEnv{
		store:      store,
		expenses:   NewExpenseService(store, logger),
		incomes:    NewIncomeService(store, logger),
		categories: NewCategoryService(store, logger),
		methods:    NewPaymentMethodService(store, logger),
		sources:    NewIncomeSourceService(store, logger),
		fixed:      NewFixedCostService(store, logger),
		cache:      cache.NewLRUCache[core.PeriodSummary](8, time.Hour),
	}
	e.poster = NewFixedCostPoster(store, core.ClockFunc(func() time.Time { return posterNow }), time.UTC, logger)
	e.importer = NewImporter(store, e.categories, e.methods, logger)
	e.exporter = NewExporter(e.expenses, e.incomes, e.categories, e.methods, e.sources, logger)
	e.summary = NewSummaryService(store, e.expenses, e.incomes, e.categories, e.cache, logger)
	t.Cleanup(e.summary.Close)
	return e
}

func (e *testEnv) category(t *testing.T, label string) core.Category {
	t.Helper()
	cats, err := e.categories.List(context.Background())
	require.NoError(t, err)
	for _, c := range cats {
		if c.Label() == label {
			return c
		}
	}
	t.Fatalf("no category %q", label)
	return core.Category{}
}

func (e *testEnv) method(t *testing.T, name string) core.PaymentMethod {
	t.Helper()
	pms, err := e.methods.List(context.Background())
	require.NoError(t, err)
	for _, p := range pms {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("no payment method %q", name)
	return core.PaymentMethod{}
}

func (e *testEnv) source(t *testing.T, name string) core.IncomeSource {
	t.Helper()
	srcs, err := e.sources.List(context.Background())
	require.NoError(t, err)
	for _, s := range srcs {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("no income source %q", name)
	return core.IncomeSource{}
}

func (e *testEnv) addExpense(t *testing.T, date string, cat core.Category, amount int64, desc string) core.Expense {
	t.Helper()
	exp, err := e.expenses.Add(context.Background(), ExpenseInput{
		Date:            date,
		CategoryID:      cat.ID,
		PaymentMethodID: e.method(t, PaymentMethodCash).ID,
		Amount:          amount,
		Description:     desc,
	})
	require.NoError(t, err)
	return exp
}

func (e *testEnv) addFixedCost(t *testing.T, name string, amount int64) core.FixedCost {
	t.Helper()
	fc, err := e.fixed.Add(context.Background(), FixedCostInput{
		Name:            name,
		CategoryID:      e.category(t, "住居 (家賃)").ID,
		PaymentMethodID: e.method(t, "振込").ID,
		Amount:          amount,
	})
	require.NoError(t, err)
	return fc
}

func ids[T any](rows []T, id func(T) string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, id(r))
	}
	return out
}

func expenseID(e core.Expense) string { return e.ID }
