package services

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// UnknownCategory labels expenses whose category no longer resolves.
const UnknownCategory = "不明"

var hundred = decimal.NewFromInt(100)

// SummaryService aggregates the ledger over a day range. Results are cached
// per range until the next commit to expenses, incomes or categories.
type SummaryService struct {
	expenses   *ExpenseService
	incomes    *IncomeService
	categories *CategoryService
	cache      cache.Cache[core.PeriodSummary]
	logger     *log.Logger

	mu  sync.Mutex
	sub *storage.Subscription
}

func NewSummaryService(store *storage.Store, expenses *ExpenseService, incomes *IncomeService, categories *CategoryService, c cache.Cache[core.PeriodSummary], logger *log.Logger) *SummaryService {
	if logger == nil {
		logger = log.Default()
	}
	return &SummaryService{
		expenses:   expenses,
		incomes:    incomes,
		categories: categories,
		cache:      c,
		logger:     logger.WithComponent(log.ComponentSummary),
		sub:        store.Hub().Subscribe(storage.TableExpenses, storage.TableIncomes, storage.TableCategories),
	}
}

// Close stops listening for ledger changes.
func (s *SummaryService) Close() {
	s.sub.Close()
}

// invalidate clears the cache if anything relevant committed since the last
// call.
func (s *SummaryService) invalidate(ctx context.Context) {
	select {
	case <-s.sub.C():
		tables := s.sub.Drain()
		s.cache.Clear()
		s.logger.DebugContext(ctx, "Summary cache cleared", log.FieldTables, tables)
	default:
	}
}

// Period summarizes start..end inclusive.
func (s *SummaryService) Period(ctx context.Context, start, end string) (core.PeriodSummary, error) {
	if err := validateRange(start, end); err != nil {
		return core.PeriodSummary{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidate(ctx)
	key := start + "|" + end
	if sum, ok := s.cache.Get(key); ok {
		return sum, nil
	}

	expenses, err := s.expenses.Period(ctx, start, end)
	if err != nil {
		return core.PeriodSummary{}, err
	}
	incomes, err := s.incomes.Period(ctx, start, end)
	if err != nil {
		return core.PeriodSummary{}, err
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return core.PeriodSummary{}, err
	}

	sum := Summarize(start, end, expenses, incomes, categories)
	s.cache.Set(key, sum)
	return sum, nil
}

// Summarize computes a PeriodSummary from already loaded rows.
func Summarize(start, end string, expenses []core.Expense, incomes []core.Income, categories []core.Category) core.PeriodSummary {
	sum := core.PeriodSummary{
		Start:      start,
		End:        end,
		ByCategory: []core.CategoryAmount{},
		Monthly:    []core.MonthAmounts{},
		Daily:      []core.DayAmount{},
	}

	majors := make(map[string]string, len(categories))
	for _, c := range categories {
		majors[c.ID] = c.MajorName
	}

	byMajor := map[string]int64{}
	byMonth := map[core.YearMonth]*core.MonthAmounts{}
	byDay := map[string]int64{}
	for _, ym := range core.MonthsBetween(start, end) {
		byMonth[ym] = &core.MonthAmounts{Month: ym}
	}

	for _, e := range expenses {
		sum.TotalExpense += e.Amount
		if e.IsFixed {
			sum.FixedExpense += e.Amount
		}
		name, ok := majors[e.CategoryID]
		if !ok {
			name = UnknownCategory
		}
		byMajor[name] += e.Amount
		byDay[e.Date] += e.Amount
		if m, ok := byMonth[monthOf(e.Date)]; ok {
			m.Expense += e.Amount
		}
	}
	for _, i := range incomes {
		sum.TotalIncome += i.Amount
		if m, ok := byMonth[monthOf(i.Date)]; ok {
			m.Income += i.Amount
		}
	}
	sum.VariableExpense = sum.TotalExpense - sum.FixedExpense
	sum.Balance = sum.TotalIncome - sum.TotalExpense

	total := decimal.NewFromInt(sum.TotalExpense)
	for name, amount := range byMajor {
		share := decimal.Zero
		if !total.IsZero() {
			share = decimal.NewFromInt(amount).Mul(hundred).Div(total).Round(2)
		}
		sum.ByCategory = append(sum.ByCategory, core.CategoryAmount{Name: name, Amount: amount, Share: share})
	}
	sort.Slice(sum.ByCategory, func(i, j int) bool {
		a, b := sum.ByCategory[i], sum.ByCategory[j]
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return a.Name < b.Name
	})

	for _, ym := range core.MonthsBetween(start, end) {
		sum.Monthly = append(sum.Monthly, *byMonth[ym])
	}
	for _, day := range core.DaysBetween(start, end) {
		sum.Daily = append(sum.Daily, core.DayAmount{Date: day, Amount: byDay[day]})
	}
	return sum
}

func monthOf(day string) core.YearMonth {
	if len(day) < 7 {
		return ""
	}
	return core.YearMonth(day[:7])
}
