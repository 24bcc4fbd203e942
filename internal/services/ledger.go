package services

import (
	"context"
	"fmt"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// Daily lists put the most recently entered row first; period lists are
// newest date first with the same tie-break.
var (
	dailyOrder  = []string{"created_at DESC", "rowid DESC"}
	periodOrder = []string{"date DESC", "created_at DESC", "rowid DESC"}
)

// entrySpec describes one ledger table to the generic entry manager.
type entrySpec[T any] struct {
	kind     string
	table    storage.Table[T]
	validate func(T) error
	init     func(rec *T, id string, now time.Time)
	touch    func(rec *T, now time.Time)
}

// entries implements the life cycle shared by expenses and incomes:
// rows are never physically removed, only flagged deleted.
type entries[T any] struct {
	store  *storage.Store
	spec   entrySpec[T]
	logger *log.Logger
}

func (e *entries[T]) add(ctx context.Context, rec T) (T, error) {
	if err := e.spec.validate(rec); err != nil {
		return rec, err
	}
	err := e.store.Write(ctx, func(w *storage.Writer) error {
		e.spec.init(&rec, core.NewID(), w.Now())
		return storage.Insert(ctx, w, e.spec.table, rec)
	})
	if err != nil {
		return rec, fmt.Errorf("add %s: %w", e.spec.kind, err)
	}
	return rec, nil
}

func (e *entries[T]) update(ctx context.Context, id string, patch func(*T) map[string]any) (T, error) {
	var rec T
	err := e.store.Write(ctx, func(w *storage.Writer) error {
		cur, err := storage.Get(ctx, w, e.spec.table, id)
		if err != nil {
			return err
		}
		fields := patch(&cur)
		if err := e.spec.validate(cur); err != nil {
			return err
		}
		if len(fields) > 0 {
			if err := storage.Update(ctx, w, e.spec.table, id, fields); err != nil {
				return err
			}
			e.spec.touch(&cur, w.Now())
		}
		rec = cur
		return nil
	})
	if err != nil {
		return rec, fmt.Errorf("update %s: %w", e.spec.kind, err)
	}
	e.logger.InfoContext(ctx, "Ledger entry updated", "kind", e.spec.kind, log.FieldID, id)
	return rec, nil
}

func (e *entries[T]) delete(ctx context.Context, id string) error {
	err := e.store.Write(ctx, func(w *storage.Writer) error {
		return storage.Update(ctx, w, e.spec.table, id, map[string]any{"deleted": true})
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", e.spec.kind, err)
	}
	e.logger.InfoContext(ctx, "Ledger entry deleted", "kind", e.spec.kind, log.FieldID, id)
	return nil
}

func (e *entries[T]) get(ctx context.Context, id string) (T, error) {
	return storage.Get(ctx, e.store.DB(), e.spec.table, id)
}

func (e *entries[T]) daily(ctx context.Context, date string) ([]T, error) {
	if err := core.ValidateDay(date); err != nil {
		return nil, err
	}
	where := storage.And(storage.WhereEquals("date", date), storage.WhereEquals("deleted", false))
	return storage.Select(ctx, e.store.DB(), e.spec.table, where, dailyOrder...)
}

func (e *entries[T]) period(ctx context.Context, start, end string, extra ...storage.Condition) ([]T, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	conds := append([]storage.Condition{
		storage.WhereBetween("date", start, end),
		storage.WhereEquals("deleted", false),
	}, extra...)
	return storage.Select(ctx, e.store.DB(), e.spec.table, storage.And(conds...), periodOrder...)
}

func (e *entries[T]) watch(ctx context.Context, query func(context.Context) ([]T, error)) <-chan storage.Result[[]T] {
	return storage.Watch(ctx, e.store.Hub(), []string{e.spec.table.Name}, query)
}

func validateRange(start, end string) error {
	if err := core.ValidateDay(start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if err := core.ValidateDay(end); err != nil {
		return fmt.Errorf("end: %w", err)
	}
	return nil
}

// ExpenseInput carries the user-supplied fields of a new expense.
type ExpenseInput struct {
	Date            string      `json:"date"`
	CategoryID      string      `json:"category_id"`
	PaymentMethodID string      `json:"payment_method_id"`
	Amount          int64       `json:"amount"`
	Description     string      `json:"description"`
	Rating          core.Rating `json:"rating,omitempty"`
	Memo            string      `json:"memo"`
}

// ExpensePatch lists the fields an update may change; nil means unchanged.
type ExpensePatch struct {
	Date            *string      `json:"date,omitempty"`
	CategoryID      *string      `json:"category_id,omitempty"`
	PaymentMethodID *string      `json:"payment_method_id,omitempty"`
	Amount          *int64       `json:"amount,omitempty"`
	Description     *string      `json:"description,omitempty"`
	Rating          *core.Rating `json:"rating,omitempty"`
	Memo            *string      `json:"memo,omitempty"`
}

type ExpenseService struct {
	entries[core.Expense]
}

func NewExpenseService(store *storage.Store, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Default()
	}
	return &ExpenseService{entries[core.Expense]{
		store:  store,
		logger: logger.WithComponent(log.ComponentLedger),
		spec: entrySpec[core.Expense]{
			kind:     "expense",
			table:    storage.Expenses,
			validate: core.Expense.Validate,
			init: func(e *core.Expense, id string, now time.Time) {
				e.ID, e.Deleted, e.CreatedAt, e.UpdatedAt = id, false, now, now
			},
			touch: func(e *core.Expense, now time.Time) { e.UpdatedAt = now },
		},
	}}
}

func (s *ExpenseService) Add(ctx context.Context, in ExpenseInput) (core.Expense, error) {
	e, err := s.add(ctx, core.Expense{
		Date:            in.Date,
		CategoryID:      in.CategoryID,
		PaymentMethodID: in.PaymentMethodID,
		Amount:          in.Amount,
		Description:     in.Description,
		Rating:          in.Rating,
		Memo:            in.Memo,
	})
	if err != nil {
		return e, err
	}
	s.logger.InfoContext(ctx, "Expense added", log.FieldID, e.ID, log.FieldDate, e.Date, log.FieldAmount, e.Amount)
	return e, nil
}

func (s *ExpenseService) Update(ctx context.Context, id string, p ExpensePatch) (core.Expense, error) {
	return s.update(ctx, id, func(e *core.Expense) map[string]any {
		f := map[string]any{}
		if p.Date != nil {
			e.Date = *p.Date
			f["date"] = e.Date
		}
		if p.CategoryID != nil {
			e.CategoryID = *p.CategoryID
			f["category_id"] = e.CategoryID
		}
		if p.PaymentMethodID != nil {
			e.PaymentMethodID = *p.PaymentMethodID
			f["payment_method_id"] = e.PaymentMethodID
		}
		if p.Amount != nil {
			e.Amount = *p.Amount
			f["amount"] = e.Amount
		}
		if p.Description != nil {
			e.Description = *p.Description
			f["description"] = e.Description
		}
		if p.Rating != nil {
			e.Rating = *p.Rating
			f["rating"] = nullable(string(e.Rating))
		}
		if p.Memo != nil {
			e.Memo = *p.Memo
			f["memo"] = e.Memo
		}
		return f
	})
}

// Delete flags the expense deleted. The row stays in storage.
func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	return s.delete(ctx, id)
}

func (s *ExpenseService) Get(ctx context.Context, id string) (core.Expense, error) {
	return s.get(ctx, id)
}

// Daily returns the non-deleted expenses of one day, newest entry first.
func (s *ExpenseService) Daily(ctx context.Context, date string) ([]core.Expense, error) {
	return s.daily(ctx, date)
}

// Period returns the non-deleted expenses dated start..end inclusive.
func (s *ExpenseService) Period(ctx context.Context, start, end string) ([]core.Expense, error) {
	return s.period(ctx, start, end)
}

func (s *ExpenseService) WatchDaily(ctx context.Context, date string) <-chan storage.Result[[]core.Expense] {
	return s.watch(ctx, func(ctx context.Context) ([]core.Expense, error) { return s.Daily(ctx, date) })
}

func (s *ExpenseService) WatchPeriod(ctx context.Context, start, end string) <-chan storage.Result[[]core.Expense] {
	return s.watch(ctx, func(ctx context.Context) ([]core.Expense, error) { return s.Period(ctx, start, end) })
}

// ExpenseFilter narrows an expense search. Zero values match everything.
type ExpenseFilter struct {
	CategoryID      string
	PaymentMethodID string
	Rating          core.Rating
	// Fixed selects auto-posted (true) or hand-entered (false) rows.
	Fixed *bool
}

func (s *ExpenseService) Search(ctx context.Context, start, end string, f ExpenseFilter) ([]core.Expense, error) {
	var conds []storage.Condition
	if f.CategoryID != "" {
		conds = append(conds, storage.WhereEquals("category_id", f.CategoryID))
	}
	if f.PaymentMethodID != "" {
		conds = append(conds, storage.WhereEquals("payment_method_id", f.PaymentMethodID))
	}
	if f.Rating != core.RatingNone {
		conds = append(conds, storage.WhereEquals("rating", string(f.Rating)))
	}
	if f.Fixed != nil {
		conds = append(conds, storage.WhereEquals("is_fixed", *f.Fixed))
	}
	return s.period(ctx, start, end, conds...)
}

type IncomeInput struct {
	Date     string `json:"date"`
	SourceID string `json:"source_id"`
	Amount   int64  `json:"amount"`
	Memo     string `json:"memo"`
}

type IncomePatch struct {
	Date     *string `json:"date,omitempty"`
	SourceID *string `json:"source_id,omitempty"`
	Amount   *int64  `json:"amount,omitempty"`
	Memo     *string `json:"memo,omitempty"`
}

type IncomeService struct {
	entries[core.Income]
}

func NewIncomeService(store *storage.Store, logger *log.Logger) *IncomeService {
	if logger == nil {
		logger = log.Default()
	}
	return &IncomeService{entries[core.Income]{
		store:  store,
		logger: logger.WithComponent(log.ComponentLedger),
		spec: entrySpec[core.Income]{
			kind:     "income",
			table:    storage.Incomes,
			validate: core.Income.Validate,
			init: func(i *core.Income, id string, now time.Time) {
				i.ID, i.Deleted, i.CreatedAt, i.UpdatedAt = id, false, now, now
			},
			touch: func(i *core.Income, now time.Time) { i.UpdatedAt = now },
		},
	}}
}

func (s *IncomeService) Add(ctx context.Context, in IncomeInput) (core.Income, error) {
	i, err := s.add(ctx, core.Income{Date: in.Date, SourceID: in.SourceID, Amount: in.Amount, Memo: in.Memo})
	if err != nil {
		return i, err
	}
	s.logger.InfoContext(ctx, "Income added", log.FieldID, i.ID, log.FieldDate, i.Date, log.FieldAmount, i.Amount)
	return i, nil
}

func (s *IncomeService) Update(ctx context.Context, id string, p IncomePatch) (core.Income, error) {
	return s.update(ctx, id, func(i *core.Income) map[string]any {
		f := map[string]any{}
		if p.Date != nil {
			i.Date = *p.Date
			f["date"] = i.Date
		}
		if p.SourceID != nil {
			i.SourceID = *p.SourceID
			f["source_id"] = i.SourceID
		}
		if p.Amount != nil {
			i.Amount = *p.Amount
			f["amount"] = i.Amount
		}
		if p.Memo != nil {
			i.Memo = *p.Memo
			f["memo"] = i.Memo
		}
		return f
	})
}

func (s *IncomeService) Delete(ctx context.Context, id string) error {
	return s.delete(ctx, id)
}

func (s *IncomeService) Get(ctx context.Context, id string) (core.Income, error) {
	return s.get(ctx, id)
}

func (s *IncomeService) Daily(ctx context.Context, date string) ([]core.Income, error) {
	return s.daily(ctx, date)
}

func (s *IncomeService) Period(ctx context.Context, start, end string) ([]core.Income, error) {
	return s.period(ctx, start, end)
}

func (s *IncomeService) WatchDaily(ctx context.Context, date string) <-chan storage.Result[[]core.Income] {
	return s.watch(ctx, func(ctx context.Context) ([]core.Income, error) { return s.Daily(ctx, date) })
}

func (s *IncomeService) WatchPeriod(ctx context.Context, start, end string) <-chan storage.Result[[]core.Income] {
	return s.watch(ctx, func(ctx context.Context) ([]core.Income, error) { return s.Period(ctx, start, end) })
}

// Search filters incomes by source; an empty sourceID matches all.
func (s *IncomeService) Search(ctx context.Context, start, end, sourceID string) ([]core.Income, error) {
	if sourceID == "" {
		return s.period(ctx, start, end)
	}
	return s.period(ctx, start, end, storage.WhereEquals("source_id", sourceID))
}

// SearchQuery is the combined search form: one kind at a time.
type SearchQuery struct {
	Kind     core.RecordKind
	Start    string
	End      string
	Expense  ExpenseFilter
	SourceID string
}

type SearchResult struct {
	Records []core.Record `json:"records"`
	Total   int64         `json:"total"`
}

// Search runs q against expenses or incomes and returns the matches as
// records, newest first, with their amount total.
func Search(ctx context.Context, expenses *ExpenseService, incomes *IncomeService, q SearchQuery) (SearchResult, error) {
	res := SearchResult{Records: []core.Record{}}
	switch q.Kind {
	case core.KindExpense:
		es, err := expenses.Search(ctx, q.Start, q.End, q.Expense)
		if err != nil {
			return res, err
		}
		for _, e := range es {
			res.Records = append(res.Records, core.ExpenseRecord(e))
		}
	case core.KindIncome:
		is, err := incomes.Search(ctx, q.Start, q.End, q.SourceID)
		if err != nil {
			return res, err
		}
		for _, i := range is {
			res.Records = append(res.Records, core.IncomeRecord(i))
		}
	default:
		return res, fmt.Errorf("search: unknown record kind %q", q.Kind)
	}
	for _, r := range res.Records {
		res.Total += r.Amount()
	}
	return res, nil
}
