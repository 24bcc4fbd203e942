package services

import (
	"context"
	"fmt"
	"io"

	"kakeibo/internal/csvio"
	"kakeibo/internal/log"
)

// Exporter writes ledger ranges as CSV. Hidden categories, payment methods
// and sources are included in the lookups so old rows keep their labels.
type Exporter struct {
	expenses   *ExpenseService
	incomes    *IncomeService
	categories *CategoryService
	methods    *PaymentMethodService
	sources    *IncomeSourceService
	logger     *log.Logger
}

func NewExporter(expenses *ExpenseService, incomes *IncomeService, categories *CategoryService, methods *PaymentMethodService, sources *IncomeSourceService, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{
		expenses:   expenses,
		incomes:    incomes,
		categories: categories,
		methods:    methods,
		sources:    sources,
		logger:     logger.WithComponent(log.ComponentExport),
	}
}

// ExportPeriod writes the non-deleted expenses dated start..end to w and
// returns how many rows were written.
func (x *Exporter) ExportPeriod(ctx context.Context, w io.Writer, start, end string) (int, error) {
	expenses, err := x.expenses.Period(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("export expenses: %w", err)
	}
	categories, err := x.categories.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("export expenses: %w", err)
	}
	methods, err := x.methods.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("export expenses: %w", err)
	}
	if err := csvio.WriteExpenses(w, expenses, categories, methods); err != nil {
		return 0, fmt.Errorf("export expenses: %w", err)
	}
	x.logger.InfoContext(ctx, "Expenses exported",
		log.FieldOperation, log.OpExport,
		log.FieldStart, start,
		log.FieldEnd, end,
		log.FieldCount, len(expenses))
	return len(expenses), nil
}

// ExportIncomes writes the non-deleted incomes dated start..end to w.
func (x *Exporter) ExportIncomes(ctx context.Context, w io.Writer, start, end string) (int, error) {
	incomes, err := x.incomes.Period(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("export incomes: %w", err)
	}
	sources, err := x.sources.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("export incomes: %w", err)
	}
	if err := csvio.WriteIncomes(w, incomes, sources); err != nil {
		return 0, fmt.Errorf("export incomes: %w", err)
	}
	x.logger.InfoContext(ctx, "Incomes exported",
		log.FieldOperation, log.OpExport,
		log.FieldStart, start,
		log.FieldEnd, end,
		log.FieldCount, len(incomes))
	return len(incomes), nil
}
