package storage

import (
	"database/sql"
	"fmt"
	"time"

	"kakeibo/internal/core"
)

const (
	TableExpenses         = "expenses"
	TableIncomes          = "incomes"
	TableCategories       = "categories"
	TablePaymentMethods   = "payment_methods"
	TableIncomeSources    = "income_sources"
	TableFixedCosts       = "fixed_costs"
	TableCategoryMappings = "category_mappings"
)

// nullString maps "" to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseStamps(created, updated string) (time.Time, time.Time, error) {
	c, err := core.ParseTimestamp(created)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("created_at %q: %w", created, err)
	}
	u, err := core.ParseTimestamp(updated)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("updated_at %q: %w", updated, err)
	}
	return c, u, nil
}

var Expenses = Table[core.Expense]{
	Name: TableExpenses,
	Columns: []string{
		"id", "date", "category_id", "payment_method_id", "amount", "description",
		"rating", "memo", "deleted", "is_fixed", "fixed_cost_id", "created_at", "updated_at",
	},
	Values: func(e core.Expense) []any {
		return []any{
			e.ID, e.Date, e.CategoryID, e.PaymentMethodID, e.Amount, e.Description,
			nullString(string(e.Rating)), e.Memo, e.Deleted, e.IsFixed, nullString(e.FixedCostID),
			core.FormatTimestamp(e.CreatedAt), core.FormatTimestamp(e.UpdatedAt),
		}
	},
	Scan: func(sc Scanner) (core.Expense, error) {
		var (
			e                 core.Expense
			rating, fixedCost sql.NullString
			isFixed           sql.NullBool
			created, updated  string
		)
		if err := sc.Scan(&e.ID, &e.Date, &e.CategoryID, &e.PaymentMethodID, &e.Amount, &e.Description,
			&rating, &e.Memo, &e.Deleted, &isFixed, &fixedCost, &created, &updated); err != nil {
			return e, err
		}
		e.Rating = core.Rating(rating.String)
		e.IsFixed = isFixed.Valid && isFixed.Bool
		e.FixedCostID = fixedCost.String
		var err error
		e.CreatedAt, e.UpdatedAt, err = parseStamps(created, updated)
		return e, err
	},
}

var Incomes = Table[core.Income]{
	Name:    TableIncomes,
	Columns: []string{"id", "date", "source_id", "amount", "memo", "deleted", "created_at", "updated_at"},
	Values: func(i core.Income) []any {
		return []any{
			i.ID, i.Date, i.SourceID, i.Amount, i.Memo, i.Deleted,
			core.FormatTimestamp(i.CreatedAt), core.FormatTimestamp(i.UpdatedAt),
		}
	},
	Scan: func(sc Scanner) (core.Income, error) {
		var (
			i                core.Income
			created, updated string
		)
		if err := sc.Scan(&i.ID, &i.Date, &i.SourceID, &i.Amount, &i.Memo, &i.Deleted, &created, &updated); err != nil {
			return i, err
		}
		var err error
		i.CreatedAt, i.UpdatedAt, err = parseStamps(created, updated)
		return i, err
	},
}

var Categories = Table[core.Category]{
	Name:    TableCategories,
	Columns: []string{"id", "major_name", "minor_name", "sort_order", "is_active", "created_at", "updated_at"},
	Values: func(c core.Category) []any {
		return []any{
			c.ID, c.MajorName, nullString(c.MinorName), c.SortOrder, c.IsActive,
			core.FormatTimestamp(c.CreatedAt), core.FormatTimestamp(c.UpdatedAt),
		}
	},
	Scan: func(sc Scanner) (core.Category, error) {
		var (
			c                core.Category
			minor            sql.NullString
			created, updated string
		)
		if err := sc.Scan(&c.ID, &c.MajorName, &minor, &c.SortOrder, &c.IsActive, &created, &updated); err != nil {
			return c, err
		}
		c.MinorName = minor.String
		var err error
		c.CreatedAt, c.UpdatedAt, err = parseStamps(created, updated)
		return c, err
	},
}

var PaymentMethods = Table[core.PaymentMethod]{
	Name:    TablePaymentMethods,
	Columns: []string{"id", "name", "sort_order", "is_active", "created_at", "updated_at"},
	Values: func(p core.PaymentMethod) []any {
		return []any{p.ID, p.Name, p.SortOrder, p.IsActive, core.FormatTimestamp(p.CreatedAt), core.FormatTimestamp(p.UpdatedAt)}
	},
	Scan: func(sc Scanner) (core.PaymentMethod, error) {
		var (
			p                core.PaymentMethod
			created, updated string
		)
		if err := sc.Scan(&p.ID, &p.Name, &p.SortOrder, &p.IsActive, &created, &updated); err != nil {
			return p, err
		}
		var err error
		p.CreatedAt, p.UpdatedAt, err = parseStamps(created, updated)
		return p, err
	},
}

var IncomeSources = Table[core.IncomeSource]{
	Name:    TableIncomeSources,
	Columns: []string{"id", "name", "sort_order", "is_active", "created_at", "updated_at"},
	Values: func(s core.IncomeSource) []any {
		return []any{s.ID, s.Name, s.SortOrder, s.IsActive, core.FormatTimestamp(s.CreatedAt), core.FormatTimestamp(s.UpdatedAt)}
	},
	Scan: func(sc Scanner) (core.IncomeSource, error) {
		var (
			s                core.IncomeSource
			created, updated string
		)
		if err := sc.Scan(&s.ID, &s.Name, &s.SortOrder, &s.IsActive, &created, &updated); err != nil {
			return s, err
		}
		var err error
		s.CreatedAt, s.UpdatedAt, err = parseStamps(created, updated)
		return s, err
	},
}

var FixedCosts = Table[core.FixedCost]{
	Name:    TableFixedCosts,
	Columns: []string{"id", "name", "category_id", "payment_method_id", "amount", "is_active", "created_at", "updated_at"},
	Values: func(f core.FixedCost) []any {
		return []any{
			f.ID, f.Name, f.CategoryID, f.PaymentMethodID, f.Amount, f.IsActive,
			core.FormatTimestamp(f.CreatedAt), core.FormatTimestamp(f.UpdatedAt),
		}
	},
	Scan: func(sc Scanner) (core.FixedCost, error) {
		var (
			f                core.FixedCost
			created, updated string
		)
		if err := sc.Scan(&f.ID, &f.Name, &f.CategoryID, &f.PaymentMethodID, &f.Amount, &f.IsActive, &created, &updated); err != nil {
			return f, err
		}
		var err error
		f.CreatedAt, f.UpdatedAt, err = parseStamps(created, updated)
		return f, err
	},
}

var CategoryMappings = Table[core.CategoryMapping]{
	Name:    TableCategoryMappings,
	Columns: []string{"id", "csv_category", "category_id", "created_at", "updated_at"},
	Values: func(m core.CategoryMapping) []any {
		return []any{m.ID, m.CSVCategory, m.CategoryID, core.FormatTimestamp(m.CreatedAt), core.FormatTimestamp(m.UpdatedAt)}
	},
	Scan: func(sc Scanner) (core.CategoryMapping, error) {
		var (
			m                core.CategoryMapping
			created, updated string
		)
		if err := sc.Scan(&m.ID, &m.CSVCategory, &m.CategoryID, &created, &updated); err != nil {
			return m, err
		}
		var err error
		m.CreatedAt, m.UpdatedAt, err = parseStamps(created, updated)
		return m, err
	},
}
