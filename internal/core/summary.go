package core

import "github.com/shopspring/decimal"

// RecordKind discriminates the Record union.
type RecordKind string

const (
	KindExpense RecordKind = "expense"
	KindIncome  RecordKind = "income"
)

// Record is a ledger row of either kind, used by search and list views.
// Exactly one of Expense or Income is set, matching Kind.
type Record struct {
	Kind    RecordKind `json:"kind"`
	Expense *Expense   `json:"expense,omitempty"`
	Income  *Income    `json:"income,omitempty"`
}

func ExpenseRecord(e Expense) Record { return Record{Kind: KindExpense, Expense: &e} }

func IncomeRecord(i Income) Record { return Record{Kind: KindIncome, Income: &i} }

func (r Record) ID() string {
	switch r.Kind {
	case KindExpense:
		return r.Expense.ID
	case KindIncome:
		return r.Income.ID
	}
	return ""
}

func (r Record) Date() string {
	switch r.Kind {
	case KindExpense:
		return r.Expense.Date
	case KindIncome:
		return r.Income.Date
	}
	return ""
}

func (r Record) Amount() int64 {
	switch r.Kind {
	case KindExpense:
		return r.Expense.Amount
	case KindIncome:
		return r.Income.Amount
	}
	return 0
}

// CategoryAmount represents an amount aggregated by major category name.
type CategoryAmount struct {
	Name   string          `json:"name" yaml:"name"`
	Amount int64           `json:"amount" yaml:"amount"`
	Share  decimal.Decimal `json:"share" yaml:"share"` // percent of total expense, 2 places
}

// MonthAmounts compares income and expense for one month.
type MonthAmounts struct {
	Month   YearMonth `json:"month" yaml:"month"`
	Income  int64     `json:"income" yaml:"income"`
	Expense int64     `json:"expense" yaml:"expense"`
}

// DayAmount is the expense total of a single day.
type DayAmount struct {
	Date   string `json:"date" yaml:"date"`
	Amount int64  `json:"amount" yaml:"amount"`
}

// PeriodSummary aggregates the ledger over an inclusive day range.
type PeriodSummary struct {
	Start           string           `json:"start" yaml:"start"`
	End             string           `json:"end" yaml:"end"`
	TotalExpense    int64            `json:"total_expense" yaml:"total_expense"`
	TotalIncome     int64            `json:"total_income" yaml:"total_income"`
	Balance         int64            `json:"balance" yaml:"balance"`
	FixedExpense    int64            `json:"fixed_expense" yaml:"fixed_expense"`
	VariableExpense int64            `json:"variable_expense" yaml:"variable_expense"`
	ByCategory      []CategoryAmount `json:"by_category" yaml:"by_category"`
	Monthly         []MonthAmounts   `json:"monthly" yaml:"monthly"`
	Daily           []DayAmount      `json:"daily" yaml:"daily"`
}
