package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// Names the default payment method policy looks for.
const (
	PaymentMethodCash  = "現金"
	PaymentMethodUnset = "未設定"
)

type CategoryService struct {
	*Reference[core.Category]
}

func NewCategoryService(store *storage.Store, logger *log.Logger) *CategoryService {
	return &CategoryService{newReference(store, logger, refSpec[core.Category]{
		kind:      "category",
		table:     storage.Categories,
		id:        func(c core.Category) string { return c.ID },
		validate:  core.Category.Validate,
		ordered:   true,
		sortOrder: func(c core.Category) int { return c.SortOrder },
		init: func(c *core.Category, id string, sortOrder int, now time.Time) {
			c.ID, c.SortOrder, c.IsActive, c.CreatedAt, c.UpdatedAt = id, sortOrder, true, now, now
		},
		touch: func(c *core.Category, now time.Time) { c.UpdatedAt = now },
		usage: countBy(storage.Expenses, "category_id"),
	})}
}

// Add appends a new active category. minor may be empty.
func (s *CategoryService) Add(ctx context.Context, major, minor string) (core.Category, error) {
	return s.add(ctx, core.Category{MajorName: strings.TrimSpace(major), MinorName: strings.TrimSpace(minor)})
}

// addTx is Add inside a caller's transaction.
func (s *CategoryService) addTx(ctx context.Context, w *storage.Writer, major, minor string) (core.Category, error) {
	c := core.Category{MajorName: strings.TrimSpace(major), MinorName: strings.TrimSpace(minor)}
	if err := c.Validate(); err != nil {
		return c, err
	}
	if err := s.Reference.addTx(ctx, w, &c); err != nil {
		return c, err
	}
	return c, nil
}

type CategoryPatch struct {
	MajorName *string `json:"major_name,omitempty"`
	MinorName *string `json:"minor_name,omitempty"`
	SortOrder *int    `json:"sort_order,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

func (s *CategoryService) Update(ctx context.Context, id string, p CategoryPatch) (core.Category, error) {
	return s.update(ctx, id, func(c *core.Category) map[string]any {
		f := map[string]any{}
		if p.MajorName != nil {
			c.MajorName = strings.TrimSpace(*p.MajorName)
			f["major_name"] = c.MajorName
		}
		if p.MinorName != nil {
			c.MinorName = strings.TrimSpace(*p.MinorName)
			f["minor_name"] = nullable(c.MinorName)
		}
		if p.SortOrder != nil {
			c.SortOrder = *p.SortOrder
			f["sort_order"] = c.SortOrder
		}
		if p.IsActive != nil {
			c.IsActive = *p.IsActive
			f["is_active"] = c.IsActive
		}
		return f
	})
}

// NamedPatch is shared by payment methods and income sources.
type NamedPatch struct {
	Name      *string `json:"name,omitempty"`
	SortOrder *int    `json:"sort_order,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

func (p NamedPatch) apply(name *string, sortOrder *int, active *bool) map[string]any {
	f := map[string]any{}
	if p.Name != nil {
		*name = strings.TrimSpace(*p.Name)
		f["name"] = *name
	}
	if p.SortOrder != nil {
		*sortOrder = *p.SortOrder
		f["sort_order"] = *sortOrder
	}
	if p.IsActive != nil {
		*active = *p.IsActive
		f["is_active"] = *active
	}
	return f
}

type PaymentMethodService struct {
	*Reference[core.PaymentMethod]
}

func NewPaymentMethodService(store *storage.Store, logger *log.Logger) *PaymentMethodService {
	return &PaymentMethodService{newReference(store, logger, refSpec[core.PaymentMethod]{
		kind:      "payment method",
		table:     storage.PaymentMethods,
		id:        func(p core.PaymentMethod) string { return p.ID },
		validate:  core.PaymentMethod.Validate,
		ordered:   true,
		sortOrder: func(p core.PaymentMethod) int { return p.SortOrder },
		init: func(p *core.PaymentMethod, id string, sortOrder int, now time.Time) {
			p.ID, p.SortOrder, p.IsActive, p.CreatedAt, p.UpdatedAt = id, sortOrder, true, now, now
		},
		touch: func(p *core.PaymentMethod, now time.Time) { p.UpdatedAt = now },
		usage: countBy(storage.Expenses, "payment_method_id"),
	})}
}

func (s *PaymentMethodService) Add(ctx context.Context, name string) (core.PaymentMethod, error) {
	return s.add(ctx, core.PaymentMethod{Name: strings.TrimSpace(name)})
}

func (s *PaymentMethodService) Update(ctx context.Context, id string, p NamedPatch) (core.PaymentMethod, error) {
	return s.update(ctx, id, func(m *core.PaymentMethod) map[string]any {
		return p.apply(&m.Name, &m.SortOrder, &m.IsActive)
	})
}

// Default picks the method pre-selected for new and imported expenses.
func (s *PaymentMethodService) Default(ctx context.Context) (core.PaymentMethod, error) {
	active, err := s.ListActive(ctx)
	if err != nil {
		return core.PaymentMethod{}, err
	}
	return DefaultPaymentMethod(active)
}

// DefaultPaymentMethod prefers 現金, then 未設定, then the first active
// method in display order.
func DefaultPaymentMethod(active []core.PaymentMethod) (core.PaymentMethod, error) {
	for _, want := range []string{PaymentMethodCash, PaymentMethodUnset} {
		for _, pm := range active {
			if pm.Name == want {
				return pm, nil
			}
		}
	}
	if len(active) > 0 {
		return active[0], nil
	}
	return core.PaymentMethod{}, fmt.Errorf("default payment method: %w", storage.ErrNotFound)
}

type IncomeSourceService struct {
	*Reference[core.IncomeSource]
}

func NewIncomeSourceService(store *storage.Store, logger *log.Logger) *IncomeSourceService {
	return &IncomeSourceService{newReference(store, logger, refSpec[core.IncomeSource]{
		kind:      "income source",
		table:     storage.IncomeSources,
		id:        func(s core.IncomeSource) string { return s.ID },
		validate:  core.IncomeSource.Validate,
		ordered:   true,
		sortOrder: func(s core.IncomeSource) int { return s.SortOrder },
		init: func(s *core.IncomeSource, id string, sortOrder int, now time.Time) {
			s.ID, s.SortOrder, s.IsActive, s.CreatedAt, s.UpdatedAt = id, sortOrder, true, now, now
		},
		touch: func(s *core.IncomeSource, now time.Time) { s.UpdatedAt = now },
		usage: countBy(storage.Incomes, "source_id"),
	})}
}

func (s *IncomeSourceService) Add(ctx context.Context, name string) (core.IncomeSource, error) {
	return s.add(ctx, core.IncomeSource{Name: strings.TrimSpace(name)})
}

func (s *IncomeSourceService) Update(ctx context.Context, id string, p NamedPatch) (core.IncomeSource, error) {
	return s.update(ctx, id, func(src *core.IncomeSource) map[string]any {
		return p.apply(&src.Name, &src.SortOrder, &src.IsActive)
	})
}

// FixedCostService manages the monthly templates. Fixed costs have no
// manual order; they list oldest first.
type FixedCostService struct {
	*Reference[core.FixedCost]
}

func NewFixedCostService(store *storage.Store, logger *log.Logger) *FixedCostService {
	return &FixedCostService{newReference(store, logger, refSpec[core.FixedCost]{
		kind:     "fixed cost",
		table:    storage.FixedCosts,
		id:       func(f core.FixedCost) string { return f.ID },
		validate: core.FixedCost.Validate,
		init: func(f *core.FixedCost, id string, _ int, now time.Time) {
			f.ID, f.IsActive, f.CreatedAt, f.UpdatedAt = id, true, now, now
		},
		touch: func(f *core.FixedCost, now time.Time) { f.UpdatedAt = now },
		usage: countBy(storage.Expenses, "fixed_cost_id"),
	})}
}

type FixedCostInput struct {
	Name            string `json:"name"`
	CategoryID      string `json:"category_id"`
	PaymentMethodID string `json:"payment_method_id"`
	Amount          int64  `json:"amount"`
}

func (s *FixedCostService) Add(ctx context.Context, in FixedCostInput) (core.FixedCost, error) {
	return s.add(ctx, core.FixedCost{
		Name:            strings.TrimSpace(in.Name),
		CategoryID:      in.CategoryID,
		PaymentMethodID: in.PaymentMethodID,
		Amount:          in.Amount,
	})
}

type FixedCostPatch struct {
	Name            *string `json:"name,omitempty"`
	CategoryID      *string `json:"category_id,omitempty"`
	PaymentMethodID *string `json:"payment_method_id,omitempty"`
	Amount          *int64  `json:"amount,omitempty"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

func (s *FixedCostService) Update(ctx context.Context, id string, p FixedCostPatch) (core.FixedCost, error) {
	return s.update(ctx, id, func(f *core.FixedCost) map[string]any {
		m := map[string]any{}
		if p.Name != nil {
			f.Name = strings.TrimSpace(*p.Name)
			m["name"] = f.Name
		}
		if p.CategoryID != nil {
			f.CategoryID = *p.CategoryID
			m["category_id"] = f.CategoryID
		}
		if p.PaymentMethodID != nil {
			f.PaymentMethodID = *p.PaymentMethodID
			m["payment_method_id"] = f.PaymentMethodID
		}
		if p.Amount != nil {
			f.Amount = *p.Amount
			m["amount"] = f.Amount
		}
		if p.IsActive != nil {
			f.IsActive = *p.IsActive
			m["is_active"] = f.IsActive
		}
		return m
	})
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
