package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// FixedCostPoster materializes active fixed costs into expenses, once per
// calendar month.
type FixedCostPoster struct {
	store  *storage.Store
	clock  core.Clock
	loc    *time.Location
	group  singleflight.Group
	logger *log.Logger
}

func NewFixedCostPoster(store *storage.Store, clock core.Clock, loc *time.Location, logger *log.Logger) *FixedCostPoster {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FixedCostPoster{store: store, clock: clock, loc: loc, logger: logger.WithComponent(log.ComponentFixedCost)}
}

// postedGuard matches live auto-posted expenses of the month.
func postedGuard(ym core.YearMonth) storage.Condition {
	return storage.And(
		storage.WherePrefix("date", ym.String()),
		storage.WhereEquals("is_fixed", true),
		storage.WhereEquals("deleted", false),
	)
}

// HasPostedForMonth reports whether any non-deleted auto-posted expense is
// dated in ym.
func (p *FixedCostPoster) HasPostedForMonth(ctx context.Context, ym core.YearMonth) (bool, error) {
	if _, err := core.ParseYearMonth(ym.String()); err != nil {
		return false, err
	}
	n, err := storage.Count(ctx, p.store.DB(), storage.Expenses, postedGuard(ym))
	if err != nil {
		return false, fmt.Errorf("check posted fixed costs: %w", err)
	}
	return n > 0, nil
}

// PostForMonth creates one expense per active fixed cost, dated the first of
// ym, unless any auto-posted expense already exists in ym. It returns the
// number of expenses created. The check and the insert share one
// transaction, so concurrent calls cannot double-post.
func (p *FixedCostPoster) PostForMonth(ctx context.Context, ym core.YearMonth) (int, error) {
	posted, _, err := p.postForMonth(ctx, ym)
	return posted, err
}

func (p *FixedCostPoster) postForMonth(ctx context.Context, ym core.YearMonth) (posted int, already bool, err error) {
	if _, err := core.ParseYearMonth(ym.String()); err != nil {
		return 0, false, err
	}

	err = p.store.Write(ctx, func(w *storage.Writer) error {
		n, err := storage.Count(ctx, w, storage.Expenses, postedGuard(ym))
		if err != nil {
			return err
		}
		if n > 0 {
			already = true
			return nil
		}

		costs, err := storage.Select(ctx, w, storage.FixedCosts, storage.WhereEquals("is_active", true), "created_at ASC", "rowid ASC")
		if err != nil {
			return err
		}
		if len(costs) == 0 {
			return nil
		}

		now := w.Now()
		rows := make([]core.Expense, 0, len(costs))
		for _, fc := range costs {
			rows = append(rows, core.Expense{
				ID:              core.NewID(),
				Date:            ym.FirstDay(),
				CategoryID:      fc.CategoryID,
				PaymentMethodID: fc.PaymentMethodID,
				Amount:          fc.Amount,
				Description:     fc.Name,
				Rating:          core.RatingNone,
				Memo:            core.FixedCostMemo,
				IsFixed:         true,
				FixedCostID:     fc.ID,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
		if err := storage.BulkInsert(ctx, w, storage.Expenses, rows); err != nil {
			return err
		}
		posted = len(rows)
		return nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Fixed cost posting failed", log.FieldMonth, ym, log.FieldError, err)
		return 0, false, fmt.Errorf("post fixed costs for %s: %w", ym, err)
	}

	p.logger.InfoContext(ctx, "Fixed cost posting complete",
		log.FieldOperation, log.OpPost,
		log.FieldMonth, ym,
		log.FieldPosted, posted,
		log.FieldAlreadyPosted, already)
	return posted, already, nil
}

// AutoPostResult reports what AutoPostCurrentMonth did.
type AutoPostResult struct {
	Month         core.YearMonth `json:"month"`
	Posted        int            `json:"posted"`
	AlreadyPosted bool           `json:"already_posted"`
}

// CurrentMonth is the calendar month of the clock in the configured zone.
func (p *FixedCostPoster) CurrentMonth() core.YearMonth {
	return core.YearMonthOf(p.clock.Now().In(p.loc))
}

// AutoPostCurrentMonth posts the current month. Concurrent triggers for the
// same month share one run.
func (p *FixedCostPoster) AutoPostCurrentMonth(ctx context.Context) (AutoPostResult, error) {
	ym := p.CurrentMonth()
	v, err, shared := p.group.Do(ym.String(), func() (any, error) {
		posted, already, err := p.postForMonth(ctx, ym)
		return AutoPostResult{Month: ym, Posted: posted, AlreadyPosted: already}, err
	})
	if err != nil {
		return AutoPostResult{Month: ym}, err
	}
	if shared {
		p.logger.DebugContext(ctx, "Auto-post coalesced with a concurrent run", log.FieldMonth, ym)
	}
	return v.(AutoPostResult), nil
}
