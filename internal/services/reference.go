package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// Direction is a manual reordering step.
type Direction string

const (
	MoveUp   Direction = "up"
	MoveDown Direction = "down"
)

var ErrInvalidDirection = errors.New("direction must be up or down")

// ParseDirection accepts "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case MoveUp, MoveDown:
		return d, nil
	}
	return "", ErrInvalidDirection
}

// DeleteOutcome tells whether a reference row was removed or only hidden.
type DeleteOutcome string

const (
	Removed DeleteOutcome = "removed"
	Hidden  DeleteOutcome = "hidden"
)

// usageCounter counts ledger rows pointing at a reference id. Soft-deleted
// rows are counted too.
type usageCounter func(ctx context.Context, q storage.Querier, id string) (int, error)

func countBy[T any](t storage.Table[T], column string) usageCounter {
	return func(ctx context.Context, q storage.Querier, id string) (int, error) {
		return storage.Count(ctx, q, t, storage.WhereEquals(column, id))
	}
}

// refSpec describes one reference table to the generic manager.
type refSpec[T any] struct {
	kind     string
	table    storage.Table[T]
	id       func(T) string
	validate func(T) error
	// ordered reports whether the table carries sort_order.
	ordered   bool
	sortOrder func(T) int
	// init fills id, sort order, active flag and timestamps on add.
	init  func(rec *T, id string, sortOrder int, now time.Time)
	touch func(rec *T, now time.Time)
	usage usageCounter
}

// Reference implements the shared life cycle of categories, payment
// methods, income sources and fixed costs.
type Reference[T any] struct {
	store  *storage.Store
	spec   refSpec[T]
	logger *log.Logger
}

func newReference[T any](store *storage.Store, logger *log.Logger, spec refSpec[T]) *Reference[T] {
	if logger == nil {
		logger = log.Default()
	}
	return &Reference[T]{store: store, spec: spec, logger: logger.WithComponent(log.ComponentRefData)}
}

func (r *Reference[T]) orderColumns() []string {
	if r.spec.ordered {
		return []string{"sort_order ASC", "rowid ASC"}
	}
	return []string{"created_at ASC", "rowid ASC"}
}

// Get loads one row, active or not.
func (r *Reference[T]) Get(ctx context.Context, id string) (T, error) {
	return storage.Get(ctx, r.store.DB(), r.spec.table, id)
}

// List returns every row, hidden ones included, in display order.
func (r *Reference[T]) List(ctx context.Context) ([]T, error) {
	return storage.Select(ctx, r.store.DB(), r.spec.table, nil, r.orderColumns()...)
}

// ListActive returns the rows offered for selection, in display order.
func (r *Reference[T]) ListActive(ctx context.Context) ([]T, error) {
	return r.listActive(ctx, r.store.DB())
}

func (r *Reference[T]) listActive(ctx context.Context, q storage.Querier) ([]T, error) {
	return storage.Select(ctx, q, r.spec.table, storage.WhereEquals("is_active", true), r.orderColumns()...)
}

// Watch streams ListActive, re-evaluated after every change to the table.
func (r *Reference[T]) Watch(ctx context.Context) <-chan storage.Result[[]T] {
	return storage.Watch(ctx, r.store.Hub(), []string{r.spec.table.Name}, r.ListActive)
}

func (r *Reference[T]) add(ctx context.Context, rec T) (T, error) {
	if err := r.spec.validate(rec); err != nil {
		return rec, err
	}
	err := r.store.Write(ctx, func(w *storage.Writer) error {
		return r.addTx(ctx, w, &rec)
	})
	if err != nil {
		return rec, fmt.Errorf("add %s: %w", r.spec.kind, err)
	}
	r.logger.InfoContext(ctx, "Reference added", log.FieldOperation, log.OpCreate, "kind", r.spec.kind, log.FieldID, r.spec.id(rec))
	return rec, nil
}

// addTx inserts rec inside an existing transaction, appending it after the
// current last sort_order.
func (r *Reference[T]) addTx(ctx context.Context, w *storage.Writer, rec *T) error {
	next := 0
	if r.spec.ordered {
		max, ok, err := storage.MaxInt(ctx, w, r.spec.table, "sort_order")
		if err != nil {
			return err
		}
		if ok {
			next = max + 1
		}
	}
	r.spec.init(rec, core.NewID(), next, w.Now())
	return storage.Insert(ctx, w, r.spec.table, *rec)
}

// update applies patch to the stored row, validates the merged result and
// writes only the fields patch reports as changed.
func (r *Reference[T]) update(ctx context.Context, id string, patch func(*T) map[string]any) (T, error) {
	var rec T
	err := r.store.Write(ctx, func(w *storage.Writer) error {
		cur, err := storage.Get(ctx, w, r.spec.table, id)
		if err != nil {
			return err
		}
		fields := patch(&cur)
		if err := r.spec.validate(cur); err != nil {
			return err
		}
		if len(fields) > 0 {
			if err := storage.Update(ctx, w, r.spec.table, id, fields); err != nil {
				return err
			}
			r.spec.touch(&cur, w.Now())
		}
		rec = cur
		return nil
	})
	if err != nil {
		return rec, fmt.Errorf("update %s: %w", r.spec.kind, err)
	}
	r.logger.InfoContext(ctx, "Reference updated", log.FieldOperation, log.OpUpdate, "kind", r.spec.kind, log.FieldID, id)
	return rec, nil
}

// Delete removes the row when nothing references it and otherwise hides it
// by clearing is_active. The usage check and the write share a transaction.
func (r *Reference[T]) Delete(ctx context.Context, id string) (DeleteOutcome, error) {
	var outcome DeleteOutcome
	err := r.store.Write(ctx, func(w *storage.Writer) error {
		if _, err := storage.Get(ctx, w, r.spec.table, id); err != nil {
			return err
		}
		n, err := r.spec.usage(ctx, w, id)
		if err != nil {
			return err
		}
		if n > 0 {
			outcome = Hidden
			return storage.Update(ctx, w, r.spec.table, id, map[string]any{"is_active": false})
		}
		outcome = Removed
		return storage.Delete(ctx, w, r.spec.table, id)
	})
	if err != nil {
		return "", fmt.Errorf("delete %s: %w", r.spec.kind, err)
	}
	r.logger.InfoContext(ctx, "Reference deleted", log.FieldOperation, log.OpDelete, "kind", r.spec.kind, log.FieldID, id, log.FieldOutcome, outcome)
	return outcome, nil
}

// Move swaps the row's sort_order with its neighbour in the active list.
// Moving the first row up or the last row down changes nothing.
func (r *Reference[T]) Move(ctx context.Context, id string, dir Direction) error {
	if !r.spec.ordered {
		return fmt.Errorf("move %s: not orderable", r.spec.kind)
	}
	if dir != MoveUp && dir != MoveDown {
		return ErrInvalidDirection
	}
	moved := false
	err := r.store.Write(ctx, func(w *storage.Writer) error {
		items, err := r.listActive(ctx, w)
		if err != nil {
			return err
		}
		idx := -1
		for i, it := range items {
			if r.spec.id(it) == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("active %s %s: %w", r.spec.kind, id, storage.ErrNotFound)
		}
		other := idx - 1
		if dir == MoveDown {
			other = idx + 1
		}
		if other < 0 || other >= len(items) {
			return nil
		}

		a, b := items[idx], items[other]
		if err := storage.Update(ctx, w, r.spec.table, r.spec.id(a), map[string]any{"sort_order": r.spec.sortOrder(b)}); err != nil {
			return err
		}
		moved = true
		return storage.Update(ctx, w, r.spec.table, r.spec.id(b), map[string]any{"sort_order": r.spec.sortOrder(a)})
	})
	if err != nil {
		return fmt.Errorf("move %s: %w", r.spec.kind, err)
	}
	if moved {
		r.logger.InfoContext(ctx, "Reference moved", log.FieldOperation, log.OpMove, "kind", r.spec.kind, log.FieldID, id, "direction", dir)
	}
	return nil
}
