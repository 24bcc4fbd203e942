package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/squirrel"

	"kakeibo/internal/core"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidField = errors.New("field cannot be updated")
)

// bulkChunk bounds the rows per INSERT statement so the bound-variable count
// stays well under SQLite's limit.
const bulkChunk = 200

var builder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Querier is satisfied by *sql.DB, *sql.Tx and *Writer.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Table describes how one entity type maps onto one SQL table.
// Columns[0] must be "id" and Values must return values in Columns order.
type Table[T any] struct {
	Name    string
	Columns []string
	Values  func(T) []any
	Scan    func(Scanner) (T, error)
}

func (t Table[T]) hasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// Condition is a WHERE fragment.
type Condition = squirrel.Sqlizer

// WhereEquals matches rows whose field equals value.
func WhereEquals(field string, value any) Condition {
	return squirrel.Eq{field: value}
}

// WherePrefix matches text columns starting with prefix. prefix must not
// contain LIKE wildcards.
func WherePrefix(field, prefix string) Condition {
	return squirrel.Like{field: prefix + "%"}
}

// And matches rows satisfying every condition.
func And(conds ...Condition) Condition {
	return squirrel.And(conds)
}

// WhereBetween matches rows with lo <= field <= hi.
func WhereBetween(field string, lo, hi any) Condition {
	return squirrel.And{squirrel.GtOrEq{field: lo}, squirrel.LtOrEq{field: hi}}
}

// Get loads a single row by id.
func Get[T any](ctx context.Context, q Querier, t Table[T], id string) (T, error) {
	var zero T
	query, args, err := builder.Select(t.Columns...).From(t.Name).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return zero, fmt.Errorf("build get %s: %w", t.Name, err)
	}
	rec, err := t.Scan(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("get %s %s: %w", t.Name, id, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("get %s %s: %w", t.Name, id, err)
	}
	return rec, nil
}

// Select returns the rows matching where (nil matches all), in orderBy order.
func Select[T any](ctx context.Context, q Querier, t Table[T], where squirrel.Sqlizer, orderBy ...string) ([]T, error) {
	sb := builder.Select(t.Columns...).From(t.Name)
	if where != nil {
		sb = sb.Where(where)
	}
	if len(orderBy) > 0 {
		sb = sb.OrderBy(orderBy...)
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s: %w", t.Name, err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		rec, err := t.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.Name, err)
	}
	return out, nil
}

// OrderBy returns every row of t sorted by field ascending.
func OrderBy[T any](ctx context.Context, q Querier, t Table[T], field string) ([]T, error) {
	return Select(ctx, q, t, nil, field+" ASC", "rowid ASC")
}

// Count returns the number of rows matching where (nil counts all).
func Count[T any](ctx context.Context, q Querier, t Table[T], where squirrel.Sqlizer) (int, error) {
	sb := builder.Select("COUNT(*)").From(t.Name)
	if where != nil {
		sb = sb.Where(where)
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count %s: %w", t.Name, err)
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.Name, err)
	}
	return n, nil
}

// MaxInt returns the largest value of an integer column, ok=false when empty.
func MaxInt[T any](ctx context.Context, q Querier, t Table[T], column string) (max int, ok bool, err error) {
	query, args, err := builder.Select("MAX(" + column + ")").From(t.Name).ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build max %s.%s: %w", t.Name, column, err)
	}
	var v sql.NullInt64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return 0, false, fmt.Errorf("max %s.%s: %w", t.Name, column, err)
	}
	return int(v.Int64), v.Valid, nil
}

// Insert adds one row.
func Insert[T any](ctx context.Context, w *Writer, t Table[T], rec T) error {
	return BulkInsert(ctx, w, t, []T{rec})
}

// BulkInsert adds every row inside the writer's transaction, so either all
// rows land or none do.
func BulkInsert[T any](ctx context.Context, w *Writer, t Table[T], recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	for start := 0; start < len(recs); start += bulkChunk {
		end := min(start+bulkChunk, len(recs))
		ib := builder.Insert(t.Name).Columns(t.Columns...)
		for _, rec := range recs[start:end] {
			ib = ib.Values(t.Values(rec)...)
		}
		query, args, err := ib.ToSql()
		if err != nil {
			return fmt.Errorf("build insert %s: %w", t.Name, err)
		}
		if _, err := w.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert %s: %w", t.Name, err)
		}
	}
	w.touch(t.Name)
	return nil
}

// Upsert inserts rec, or on a conflict in conflictColumn overwrites
// updateColumns of the existing row.
func Upsert[T any](ctx context.Context, w *Writer, t Table[T], rec T, conflictColumn string, updateColumns ...string) error {
	suffix := "ON CONFLICT (" + conflictColumn + ") DO UPDATE SET "
	for i, c := range updateColumns {
		if i > 0 {
			suffix += ", "
		}
		suffix += c + " = excluded." + c
	}
	query, args, err := builder.Insert(t.Name).
		Columns(t.Columns...).
		Values(t.Values(rec)...).
		Suffix(suffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert %s: %w", t.Name, err)
	}
	if _, err := w.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", t.Name, err)
	}
	w.touch(t.Name)
	return nil
}

// Update merges fields into the row and refreshes updated_at.
// id and created_at are immutable.
func Update[T any](ctx context.Context, w *Writer, t Table[T], id string, fields map[string]any) error {
	set := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if k == "id" || k == "created_at" || !t.hasColumn(k) {
			return fmt.Errorf("update %s.%s: %w", t.Name, k, ErrInvalidField)
		}
		set[k] = v
	}
	if t.hasColumn("updated_at") {
		set["updated_at"] = core.FormatTimestamp(w.Now())
	}

	query, args, err := builder.Update(t.Name).SetMap(set).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update %s: %w", t.Name, err)
	}
	res, err := w.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", t.Name, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update %s %s: %w", t.Name, id, ErrNotFound)
	}
	w.touch(t.Name)
	return nil
}

// Delete physically removes the row.
func Delete[T any](ctx context.Context, w *Writer, t Table[T], id string) error {
	query, args, err := builder.Delete(t.Name).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete %s: %w", t.Name, err)
	}
	res, err := w.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", t.Name, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete %s %s: %w", t.Name, id, ErrNotFound)
	}
	w.touch(t.Name)
	return nil
}
