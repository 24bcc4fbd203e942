package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kakeibo/internal/core"
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

func openTestStore(t *testing.T) *Store {
	t.Helper()
	clock := &stepClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newExpense(date string, amount int64) core.Expense {
	return core.Expense{
		ID: core.NewID(), Date: date, CategoryID: "cat", PaymentMethodID: "pm",
		Amount: amount, Description: "test",
	}
}

func TestOpenSeedsFreshDatabase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cats, err := OrderBy(ctx, s.DB(), Categories, "sort_order")
	require.NoError(t, err)
	require.Len(t, cats, 15)
	assert.Equal(t, "食費", cats[0].MajorName)
	assert.Equal(t, "外食", cats[0].MinorName)
	assert.Equal(t, 0, cats[0].SortOrder)
	last := cats[len(cats)-1]
	assert.Equal(t, "その他", last.MajorName)
	assert.Empty(t, last.MinorName)
	assert.Equal(t, 14, last.SortOrder)

	pms, err := OrderBy(ctx, s.DB(), PaymentMethods, "sort_order")
	require.NoError(t, err)
	require.Len(t, pms, 6)
	assert.Equal(t, "現金", pms[0].Name)
	assert.Equal(t, "未設定", pms[5].Name)

	srcs, err := OrderBy(ctx, s.DB(), IncomeSources, "sort_order")
	require.NoError(t, err)
	require.Len(t, srcs, 3)
	for _, src := range srcs {
		assert.True(t, src.IsActive)
	}
}

func TestReopenDoesNotReseed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, func(w *Writer) error {
		_, err := w.ExecContext(ctx, "DELETE FROM payment_methods")
		return err
	}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	n, err := Count(ctx, s.DB(), PaymentMethods, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "seeding must not run against an existing database")

	n, err = Count(ctx, s.DB(), Categories, nil)
	require.NoError(t, err)
	assert.Equal(t, 15, n)
}

func TestMigrationBackfillsIsFixed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	fresh, err := migrateTo(path, 1)
	require.NoError(t, err)
	require.True(t, fresh)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO expenses (id, date, category_id, payment_method_id, amount, description, rating, memo, deleted, created_at, updated_at)
		VALUES ('legacy', '2023-12-24', 'c', 'p', 5000, 'ケーキ', '○', 'メモ', 0, '2023-12-24T10:00:00.000000Z', '2023-12-24T10:00:00.000000Z')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	fresh, err = RunMigrations(path)
	require.NoError(t, err)
	assert.False(t, fresh)

	// Running again is a no-op.
	_, err = RunMigrations(path)
	require.NoError(t, err)

	s, err := Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	var raw sql.NullInt64
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT is_fixed FROM expenses WHERE id = 'legacy'").Scan(&raw))
	assert.True(t, raw.Valid, "is_fixed must be backfilled, not left NULL")
	assert.Equal(t, int64(0), raw.Int64)

	e, err := Get(ctx, s.DB(), Expenses, "legacy")
	require.NoError(t, err)
	assert.False(t, e.IsFixed)
	assert.Equal(t, core.RatingGood, e.Rating)
	assert.Equal(t, "メモ", e.Memo)
	assert.Equal(t, int64(5000), e.Amount)

	n, err := Count(ctx, s.DB(), Categories, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "upgraded databases are not seeded")
}

func TestWriteRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Write(ctx, func(w *Writer) error {
		if err := Insert(ctx, w, Expenses, newExpense("2024-05-01", 100)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := Count(ctx, s.DB(), Expenses, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWritePublishesAfterCommit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sub := s.Hub().Subscribe(TableExpenses)
	defer sub.Close()

	_ = s.Write(ctx, func(w *Writer) error {
		_ = Insert(ctx, w, Expenses, newExpense("2024-05-01", 100))
		return errors.New("abort")
	})
	select {
	case <-sub.C():
		t.Fatal("rolled back write must not notify")
	default:
	}

	require.NoError(t, s.Write(ctx, func(w *Writer) error {
		return Insert(ctx, w, Expenses, newExpense("2024-05-01", 100))
	}))
	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("expected notification after commit")
	}
	assert.Equal(t, []string{TableExpenses}, sub.Drain())
}
