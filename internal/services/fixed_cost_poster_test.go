package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

func TestPostForMonthIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	rent := e.addFixedCost(t, "家賃", 80000)
	power := e.addFixedCost(t, "電気", 5000)

	n, err := e.poster.PostForMonth(ctx, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.poster.PostForMonth(ctx, "2024-05")
	require.NoError(t, err)
	assert.Zero(t, n)

	posted, err := e.expenses.Period(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	require.Len(t, posted, 2)
	byFixedCost := map[string]core.Expense{}
	for _, exp := range posted {
		assert.Equal(t, "2024-05-01", exp.Date)
		assert.Equal(t, core.FixedCostMemo, exp.Memo)
		assert.True(t, exp.IsFixed)
		byFixedCost[exp.FixedCostID] = exp
	}
	assert.Equal(t, "家賃", byFixedCost[rent.ID].Description)
	assert.Equal(t, int64(80000), byFixedCost[rent.ID].Amount)
	assert.Equal(t, rent.CategoryID, byFixedCost[rent.ID].CategoryID)
	assert.Equal(t, rent.PaymentMethodID, byFixedCost[rent.ID].PaymentMethodID)
	assert.Equal(t, int64(5000), byFixedCost[power.ID].Amount)

	ok, err := e.poster.HasPostedForMonth(ctx, "2024-05")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.poster.HasPostedForMonth(ctx, "2024-06")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostForMonthSkipsInactiveAndLateAdditions(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	gym := e.addFixedCost(t, "ジム", 7000)
	e.addFixedCost(t, "家賃", 80000)
	off := false
	_, err := e.fixed.Update(ctx, gym.ID, FixedCostPatch{IsActive: &off})
	require.NoError(t, err)

	n, err := e.poster.PostForMonth(ctx, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A fixed cost added after the month was posted waits for next month.
	e.addFixedCost(t, "保険", 3000)
	n, err = e.poster.PostForMonth(ctx, "2024-05")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = e.poster.PostForMonth(ctx, "2024-06")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPostForMonthAfterDeletingPostedRows(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addFixedCost(t, "家賃", 80000)

	_, err := e.poster.PostForMonth(ctx, "2024-05")
	require.NoError(t, err)
	posted, err := e.expenses.Period(ctx, "2024-05-01", "2024-05-31")
	require.NoError(t, err)
	require.Len(t, posted, 1)
	require.NoError(t, e.expenses.Delete(ctx, posted[0].ID))

	n, err := e.poster.PostForMonth(ctx, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostForMonthConcurrentCallsPostOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addFixedCost(t, "家賃", 80000)
	e.addFixedCost(t, "電気", 5000)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := e.poster.PostForMonth(ctx, "2024-05")
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, total)
}

func TestPostForMonthRejectsBadMonth(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.poster.PostForMonth(context.Background(), "2024-13")
	assert.ErrorIs(t, err, core.ErrInvalidYearMonth)
	_, err = e.poster.HasPostedForMonth(context.Background(), "May")
	assert.ErrorIs(t, err, core.ErrInvalidYearMonth)
}

func TestAutoPostCurrentMonth(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	res, err := e.poster.AutoPostCurrentMonth(ctx)
	require.NoError(t, err)
	assert.Equal(t, AutoPostResult{Month: "2024-07"}, res)

	e.addFixedCost(t, "家賃", 80000)
	res, err = e.poster.AutoPostCurrentMonth(ctx)
	require.NoError(t, err)
	assert.Equal(t, AutoPostResult{Month: "2024-07", Posted: 1}, res)

	res, err = e.poster.AutoPostCurrentMonth(ctx)
	require.NoError(t, err)
	assert.Equal(t, AutoPostResult{Month: "2024-07", AlreadyPosted: true}, res)
}

func TestCurrentMonthUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2024-07-31 20:00 UTC is already August in Tokyo.
	clock := core.ClockFunc(func() time.Time { return time.Date(2024, 7, 31, 20, 0, 0, 0, time.UTC) })

	assert.Equal(t, core.YearMonth("2024-08"), NewFixedCostPoster(nil, clock, tokyo, log.Discard()).CurrentMonth())
	assert.Equal(t, core.YearMonth("2024-07"), NewFixedCostPoster(nil, clock, time.UTC, log.Discard()).CurrentMonth())
}

func TestFixedCostScheduler(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addFixedCost(t, "家賃", 80000)

	s := NewFixedCostScheduler(e.poster, SchedulerConfig{CheckInterval: time.Hour}, log.Discard())
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.Stop(ctx), "stopping an idle scheduler is fine")

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(ctx))
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())

	// The loop checks once before waiting for the first tick.
	ok, err := e.poster.HasPostedForMonth(ctx, "2024-07")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.False(t, s.Check(ctx), "month already handled")
}

func TestDefaultSchedulerConfig(t *testing.T) {
	assert.Equal(t, time.Hour, DefaultSchedulerConfig().CheckInterval)
	s := NewFixedCostScheduler(nil, SchedulerConfig{}, nil)
	assert.Equal(t, time.Hour, s.config.CheckInterval)
}
