package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kakeibo/internal/amqp"
	"kakeibo/internal/backend"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

func TestOnLedgerChange(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 7, 3, 9, 0, 0, 0, time.UTC)
	app, err := backend.NewFactory(log.Discard()).Build(ctx, backend.Config{
		SQLiteDBPath: filepath.Join(t.TempDir(), "kakeibo.db"),
		Location:     time.UTC,
		Clock:        core.ClockFunc(func() time.Time { return now }),
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Cleanup()) })

	cats, err := app.Categories.ListActive(ctx)
	require.NoError(t, err)
	pm, err := app.PaymentMethods.Default(ctx)
	require.NoError(t, err)
	_, err = app.FixedCosts.Add(ctx, services.FixedCostInput{
		Name: "家賃", CategoryID: cats[0].ID, PaymentMethodID: pm.ID, Amount: 80000,
	})
	require.NoError(t, err)

	handle := onLedgerChange(ctx, app, log.Discard())

	require.NoError(t, handle(amqp.NewLedgerChangeMessage([]string{storage.TableExpenses}, now)))
	posted, err := app.Poster.HasPostedForMonth(ctx, "2024-07")
	require.NoError(t, err)
	assert.False(t, posted, "only fixed cost changes trigger posting")

	msg := amqp.NewLedgerChangeMessage([]string{storage.TableFixedCosts}, now)
	require.NoError(t, handle(msg))
	require.NoError(t, handle(msg))

	list, err := app.Expenses.Period(ctx, "2024-07-01", "2024-07-31")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2024-07-01", list[0].Date)
	assert.True(t, list[0].IsFixed)
}
