package backend

import (
	"context"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// App is the wired set of ledger services over one store.
type App struct {
	Store *storage.Store

	Expenses       *services.ExpenseService
	Incomes        *services.IncomeService
	Categories     *services.CategoryService
	PaymentMethods *services.PaymentMethodService
	IncomeSources  *services.IncomeSourceService
	FixedCosts     *services.FixedCostService

	Poster    *services.FixedCostPoster
	Scheduler *services.FixedCostScheduler
	Importer  *services.Importer
	Sessions  *services.SessionStore
	Exporter  *services.Exporter
	Summary   *services.SummaryService

	Caches *cache.Manager

	// Broker and Relay are nil when no AMQP URL is configured or the
	// broker could not be reached.
	Broker *amqp.Client
	Relay  *amqp.Relay

	Cleanup CleanupFunc
}

// Factory builds an App from configuration.
type Factory interface {
	Build(ctx context.Context, config Config) (*App, error)
}

// Config holds configuration for backend creation
type Config struct {
	SQLiteDBPath string
	// Location decides which calendar month is current.
	Location *time.Location

	// AMQP relay, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	SummaryCacheSize int
	SummaryCacheTTL  time.Duration
	CheckInterval    time.Duration

	// Clock overrides the wall clock, for tests.
	Clock core.Clock
}
