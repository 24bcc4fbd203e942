package backend

import (
	"context"
	"errors"
	"fmt"

	"kakeibo/internal/amqp"
	"kakeibo/internal/cache"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Build opens the store and wires every service on top of it. The AMQP
// relay is optional: a broker that cannot be reached is logged and skipped.
func (f *DefaultFactory) Build(ctx context.Context, config Config) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}
	config = config.withDefaults()

	var opts []storage.Option
	if config.Clock != nil {
		opts = append(opts, storage.WithClock(config.Clock))
	}
	store, err := storage.Open(ctx, config.SQLiteDBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	clock := config.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}

	logger := f.logger
	app := &App{
		Store:          store,
		Expenses:       services.NewExpenseService(store, logger),
		Incomes:        services.NewIncomeService(store, logger),
		Categories:     services.NewCategoryService(store, logger),
		PaymentMethods: services.NewPaymentMethodService(store, logger),
		IncomeSources:  services.NewIncomeSourceService(store, logger),
		FixedCosts:     services.NewFixedCostService(store, logger),
		Sessions:       services.NewSessionStore(),
		Caches:         cache.NewManager(logger),
	}
	app.Poster = services.NewFixedCostPoster(store, clock, config.Location, logger)
	app.Scheduler = services.NewFixedCostScheduler(app.Poster, services.SchedulerConfig{CheckInterval: config.CheckInterval}, logger)
	app.Importer = services.NewImporter(store, app.Categories, app.PaymentMethods, logger)
	app.Exporter = services.NewExporter(app.Expenses, app.Incomes, app.Categories, app.PaymentMethods, app.IncomeSources, logger)

	summaryCache := cache.NewLRUCache[core.PeriodSummary](config.SummaryCacheSize, config.SummaryCacheTTL, cache.WithNow(clock.Now))
	app.Caches.Register(summaryCache)
	app.Summary = services.NewSummaryService(store, app.Expenses, app.Incomes, app.Categories, summaryCache, logger)

	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change relay", log.FieldError, err)
		} else {
			app.Broker = amqpClient
			app.Relay = amqp.NewRelay(store.Hub(), amqpClient, logger)
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	app.Cleanup = func() error {
		app.Summary.Close()
		var errs []error
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close amqp client: %w", err))
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		return errors.Join(errs...)
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		"db_path", config.SQLiteDBPath,
		"timezone", config.Location.String(),
		"amqp_enabled", app.Relay != nil)
	return app, nil
}
