package backend

import (
	"fmt"
	"time"

	"kakeibo/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	loc, err := appConfig.Location()
	if err != nil {
		return Config{}, fmt.Errorf("invalid timezone in config: %w", err)
	}

	return Config{
		SQLiteDBPath: appConfig.SQLiteDBPath,
		Location:     loc,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		SummaryCacheSize: appConfig.SummaryCacheSize,
		SummaryCacheTTL:  appConfig.SummaryCacheTTL,
		CheckInterval:    appConfig.FixedCostCheckInterval,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required")
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return fmt.Errorf("AMQP exchange and queue are required when AMQP URL is set")
	}
	if c.SummaryCacheSize < 0 {
		return fmt.Errorf("summary cache size cannot be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.SummaryCacheSize == 0 {
		c.SummaryCacheSize = 64
	}
	if c.SummaryCacheTTL <= 0 {
		c.SummaryCacheTTL = 10 * time.Minute
	}
	return c
}
