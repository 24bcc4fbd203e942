package amqp

import (
	"context"

	"kakeibo/internal/log"
	"kakeibo/internal/storage"
)

// Publisher sends change notifications somewhere.
type Publisher interface {
	PublishLedgerChange(ctx context.Context, tables []string) error
}

// Relay forwards committed table changes from the store to a Publisher.
// Bursts of commits collapse into one message listing every table touched.
type Relay struct {
	hub    *storage.Hub
	pub    Publisher
	logger *log.Logger
}

func NewRelay(hub *storage.Hub, pub Publisher, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.Default()
	}
	return &Relay{hub: hub, pub: pub, logger: logger.WithComponent(log.ComponentAMQP)}
}

// Run relays until ctx is done. Publish failures are logged and dropped.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.hub.Subscribe()
	defer sub.Close()

	r.logger.InfoContext(ctx, "Change relay started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.C():
			tables := sub.Drain()
			if len(tables) == 0 {
				continue
			}
			if err := r.pub.PublishLedgerChange(ctx, tables); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.WarnContext(ctx, "Ledger change not relayed", log.FieldTables, tables, log.FieldError, err)
			}
		}
	}
}
