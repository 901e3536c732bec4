package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"campaignd/internal/broker"
	"campaignd/internal/config"
	"campaignd/internal/logger"
)

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Base carries what every command shares: configuration, the logger, the
// broker consumer and the resources to release on shutdown.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Consumer broker.Consumer

	closers []closer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// OnShutdown registers fn to run during Shutdown. Closers run in reverse
// registration order so dependents release before what they depend on.
func (b *Base) OnShutdown(name string, fn func(ctx context.Context) error) {
	b.closers = append(b.closers, closer{name: name, fn: fn})
}

// InitConsumer creates the configured broker consumer. prefetch bounds how
// many unacknowledged deliveries the broker hands out at once.
func (b *Base) InitConsumer(prefetch int) error {
	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger, prefetch)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	b.Consumer = consumer
	b.OnShutdown("consumer", func(context.Context) error { return consumer.Close() })
	b.Logger.Infow("Broker consumer created", "broker", consumer.Name())
	return nil
}

// Shutdown runs every registered closer, even after failures, and joins
// their errors.
func (b *Base) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		c := b.closers[i]
		if err := c.fn(ctx); err != nil {
			b.Logger.WarnwCtx(ctx, "Shutdown step failed", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	b.closers = nil

	if err := errors.Join(errs...); err != nil {
		return err
	}
	b.Logger.InfowCtx(ctx, "Resources released")
	return nil
}
