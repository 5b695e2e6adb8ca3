package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/events"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"go.uber.org/zap"
)

const (
	relaySubscriberName = "rabbitmq-relay"
	relayBuffer         = 256
	publishTimeout      = 5 * time.Second
)

// Relay forwards bus events to the broker. Publish failures are logged and the
// event is dropped; the message store stays the source of truth.
type Relay struct {
	bus       *events.Bus
	publisher Publisher
	logger    *zap.Logger
}

func NewRelay(bus *events.Bus, publisher Publisher, logger *zap.Logger) (*Relay, error) {
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Relay{bus: bus, publisher: publisher, logger: logger}, nil
}

// Run blocks until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	ch, cancel := r.bus.Subscribe(relaySubscriberName, relayBuffer)
	defer cancel()

	r.logger.Info("message event relay started", zap.String("exchange", ExchangeName))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("message event relay stopped")
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(ctx, evt)
		}
	}
}

func (r *Relay) forward(ctx context.Context, evt events.Event) {
	msg := MessageEventFrom(evt)
	logger := observability.WithContextLogger(r.logger, observability.WithCorrelationID(ctx, evt.CorrelationID))

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.publisher.Publish(publishCtx, msg); err != nil {
		logger.Warn("failed to relay message event",
			zap.String("type", msg.Type),
			zap.String("providerMessageId", msg.ProviderMessageID),
			zap.Error(err),
		)
	}
}
