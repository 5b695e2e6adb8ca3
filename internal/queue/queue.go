package queue

import (
	"context"
	"fmt"
	"strings"
)

// Publisher publishes message events to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg MessageEvent) error
	Close() error
}

const (
	// ExchangeName is the topic exchange live CRM consumers bind to.
	ExchangeName = "crm.message-events"
	exchangeKind = "topic"
)

// RoutingKey is "<event type>.<channel>", e.g. new_message.whatsapp, so
// consumers can bind to one channel or one event type.
func RoutingKey(msg MessageEvent) string {
	return fmt.Sprintf("%s.%s", strings.ToLower(msg.Type), strings.ToLower(msg.Channel.String()))
}
