package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/events"
)

// MessageEvent is the broker payload announcing a stored or updated message.
type MessageEvent struct {
	Type              string               `json:"type"`
	MessageID         string               `json:"messageId"`
	ProviderMessageID string               `json:"providerMessageId"`
	ContactID         *string              `json:"contactId,omitempty"`
	Channel           domain.Channel       `json:"channel"`
	Direction         domain.Direction     `json:"direction"`
	Status            domain.MessageStatus `json:"status"`
	CorrelationID     string               `json:"correlationId,omitempty"`
	OccurredAt        time.Time            `json:"occurredAt"`
}

func MessageEventFrom(evt events.Event) MessageEvent {
	return MessageEvent{
		Type:              string(evt.Type),
		MessageID:         evt.Message.ID,
		ProviderMessageID: evt.Message.ProviderMessageID,
		ContactID:         evt.Message.ContactID,
		Channel:           evt.Message.Channel,
		Direction:         evt.Message.Direction,
		Status:            evt.Message.Status,
		CorrelationID:     evt.CorrelationID,
		OccurredAt:        evt.OccurredAt,
	}
}

func (m MessageEvent) Validate() error {
	switch events.Type(m.Type) {
	case events.TypeNewMessage, events.TypeStatusUpdate:
	default:
		return fmt.Errorf("unknown event type %q", m.Type)
	}
	if strings.TrimSpace(m.ProviderMessageID) == "" {
		return fmt.Errorf("providerMessageId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	return nil
}
