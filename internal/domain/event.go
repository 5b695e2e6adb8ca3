package domain

import "time"

// EventKind tags the variant held by an InternalEvent.
type EventKind string

const (
	EventIncomingMessage EventKind = "incoming_message"
	EventStatusUpdate    EventKind = "status_update"
	EventProviderError   EventKind = "provider_error"
)

// InternalEvent is the provider independent shape produced by the normalizer.
// Exactly one of Incoming, Status or Failure is set, matching Kind.
type InternalEvent struct {
	Kind     EventKind
	Provider Provider
	Incoming *IncomingMessage
	Status   *StatusUpdate
	Failure  *ProviderFailure
}

// IncomingMessage is a new inbound message from a contact.
type IncomingMessage struct {
	ProviderMessageID string
	Channel           Channel
	From              string
	To                string
	Body              string
	Media             []Media
	Timestamp         *time.Time
	Metadata          map[string]any
}

// StatusUpdate is a delivery status callback for a previously sent message.
type StatusUpdate struct {
	ProviderMessageID string
	Channel           Channel
	Status            MessageStatus
	Recipient         string
	Timestamp         *time.Time
	ErrorCode         string
	ErrorMessage      string
	Metadata          map[string]any
}

// ProviderFailure is an error reported by the provider outside a message status.
type ProviderFailure struct {
	Code    string
	Title   string
	Message string
	Details string
}

// WebhookLog is the raw audit record of an inbound webhook call.
type WebhookLog struct {
	ID          string
	Provider    Provider
	EventType   string
	Payload     []byte
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

const (
	WebhookEventParseError    = "parse_error"
	WebhookEventProviderError = "provider_error"
)
