package domain

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies the webhook provider family a payload came from.
type Provider string

const (
	ProviderTwilio   Provider = "twilio"
	ProviderWhatsApp Provider = "whatsapp"
)

func (p Provider) String() string { return string(p) }

// Channel represents the messaging channel of a message.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Direction of a message relative to the CRM.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusReceived  MessageStatus = "received"
)

func (s MessageStatus) String() string { return string(s) }

// rank orders the outbound lifecycle. Statuses outside the table have no rank.
var statusRank = map[MessageStatus]int{
	MessageStatusQueued:    1,
	MessageStatusSent:      2,
	MessageStatusDelivered: 3,
	MessageStatusRead:      4,
}

func (s MessageStatus) IsKnown() bool {
	if s == MessageStatusFailed || s == MessageStatusReceived {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusFailed
}

// CanTransition reports whether a stored status may be replaced by next.
// Failed never regresses, ranked statuses only move forward, and a status
// the lifecycle does not know about is accepted unless it would leave failed.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	if s == next || s.IsTerminal() {
		return false
	}
	if next == MessageStatusFailed {
		return true
	}

	current, currentRanked := statusRank[s]
	target, targetRanked := statusRank[next]
	if currentRanked && targetRanked {
		return target > current
	}
	if s == MessageStatusReceived {
		// Inbound rows keep their status; only failure can replace it.
		return false
	}
	return !targetRanked || !currentRanked
}

// Media is the uniform media reference attached to a message.
type Media struct {
	Type     string `json:"type"`
	MediaID  string `json:"mediaId,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Caption  string `json:"caption,omitempty"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Message is one delivery record, keyed by (channel, provider message id).
type Message struct {
	ID                string
	ProviderMessageID string
	ContactID         *string
	Channel           Channel
	Direction         Direction
	From              string
	To                string
	Body              string
	Media             []Media
	Status            MessageStatus
	SentAt            *time.Time
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	FailedAt          *time.Time
	ErrorCode         *string
	ErrorMessage      *string
	Metadata          map[string]any
	ProviderTimestamp *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.ProviderMessageID) == "" {
		return fmt.Errorf("%w: provider message id is required", ErrValidation)
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, m.Channel)
	}
	return nil
}

// ApplyStatus moves the message to status at the given time. The status column
// only changes when the transition is allowed; an empty status timestamp is still
// filled for late callbacks unless the message already failed. It reports whether
// anything changed.
func (m *Message) ApplyStatus(status MessageStatus, at time.Time) bool {
	changed := false
	if m.Status.CanTransition(status) {
		m.Status = status
		changed = true
	}

	var slot **time.Time
	switch status {
	case MessageStatusSent:
		slot = &m.SentAt
	case MessageStatusDelivered:
		slot = &m.DeliveredAt
	case MessageStatusRead:
		slot = &m.ReadAt
	case MessageStatusFailed:
		slot = &m.FailedAt
	}
	if slot != nil && *slot == nil && (changed || !m.Status.IsTerminal()) {
		ts := at.UTC()
		*slot = &ts
		changed = true
	}

	return changed
}

// MergeMetadata adds keys from extra without replacing existing values with nil.
// Nested maps are merged recursively. It reports whether anything changed.
func (m *Message) MergeMetadata(extra map[string]any) bool {
	if len(extra) == 0 {
		return false
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]any, len(extra))
	}
	return mergeInto(m.Metadata, extra)
}

func mergeInto(dst map[string]any, src map[string]any) bool {
	changed := false
	for key, value := range src {
		if value == nil {
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			existing, ok := dst[key].(map[string]any)
			if !ok {
				if _, present := dst[key]; present {
					continue
				}
				existing = make(map[string]any, len(nested))
				dst[key] = existing
				changed = true
			}
			if mergeInto(existing, nested) {
				changed = true
			}
			continue
		}
		if current, present := dst[key]; present && fmt.Sprint(current) == fmt.Sprint(value) {
			continue
		}
		dst[key] = value
		changed = true
	}
	return changed
}
