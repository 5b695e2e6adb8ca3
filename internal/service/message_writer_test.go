package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/events"
	"github.com/kursadbilgin/escalation-engine/internal/identity"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
)

func incomingEvent() domain.InternalEvent {
	return domain.InternalEvent{
		Kind:     domain.EventIncomingMessage,
		Provider: domain.ProviderWhatsApp,
		Incoming: &domain.IncomingMessage{
			ProviderMessageID: "wamid.1",
			Channel:           domain.ChannelWhatsApp,
			From:              "905551112233",
			To:                "905559998877",
			Body:              "hello",
		},
	}
}

func receiveEvent(t *testing.T, ch <-chan events.Event) (events.Event, bool) {
	t.Helper()
	select {
	case evt := <-ch:
		return evt, true
	case <-time.After(100 * time.Millisecond):
		return events.Event{}, false
	}
}

func TestMessageWriterInsertsIncomingAndPublishes(t *testing.T) {
	t.Parallel()

	var inserted *domain.Message
	repo := &fakeMessageRepo{
		insertIfAbsentFn: func(ctx context.Context, m *domain.Message) (bool, error) {
			m.ID = "msg-1"
			inserted = m
			return true, nil
		},
	}
	resolver := &fakeResolver{resolveFn: func(ctx context.Context, phone string) (identity.Resolution, error) {
		if phone != "905551112233" {
			t.Fatalf("resolve phone = %q, want sender", phone)
		}
		return identity.Resolution{Contact: &domain.Contact{ID: "contact-7"}}, nil
	}}

	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe("test", 4)
	defer cancel()

	writer, err := NewMessageWriter(repo, resolver, bus, time.Second, nil)
	if err != nil {
		t.Fatalf("NewMessageWriter() error = %v", err)
	}

	if err := writer.Upsert(context.Background(), incomingEvent()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if inserted == nil {
		t.Fatal("expected message insert")
	}
	if inserted.Direction != domain.DirectionIn || inserted.Status != domain.MessageStatusReceived {
		t.Fatalf("inserted direction/status = %s/%s, want in/received", inserted.Direction, inserted.Status)
	}
	if inserted.ContactID == nil || *inserted.ContactID != "contact-7" {
		t.Fatalf("contact id = %v, want contact-7", inserted.ContactID)
	}

	evt, ok := receiveEvent(t, ch)
	if !ok {
		t.Fatal("expected new_message event")
	}
	if evt.Type != events.TypeNewMessage || evt.Message.ID != "msg-1" {
		t.Fatalf("event = %+v, want new_message for msg-1", evt)
	}
}

func TestMessageWriterDuplicateInsertIsSilent(t *testing.T) {
	t.Parallel()

	repo := &fakeMessageRepo{
		insertIfAbsentFn: func(ctx context.Context, m *domain.Message) (bool, error) {
			return false, nil
		},
	}
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe("test", 4)
	defer cancel()

	writer, err := NewMessageWriter(repo, &fakeResolver{}, bus, time.Second, nil)
	if err != nil {
		t.Fatalf("NewMessageWriter() error = %v", err)
	}

	if err := writer.Upsert(context.Background(), incomingEvent()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, ok := receiveEvent(t, ch); ok {
		t.Fatal("duplicate insert must not publish")
	}
}

func TestMessageWriterStoresMessageWhenResolutionFails(t *testing.T) {
	t.Parallel()

	var inserted *domain.Message
	repo := &fakeMessageRepo{
		insertIfAbsentFn: func(ctx context.Context, m *domain.Message) (bool, error) {
			inserted = m
			return true, nil
		},
	}
	resolver := &fakeResolver{resolveFn: func(ctx context.Context, phone string) (identity.Resolution, error) {
		return identity.Resolution{}, &domain.PersistenceError{Op: "find contact by phone", Cause: errors.New("db down")}
	}}

	writer, err := NewMessageWriter(repo, resolver, nil, time.Second, nil)
	if err != nil {
		t.Fatalf("NewMessageWriter() error = %v", err)
	}

	if err := writer.Upsert(context.Background(), incomingEvent()); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if inserted == nil || inserted.ContactID != nil {
		t.Fatalf("inserted = %+v, want message without contact", inserted)
	}
}

func TestMessageWriterInsertFailureIsPersistenceError(t *testing.T) {
	t.Parallel()

	repo := &fakeMessageRepo{
		insertIfAbsentFn: func(ctx context.Context, m *domain.Message) (bool, error) {
			return false, errors.New("connection reset")
		},
	}

	writer, err := NewMessageWriter(repo, &fakeResolver{}, nil, time.Second, nil)
	if err != nil {
		t.Fatalf("NewMessageWriter() error = %v", err)
	}

	err = writer.Upsert(context.Background(), incomingEvent())
	var persistenceErr *domain.PersistenceError
	if !errors.As(err, &persistenceErr) {
		t.Fatalf("Upsert() error = %v, want PersistenceError", err)
	}
	if persistenceErr.Op != "insert message" {
		t.Fatalf("op = %q, want insert message", persistenceErr.Op)
	}
}

func TestMessageWriterStatusForUnknownMessageIsAcknowledged(t *testing.T) {
	t.Parallel()

	writer, err := NewMessageWriter(&fakeMessageRepo{}, &fakeResolver{}, nil, time.Second, nil)
	if err != nil {
		t.Fatalf("NewMessageWriter() error = %v", err)
	}

	err = writer.Upsert(context.Background(), domain.InternalEvent{
		Kind: domain.EventStatusUpdate,
		Status: &domain.StatusUpdate{
			ProviderMessageID: "SM404",
			Channel:           domain.ChannelSMS,
			Status:            domain.MessageStatusDelivered,
		},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v, want nil for unknown message", err)
	}
}

func TestMessageWriterStatusBeforeMessageStoresMessageOnce(t *testing.T) {
	t.Parallel()

	type key struct {
		channel domain.Channel
		id      string
	}
	rows := map[key]*domain.Message{}
	inserts := 0
	repo := &fakeMessageRepo{
		insertIfAbsentFn: func(ctx context.Context, m *domain.Message) (bool, error) {
			k := key{m.Channel, m.ProviderMessageID}
			if _, ok := rows[k]; ok {
				return false, nil
			}
			inserts++
			rows[k] = m
			return true, nil
		},
		updateLockedFn: func(ctx context.Context, channel domain.Channel, id string, mutate repository.MessageMutation) (*domain.Message, bool, error) {
			m, ok := rows[key{channel, id}]
			if !ok {
				return nil, false, domain.ErrNotFound
			}
			return m, mutate(m), nil
		},
	}

	writer, err := NewMessageWriter(repo, &fakeResolver{}, nil, time.Second, nil)
	if err != nil {
		t.Fatalf("NewMessageWriter() error = %v", err)
	}

	status := domain.InternalEvent{
		Kind:     domain.EventStatusUpdate,
		Provider: domain.ProviderWhatsApp,
		Status: &domain.StatusUpdate{
			ProviderMessageID: "wamid.1",
			Channel:           domain.ChannelWhatsApp,
			Status:            domain.MessageStatusDelivered,
		},
	}
	if err := writer.Upsert(context.Background(), status); err != nil {
		t.Fatalf("Upsert(status) error = %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows after status = %d, want 0", len(rows))
	}

	for i := 0; i < 2; i++ {
		if err := writer.Upsert(context.Background(), incomingEvent()); err != nil {
			t.Fatalf("Upsert(incoming #%d) error = %v", i+1, err)
		}
	}

	if inserts != 1 {
		t.Fatalf("inserts = %d, want 1", inserts)
	}
	stored := rows[key{domain.ChannelWhatsApp, "wamid.1"}]
	if stored == nil || stored.Status != domain.MessageStatusReceived {
		t.Fatalf("stored = %+v, want received message", stored)
	}
}

func TestMessageWriterAppliesStatusUpdate(t *testing.T) {
	t.Parallel()

	sentAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	deliveredAt := sentAt.Add(5 * time.Second)
	stored := &domain.Message{
		ID:                "msg-2",
		ProviderMessageID: "wamid.2",
		Channel:           domain.ChannelWhatsApp,
		Direction:         domain.DirectionOut,
		Status:            domain.MessageStatusSent,
		SentAt:            &sentAt,
		Metadata:          map[string]any{"pricing": map[string]any{"billable": true}},
	}

	repo := &fakeMessageRepo{
		updateLockedFn: func(ctx context.Context, channel domain.Channel, id string, mutate repository.MessageMutation) (*domain.Message, bool, error) {
			if channel != domain.ChannelWhatsApp || id != "wamid.2" {
				t.Fatalf("UpdateLocked(%s, %s), want whatsapp wamid.2", channel, id)
			}
			changed := mutate(stored)
			return stored, changed, nil
		},
	}
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe("test", 4)
	defer cancel()

	writer, err := NewMessageWriter(repo, &fakeResolver{}, bus, time.Second, nil)
	if err != nil {
		t.Fatalf("NewMessageWriter() error = %v", err)
	}

	err = writer.Upsert(context.Background(), domain.InternalEvent{
		Kind: domain.EventStatusUpdate,
		Status: &domain.StatusUpdate{
			ProviderMessageID: "wamid.2",
			Channel:           domain.ChannelWhatsApp,
			Status:            domain.MessageStatusDelivered,
			Timestamp:         &deliveredAt,
			Metadata: map[string]any{
				"pricing":      map[string]any{"category": "service", "billable": nil},
				"conversation": map[string]any{"id": "conv-1"},
			},
		},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if stored.Status != domain.MessageStatusDelivered {
		t.Fatalf("status = %s, want delivered", stored.Status)
	}
	if stored.DeliveredAt == nil || !stored.DeliveredAt.Equal(deliveredAt) {
		t.Fatalf("deliveredAt = %v, want %v", stored.DeliveredAt, deliveredAt)
	}
	pricing := stored.Metadata["pricing"].(map[string]any)
	if pricing["billable"] != true || pricing["category"] != "service" {
		t.Fatalf("pricing = %v, want billable kept and category added", pricing)
	}
	if _, ok := stored.Metadata["conversation"]; !ok {
		t.Fatal("conversation metadata was not merged")
	}

	evt, ok := receiveEvent(t, ch)
	if !ok || evt.Type != events.TypeStatusUpdate {
		t.Fatalf("event = %+v, want status_update", evt)
	}
}

func TestMessageWriterFailedStatusRecordsError(t *testing.T) {
	t.Parallel()

	stored := &domain.Message{
		ProviderMessageID: "SM9",
		Channel:           domain.ChannelSMS,
		Direction:         domain.DirectionOut,
		Status:            domain.MessageStatusSent,
	}
	repo := &fakeMessageRepo{
		updateLockedFn: func(ctx context.Context, channel domain.Channel, id string, mutate repository.MessageMutation) (*domain.Message, bool, error) {
			changed := mutate(stored)
			return stored, changed, nil
		},
	}

	writer, err := NewMessageWriter(repo, &fakeResolver{}, nil, time.Second, nil)
	if err != nil {
		t.Fatalf("NewMessageWriter() error = %v", err)
	}

	err = writer.Upsert(context.Background(), domain.InternalEvent{
		Kind: domain.EventStatusUpdate,
		Status: &domain.StatusUpdate{
			ProviderMessageID: "SM9",
			Channel:           domain.ChannelSMS,
			Status:            domain.MessageStatusFailed,
			ErrorCode:         "30003",
			ErrorMessage:      "Unreachable destination handset",
		},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if stored.Status != domain.MessageStatusFailed || stored.FailedAt == nil {
		t.Fatalf("status = %s failedAt = %v, want failed with timestamp", stored.Status, stored.FailedAt)
	}
	if stored.ErrorCode == nil || *stored.ErrorCode != "30003" {
		t.Fatalf("error code = %v, want 30003", stored.ErrorCode)
	}
}

func TestMessageWriterRejectsEventWithoutPayload(t *testing.T) {
	t.Parallel()

	writer, err := NewMessageWriter(&fakeMessageRepo{}, &fakeResolver{}, nil, time.Second, nil)
	if err != nil {
		t.Fatalf("NewMessageWriter() error = %v", err)
	}

	err = writer.Upsert(context.Background(), domain.InternalEvent{Kind: domain.EventIncomingMessage})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Upsert() error = %v, want ErrValidation", err)
	}
}
