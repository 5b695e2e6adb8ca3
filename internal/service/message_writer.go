package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/events"
	"github.com/kursadbilgin/escalation-engine/internal/identity"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultPersistenceTimeout = 5 * time.Second

// ContactResolver maps a sender phone to a CRM contact.
type ContactResolver interface {
	Resolve(ctx context.Context, phone string) (identity.Resolution, error)
}

// MessageWriter persists normalized events into the message store.
type MessageWriter struct {
	messages repository.MessageRepository
	resolver ContactResolver
	bus      *events.Bus
	logger   *zap.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
	now      func() time.Time
}

func NewMessageWriter(
	messages repository.MessageRepository,
	resolver ContactResolver,
	bus *events.Bus,
	timeout time.Duration,
	logger *zap.Logger,
) (*MessageWriter, error) {
	if messages == nil {
		return nil, fmt.Errorf("message repository is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("contact resolver is required")
	}
	if timeout <= 0 {
		timeout = defaultPersistenceTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MessageWriter{
		messages: messages,
		resolver: resolver,
		bus:      bus,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
	}, nil
}

func (w *MessageWriter) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Upsert writes one event. Provider errors are not message rows and are
// ignored here; the ingestion service records them in the webhook log.
func (w *MessageWriter) Upsert(ctx context.Context, evt domain.InternalEvent) error {
	switch evt.Kind {
	case domain.EventIncomingMessage:
		if evt.Incoming == nil {
			return fmt.Errorf("%w: incoming event without payload", domain.ErrValidation)
		}
		return w.insertIncoming(ctx, evt.Incoming)
	case domain.EventStatusUpdate:
		if evt.Status == nil {
			return fmt.Errorf("%w: status event without payload", domain.ErrValidation)
		}
		return w.applyStatus(ctx, evt.Status)
	case domain.EventProviderError:
		return nil
	default:
		return fmt.Errorf("%w: unknown event kind %q", domain.ErrValidation, evt.Kind)
	}
}

func (w *MessageWriter) insertIncoming(ctx context.Context, in *domain.IncomingMessage) error {
	logger := observability.WithContextLogger(w.logger, ctx)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	msg := &domain.Message{
		ProviderMessageID: in.ProviderMessageID,
		Channel:           in.Channel,
		Direction:         domain.DirectionIn,
		From:              in.From,
		To:                in.To,
		Body:              in.Body,
		Media:             in.Media,
		Status:            domain.MessageStatusReceived,
		Metadata:          in.Metadata,
		ProviderTimestamp: in.Timestamp,
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	// A failed lookup still stores the message, unlinked.
	resolution, err := w.resolver.Resolve(ctx, in.From)
	if err != nil {
		logger.Warn("contact resolution failed, storing message without contact",
			zap.String("providerMessageId", in.ProviderMessageID),
			zap.String("from", in.From),
			zap.Error(err),
		)
		w.countPersistenceFailure(err, "resolve_contact")
	} else if resolution.Contact != nil {
		contactID := resolution.Contact.ID
		msg.ContactID = &contactID
	}

	inserted, err := w.messages.InsertIfAbsent(ctx, msg)
	if err != nil {
		w.metrics.IncPersistenceFailure("insert_message")
		return &domain.PersistenceError{Op: "insert message", Cause: err}
	}
	if !inserted {
		logger.Debug("duplicate inbound message ignored",
			zap.String("providerMessageId", in.ProviderMessageID),
			zap.String("channel", in.Channel.String()),
		)
		return nil
	}

	w.publish(ctx, events.TypeNewMessage, msg)
	return nil
}

func (w *MessageWriter) applyStatus(ctx context.Context, st *domain.StatusUpdate) error {
	logger := observability.WithContextLogger(w.logger, ctx)

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	at := w.now().UTC()
	if st.Timestamp != nil {
		at = st.Timestamp.UTC()
	}

	updated, changed, err := w.messages.UpdateLocked(ctx, st.Channel, st.ProviderMessageID, func(m *domain.Message) bool {
		changed := m.ApplyStatus(st.Status, at)
		if st.Status == domain.MessageStatusFailed && m.Status == domain.MessageStatusFailed {
			if st.ErrorCode != "" && (m.ErrorCode == nil || *m.ErrorCode != st.ErrorCode) {
				code := st.ErrorCode
				m.ErrorCode = &code
				changed = true
			}
			if st.ErrorMessage != "" && (m.ErrorMessage == nil || *m.ErrorMessage != st.ErrorMessage) {
				message := st.ErrorMessage
				m.ErrorMessage = &message
				changed = true
			}
		}
		if m.MergeMetadata(st.Metadata) {
			changed = true
		}
		return changed
	})
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info("status update for unknown message acknowledged",
			zap.String("providerMessageId", st.ProviderMessageID),
			zap.String("channel", st.Channel.String()),
			zap.String("status", st.Status.String()),
		)
		return nil
	}
	if err != nil {
		w.metrics.IncPersistenceFailure("update_message_status")
		return &domain.PersistenceError{Op: "update message status", Cause: err}
	}
	if !changed {
		return nil
	}

	w.publish(ctx, events.TypeStatusUpdate, updated)
	return nil
}

func (w *MessageWriter) publish(ctx context.Context, typ events.Type, msg *domain.Message) {
	if w.bus == nil || msg == nil {
		return
	}
	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	w.bus.Publish(events.Event{
		Type:          typ,
		Message:       *msg,
		CorrelationID: correlationID,
		OccurredAt:    w.now().UTC(),
	})
}

func (w *MessageWriter) countPersistenceFailure(err error, op string) {
	var persistenceErr *domain.PersistenceError
	if errors.As(err, &persistenceErr) {
		w.metrics.IncPersistenceFailure(op)
	}
}
