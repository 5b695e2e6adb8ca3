package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/normalizer"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
)

// EventWriter persists one normalized event.
type EventWriter interface {
	Upsert(ctx context.Context, evt domain.InternalEvent) error
}

// IngestResult summarizes one accepted webhook call.
type IngestResult struct {
	WebhookLogID string
	Events       int
	Failed       int
	// Skipped counts batch items that could not be parsed.
	Skipped    int
	ParseError bool
}

// IngestionService runs an authenticated webhook payload through the
// normalizer and message store. Processing failures are logged, never
// returned to the provider.
type IngestionService struct {
	writer   EventWriter
	webhooks repository.WebhookLogRepository
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewIngestionService(
	writer EventWriter,
	webhooks repository.WebhookLogRepository,
	logger *zap.Logger,
) (*IngestionService, error) {
	if writer == nil {
		return nil, fmt.Errorf("event writer is required")
	}
	if webhooks == nil {
		return nil, fmt.Errorf("webhook log repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestionService{
		writer:   writer,
		webhooks: webhooks,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *IngestionService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *IngestionService) Ingest(ctx context.Context, provider domain.Provider, payload []byte) IngestResult {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("provider", provider.String()))

	evts, err := normalizer.Normalize(provider, payload)
	var itemErrs domain.ItemErrors
	if len(evts) > 0 && errors.As(err, &itemErrs) {
		for _, itemErr := range itemErrs {
			logger.Warn("webhook item could not be parsed", zap.String("reason", itemErr.Reason), zap.Error(itemErr))
			s.metrics.IncWebhookEvent(provider.String(), domain.WebhookEventParseError)
		}
		err = nil
	}
	if err != nil {
		var parseErr *domain.ParseError
		if errors.As(err, &parseErr) {
			logger.Warn("webhook payload could not be parsed", zap.String("reason", parseErr.Reason), zap.Error(err))
		} else {
			logger.Error("webhook payload normalization failed", zap.Error(err))
		}
		s.metrics.IncWebhookEvent(provider.String(), domain.WebhookEventParseError)
		id := s.recordWebhook(ctx, provider, domain.WebhookEventParseError, payload)
		return IngestResult{WebhookLogID: id, ParseError: true}
	}

	result := IngestResult{Events: len(evts), Skipped: len(itemErrs)}
	result.WebhookLogID = s.recordWebhook(ctx, provider, webhookEventType(evts), payload)

	for _, evt := range evts {
		s.metrics.IncWebhookEvent(provider.String(), string(evt.Kind))

		if evt.Kind == domain.EventProviderError && evt.Failure != nil {
			logger.Warn("provider reported an error",
				zap.String("code", evt.Failure.Code),
				zap.String("title", evt.Failure.Title),
				zap.String("message", evt.Failure.Message),
				zap.String("details", evt.Failure.Details),
			)
			continue
		}

		if err := s.writer.Upsert(ctx, evt); err != nil {
			result.Failed++
			fields := []zap.Field{zap.String("kind", string(evt.Kind)), zap.Error(err)}
			var persistenceErr *domain.PersistenceError
			if errors.As(err, &persistenceErr) {
				fields = append(fields, zap.String("operation", persistenceErr.Op))
			}
			logger.Error("failed to persist webhook event", fields...)
		}
	}

	if result.WebhookLogID != "" {
		if err := s.webhooks.MarkProcessed(ctx, result.WebhookLogID, s.now().UTC()); err != nil {
			logger.Warn("failed to mark webhook log processed",
				zap.String("webhookLogId", result.WebhookLogID),
				zap.Error(err),
			)
		}
	}

	return result
}

func (s *IngestionService) recordWebhook(ctx context.Context, provider domain.Provider, eventType string, payload []byte) string {
	entry := &domain.WebhookLog{
		Provider:   provider,
		EventType:  eventType,
		Payload:    payload,
		ReceivedAt: s.now().UTC(),
	}
	if err := s.webhooks.Create(ctx, entry); err != nil {
		s.metrics.IncPersistenceFailure("insert_webhook_log")
		observability.WithContextLogger(s.logger, ctx).Error("failed to write webhook log",
			zap.String("provider", provider.String()),
			zap.String("eventType", eventType),
			zap.Error(err),
		)
		return ""
	}
	return entry.ID
}

// webhookEventType labels the audit row. A payload carrying any provider error
// is filed as provider_error.
func webhookEventType(evts []domain.InternalEvent) string {
	if len(evts) == 0 {
		return "empty"
	}

	kind := evts[0].Kind
	for _, evt := range evts {
		if evt.Kind == domain.EventProviderError {
			return domain.WebhookEventProviderError
		}
		if evt.Kind != kind {
			kind = "mixed"
		}
	}
	return string(kind)
}
