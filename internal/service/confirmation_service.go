package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/observability"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
)

// ConfirmationInput is the keypad callback posted by the voice flow.
type ConfirmationInput struct {
	TransferID   string
	Digits       string
	CallSID      string
	ExecutionSID string
}

// ConfirmationService applies agency answers to escalated transfers.
type ConfirmationService struct {
	transfers     repository.TransferRepository
	notifications repository.TransferNotificationRepository
	logger        *zap.Logger
	now           func() time.Time
}

func NewConfirmationService(
	transfers repository.TransferRepository,
	notifications repository.TransferNotificationRepository,
	logger *zap.Logger,
) (*ConfirmationService, error) {
	if transfers == nil {
		return nil, fmt.Errorf("transfer repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("transfer notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConfirmationService{
		transfers:     transfers,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (s *ConfirmationService) Confirm(ctx context.Context, in ConfirmationInput) (domain.ConfirmationAction, error) {
	id := strings.TrimSpace(in.TransferID)
	if id == "" {
		return domain.ConfirmationNoResponse, fmt.Errorf("%w: transfer_id is required", domain.ErrValidation)
	}

	if _, err := s.transfers.GetByID(ctx, id); err != nil {
		return domain.ConfirmationNoResponse, err
	}

	action := domain.ParseConfirmationDigits(in.Digits)
	at := s.now().UTC()
	if err := s.transfers.ApplyConfirmation(ctx, id, action, at); err != nil {
		return action, fmt.Errorf("failed to apply confirmation: %w", err)
	}

	notification := &domain.TransferNotification{
		TransferID: id,
		Type:       domain.NotificationTypeTransferDeadline,
		Channel:    domain.NotificationChannelCall,
		Status:     notificationStatusFor(action),
		CreatedAt:  at,
	}
	if sid := firstNonEmpty(in.ExecutionSID, in.CallSID); sid != "" {
		notification.ProviderSID = &sid
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	if err := s.notifications.Create(ctx, notification); err != nil {
		logger.Error("failed to write confirmation notification", zap.String("transferId", id), zap.Error(err))
	}

	logger.Info("deadline confirmation received",
		zap.String("transferId", id),
		zap.String("action", string(action)),
		zap.String("callSid", in.CallSID),
	)
	return action, nil
}

func notificationStatusFor(action domain.ConfirmationAction) domain.NotificationStatus {
	switch action {
	case domain.ConfirmationPickedUp:
		return domain.NotificationStatusConfirmed
	case domain.ConfirmationAcknowledged:
		return domain.NotificationStatusAcknowledged
	default:
		return domain.NotificationStatusNoResponse
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
