package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
)

type TransferRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Transfer, error)
	FindOverdue(ctx context.Context, now time.Time) ([]*domain.Transfer, error)
	CountProblematic(ctx context.Context, now time.Time) (int64, error)
	ClaimEscalation(ctx context.Context, id string, now time.Time) (bool, error)
	RecordEscalationOutcome(ctx context.Context, id string, outcome domain.EscalationOutcome) error
	ApplyConfirmation(ctx context.Context, id string, action domain.ConfirmationAction, at time.Time) error
}

type GormTransferRepo struct {
	db *gorm.DB
}

func NewGormTransferRepo(db *gorm.DB) *GormTransferRepo {
	return &GormTransferRepo{db: db}
}

func (r *GormTransferRepo) GetByID(ctx context.Context, id string) (*domain.Transfer, error) {
	var model TransferModel
	err := r.db.WithContext(ctx).
		Preload("Agency").
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return transferModelToDomain(&model), nil
}

// FindOverdue lists transfers past their deadline that are still open and were
// never escalated, earliest deadline first.
func (r *GormTransferRepo) FindOverdue(ctx context.Context, now time.Time) ([]*domain.Transfer, error) {
	var models []TransferModel
	err := r.db.WithContext(ctx).
		Preload("Agency").
		Where("deadline_datetime < ? AND status NOT IN ? AND agency_deadline_notified = ?",
			now, domain.EscalationClosedStatuses, false).
		Order("deadline_datetime ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	transfers := make([]*domain.Transfer, 0, len(models))
	for i := range models {
		transfers = append(transfers, transferModelToDomain(&models[i]))
	}
	return transfers, nil
}

// CountProblematic counts overdue open transfers with no agency assigned.
func (r *GormTransferRepo) CountProblematic(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&TransferModel{}).
		Where("deadline_datetime < ? AND status NOT IN ? AND assigned_agency_id IS NULL",
			now, domain.EscalationClosedStatuses).
		Count(&count).Error
	return count, err
}

// ClaimEscalation flips agency_deadline_notified for one transfer. Only one
// caller across all processes gets true for a given transfer.
func (r *GormTransferRepo) ClaimEscalation(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&TransferModel{}).
		Where("id = ? AND agency_deadline_notified = ? AND status NOT IN ?",
			id, false, domain.EscalationClosedStatuses).
		Updates(map[string]any{
			"agency_deadline_notified":             true,
			"agency_deadline_notification_sent_at": now,
			"updated_at":                           now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormTransferRepo) RecordEscalationOutcome(ctx context.Context, id string, outcome domain.EscalationOutcome) error {
	updates := map[string]any{
		"call_notification_success": outcome.Success,
		"call_notification_error":   nil,
	}
	if outcome.ExecutionSID != "" {
		updates["deadline_flow_execution_sid"] = outcome.ExecutionSID
	}
	if outcome.Error != "" {
		updates["call_notification_error"] = outcome.Error
	}

	result := r.db.WithContext(ctx).
		Model(&TransferModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyConfirmation records the keypad answer of the escalation call. A pickup
// closes the transfer; an acknowledgement only marks the confirmation.
func (r *GormTransferRepo) ApplyConfirmation(ctx context.Context, id string, action domain.ConfirmationAction, at time.Time) error {
	updates := map[string]any{}
	switch action {
	case domain.ConfirmationPickedUp:
		updates["status"] = domain.TransferStatusPatientPickedUp
		updates["deadline_confirmation_received"] = true
		updates["deadline_confirmation_datetime"] = at
		updates["closed_at"] = at
	case domain.ConfirmationAcknowledged:
		updates["deadline_confirmation_received"] = true
		updates["deadline_confirmation_datetime"] = at
	default:
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&TransferModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
