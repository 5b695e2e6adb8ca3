package repository

import (
	"context"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
)

type TransferNotificationRepository interface {
	Create(ctx context.Context, n *domain.TransferNotification) error
	ListByTransferID(ctx context.Context, transferID string) ([]domain.TransferNotification, error)
}

type GormTransferNotificationRepo struct {
	db *gorm.DB
}

func NewGormTransferNotificationRepo(db *gorm.DB) *GormTransferNotificationRepo {
	return &GormTransferNotificationRepo{db: db}
}

func (r *GormTransferNotificationRepo) Create(ctx context.Context, n *domain.TransferNotification) error {
	model := transferNotificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *transferNotificationModelToDomain(model)
	}
	return nil
}

func (r *GormTransferNotificationRepo) ListByTransferID(ctx context.Context, transferID string) ([]domain.TransferNotification, error) {
	var models []TransferNotificationModel
	err := r.db.WithContext(ctx).
		Where("transfer_id = ?", transferID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.TransferNotification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *transferNotificationModelToDomain(&models[i]))
	}
	return notifications, nil
}
