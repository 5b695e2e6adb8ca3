package repository

import (
	"context"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
)

type WebhookLogRepository interface {
	Create(ctx context.Context, l *domain.WebhookLog) error
	MarkProcessed(ctx context.Context, id string, at time.Time) error
}

type GormWebhookLogRepo struct {
	db *gorm.DB
}

func NewGormWebhookLogRepo(db *gorm.DB) *GormWebhookLogRepo {
	return &GormWebhookLogRepo{db: db}
}

func (r *GormWebhookLogRepo) Create(ctx context.Context, l *domain.WebhookLog) error {
	model := webhookLogModelFromDomain(l)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if l != nil {
		l.ID = model.ID
	}
	return nil
}

func (r *GormWebhookLogRepo) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&WebhookLogModel{}).
		Where("id = ?", id).
		Update("processed_at", at).Error
}
