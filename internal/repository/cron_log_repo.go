package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
)

type CronLogRepository interface {
	Create(ctx context.Context, l *domain.CronRunLog) error
	Update(ctx context.Context, l *domain.CronRunLog) error
	GetByID(ctx context.Context, id string) (*domain.CronRunLog, error)
	ListRecent(ctx context.Context, jobName string, limit int) ([]domain.CronRunLog, error)
}

type GormCronLogRepo struct {
	db *gorm.DB
}

func NewGormCronLogRepo(db *gorm.DB) *GormCronLogRepo {
	return &GormCronLogRepo{db: db}
}

func (r *GormCronLogRepo) Create(ctx context.Context, l *domain.CronRunLog) error {
	model := cronRunLogModelFromDomain(l)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if l != nil {
		*l = *cronRunLogModelToDomain(model)
	}
	return nil
}

// Update writes the progress columns of an existing run.
func (r *GormCronLogRepo) Update(ctx context.Context, l *domain.CronRunLog) error {
	model := cronRunLogModelFromDomain(l)
	result := r.db.WithContext(ctx).
		Model(model).
		Select("status", "completed_at", "duration_ms", "items_processed",
			"items_succeeded", "items_failed", "error_message", "metadata").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormCronLogRepo) GetByID(ctx context.Context, id string) (*domain.CronRunLog, error) {
	var model CronRunLogModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cronRunLogModelToDomain(&model), nil
}

func (r *GormCronLogRepo) ListRecent(ctx context.Context, jobName string, limit int) ([]domain.CronRunLog, error) {
	if limit < 1 {
		limit = 20
	}
	limit = min(limit, 100)

	var models []CronRunLogModel
	err := r.db.WithContext(ctx).
		Where("job_name = ?", jobName).
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.CronRunLog, 0, len(models))
	for i := range models {
		logs = append(logs, *cronRunLogModelToDomain(&models[i]))
	}
	return logs, nil
}
