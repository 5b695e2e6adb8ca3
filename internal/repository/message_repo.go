package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageMutation changes a locked message in place and reports whether
// anything changed.
type MessageMutation func(m *domain.Message) bool

type MessageRepository interface {
	InsertIfAbsent(ctx context.Context, m *domain.Message) (bool, error)
	GetByProviderID(ctx context.Context, channel domain.Channel, providerMessageID string) (*domain.Message, error)
	UpdateLocked(ctx context.Context, channel domain.Channel, providerMessageID string, mutate MessageMutation) (*domain.Message, bool, error)
}

type GormMessageRepo struct {
	db *gorm.DB
}

func NewGormMessageRepo(db *gorm.DB) *GormMessageRepo {
	return &GormMessageRepo{db: db}
}

// InsertIfAbsent inserts m unless a row with the same channel and provider id
// exists. It reports false on a duplicate.
func (r *GormMessageRepo) InsertIfAbsent(ctx context.Context, m *domain.Message) (bool, error) {
	model := messageModelFromDomain(m)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "channel"}, {Name: "provider_message_id"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	if m != nil {
		*m = *messageModelToDomain(model)
	}
	return true, nil
}

func (r *GormMessageRepo) GetByProviderID(ctx context.Context, channel domain.Channel, providerMessageID string) (*domain.Message, error) {
	var model MessageModel
	err := r.db.WithContext(ctx).
		Where("channel = ? AND provider_message_id = ?", channel, providerMessageID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return messageModelToDomain(&model), nil
}

// UpdateLocked loads the message under a row lock, applies mutate and writes
// back only the mutable columns. Content columns are never rewritten.
func (r *GormMessageRepo) UpdateLocked(
	ctx context.Context,
	channel domain.Channel,
	providerMessageID string,
	mutate MessageMutation,
) (*domain.Message, bool, error) {
	var (
		updated *domain.Message
		changed bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model MessageModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("channel = ? AND provider_message_id = ?", channel, providerMessageID).
			First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		msg := messageModelToDomain(&model)
		changed = mutate(msg)
		updated = msg
		if !changed {
			return nil
		}

		next := messageModelFromDomain(msg)
		return tx.Model(next).
			Select("status", "sent_at", "delivered_at", "read_at", "failed_at",
				"error_code", "error_message", "metadata", "updated_at").
			Updates(next).Error
	})
	if err != nil {
		return nil, false, err
	}

	return updated, changed, nil
}
