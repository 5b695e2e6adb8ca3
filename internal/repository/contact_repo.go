package repository

import (
	"context"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"gorm.io/gorm"
)

type ContactRepository interface {
	FindByPhones(ctx context.Context, phones []string) ([]*domain.Contact, error)
	FindByPhoneSuffix(ctx context.Context, suffix string) ([]*domain.Contact, error)
	Create(ctx context.Context, c *domain.Contact) error
}

type GormContactRepo struct {
	db *gorm.DB
}

func NewGormContactRepo(db *gorm.DB) *GormContactRepo {
	return &GormContactRepo{db: db}
}

func (r *GormContactRepo) FindByPhones(ctx context.Context, phones []string) ([]*domain.Contact, error) {
	if len(phones) == 0 {
		return nil, nil
	}

	var models []ContactModel
	err := r.db.WithContext(ctx).
		Where("phone IN ?", phones).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return contactsToDomain(models), nil
}

// FindByPhoneSuffix matches stored numbers on their trailing digits, ignoring
// whatever separators they were saved with.
func (r *GormContactRepo) FindByPhoneSuffix(ctx context.Context, suffix string) ([]*domain.Contact, error) {
	if suffix == "" {
		return nil, nil
	}

	var models []ContactModel
	err := r.db.WithContext(ctx).
		Where("regexp_replace(phone, '[^0-9]', '', 'g') LIKE ?", "%"+suffix).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return contactsToDomain(models), nil
}

func (r *GormContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	model := contactModelFromDomain(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if c != nil {
		*c = *contactModelToDomain(model)
	}
	return nil
}

func contactsToDomain(models []ContactModel) []*domain.Contact {
	contacts := make([]*domain.Contact, 0, len(models))
	for i := range models {
		contacts = append(contacts, contactModelToDomain(&models[i]))
	}
	return contacts
}
