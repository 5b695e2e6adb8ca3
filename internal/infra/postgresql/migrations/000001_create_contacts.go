package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"gorm.io/gorm"
)

func createContactsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_contacts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ContactModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_contacts_phone_digits ON contacts (regexp_replace(phone, '[^0-9]', '', 'g'))`,
				`CREATE INDEX IF NOT EXISTS idx_contacts_created_at ON contacts (created_at)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ContactModel{})
		},
	}
}
