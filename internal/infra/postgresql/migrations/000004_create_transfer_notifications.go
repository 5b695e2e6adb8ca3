package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"gorm.io/gorm"
)

func createTransferNotificationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_transfer_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TransferNotificationModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_transfer_notifications_transfer_id ON transfer_notifications (transfer_id, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TransferNotificationModel{})
		},
	}
}
