package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"gorm.io/gorm"
)

func createAgenciesAndTransfersTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_agencies_and_transfers",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.AgencyModel{}, &repository.TransferModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_transfers_deadline_open ON transfers (deadline_datetime) WHERE agency_deadline_notified = false AND status NOT IN ('patient_picked_up', 'completed', 'cancelled')`,
				`CREATE INDEX IF NOT EXISTS idx_transfers_assigned_agency ON transfers (assigned_agency_id)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TransferModel{}, &repository.AgencyModel{})
		},
	}
}
