package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"gorm.io/gorm"
)

func createCronRunLogsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_cron_run_logs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CronRunLogModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_cron_run_logs_job_started ON cron_run_logs (job_name, started_at DESC)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CronRunLogModel{})
		},
	}
}
