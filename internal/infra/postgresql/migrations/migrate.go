package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/hydrex-protocol/bribe-batcher/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_batches",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.BatchModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_batches_status ON batches (status)`,
					`CREATE INDEX IF NOT EXISTS idx_batches_depositor ON batches (depositor)`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.BatchModel{})
			},
		},
		{
			ID: "000002_create_batch_executions",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ExecutionModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_executions_batch_period ON batch_executions (batch_id, period)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ExecutionModel{})
			},
		},
	})

	return m.Migrate()
}
