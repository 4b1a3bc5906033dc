package postgresql

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
)

// NewPostgres opens the journal database. The scheduler's write path is
// serialized behind one lock, so the pool mostly serves reads; callers size
// it via config and zero values fall back to the defaults.
func NewPostgres(dsn string, maxOpenConns, maxIdleConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = defaultMaxOpenConns
	}
	if maxIdleConns <= 0 {
		maxIdleConns = defaultMaxIdleConns
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}
