package database

import (
	"fmt"

	"arbitrage-bot-go/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the main trade database and performs auto-migration.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.TradeRecord{},
		&models.Parameter{},
		&models.SystemState{},
		&models.PerformanceScore{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

// NewShadowDatabase opens the shadow trade database. Shadow trades live in a
// separate store so hypothetical results never pollute real PnL aggregates.
func NewShadowDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to shadow database: %w", err)
	}

	if err := db.AutoMigrate(&models.ShadowTrade{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate shadow database: %w", err)
	}

	return db, nil
}
