package repository

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"templeops/internal/config"
	"templeops/internal/model"
)

// Open connects to the database selected by cfg.StoreDriver. SQLite
// databases are auto-migrated; Postgres schemas are managed by Migrate.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
		)
		db, err := gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("❌ failed to connect to DB: %w", err)
		}
		log.Println("✅ Connected to postgres")
		return db, nil

	case config.DriverSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("❌ failed to open sqlite %s: %w", cfg.SQLitePath, err)
		}
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("❌ failed to migrate sqlite: %w", err)
		}
		log.Printf("✅ Opened sqlite database %s\n", cfg.SQLitePath)
		return db, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

// AutoMigrate creates or updates the schema from the gorm models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Actor{},
		&model.Task{},
		&model.Event{},
		&model.Booking{},
		&model.RecurringTemplate{},
		&model.AuditEntry{},
	)
}
