// Package datastore opens the engine database and keeps its schema current.
package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/postflow/engage/internal/conf"
	"github.com/postflow/engage/internal/entities"
)

// Open connects to the configured database and migrates the engine schema.
// TranslateError is enabled so unique-index violations surface as
// gorm.ErrDuplicatedKey across both drivers; the idempotent ingest path
// depends on it.
func Open(settings *conf.DatabaseSettings) (*gorm.DB, error) {
	config := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var db *gorm.DB
	var err error
	switch settings.Driver {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(settings.Path), config)
	case "mysql":
		db, err = gorm.Open(mysql.Open(settings.DSN), config)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", settings.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", settings.Driver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the engine schema.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&entities.AutomationRule{},
		&entities.Event{},
		&entities.ActionPlan{},
		&entities.ActionStep{},
		&entities.RateCounter{},
		&entities.EngagementRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
