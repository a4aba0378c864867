package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/postflow/engage/internal/entities"
)

// setupTestDB creates an in-memory SQLite database with the full engine
// schema. A single connection keeps every operation on the same in-memory
// database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err, "failed to open in-memory database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "failed to get sql.DB")
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&entities.AutomationRule{},
		&entities.Event{},
		&entities.ActionPlan{},
		&entities.ActionStep{},
		&entities.RateCounter{},
		&entities.EngagementRecord{},
	)
	require.NoError(t, err, "failed to migrate schema")
	return db
}
