package repository_test

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"templeops/internal/model"
	"templeops/internal/repository"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		DriverName:           "postgres",
		Conn:                 db,
		PreferSimpleProtocol: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{TranslateError: true, Logger: logger.Discard})
	require.NoError(t, err)

	return gormDB, mock
}

// setupSQLite opens a private in-memory database. A single connection keeps
// every query on the same memory database.
func setupSQLite(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return db
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTask(title string, due time.Time) *model.Task {
	return &model.Task{
		ID:           uuid.New(),
		Title:        title,
		SourceModule: model.SourceManual,
		AssignedTo:   "priest-1",
		AssignedBy:   "manager-1",
		DueAt:        due,
		Priority:     model.PriorityMedium,
		Status:       model.TaskOpen,
		Visibility:   model.PublicScope(),
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
}

func strPtr(s string) *string { return &s }
