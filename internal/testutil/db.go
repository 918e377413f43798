// Package testutil provides shared fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"socialgraph/internal/config"
	"socialgraph/internal/database"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewTestDB opens an isolated in-memory sqlite database with the application
// schema and store clock. It is closed when the test ends.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// One connection: sqlite serializes writers, so concurrent tests see
	// transactions run back to back.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(context.Background(), db, &config.Config{Env: "test"}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}
