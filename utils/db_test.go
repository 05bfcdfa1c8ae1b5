package utils

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"songlead/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Lead{},
		&models.LeadMessage{},
		&models.Sequence{},
		&models.Song{},
		&models.Script{},
	); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
