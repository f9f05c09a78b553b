package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/melodiary/backend/internal/auth"
	"github.com/melodiary/backend/internal/entries"
	"github.com/melodiary/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Foreign keys carry the track cascade and favorite-track SET NULL
	// behavior, so they must be on for every connection.
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&users.User{},
		&auth.Session{},
		&auth.Account{},
		&auth.Verification{},
		&entries.Album{},
		&entries.Track{},
		&entries.CalendarEntry{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
