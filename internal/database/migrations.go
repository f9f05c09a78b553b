package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationClearOrphanedFavorites = "2026-07-14_clear_orphaned_favorite_tracks"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClearOrphanedFavorites, apply: clearOrphanedFavorites},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// clearOrphanedFavorites nulls favorite-track pointers left dangling by
// track replacements that ran before the SET NULL constraint existed.
func clearOrphanedFavorites(db *gorm.DB) error {
	return db.Exec(
		"UPDATE calendar_entries SET favorite_track_id = NULL " +
			"WHERE favorite_track_id IS NOT NULL " +
			"AND favorite_track_id NOT IN (SELECT id FROM tracks);",
	).Error
}
