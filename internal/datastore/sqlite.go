package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// SQLiteStore implements DataStore for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// sqliteDSN enables foreign keys, so ON DELETE CASCADE applies, and waits
// on a locked database instead of failing at once.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Open connects to the SQLite file, sizes the pool to one connection and
// migrates the schema.
func (store *SQLiteStore) Open() error {
	dbPath := store.Settings.Output.SQLite.Path

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(fmt.Errorf("failed to create database directory: %w", err)).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(dbPath)), &gorm.Config{
		Logger:         newGormLogger(store.Settings.Pipeline.SlowQuery),
		TranslateError: true,
	})
	if err != nil {
		return dbError(err, "open", "sqlite", "path", dbPath)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open", "sqlite", "path", dbPath)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		_ = sqlDB.Close()
		return dbError(err, "pragma", "sqlite", "pragma", "foreign_keys")
	}

	store.DB = db
	if err := performAutoMigration(db, "sqlite"); err != nil {
		return err
	}

	GetLogger().Info("sqlite database opened", logger.String("path", dbPath))
	return nil
}
