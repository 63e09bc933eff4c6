package datastore

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open connects to the configured MySQL server and migrates the schema.
func (store *MySQLStore) Open() error {
	db, err := gorm.Open(mysql.Open(store.Settings.MySQLDSN()), &gorm.Config{
		Logger:         newGormLogger(store.Settings.Pipeline.SlowQuery),
		TranslateError: true,
	})
	if err != nil {
		return dbError(err, "open", "mysql",
			"host", store.Settings.Output.MySQL.Host,
			"database", store.Settings.Output.MySQL.Database)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open", "mysql")
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	store.DB = db
	if err := performAutoMigration(db, "mysql"); err != nil {
		return err
	}

	GetLogger().Info("mysql database opened",
		logger.String("host", store.Settings.Output.MySQL.Host),
		logger.String("database", store.Settings.Output.MySQL.Database))
	return nil
}
