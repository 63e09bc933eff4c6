package datastore

import (
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/fieldscan/fieldscan/internal/logger"
)

// GetLogger returns the datastore module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

// newGormLogger routes gorm's SQL logging through the datastore module logger.
func newGormLogger(slowThreshold time.Duration) gormlogger.Interface {
	return logger.NewGormLoggerAdapter(GetLogger(), slowThreshold)
}
