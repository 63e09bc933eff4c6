package conf

import "github.com/fieldscan/fieldscan/internal/logger"

// GetLogger returns the config package logger. It is fetched on each call so
// it follows the central logger installed after package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
