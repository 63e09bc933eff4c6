// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/fieldscan/fieldscan/internal/logger"
)

// Defaults shared with other packages.
const (
	DefaultGridColumns    = 26
	GridPolicyQuadrant    = "quadrant"
	GridPolicyNearestLine = "nearestline"
	DefaultWebServerPort  = "9001"
	DefaultCacheTTL       = 5 * time.Minute
	DefaultMaxUploadSize  = 32 << 20
)

// setDefaultConfig sets default values for every configuration key so that
// environment overrides resolve even when the key is absent from the file.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "fieldscan")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("grid.columns", DefaultGridColumns)
	v.SetDefault("grid.policy", GridPolicyQuadrant)

	v.SetDefault("output.sqlite.enabled", true)
	v.SetDefault("output.sqlite.path", "fieldscan.db")
	v.SetDefault("output.mysql.enabled", false)
	v.SetDefault("output.mysql.username", "fieldscan")
	v.SetDefault("output.mysql.password", "")
	v.SetDefault("output.mysql.password_file", "")
	v.SetDefault("output.mysql.host", "localhost")
	v.SetDefault("output.mysql.port", "3306")
	v.SetDefault("output.mysql.database", "fieldscan")

	v.SetDefault("images.path", "photos")

	v.SetDefault("pipeline.transactional", false)
	v.SetDefault("pipeline.lock_file", "")
	v.SetDefault("pipeline.seed", 0)
	v.SetDefault("pipeline.slow_query", 200*time.Millisecond)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.port", DefaultWebServerPort)
	v.SetDefault("webserver.cache_ttl", DefaultCacheTTL)
	v.SetDefault("webserver.max_upload_size", DefaultMaxUploadSize)
	v.SetDefault("webserver.shutdown_timeout", 10*time.Second)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "fieldscan")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.password_file", "")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.listen", "")
	v.SetDefault("telemetry.sentry_dsn", "")
}
