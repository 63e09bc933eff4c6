// config.go: settings struct for fieldscan and the functions that load and save it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// EnvPrefix is prepended to every environment override, e.g. FIELDSCAN_GRID_COLUMNS.
const EnvPrefix = "FIELDSCAN"

// MainSettings contains general application settings.
type MainSettings struct {
	Name string `yaml:"name" mapstructure:"name"` // node name, used as MQTT client id suffix and in logs
}

// GridSettings controls how photo positions map to grid cells.
type GridSettings struct {
	Columns int    `yaml:"columns" mapstructure:"columns"` // number of lettered columns, 1..26
	Policy  string `yaml:"policy" mapstructure:"policy"`   // "quadrant" or "nearestline"
}

// SQLiteSettings contains settings for the SQLite database output.
type SQLiteSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"` // database file
}

// MySQLSettings contains settings for the MySQL database output.
type MySQLSettings struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Username     string `yaml:"username" mapstructure:"username"`
	Password     string `yaml:"password" mapstructure:"password"`           // may reference ${ENV_VAR}
	PasswordFile string `yaml:"password_file" mapstructure:"password_file"` // secret file, wins over password
	Host         string `yaml:"host" mapstructure:"host"`
	Port         string `yaml:"port" mapstructure:"port"`
	Database     string `yaml:"database" mapstructure:"database"`
}

// OutputSettings selects the relational store. Exactly one backend must be enabled.
type OutputSettings struct {
	SQLite SQLiteSettings `yaml:"sqlite" mapstructure:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql" mapstructure:"mysql"`
}

// ImageSettings configures where uploaded photos are kept.
type ImageSettings struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineSettings configures the batch analysis run.
type PipelineSettings struct {
	Transactional bool          `yaml:"transactional" mapstructure:"transactional"` // persist observations and mark analyzed in one transaction
	LockFile      string        `yaml:"lock_file" mapstructure:"lock_file"`         // optional cross-process lock, empty disables
	Seed          uint64        `yaml:"seed" mapstructure:"seed"`                   // placeholder analyzer seed, 0 = time based
	SlowQuery     time.Duration `yaml:"slow_query" mapstructure:"slow_query"`       // gorm slow query warning threshold
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Port            string        `yaml:"port" mapstructure:"port"`
	CacheTTL        time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`               // stat_by_area cache lifetime
	MaxUploadSize   int64         `yaml:"max_upload_size" mapstructure:"max_upload_size"`   // bytes
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"` // graceful shutdown budget
}

// MQTTSettings configures run notifications.
type MQTTSettings struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker       string `yaml:"broker" mapstructure:"broker"` // e.g. tcp://localhost:1883
	Topic        string `yaml:"topic" mapstructure:"topic"`   // base topic, summaries go to <topic>/runs
	Username     string `yaml:"username" mapstructure:"username"`
	Password     string `yaml:"password" mapstructure:"password"`           // may reference ${ENV_VAR}
	PasswordFile string `yaml:"password_file" mapstructure:"password_file"` // secret file, wins over password
	Retain       bool   `yaml:"retain" mapstructure:"retain"`
}

// TelemetrySettings configures metrics and error reporting.
type TelemetrySettings struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`       // expose /metrics
	Listen    string `yaml:"listen" mapstructure:"listen"`         // optional standalone metrics listener, e.g. 0.0.0.0:9090
	SentryDSN string `yaml:"sentry_dsn" mapstructure:"sentry_dsn"` // empty disables error reporting
}

// Settings contains all configuration options for fieldscan.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Main      MainSettings         `yaml:"main" mapstructure:"main"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Grid      GridSettings         `yaml:"grid" mapstructure:"grid"`
	Output    OutputSettings       `yaml:"output" mapstructure:"output"`
	Images    ImageSettings        `yaml:"images" mapstructure:"images"`
	Pipeline  PipelineSettings     `yaml:"pipeline" mapstructure:"pipeline"`
	WebServer WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	MQTT      MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	Telemetry TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads .env, the configuration file and FIELDSCAN_ environment variables,
// validates the result and stores it as the current settings. An empty
// configPath searches the default locations and writes the embedded default
// config there when none exists.
func Load(configPath string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	loadDotEnv()

	v := viper.New()
	if err := initViper(v, configPath); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "init_viper").
			Build()
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error resolving secrets: %w", err)).
			Category(errors.CategoryConfiguration).
			Context("operation", "resolve_secrets").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error validating settings: %w", err)).
			Category(errors.CategoryValidation).
			Context("operation", "validate_settings").
			Build()
	}

	if used := v.ConfigFileUsed(); used != "" {
		GetLogger().Debug("configuration loaded", logger.String("path", used))
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// resolveSecrets replaces passwords with the content of their secret files
// or expands ${VAR} references in them. Only enabled outputs are resolved.
func resolveSecrets(settings *Settings) error {
	if settings.Output.MySQL.Enabled {
		password, err := secrets.Resolve(settings.Output.MySQL.PasswordFile, settings.Output.MySQL.Password)
		if err != nil {
			return fmt.Errorf("output.mysql.password: %w", err)
		}
		settings.Output.MySQL.Password = password
	}
	if settings.MQTT.Enabled {
		password, err := secrets.Resolve(settings.MQTT.PasswordFile, settings.MQTT.Password)
		if err != nil {
			return fmt.Errorf("mqtt.password: %w", err)
		}
		settings.MQTT.Password = password
	}
	return nil
}

// loadDotEnv loads ./.env when present. Existing environment variables win.
func loadDotEnv() {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		GetLogger().Warn("failed to parse .env file", logger.Error(err))
	}
}

// initViper applies defaults, env bindings and reads the configuration file.
func initViper(v *viper.Viper, configPath string) error {
	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it back
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil { //nolint:gosec // config is not secret by default
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// getDefaultConfig returns the embedded default configuration file.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config file: %w", err)
	}
	return data, nil
}

// GetSettings returns the current settings instance, nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// cross-device rename
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}

// MySQLDSN builds the go-sql-driver DSN for the configured MySQL output.
func (s *Settings) MySQLDSN() string {
	m := s.Output.MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}
