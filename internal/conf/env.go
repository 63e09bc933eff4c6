// env.go - environment variable bindings and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings lists the overrides that get early validation. Every other key
// is still reachable through AutomaticEnv as FIELDSCAN_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "FIELDSCAN_DEBUG", validateEnvBool},

		{"grid.columns", "FIELDSCAN_GRID_COLUMNS", validateEnvGridColumns},
		{"grid.policy", "FIELDSCAN_GRID_POLICY", validateEnvGridPolicy},

		{"output.sqlite.enabled", "FIELDSCAN_SQLITE_ENABLED", validateEnvBool},
		{"output.sqlite.path", "FIELDSCAN_SQLITE_PATH", nil},
		{"output.mysql.enabled", "FIELDSCAN_MYSQL_ENABLED", validateEnvBool},
		{"output.mysql.host", "FIELDSCAN_MYSQL_HOST", nil},
		{"output.mysql.port", "FIELDSCAN_MYSQL_PORT", validateEnvPort},
		{"output.mysql.username", "FIELDSCAN_MYSQL_USERNAME", nil},
		{"output.mysql.password", "FIELDSCAN_MYSQL_PASSWORD", nil},
		{"output.mysql.database", "FIELDSCAN_MYSQL_DATABASE", nil},

		{"images.path", "FIELDSCAN_IMAGES_PATH", nil},

		{"pipeline.transactional", "FIELDSCAN_PIPELINE_TRANSACTIONAL", validateEnvBool},
		{"pipeline.seed", "FIELDSCAN_PIPELINE_SEED", validateEnvUint},

		{"webserver.port", "FIELDSCAN_WEBSERVER_PORT", validateEnvPort},

		{"mqtt.enabled", "FIELDSCAN_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "FIELDSCAN_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.username", "FIELDSCAN_MQTT_USERNAME", nil},
		{"mqtt.password", "FIELDSCAN_MQTT_PASSWORD", nil},

		{"telemetry.sentry_dsn", "FIELDSCAN_SENTRY_DSN", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvUint(value string) error {
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return fmt.Errorf("must be a non-negative integer: %w", err)
	}
	return nil
}

func validateEnvGridColumns(value string) error {
	columns, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid column count: %w", err)
	}
	if columns < 1 || columns > DefaultGridColumns {
		return fmt.Errorf("column count must be between 1 and %d, got %d", DefaultGridColumns, columns)
	}
	return nil
}

func validateEnvGridPolicy(value string) error {
	switch strings.ToLower(value) {
	case GridPolicyQuadrant, GridPolicyNearestLine:
		return nil
	default:
		return fmt.Errorf("policy must be %q or %q", GridPolicyQuadrant, GridPolicyNearestLine)
	}
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("broker URL is missing a host")
	}
	return nil
}
