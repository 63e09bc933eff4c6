// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct. Policy names are
// normalized to lower case in place.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateGridSettings,
		validateOutputSettings,
		validateImageSettings,
		validatePipelineSettings,
		validateWebServerSettings,
		validateMQTTSettings,
		validateTelemetrySettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateGridSettings(s *Settings) []string {
	var errs []string
	if s.Grid.Columns < 1 || s.Grid.Columns > DefaultGridColumns {
		errs = append(errs, fmt.Sprintf("grid.columns must be between 1 and %d, got %d", DefaultGridColumns, s.Grid.Columns))
	}

	s.Grid.Policy = strings.ToLower(strings.TrimSpace(s.Grid.Policy))
	switch s.Grid.Policy {
	case "":
		s.Grid.Policy = GridPolicyQuadrant
	case GridPolicyQuadrant, GridPolicyNearestLine:
	default:
		errs = append(errs, fmt.Sprintf("grid.policy must be %q or %q, got %q", GridPolicyQuadrant, GridPolicyNearestLine, s.Grid.Policy))
	}
	return errs
}

func validateOutputSettings(s *Settings) []string {
	var errs []string
	sqlite, mysql := s.Output.SQLite, s.Output.MySQL

	switch {
	case sqlite.Enabled && mysql.Enabled:
		errs = append(errs, "only one of output.sqlite and output.mysql can be enabled")
	case !sqlite.Enabled && !mysql.Enabled:
		errs = append(errs, "one of output.sqlite or output.mysql must be enabled")
	}

	if sqlite.Enabled && sqlite.Path == "" {
		errs = append(errs, "output.sqlite.path is required when sqlite is enabled")
	}
	if mysql.Enabled {
		if mysql.Host == "" || mysql.Database == "" || mysql.Username == "" {
			errs = append(errs, "output.mysql requires host, database and username")
		}
		if err := validatePort(mysql.Port); err != nil {
			errs = append(errs, "output.mysql.port: "+err.Error())
		}
	}
	return errs
}

func validateImageSettings(s *Settings) []string {
	if strings.TrimSpace(s.Images.Path) == "" {
		return []string{"images.path is required"}
	}
	return nil
}

func validatePipelineSettings(s *Settings) []string {
	if s.Pipeline.SlowQuery < 0 {
		return []string{"pipeline.slow_query cannot be negative"}
	}
	return nil
}

func validateWebServerSettings(s *Settings) []string {
	if !s.WebServer.Enabled {
		return nil
	}
	var errs []string
	if err := validatePort(s.WebServer.Port); err != nil {
		errs = append(errs, "webserver.port: "+err.Error())
	}
	if s.WebServer.CacheTTL < 0 {
		errs = append(errs, "webserver.cache_ttl cannot be negative")
	}
	if s.WebServer.MaxUploadSize <= 0 {
		errs = append(errs, "webserver.max_upload_size must be positive")
	}
	return errs
}

func validateMQTTSettings(s *Settings) []string {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	if s.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	} else if err := validateEnvBrokerURL(s.MQTT.Broker); err != nil {
		errs = append(errs, "mqtt.broker: "+err.Error())
	}
	if strings.Trim(s.MQTT.Topic, "/ ") == "" {
		errs = append(errs, "mqtt.topic is required when mqtt is enabled")
	}
	return errs
}

func validateTelemetrySettings(s *Settings) []string {
	if s.Telemetry.SentryDSN == "" {
		return nil
	}
	u, err := url.Parse(s.Telemetry.SentryDSN)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []string{"telemetry.sentry_dsn is not a valid DSN"}
	}
	return nil
}

func validatePort(port string) error {
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	if p < 1 || p > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", p)
	}
	return nil
}
