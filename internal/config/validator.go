package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}
	validateCore(&cfg.Core, result)
	validateApp(&cfg.App, result)
	return result
}

func validateCore(core *CoreConfig, result *ValidationResult) {
	if core.RequestTimeoutMS < 1 {
		result.AddError("core.request_timeout_ms", "must be positive")
	}
	if core.MasterPacingDelayMS < 0 {
		result.AddError("core.master_pacing_delay_ms", "must not be negative")
	}
	if core.MasterPacingDelayMS < 13 {
		result.AddWarning("core.master_pacing_delay_ms",
			"below the empirically adequate 13ms, the master server may drop follow-up queries")
	}
	if core.MaxDatagramBytes < 1 || core.MaxDatagramBytes > 1400 {
		result.AddError("core.max_datagram_bytes", "must be between 1 and 1400 (the UDP MTU cap)")
	}
	if core.RCONReassemblyTimeoutMS < 1 {
		result.AddError("core.rcon_reassembly_timeout_ms", "must be positive")
	}
	if core.PriorityAgingMS < 1 {
		result.AddError("core.priority_aging_ms", "must be positive")
	}
	if core.MaxBulkConcurrency < 1 {
		result.AddError("core.max_bulk_concurrency", "must be at least 1")
	}
}

func validateApp(app *AppConfig, result *ValidationResult) {
	if strings.TrimSpace(app.API.ListenAddr) == "" {
		result.AddError("application.api.listen_addr", "REST API listen address is required")
	}

	if app.MQTT.Enabled {
		if strings.TrimSpace(app.MQTT.BrokerURL) == "" {
			result.AddError("application.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if app.MQTT.Port < 1 || app.MQTT.Port > 65535 {
			result.AddError("application.mqtt.port", "invalid MQTT port")
		}
	}

	if strings.TrimSpace(app.Store.Path) == "" {
		result.AddError("application.store.path", "audit store path is required")
	}

	if app.Alert.Enabled && strings.TrimSpace(app.Alert.WebhookURL) == "" {
		result.AddError("application.alert.webhook_url", "webhook URL is required when alerting is enabled")
	}

	if app.Security.TLSEnabled {
		if strings.TrimSpace(app.Security.TLSCertFile) == "" {
			result.AddError("application.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(app.Security.TLSKeyFile) == "" {
			result.AddError("application.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if app.Security.RateLimitRPS < 1 {
		result.AddWarning("application.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}
