// Package config handles configuration loading, validation, and persistence
// for agql's ambient services. The core engine (internal/core,
// internal/client) takes its knobs as plain Go structs passed by the
// caller; this package is how cmd/agql and internal/api source those
// structs from a JSON file on disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 8080
)

// Config is the root configuration structure for agql's ambient stack.
type Config struct {
	mu   sync.RWMutex
	path string

	Core  CoreConfig  `json:"core"`
	App   AppConfig   `json:"application"`
}

// CoreConfig holds the knobs enumerated in spec §6. cmd/agql passes the
// request timeout, master pacing delay, priority aging, and bulk concurrency
// to the Client facade. max_datagram_bytes and rcon_reassembly_timeout_ms
// are validated but not passed on: the UDP transport and the RCON client use
// their own fixed limits (1400 bytes, 10 seconds).
type CoreConfig struct {
	RequestTimeoutMS       int `json:"request_timeout_ms"`
	MasterPacingDelayMS    int `json:"master_pacing_delay_ms"`
	MaxDatagramBytes       int `json:"max_datagram_bytes"`
	RCONReassemblyTimeoutMS int `json:"rcon_reassembly_timeout_ms"`
	PriorityAgingMS        int `json:"priority_aging_ms"`
	MaxBulkConcurrency     int `json:"max_bulk_concurrency"`
}

// AppConfig holds ambient-service configuration: the REST facade, MQTT
// telemetry, the audit store, and logging.
type AppConfig struct {
	API      APIConfig      `json:"api"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Store    StoreConfig    `json:"store"`
	Alert    AlertConfig    `json:"alert"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// APIConfig holds REST facade settings.
type APIConfig struct {
	ListenAddr     string   `json:"listen_addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	ClientID  string `json:"client_id"`
}

// StoreConfig holds the RCON audit log's sqlite database settings.
type StoreConfig struct {
	Path string `json:"path"`
}

// AlertConfig holds outbound webhook alerting settings.
type AlertConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// SecurityConfig holds REST facade TLS and rate-limit settings.
type SecurityConfig struct {
	TLSEnabled   bool   `json:"tls_enabled"`
	TLSCertFile  string `json:"tls_cert_file"`
	TLSKeyFile   string `json:"tls_key_file"`
	RateLimitRPS int    `json:"rate_limit_rps"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with the spec-mandated core
// defaults (§6) and sensible ambient-service defaults.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			RequestTimeoutMS:        3000,
			MasterPacingDelayMS:     13,
			MaxDatagramBytes:        1400,
			RCONReassemblyTimeoutMS: 10000,
			PriorityAgingMS:         1000,
			MaxBulkConcurrency:      8,
		},
		App: AppConfig{
			API: APIConfig{
				ListenAddr:     fmt.Sprintf(":%d", DefaultAPIPort),
				AllowedOrigins: []string{"*"},
			},
			MQTT: MQTTConfig{
				Enabled:   false,
				BrokerURL: "localhost",
				Port:      1883,
				ClientID:  "agql",
			},
			Store: StoreConfig{
				Path: "agql-audit.db",
			},
			Alert: AlertConfig{
				Enabled: false,
			},
			Security: SecurityConfig{
				RateLimitRPS: 50,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
			},
		},
	}
}

// Load reads configuration from a JSON file, creating one with defaults
// if it does not yet exist.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay.
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetCore returns a copy of the core engine configuration.
func (c *Config) GetCore() CoreConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Core
}

// SetCore updates the core engine configuration.
func (c *Config) SetCore(core CoreConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Core = core
}

// GetApp returns a copy of the ambient-service configuration.
func (c *Config) GetApp() AppConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.App
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration has never been persisted.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := os.Stat(c.path)
	return os.IsNotExist(err)
}
