package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for VenueCast Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Inventory  InventoryConfig  `yaml:"inventory"`
	Database   DatabaseConfig   `yaml:"database"`
	ADB        ADBConfig        `yaml:"adb"`
	WebOS      WebOSConfig      `yaml:"webos"`
	WOL        WOLConfig        `yaml:"wol"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	History    HistoryConfig    `yaml:"history"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AppConfig contains instance-specific information.
type AppConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// InventoryConfig locates the display inventory file.
type InventoryConfig struct {
	// Path is the YAML inventory file listing the display fleet.
	Path string `yaml:"path"`

	// CreateTemplate writes a commented template to Path when the file
	// is missing, so the operator has something to edit. Startup still
	// fails until the template is filled in.
	CreateTemplate bool `yaml:"create_template"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// ADBConfig contains settings for the ADB protocol bridge.
type ADBConfig struct {
	// Binary is the adb executable. A bare name is resolved on PATH.
	Binary string `yaml:"binary"`

	// Port is the TCP-ADB port displays listen on. Default: 5555.
	Port int `yaml:"port"`

	Timeouts ADBTimeoutConfig `yaml:"timeouts"`

	// Server contains settings for the managed adb host daemon.
	Server ADBServerConfig `yaml:"server"`
}

// ADBTimeoutConfig contains per-call subprocess timeouts in seconds.
type ADBTimeoutConfig struct {
	Connect    int `yaml:"connect"`
	Query      int `yaml:"query"`
	Toggle     int `yaml:"toggle"`
	Disconnect int `yaml:"disconnect"`
}

// ADBServerConfig contains settings for managing the adb host daemon.
type ADBServerConfig struct {
	// Enabled indicates whether VenueCast should run the adb host daemon
	// itself. If false, an externally started daemon (or adb's implicit
	// auto-start) is used.
	Enabled bool `yaml:"enabled"`

	// Port is the daemon's listen port. Default: 5037.
	Port int `yaml:"port"`

	// RestartOnFailure enables automatic restart if the daemon crashes.
	// Default: true
	RestartOnFailure bool `yaml:"restart_on_failure"`

	// RestartDelaySeconds is the time to wait before restarting (in seconds).
	// Default: 5
	RestartDelaySeconds int `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	// Default: 10
	MaxRestartAttempts int `yaml:"max_restart_attempts"`

	// HealthCheckIntervalSeconds is how often the watchdog probes the
	// daemon's TCP port. Default: 30
	HealthCheckIntervalSeconds int `yaml:"health_check_interval_seconds"`
}

// WebOSConfig contains settings for the webOS protocol bridge.
type WebOSConfig struct {
	// Port is the TV's websocket service port. Default: 3000.
	Port int `yaml:"port"`

	Timeouts WebOSTimeoutConfig `yaml:"timeouts"`
}

// WebOSTimeoutConfig contains webOS session timeouts in seconds.
type WebOSTimeoutConfig struct {
	// Handshake covers dial plus the register exchange with a stored token.
	Handshake int `yaml:"handshake"`

	// Pairing is how long to wait for the operator to accept the
	// on-screen prompt during first pairing.
	Pairing int `yaml:"pairing"`

	// Command is the timeout for a single SSAP request/response.
	Command int `yaml:"command"`
}

// WOLConfig contains Wake-on-LAN settings.
type WOLConfig struct {
	BroadcastAddress string `yaml:"broadcast_address"`
	Port             int    `yaml:"port"`
}

// DispatcherConfig contains command dispatch settings.
type DispatcherConfig struct {
	// OperationTimeoutSeconds bounds a single display operation.
	// Must be between 5 and 10; an operation that exceeds it fails.
	OperationTimeoutSeconds int `yaml:"operation_timeout_seconds"`

	// MaxConcurrent caps simultaneous in-flight display operations.
	// Default: 6
	MaxConcurrent int `yaml:"max_concurrent"`

	// StatusDecaySeconds is the quiescent interval after which a
	// terminal status decays back to idle. Default: 60
	StatusDecaySeconds int `yaml:"status_decay_seconds"`
}

// HistoryConfig contains operation history retention settings.
type HistoryConfig struct {
	// RetentionDays is how long operation records are kept. Default: 30
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
// The MQTT integration is optional; when disabled the rest of the
// system runs unchanged.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VENUECAST_SECTION_KEY
// For example: VENUECAST_DATABASE_PATH, VENUECAST_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			ID:   "venuecast-001",
			Name: "VenueCast",
		},
		Inventory: InventoryConfig{
			Path:           "./displays.yaml",
			CreateTemplate: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/venuecast.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		ADB: ADBConfig{
			Binary: "adb",
			Port:   5555,
			Timeouts: ADBTimeoutConfig{
				Connect:    5,
				Query:      5,
				Toggle:     5,
				Disconnect: 3,
			},
			Server: ADBServerConfig{
				Enabled:                    false,
				Port:                       5037,
				RestartOnFailure:           true,
				RestartDelaySeconds:        5,
				MaxRestartAttempts:         10,
				HealthCheckIntervalSeconds: 30,
			},
		},
		WebOS: WebOSConfig{
			Port: 3000,
			Timeouts: WebOSTimeoutConfig{
				Handshake: 5,
				Pairing:   30,
				Command:   5,
			},
		},
		WOL: WOLConfig{
			BroadcastAddress: "255.255.255.255",
			Port:             9,
		},
		Dispatcher: DispatcherConfig{
			OperationTimeoutSeconds: 10,
			MaxConcurrent:           6,
			StatusDecaySeconds:      60,
		},
		History: HistoryConfig{
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "venuecast-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VENUECAST_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Inventory
	if v := os.Getenv("VENUECAST_INVENTORY_PATH"); v != "" {
		cfg.Inventory.Path = v
	}

	// Database
	if v := os.Getenv("VENUECAST_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// ADB
	if v := os.Getenv("VENUECAST_ADB_BINARY"); v != "" {
		cfg.ADB.Binary = v
	}

	// MQTT
	if v := os.Getenv("VENUECAST_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VENUECAST_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VENUECAST_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("VENUECAST_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("VENUECAST_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// App validation
	if c.App.ID == "" {
		errs = append(errs, "app.id is required")
	}

	// Inventory validation
	if c.Inventory.Path == "" {
		errs = append(errs, "inventory.path is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// ADB validation
	if c.ADB.Binary == "" {
		errs = append(errs, "adb.binary is required")
	}
	if c.ADB.Port < 1 || c.ADB.Port > 65535 {
		errs = append(errs, "adb.port must be between 1 and 65535")
	}
	if c.ADB.Server.Enabled && (c.ADB.Server.Port < 1 || c.ADB.Server.Port > 65535) {
		errs = append(errs, "adb.server.port must be between 1 and 65535")
	}

	// webOS validation
	if c.WebOS.Port < 1 || c.WebOS.Port > 65535 {
		errs = append(errs, "webos.port must be between 1 and 65535")
	}

	// Wake-on-LAN validation
	if c.WOL.BroadcastAddress == "" {
		errs = append(errs, "wol.broadcast_address is required")
	}
	if c.WOL.Port < 1 || c.WOL.Port > 65535 {
		errs = append(errs, "wol.port must be between 1 and 65535")
	}

	// Dispatcher validation
	// The operation timeout is pinned to a narrow band: long enough for
	// the slowest legitimate exchange, short enough that an operator is
	// never left watching a spinner.
	if c.Dispatcher.OperationTimeoutSeconds < 5 || c.Dispatcher.OperationTimeoutSeconds > 10 {
		errs = append(errs, "dispatcher.operation_timeout_seconds must be between 5 and 10")
	}
	if c.Dispatcher.MaxConcurrent < 1 {
		errs = append(errs, "dispatcher.max_concurrent must be at least 1")
	}
	if c.Dispatcher.StatusDecaySeconds < 1 {
		errs = append(errs, "dispatcher.status_decay_seconds must be at least 1")
	}

	// History validation
	if c.History.RetentionDays < 1 {
		errs = append(errs, "history.retention_days must be at least 1")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetConnectTimeout returns the adb connect timeout as a Duration.
func (a ADBConfig) GetConnectTimeout() time.Duration {
	return time.Duration(a.Timeouts.Connect) * time.Second
}

// GetQueryTimeout returns the adb power query timeout as a Duration.
func (a ADBConfig) GetQueryTimeout() time.Duration {
	return time.Duration(a.Timeouts.Query) * time.Second
}

// GetToggleTimeout returns the adb power toggle timeout as a Duration.
func (a ADBConfig) GetToggleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Toggle) * time.Second
}

// GetDisconnectTimeout returns the adb disconnect timeout as a Duration.
func (a ADBConfig) GetDisconnectTimeout() time.Duration {
	return time.Duration(a.Timeouts.Disconnect) * time.Second
}

// GetRestartDelay returns the adb server restart delay as a Duration.
func (s ADBServerConfig) GetRestartDelay() time.Duration {
	return time.Duration(s.RestartDelaySeconds) * time.Second
}

// GetHealthCheckInterval returns the adb server watchdog interval as a Duration.
func (s ADBServerConfig) GetHealthCheckInterval() time.Duration {
	return time.Duration(s.HealthCheckIntervalSeconds) * time.Second
}

// GetHandshakeTimeout returns the webOS handshake timeout as a Duration.
func (w WebOSConfig) GetHandshakeTimeout() time.Duration {
	return time.Duration(w.Timeouts.Handshake) * time.Second
}

// GetPairingTimeout returns the webOS pairing timeout as a Duration.
func (w WebOSConfig) GetPairingTimeout() time.Duration {
	return time.Duration(w.Timeouts.Pairing) * time.Second
}

// GetCommandTimeout returns the webOS SSAP command timeout as a Duration.
func (w WebOSConfig) GetCommandTimeout() time.Duration {
	return time.Duration(w.Timeouts.Command) * time.Second
}

// GetOperationTimeout returns the dispatcher operation timeout as a Duration.
func (d DispatcherConfig) GetOperationTimeout() time.Duration {
	return time.Duration(d.OperationTimeoutSeconds) * time.Second
}

// GetStatusDecay returns the status decay interval as a Duration.
func (d DispatcherConfig) GetStatusDecay() time.Duration {
	return time.Duration(d.StatusDecaySeconds) * time.Second
}

// GetRetention returns the history retention window as a Duration.
func (h HistoryConfig) GetRetention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}
