package config

import (
	"fmt"
	"os"

	"mt-gateway/src/models"

	"gopkg.in/yaml.v3"
)

// DefaultClockOffsetSeconds converts the terminal's server time (UTC+2) to UTC
const DefaultClockOffsetSeconds = -7200

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a Config from raw YAML. ${VAR} references are expanded from the
// environment so credentials can stay out of the file.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal([]byte(expanded), &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.ApplyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills optional values left empty in the file
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}

	if c.Network.RequestTimeout == 0 {
		c.Network.RequestTimeout = 5
	}
	if c.Network.RequestsPerSecond == 0 {
		c.Network.RequestsPerSecond = 50
	}
	if c.Network.UserAgent == "" {
		c.Network.UserAgent = "mt-gateway/1.0"
	}

	// Upstream defaults
	if c.Upstream.Kind == "" {
		c.Upstream.Kind = "bridge"
	}
	if c.Upstream.TimeoutMs == 0 {
		c.Upstream.TimeoutMs = 5000
	}
	if c.Upstream.ConnectAttempts == 0 {
		c.Upstream.ConnectAttempts = 3
	}
	if c.Upstream.ConnectBackoffMs == 0 {
		c.Upstream.ConnectBackoffMs = 1000
	}
	if c.Upstream.ClockOffsetSeconds == nil {
		offset := int64(DefaultClockOffsetSeconds)
		c.Upstream.ClockOffsetSeconds = &offset
	}

	// Streaming defaults
	if c.Streaming.PollPeriodSeconds == 0 {
		c.Streaming.PollPeriodSeconds = 60
	}
	if c.Streaming.BarsPerPoll == 0 {
		c.Streaming.BarsPerPoll = 1
	}

	// Order routing defaults
	if c.Orders.MaxPriceDrift == 0 {
		c.Orders.MaxPriceDrift = 0.0002
	}
	if c.Orders.MinDistancePoints == 0 {
		c.Orders.MinDistancePoints = 2
	}
	if c.Orders.MinStopDistancePoints == 0 {
		c.Orders.MinStopDistancePoints = 10
	}
	if c.Orders.Deviation == 0 {
		c.Orders.Deviation = 30
	}
	if c.Orders.PendingExpirationHours == 0 {
		c.Orders.PendingExpirationHours = 7 * 24
	}
	if c.Orders.RetcodeDone == 0 {
		c.Orders.RetcodeDone = 10009
	}

	// Notifier defaults
	if c.Notifier.APIBase == "" {
		c.Notifier.APIBase = "https://api.telegram.org"
	}
	if c.Notifier.QueueSize == 0 {
		c.Notifier.QueueSize = 1000
	}
	if c.Notifier.FailureThreshold == 0 {
		c.Notifier.FailureThreshold = 5
	}
	if c.Notifier.CooldownSeconds == 0 {
		c.Notifier.CooldownSeconds = 300
	}
	if c.Notifier.TimeoutSeconds == 0 {
		c.Notifier.TimeoutSeconds = 5
	}
	if c.Notifier.MessagesPerSec == 0 {
		c.Notifier.MessagesPerSec = 1
	}

	if c.Reconciler.IntervalSeconds == 0 {
		c.Reconciler.IntervalSeconds = 30
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535) {
		return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.GrpcPort)
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}

	// Validate Network configuration
	if c.Network.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Validate Upstream configuration
	switch c.Upstream.Kind {
	case "bridge":
		if c.Upstream.BaseURL == "" {
			return fmt.Errorf("upstream base url cannot be empty for bridge")
		}
	case "sim":
	default:
		return fmt.Errorf("unsupported upstream kind: %s", c.Upstream.Kind)
	}
	if c.Upstream.ConnectAttempts < 1 {
		return fmt.Errorf("upstream connect attempts must be at least 1")
	}

	// Validate Streaming configuration
	if c.Streaming.PollPeriodSeconds <= 0 || 60%c.Streaming.PollPeriodSeconds != 0 {
		return fmt.Errorf("poll period must divide 60 seconds, got %d", c.Streaming.PollPeriodSeconds)
	}
	if c.Streaming.BarsPerPoll <= 0 {
		return fmt.Errorf("bars per poll must be greater than 0")
	}

	// Validate Orders configuration
	if c.Orders.MaxPriceDrift < 0 || c.Orders.MinDistancePoints < 0 || c.Orders.MinStopDistancePoints < 0 {
		return fmt.Errorf("order distances cannot be negative")
	}

	// Validate Notifier configuration
	if c.Notifier.Enabled && (c.Notifier.BotToken == "" || c.Notifier.ChatID == "") {
		return fmt.Errorf("notifier requires bot token and chat id when enabled")
	}
	if c.Notifier.QueueSize <= 0 {
		return fmt.Errorf("notifier queue size must be greater than 0")
	}

	if c.Reconciler.IntervalSeconds <= 0 {
		return fmt.Errorf("reconciler interval must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
