// Package config loads the coordination service configuration from YAML
// files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultHTTPBind         = "127.0.0.1:4490"
	DefaultDatabasePath     = "northstar.db"
	DefaultLogDir           = "logs"
	DefaultSLAHours         = 24.0
	DefaultMaxConcurrent    = 3
	DefaultMonitorInterval  = time.Minute
	DefaultSLASweepInterval = 5 * time.Minute
	DefaultSignalTimeout    = 30 * time.Second
)

// Config represents the complete service configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	Bus       BusConfig       `yaml:"bus"`
	Notify    NotifyConfig    `yaml:"notify"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Gates     GatesConfig     `yaml:"gates"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Signals   SignalsConfig   `yaml:"signals"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig configures SQLite persistence
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Bind string `yaml:"bind"`
}

// BusConfig configures the coordination event bus
type BusConfig struct {
	// Enabled switches NATS on; otherwise an in-memory bus is used
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// NotifyConfig controls notification channels for gates and kills
type NotifyConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
}

// TelegramConfig configures Telegram notifications
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"` // From @BotFather
	ChatID   string `yaml:"chat_id"`   // User or group chat ID
}

// SlackConfig configures Slack notifications
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"` // Incoming webhook URL
	Channel    string `yaml:"channel"`     // Optional channel override
}

// MonitorConfig configures the statistical monitor
type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// GatesConfig configures the gate engine
type GatesConfig struct {
	DefaultSLAHours float64       `yaml:"default_sla_hours"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
}

// PortfolioConfig configures the scheduler
type PortfolioConfig struct {
	DefaultMaxConcurrent int `yaml:"default_max_concurrent"`
}

// SignalsConfig configures the analytics signal source
type SignalsConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig configures structured event logging
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: DefaultDatabasePath},
		HTTP:     HTTPConfig{Bind: DefaultHTTPBind},
		Bus:      BusConfig{URL: "nats://localhost:4222"},
		Monitor:  MonitorConfig{PollInterval: DefaultMonitorInterval},
		Gates: GatesConfig{
			DefaultSLAHours: DefaultSLAHours,
			SweepInterval:   DefaultSLASweepInterval,
		},
		Portfolio: PortfolioConfig{DefaultMaxConcurrent: DefaultMaxConcurrent},
		Signals:   SignalsConfig{Timeout: DefaultSignalTimeout},
		Logging:   LoggingConfig{Dir: DefaultLogDir, Level: "info"},
	}
}

// Load reads configuration in layers: defaults, user config
// (~/.northstar/config.yaml), project config (./.northstar/config.yaml),
// then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".northstar", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	projectConfigPath := filepath.Join(".", ".northstar", "config.yaml")
	if err := loadAndMerge(cfg, projectConfigPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadAndMerge reads a YAML file over the current config.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NORTHSTAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NORTHSTAR_HTTP_BIND"); v != "" {
		cfg.HTTP.Bind = v
	}
	if v := os.Getenv("NORTHSTAR_NATS_URL"); v != "" {
		cfg.Bus.Enabled = true
		cfg.Bus.URL = v
	}
	if v := os.Getenv("NORTHSTAR_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.Enabled = true
		cfg.Notify.Telegram.Enabled = true
		cfg.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("NORTHSTAR_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notify.Telegram.ChatID = v
	}
	if v := os.Getenv("NORTHSTAR_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notify.Enabled = true
		cfg.Notify.Slack.Enabled = true
		cfg.Notify.Slack.WebhookURL = v
	}
	if v := os.Getenv("NORTHSTAR_SLACK_CHANNEL"); v != "" {
		cfg.Notify.Slack.Channel = v
	}
	if v := os.Getenv("NORTHSTAR_SIGNAL_BASE_URL"); v != "" {
		cfg.Signals.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("NORTHSTAR_MONITOR_POLL_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Monitor.PollInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("NORTHSTAR_SLA_SWEEP_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Gates.SweepInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("NORTHSTAR_DEFAULT_SLA_HOURS")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Gates.DefaultSLAHours = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("NORTHSTAR_MAX_CONCURRENT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Portfolio.DefaultMaxConcurrent = n
		}
	}
	if v := os.Getenv("NORTHSTAR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NORTHSTAR_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if strings.TrimSpace(c.HTTP.Bind) == "" {
		return fmt.Errorf("http.bind cannot be empty")
	}
	if c.Gates.DefaultSLAHours <= 0 {
		return fmt.Errorf("gates.default_sla_hours must be positive, got %v", c.Gates.DefaultSLAHours)
	}
	if c.Gates.SweepInterval <= 0 {
		return fmt.Errorf("gates.sweep_interval must be positive, got %v", c.Gates.SweepInterval)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive, got %v", c.Monitor.PollInterval)
	}
	if c.Portfolio.DefaultMaxConcurrent <= 0 {
		return fmt.Errorf("portfolio.default_max_concurrent must be positive, got %v", c.Portfolio.DefaultMaxConcurrent)
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id")
		}
	}
	if c.Notify.Slack.Enabled && c.Notify.Slack.WebhookURL == "" {
		return fmt.Errorf("notify.slack requires webhook_url")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
