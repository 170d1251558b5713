package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("database path = %q, want %q", cfg.Database.Path, DefaultDatabasePath)
	}
	if cfg.HTTP.Bind != DefaultHTTPBind {
		t.Errorf("http bind = %q, want %q", cfg.HTTP.Bind, DefaultHTTPBind)
	}
	if cfg.Gates.DefaultSLAHours != DefaultSLAHours {
		t.Errorf("default SLA hours = %v, want %v", cfg.Gates.DefaultSLAHours, DefaultSLAHours)
	}
	if cfg.Portfolio.DefaultMaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("max concurrent = %d, want %d", cfg.Portfolio.DefaultMaxConcurrent, DefaultMaxConcurrent)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
database:
  path: /var/lib/northstar/data.db
http:
  bind: 0.0.0.0:9090
gates:
  default_sla_hours: 48
  sweep_interval: 1m
monitor:
  poll_interval: 30s
portfolio:
  default_max_concurrent: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Database.Path != "/var/lib/northstar/data.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.HTTP.Bind != "0.0.0.0:9090" {
		t.Errorf("http bind = %q", cfg.HTTP.Bind)
	}
	if cfg.Gates.DefaultSLAHours != 48 {
		t.Errorf("SLA hours = %v, want 48", cfg.Gates.DefaultSLAHours)
	}
	if cfg.Gates.SweepInterval != time.Minute {
		t.Errorf("sweep interval = %v, want 1m", cfg.Gates.SweepInterval)
	}
	if cfg.Monitor.PollInterval != 30*time.Second {
		t.Errorf("poll interval = %v, want 30s", cfg.Monitor.PollInterval)
	}
	if cfg.Portfolio.DefaultMaxConcurrent != 5 {
		t.Errorf("max concurrent = %d, want 5", cfg.Portfolio.DefaultMaxConcurrent)
	}
	// Unset fields keep defaults.
	if cfg.Logging.Dir != DefaultLogDir {
		t.Errorf("log dir = %q, want default %q", cfg.Logging.Dir, DefaultLogDir)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NORTHSTAR_DB_PATH", "/tmp/override.db")
	t.Setenv("NORTHSTAR_HTTP_BIND", "localhost:8000")
	t.Setenv("NORTHSTAR_NATS_URL", "nats://queue:4222")
	t.Setenv("NORTHSTAR_TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("NORTHSTAR_TELEGRAM_CHAT_ID", "123")
	t.Setenv("NORTHSTAR_MONITOR_POLL_INTERVAL", "15s")
	t.Setenv("NORTHSTAR_DEFAULT_SLA_HOURS", "12")
	t.Setenv("NORTHSTAR_MAX_CONCURRENT", "7")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.HTTP.Bind != "localhost:8000" {
		t.Errorf("http bind = %q", cfg.HTTP.Bind)
	}
	if !cfg.Bus.Enabled || cfg.Bus.URL != "nats://queue:4222" {
		t.Errorf("bus = %+v, want enabled with override URL", cfg.Bus)
	}
	if !cfg.Notify.Telegram.Enabled || cfg.Notify.Telegram.BotToken != "tok" || cfg.Notify.Telegram.ChatID != "123" {
		t.Errorf("telegram = %+v", cfg.Notify.Telegram)
	}
	if cfg.Monitor.PollInterval != 15*time.Second {
		t.Errorf("poll interval = %v, want 15s", cfg.Monitor.PollInterval)
	}
	if cfg.Gates.DefaultSLAHours != 12 {
		t.Errorf("SLA hours = %v, want 12", cfg.Gates.DefaultSLAHours)
	}
	if cfg.Portfolio.DefaultMaxConcurrent != 7 {
		t.Errorf("max concurrent = %d, want 7", cfg.Portfolio.DefaultMaxConcurrent)
	}
}

func TestEnvOverridesIgnoreInvalid(t *testing.T) {
	t.Setenv("NORTHSTAR_MONITOR_POLL_INTERVAL", "not-a-duration")
	t.Setenv("NORTHSTAR_MAX_CONCURRENT", "-2")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Monitor.PollInterval != DefaultMonitorInterval {
		t.Errorf("poll interval = %v, want default", cfg.Monitor.PollInterval)
	}
	if cfg.Portfolio.DefaultMaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("max concurrent = %d, want default", cfg.Portfolio.DefaultMaxConcurrent)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"empty db path", func(c *Config) { c.Database.Path = " " }, true},
		{"empty bind", func(c *Config) { c.HTTP.Bind = "" }, true},
		{"zero SLA", func(c *Config) { c.Gates.DefaultSLAHours = 0 }, true},
		{"negative sweep", func(c *Config) { c.Gates.SweepInterval = -time.Second }, true},
		{"zero max concurrent", func(c *Config) { c.Portfolio.DefaultMaxConcurrent = 0 }, true},
		{"telegram missing token", func(c *Config) { c.Notify.Telegram.Enabled = true }, true},
		{"slack missing webhook", func(c *Config) { c.Notify.Slack.Enabled = true }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"valid telegram", func(c *Config) {
			c.Notify.Telegram.Enabled = true
			c.Notify.Telegram.BotToken = "t"
			c.Notify.Telegram.ChatID = "c"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTP.Bind = "127.0.0.1:5555"

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.HTTP.Bind != "127.0.0.1:5555" {
		t.Errorf("bind = %q after round trip", loaded.HTTP.Bind)
	}
}
