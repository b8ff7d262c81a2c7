package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	content := `
server:
  addr: ":8080"
  shutdown_timeout: 3s

poll:
  interval: 2s
  w1_dir: "/tmp/w1"

storage:
  csv_log_path: "./data/manual.csv"
  export_dir: "./data/exports"

sensors:
  - id: "28-aaaa"
    channel: "dial_1"
    type: "temperature"
    label: "Bath"
    units: "°C"
  - id: "28-bbbb"
    type: "temperature"
    label: "Ambient"
    units: "°C"

channels:
  - id: "dial_1"
    sensor_id: "dial_1_manual_entry"
    type: "dial_indicator"
    label: "Manual Dial 1"
    units: "mm"

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

logging:
  level: "debug"
  format: "json"
`
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Poll.Interval != 2*time.Second {
		t.Errorf("Unexpected interval: %v", cfg.Poll.Interval)
	}
	if len(cfg.Sensors) != 2 || cfg.Sensors[0].Label != "Bath" || cfg.Sensors[0].Channel != "dial_1" {
		t.Errorf("Unexpected sensors: %+v", cfg.Sensors)
	}
	if len(cfg.Channels) != 1 || cfg.Channels[0].SensorID != "dial_1_manual_entry" {
		t.Errorf("Unexpected channels: %+v", cfg.Channels)
	}
	if cfg.Telegram.MaxRetries != 3 {
		t.Errorf("Expected default max_retries 3, got %d", cfg.Telegram.MaxRetries)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	store, err := cfg.MetadataStore()
	if err != nil {
		t.Fatalf("MetadataStore failed: %v", err)
	}
	if got := store.Lookup("28-bbbb").Label; got != "Ambient" {
		t.Errorf("Expected Ambient label, got %q", got)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults must validate: %v", err)
	}
	if cfg.Poll.Interval != time.Second {
		t.Errorf("Expected 1s default interval, got %v", cfg.Poll.Interval)
	}
	if len(cfg.Channels) != 2 || cfg.Channels[1].ID != "dial_2" {
		t.Errorf("Unexpected default channels: %+v", cfg.Channels)
	}
	if len(cfg.Sensors) != 4 {
		t.Errorf("Expected 4 default sensors, got %d", len(cfg.Sensors))
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HDTS_STORAGE_CSV_LOG_PATH", "/var/lib/hdts/manual.csv")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.CSVLogPath != "/var/lib/hdts/manual.csv" {
		t.Errorf("Expected env override, got %s", cfg.Storage.CSVLogPath)
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":5000", ShutdownTimeout: 5 * time.Second},
		Poll:     PollConfig{Interval: time.Second},
		Storage:  StorageConfig{CSVLogPath: "exports/data_log.csv", ExportDir: "exports"},
		Channels: []ChannelConfig{{ID: "dial_1", SensorID: "dial_1_manual_entry"}},
		Sensors:  []SensorConfig{{ID: "28-a", Channel: "dial_1"}},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing telegram token when enabled", func(c *Config) { c.Telegram = TelegramConfig{Enabled: true, ChatID: "1"} }},
		{"interval too short", func(c *Config) { c.Poll.Interval = time.Millisecond }},
		{"no channels", func(c *Config) { c.Channels = nil }},
		{"duplicate channel", func(c *Config) { c.Channels = append(c.Channels, c.Channels[0]) }},
		{"sensor on unknown channel", func(c *Config) { c.Sensors[0].Channel = "dial_7" }},
		{"empty csv path", func(c *Config) { c.Storage.CSVLogPath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Base config must validate: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
