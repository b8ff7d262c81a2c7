package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/hdts/internal/metadata"
	"github.com/rewired-gh/hdts/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Poll     PollConfig      `mapstructure:"poll"`
	Storage  StorageConfig   `mapstructure:"storage"`
	Sensors  []SensorConfig  `mapstructure:"sensors"`
	Channels []ChannelConfig `mapstructure:"channels"`
	Telegram TelegramConfig  `mapstructure:"telegram"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PollConfig holds sensor polling configuration
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	W1Dir    string        `mapstructure:"w1_dir"`
}

// StorageConfig holds CSV output locations
type StorageConfig struct {
	CSVLogPath string `mapstructure:"csv_log_path"`
	ExportDir  string `mapstructure:"export_dir"`
}

// SensorConfig is one row of the sensor metadata table. Channel binds the
// sensor to a manual channel's sample slot.
type SensorConfig struct {
	ID         string `mapstructure:"id"`
	Channel    string `mapstructure:"channel"`
	Type       string `mapstructure:"type"`
	Label      string `mapstructure:"label"`
	Units      string `mapstructure:"units"`
	SampleName string `mapstructure:"sample_name"`
}

// ChannelConfig describes a manual input channel
type ChannelConfig struct {
	ID       string `mapstructure:"id"`
	SensorID string `mapstructure:"sensor_id"`
	Type     string `mapstructure:"type"`
	Label    string `mapstructure:"label"`
	Units    string `mapstructure:"units"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A missing
// file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// HDTS_STORAGE_CSV_LOG_PATH overrides storage.csv_log_path, etc.
	v.SetEnvPrefix("HDTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("poll.interval", "1s")
	v.SetDefault("poll.w1_dir", "/sys/bus/w1/devices")

	v.SetDefault("storage.csv_log_path", "exports/data_log.csv")
	v.SetDefault("storage.export_dir", "exports")

	v.SetDefault("sensors", []map[string]any{
		{"id": "28-000008ae0bbd", "channel": "dial_1", "type": "temperature", "label": "Temp #1", "units": "°C"},
		{"id": "28-000008ae5436", "channel": "dial_2", "type": "temperature", "label": "Temp #2", "units": "°C"},
		{"id": "usb-dial-001", "channel": "dial_1", "type": "dial", "label": "Dial #1", "units": "mm"},
		{"id": "usb-dial-002", "channel": "dial_2", "type": "dial", "label": "Dial #2", "units": "mm"},
	})
	v.SetDefault("channels", []map[string]any{
		{"id": "dial_1", "sensor_id": "dial_1_manual_entry", "type": "dial_indicator", "label": "Manual Dial 1", "units": "mm"},
		{"id": "dial_2", "sensor_id": "dial_2_manual_entry", "type": "dial_indicator", "label": "Manual Dial 2", "units": "mm"},
	})

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}

	if c.Poll.Interval < 100*time.Millisecond {
		return fmt.Errorf("poll.interval must be at least 100ms")
	}

	if c.Storage.CSVLogPath == "" {
		return fmt.Errorf("storage.csv_log_path is required")
	}
	if c.Storage.ExportDir == "" {
		return fmt.Errorf("storage.export_dir is required")
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("channels must contain at least one manual channel")
	}
	channels := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.ID == "" || ch.SensorID == "" {
			return fmt.Errorf("channels[%d] requires id and sensor_id", i)
		}
		if channels[ch.ID] {
			return fmt.Errorf("channels[%d]: duplicate id %q", i, ch.ID)
		}
		channels[ch.ID] = true
	}
	for i, s := range c.Sensors {
		if s.ID == "" {
			return fmt.Errorf("sensors[%d] requires id", i)
		}
		if s.Channel != "" && !channels[s.Channel] {
			return fmt.Errorf("sensors[%d] (%s) references unknown channel %q", i, s.ID, s.Channel)
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// MetadataStore builds the shared metadata store from the sensor and
// channel tables.
func (c *Config) MetadataStore() (*metadata.Store, error) {
	sensors := make([]metadata.Sensor, 0, len(c.Sensors))
	for _, s := range c.Sensors {
		sensors = append(sensors, metadata.Sensor{
			ID:      s.ID,
			Channel: s.Channel,
			Meta: models.SensorMetadata{
				Type:       s.Type,
				Label:      s.Label,
				Units:      s.Units,
				SampleName: s.SampleName,
			},
		})
	}
	channels := make([]metadata.Channel, 0, len(c.Channels))
	for _, ch := range c.Channels {
		channels = append(channels, metadata.Channel{
			ID:       ch.ID,
			SensorID: ch.SensorID,
			Label:    ch.Label,
			Type:     ch.Type,
			Units:    ch.Units,
		})
	}
	return metadata.New(sensors, channels)
}
