// Package config loads the capre configuration from an optional YAML file
// and CAPRE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/tsingsun/capre/xbase"
)

type Config struct {
	DataDir   string `mapstructure:"data_dir"`
	UploadDir string `mapstructure:"upload_dir"`
	ExportDir string `mapstructure:"export_dir"`

	CodePage    int   `mapstructure:"code_page"`
	BatchSize   int   `mapstructure:"batch_size"`
	MaxFileSize int64 `mapstructure:"max_file_size"`

	// DeviceID scopes sessions to one operator station. Empty sees everything.
	DeviceID string `mapstructure:"device_id"`
	LogLevel string `mapstructure:"log_level"`
}

var defaults = map[string]interface{}{
	"data_dir":      "./data",
	"upload_dir":    "./uploads",
	"export_dir":    "./exports",
	"code_page":     xbase.DefaultCodePage,
	"batch_size":    500,
	"max_file_size": 16 << 20,
	"device_id":     "",
	"log_level":     "info",
}

// Load reads path if it is not empty. Environment variables such as
// CAPRE_DATA_DIR override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix("CAPRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if _, err := xbase.CodePage(c.CodePage); err != nil {
		return fmt.Errorf("config: code_page: %w", err)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxFileSize < 0 {
		return fmt.Errorf("config: max_file_size must not be negative, got %d", c.MaxFileSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return l, nil
}

// Options returns the codec options for the configured code page.
func (c *Config) Options() xbase.Options {
	return xbase.Options{CodePage: c.CodePage}
}
