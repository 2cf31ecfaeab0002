// Package config loads the screener's YAML configuration with
// defaults, ${ENV} expansion, and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "nwf.yaml"

	dirMode  = 0700
	fileMode = 0600
)

// Default values for optional configuration fields.
const (
	DefaultAPIURL        = "https://data.nwf.dev/v1"
	DefaultAPITimeout    = 30 * time.Second
	DefaultImportWorkers = 4
	DefaultStaleDays     = 7
	DefaultServerPort    = 8080
	DefaultLogLevel      = "info"
)

// Config is the screener's application configuration.
type Config struct {
	DB     DBConfig     `yaml:"db"`
	API    APIConfig    `yaml:"api"`
	Import ImportConfig `yaml:"import"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// DBConfig locates the SQLite database file. An empty path means
// the application home directory.
type DBConfig struct {
	Path string `yaml:"path"`
}

// APIConfig points at the market-data service.
type APIConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	Workers   int `yaml:"workers"`
	StaleDays int `yaml:"stale_days"`
}

// ServerConfig tunes the embedded web UI server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig sets the CLI log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ReadOrCreate loads the config file from the given directory,
// writing one with defaults on first run.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.Mkdir(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("create config dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, ConfigFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := Save(dirPath, cfg); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		return cfg, nil
	}

	return LoadAndValidate(path)
}

// Save writes the config to dirPath as YAML.
func Save(dirPath string, cfg *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if cfg == nil {
		return errors.New("config required")
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	path := filepath.Join(dirPath, ConfigFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("write config file %s: %w", path, err)
	}
	return nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.API.URL == "" {
		c.API.URL = DefaultAPIURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	if c.Import.Workers == 0 {
		c.Import.Workers = DefaultImportWorkers
	}
	if c.Import.StaleDays == 0 {
		c.Import.StaleDays = DefaultStaleDays
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return errors.New("api.url is required")
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout must not be negative")
	}

	if c.Import.Workers < 1 {
		return errors.New("import.workers must be >= 1")
	}
	if c.Import.StaleDays < 1 {
		return errors.New("import.stale_days must be >= 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

// StaleAfter returns the import staleness window as a duration.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Import.StaleDays) * 24 * time.Hour
}
