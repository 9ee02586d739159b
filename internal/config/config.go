package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment variable overrides,
// e.g. POSTWOMAN_HTTP_TIMEOUT
const EnvPrefix = "POSTWOMAN"

// EnvKeyReplacer maps nested keys to environment variable names
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Config holds the application configuration
type Config struct {
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Engine  EngineConfig  `yaml:"engine" mapstructure:"engine"`
	History HistoryConfig `yaml:"history" mapstructure:"history"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type string `yaml:"type" mapstructure:"type"` // "sqlite" or "json"
	Path string `yaml:"path" mapstructure:"path"` // data directory
}

// HTTPConfig holds request dispatch configuration
type HTTPConfig struct {
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxResponseBytes int64         `yaml:"max_response_bytes" mapstructure:"max_response_bytes"`
	// Report transport failures as status 0 responses instead of errors
	TransportErrorResponse bool `yaml:"transport_error_response" mapstructure:"transport_error_response"`
}

// EngineConfig holds orchestrator configuration
type EngineConfig struct {
	RejectCycles bool `yaml:"reject_cycles" mapstructure:"reject_cycles"`
}

// HistoryConfig holds request history configuration
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Limit   int  `yaml:"limit" mapstructure:"limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "console" or "json"
}

// DefaultDataDir returns ~/.postwoman, or .postwoman when the home
// directory cannot be resolved
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".postwoman"
	}
	return filepath.Join(home, ".postwoman")
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Type: "sqlite",
			Path: DefaultDataDir(),
		},
		HTTP: HTTPConfig{
			Timeout:          30 * time.Second,
			MaxResponseBytes: 50 * 1024 * 1024,
		},
		Engine: EngineConfig{
			RejectCycles: true,
		},
		History: HistoryConfig{
			Enabled: true,
			Limit:   100,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// SetDefaults registers every default value with v so environment
// variables and config files can override single keys
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.max_response_bytes", d.HTTP.MaxResponseBytes)
	v.SetDefault("http.transport_error_response", d.HTTP.TransportErrorResponse)
	v.SetDefault("engine.reject_cycles", d.Engine.RejectCycles)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.limit", d.History.Limit)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// FromViper builds a Config from the keys known to v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			Type: v.GetString("storage.type"),
			Path: v.GetString("storage.path"),
		},
		HTTP: HTTPConfig{
			Timeout:                v.GetDuration("http.timeout"),
			MaxResponseBytes:       v.GetInt64("http.max_response_bytes"),
			TransportErrorResponse: v.GetBool("http.transport_error_response"),
		},
		Engine: EngineConfig{
			RejectCycles: v.GetBool("engine.reject_cycles"),
		},
		History: HistoryConfig{
			Enabled: v.GetBool("history.enabled"),
			Limit:   v.GetInt("history.limit"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}
	if strings.HasPrefix(cfg.Storage.Path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Storage.Path = filepath.Join(home, cfg.Storage.Path[2:])
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated and numeric fields
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Type) {
	case "sqlite", "json":
	default:
		return fmt.Errorf("invalid storage.type %q: expected sqlite or json", c.Storage.Type)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging.format %q: expected console or json", c.Logging.Format)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("invalid http.timeout %s: must not be negative", c.HTTP.Timeout)
	}
	if c.HTTP.MaxResponseBytes < 0 {
		return fmt.Errorf("invalid http.max_response_bytes %d: must not be negative", c.HTTP.MaxResponseBytes)
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("invalid history.limit %d: must not be negative", c.History.Limit)
	}
	return nil
}
