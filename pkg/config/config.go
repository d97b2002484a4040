// Package config loads daemon configuration.
//
// Configuration sources, in order of precedence:
//  1. CLI flags (highest priority)
//  2. Environment variables (HYPERDESK_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hyperdesk/hyperdesk/internal/bytesize"
)

// Config captures the static configuration of the daemon. Per-session policy
// and transfer settings are dynamic and live in the preferences table.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Device names the local device on the control plane
	Device DeviceConfig `mapstructure:"device" yaml:"device"`

	// Control configures the control plane listener
	Control ControlConfig `mapstructure:"control" yaml:"control"`

	// Database is the SQLite database file path
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Hyperbox configures the shared directory tree
	Hyperbox HyperboxConfig `mapstructure:"hyperbox" yaml:"hyperbox"`

	// Transfer holds the initial transfer defaults; the live values are
	// persisted preferences once the daemon has run
	Transfer TransferConfig `mapstructure:"transfer" yaml:"transfer"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level" yaml:"level"`

	// Format is "text" or "json"
	Format string `mapstructure:"format" yaml:"format"`
}

// DeviceConfig names the local device.
type DeviceConfig struct {
	// Name is the advertised device name; defaults to the hostname
	Name string `mapstructure:"name" yaml:"name"`
}

// ControlConfig configures the WebSocket control plane.
type ControlConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DatabaseConfig locates the persistence store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// HyperboxConfig locates the shared directory tree.
type HyperboxConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// TransferConfig holds initial transfer defaults.
type TransferConfig struct {
	// ChunkSize is the copy chunk size, e.g. "8MB"
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size"`

	// MaxBandwidth caps transfer throughput, e.g. "10MB/s" or "unlimited"
	MaxBandwidth string `mapstructure:"max_bandwidth" yaml:"max_bandwidth"`

	// RetryPolicy is "exponential", "linear" or "none"
	RetryPolicy string `mapstructure:"retry_policy" yaml:"retry_policy"`

	// MaxRetries bounds retry attempts per transfer
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// Encryption wraps network transfers in an authenticated cipher
	Encryption bool `mapstructure:"encryption" yaml:"encryption"`
}

// Load reads configuration from the given file (or the default search path
// when empty), layering environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configFileFound {
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(v, &cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the configuration as YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variables and the config file search.
// Environment variables use the HYPERDESK_ prefix with underscores, e.g.
// HYPERDESK_CONTROL_PORT=9000.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("HYPERDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// applyEnvOverrides copies bound environment values into the struct even when
// no config file was read (AutomaticEnv alone does not feed Unmarshal).
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if s := v.GetString("logging.level"); s != "" {
		cfg.Logging.Level = s
	}
	if s := v.GetString("logging.format"); s != "" {
		cfg.Logging.Format = s
	}
	if s := v.GetString("device.name"); s != "" {
		cfg.Device.Name = s
	}
	if s := v.GetString("control.host"); s != "" {
		cfg.Control.Host = s
	}
	if n := v.GetInt("control.port"); n != 0 {
		cfg.Control.Port = n
	}
	if s := v.GetString("database.path"); s != "" {
		cfg.Database.Path = s
	}
	if s := v.GetString("hyperbox.root"); s != "" {
		cfg.Hyperbox.Root = s
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// getConfigDir returns $XDG_CONFIG_HOME/hyperdesk, falling back to
// ~/.config/hyperdesk.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hyperdesk")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "hyperdesk")
}

// configDecodeHooks combines the custom decode hooks: ByteSize and
// time.Duration from human-readable strings.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
