package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults fills unset fields with sensible defaults. Zero values are
// replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyDeviceDefaults(&cfg.Device)
	applyControlDefaults(&cfg.Control)
	applyDatabaseDefaults(&cfg.Database)
	applyHyperboxDefaults(&cfg.Hyperbox)
	applyTransferDefaults(&cfg.Transfer)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
}

func applyDeviceDefaults(cfg *DeviceConfig) {
	if cfg.Name == "" {
		if hostname, err := os.Hostname(); err == nil {
			cfg.Name = hostname
		} else {
			cfg.Name = "HYPERDESK"
		}
	}
}

func applyControlDefaults(cfg *ControlConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8765
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		cfg.Path = filepath.Join(cwd, "data", "hyperdesk.db")
	}
}

func applyHyperboxDefaults(cfg *HyperboxConfig) {
	if cfg.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		cfg.Root = filepath.Join(cwd, "hyperbox")
	}
}

func applyTransferDefaults(cfg *TransferConfig) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 8 * 1024 * 1024
	}
	if cfg.MaxBandwidth == "" {
		cfg.MaxBandwidth = "unlimited"
	}
	if cfg.RetryPolicy == "" {
		cfg.RetryPolicy = "exponential"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
}

// GetDefaultConfig returns a fully defaulted configuration.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
