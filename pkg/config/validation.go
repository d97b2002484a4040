package config

import "fmt"

// Validate checks configuration invariants after defaults are applied.
func Validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("invalid logging level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q", cfg.Logging.Format)
	}

	if cfg.Control.Port < 0 || cfg.Control.Port > 65535 {
		return fmt.Errorf("invalid control port %d", cfg.Control.Port)
	}

	switch cfg.Transfer.RetryPolicy {
	case "exponential", "linear", "none":
	default:
		return fmt.Errorf("invalid retry policy %q", cfg.Transfer.RetryPolicy)
	}
	if cfg.Transfer.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if cfg.Transfer.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	return nil
}
