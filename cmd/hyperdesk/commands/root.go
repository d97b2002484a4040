package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/pkg/config"
)

// Build-time version info, set by main.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "hyperdesk",
	Short: "HYPERDESK - LAN peer-to-peer file sharing daemon",
	Long: `HYPERDESK pairs two devices on a local network and keeps a shared
"hyperbox" directory in sync between them: files dropped in outbox/ flow to
the peer, incoming files land in inbox/, and requests/ turns file drops into
approval-gated transfer requests.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to config file (default: $XDG_CONFIG_HOME/hyperdesk/config.yaml)")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stdout",
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
