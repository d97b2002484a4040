package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperdesk/hyperdesk/internal/controller"
	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the HYPERDESK daemon",
	Long: `Start the daemon: control server, hyperbox watcher and mDNS
announcer. Runs in the foreground until interrupted.

Examples:
  # Start with default config location
  hyperdesk start

  # Start with a custom config file
  hyperdesk start --config /etc/hyperdesk/config.yaml

  # Override settings with environment variables
  HYPERDESK_CONTROL_PORT=9000 HYPERDESK_LOGGING_LEVEL=DEBUG hyperdesk start

  # Enable real mDNS discovery
  HYPERDESK_USE_MDNS=1 hyperdesk start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}

	ctrl := controller.New(cfg, st)
	ctrl.State().OnLogAdded(func(entry controller.LogEntry) {
		logger.Info(entry.Message)
	})

	if err := ctrl.Start(); err != nil {
		_ = st.Close()
		return err
	}

	fmt.Printf("HYPERDESK %s listening on ws://%s:%d/\n", Version, cfg.Control.Host, ctrl.ControlPort())
	fmt.Printf("Hyperbox: %s\n", ctrl.Hyperbox().Root())

	// Initial neighborhood scan so the device table is warm.
	ctrl.Scan(cmd.Context())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", logger.Status(sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return ctrl.Shutdown(ctx)
}
