package commands

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hyperdesk/hyperdesk/internal/discovery"
	"github.com/hyperdesk/hyperdesk/internal/model"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Scan the network and list discovered devices",
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = cfg.Device.Name
	}
	local := model.Device{
		ID:           "local",
		Name:         hostname,
		IP:           "127.0.0.1",
		Status:       model.PresenceLocal,
		Capabilities: []string{"hyperbox", "requests"},
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	devices := discovery.NewScanner(local).Scan(ctx, 0, 2*time.Second)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "IP", "Status", "Capabilities"})
	for _, device := range devices {
		table.Append([]string{
			device.Name,
			device.IP,
			string(device.Status),
			strings.Join(device.Capabilities, ","),
		})
	}
	table.Render()
	return nil
}
