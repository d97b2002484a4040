package commands

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hyperdesk/hyperdesk/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded pairing sessions",
	RunE:  runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessionsWithPeers()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Session", "Peer Device", "Peer Name"})
	for _, session := range sessions {
		table.Append([]string{session.SessionID, session.PeerDeviceID, session.PeerName})
	}
	table.Render()
	return nil
}
