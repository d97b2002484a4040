package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hyperdesk/hyperdesk/internal/store"
)

var requestsSessionID string

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List file request history",
	RunE:  runRequests,
}

func init() {
	requestsCmd.Flags().StringVar(&requestsSessionID, "session", "",
		"Limit to one session id (default: all sessions)")
}

func runRequests(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{Path: cfg.Database.Path})
	if err != nil {
		return err
	}
	defer st.Close()

	requests, err := st.ListRequestsHistory(requestsSessionID)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Created", "Path", "Requester", "Status"})
	for _, request := range requests {
		table.Append([]string{
			request.CreatedAt.Format(time.RFC3339),
			request.Path,
			string(request.Requester),
			string(request.Status),
		})
	}
	table.Render()
	fmt.Printf("%d requests\n", len(requests))
	return nil
}
