// Command hyperdesk-peer is the reference peer client: it pairs with a
// running daemon by code, optionally requests a file, and fetches whatever
// the host offers over the framed transfer channel.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperdesk/hyperdesk/internal/control"
	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/internal/model"
	"github.com/hyperdesk/hyperdesk/internal/protocol"
	"github.com/hyperdesk/hyperdesk/internal/transfer"
)

var (
	flagHost     string
	flagPort     int
	flagPairCode string
	flagRequest  string
	flagInbox    string
)

var rootCmd = &cobra.Command{
	Use:   "hyperdesk-peer",
	Short: "Reference peer client for a HYPERDESK daemon",
	Long: `Pair with a running daemon by code, then wait for transfer offers.

Examples:
  # Pair and idle
  hyperdesk-peer --host 192.168.1.50 --pair-code 123456

  # Pair and request a file
  hyperdesk-peer --host 192.168.1.50 --pair-code 123456 --request report.pdf`,
	RunE:         run,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&flagHost, "host", "127.0.0.1", "Daemon host")
	rootCmd.Flags().IntVar(&flagPort, "port", 8765, "Daemon control port")
	rootCmd.Flags().StringVar(&flagPairCode, "pair-code", "", "Six-digit pairing code (required)")
	rootCmd.Flags().StringVar(&flagRequest, "request", "", "Remote path to request after pairing")
	rootCmd.Flags().StringVar(&flagInbox, "inbox", "peer_inbox", "Directory for received files")
	_ = rootCmd.MarkFlagRequired("pair-code")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger.InitWithWriter(os.Stdout, "INFO", "text", false)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "hyperdesk-peer"
	}
	deviceID := fmt.Sprintf("peer-%s", hostname)

	client := control.NewClient()
	url := fmt.Sprintf("ws://%s:%d/", flagHost, flagPort)
	if err := client.Connect(url); err != nil {
		return err
	}
	defer client.Disconnect()
	logger.Info("connected", logger.Peer(url))

	if err := client.Send(protocol.TypePairingRequest, protocol.Payload{
		"device_id":    deviceID,
		"pair_code":    flagPairCode,
		"device_name":  hostname,
		"capabilities": []string{"hyperbox", "requests"},
	}, ""); err != nil {
		return err
	}

	var sessionID, sessionToken string
	for {
		msg, err := client.Recv()
		if err != nil {
			return err
		}
		switch msg.Type {
		case protocol.TypePairingAccept:
			sessionID = msg.String("session_id", "")
			sessionToken = msg.String("session_token", "")
			logger.Info("paired", logger.SessionID(sessionID))
			if flagRequest != "" {
				if err := client.Send(protocol.TypeTransferReq, protocol.Payload{
					"session_id": sessionID,
					"path":       flagRequest,
					"direction":  string(model.DirectionDownload),
					"size":       0,
				}, ""); err != nil {
					return err
				}
				logger.Info("requested file", logger.Path(flagRequest))
			}

		case protocol.TypeTransferOffer:
			if err := fetchOffer(client, msg, sessionToken); err != nil {
				return err
			}

		case protocol.TypeSessionUpdate:
			status := msg.String("status", "")
			logger.Info("session update", logger.Status(status))
			if status == string(model.SessionDisconnected) {
				return nil
			}

		default:
			logger.Debug("ignoring message", logger.MsgType(msg.Type))
		}
	}
}

// fetchOffer pulls the offered file over the framed channel and reports
// progress back on the control plane.
func fetchOffer(client *control.Client, offer *protocol.Message, sessionToken string) error {
	jobID := offer.String("job_id", "")
	filename := offer.String("filename", "")
	host := offer.String("host", flagHost)
	port := int(offer.Int64("port", 0))

	var cipher *transfer.Cipher
	if offer.Bool("encrypted", false) {
		var err error
		cipher, err = transfer.NewCipher(sessionToken)
		if err != nil {
			return err
		}
	}

	logger.Info("fetching offer",
		logger.JobID(jobID), logger.Path(filename), logger.Port(port))

	sendStatus := func(status model.TransferStatus, progress float64, checksum string) {
		_ = client.Send(protocol.TypeTransferStatus, protocol.Payload{
			"job_id":   jobID,
			"status":   string(status),
			"progress": progress,
			"checksum": checksum,
		}, "")
	}

	sendStatus(model.TransferReceiving, 0, "")
	result, err := transfer.ReceiveFile(host, port, flagInbox, transfer.ReceiveOptions{
		ConflictRule: model.ConflictRule(offer.String("conflict_rule", string(model.KeepBoth))),
		Cipher:       cipher,
		OnProgress: func(received, total int64) {
			if total > 0 {
				sendStatus(model.TransferReceiving, float64(received)/float64(total), "")
			}
		},
	})
	if err != nil {
		sendStatus(model.TransferFailed, 0, "")
		return err
	}

	if result.Skipped {
		sendStatus(model.TransferSkipped, 1.0, "")
		logger.Info("offer skipped, local copy kept", logger.Path(filename))
		return nil
	}
	sendStatus(model.TransferComplete, 1.0, result.Checksum)
	logger.Info("file received",
		logger.Path(result.Path), logger.Size(result.BytesReceived))
	return nil
}
