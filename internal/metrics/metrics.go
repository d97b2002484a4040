// Package metrics exposes Prometheus instrumentation for the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal counts finished transfer jobs by terminal status.
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hyperdesk",
		Name:      "transfers_total",
		Help:      "Completed transfer jobs by terminal status.",
	}, []string{"status"})

	// TransferBytesTotal counts payload bytes moved by direction.
	TransferBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hyperdesk",
		Name:      "transfer_bytes_total",
		Help:      "Payload bytes moved, by transfer direction.",
	}, []string{"direction"})

	// ActiveSessions tracks the number of connected sessions (0 or 1).
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hyperdesk",
		Name:      "active_sessions",
		Help:      "Currently connected pairing sessions.",
	})

	// ControlMessagesTotal counts inbound control plane messages by type.
	ControlMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hyperdesk",
		Name:      "control_messages_total",
		Help:      "Inbound control plane messages by message type.",
	}, []string{"type"})
)
