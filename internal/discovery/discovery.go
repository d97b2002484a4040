// Package discovery finds peers on the local network.
//
// When HYPERDESK_USE_MDNS=1 the scanner browses the `_hyperdesk._tcp` mDNS
// service type and materializes devices from TXT records. On any error, or
// when the browse turns up nothing, it falls back to a deterministic
// simulated neighborhood so the rest of the stack stays exercisable on
// networks where multicast is filtered.
package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/internal/model"
)

// ServiceType is the mDNS service type browsed and announced.
const ServiceType = "_hyperdesk._tcp"

// ServiceDomain is the mDNS domain.
const ServiceDomain = "local."

// mdnsEnabled reports whether real multicast discovery is switched on.
func mdnsEnabled() bool {
	return os.Getenv("HYPERDESK_USE_MDNS") == "1"
}

// Scanner discovers peer devices.
type Scanner struct {
	local model.Device
}

// NewScanner returns a scanner that reports local as the always-first device.
func NewScanner(local model.Device) *Scanner {
	return &Scanner{local: local}
}

// Scan returns up to limit devices, the local device always first. Results
// are deduplicated by (name, ip).
func (s *Scanner) Scan(ctx context.Context, limit int, timeout time.Duration) []model.Device {
	var found []model.Device
	if mdnsEnabled() {
		devices, err := browse(ctx, timeout)
		if err != nil {
			logger.Warn("mDNS browse failed, falling back to simulated devices", logger.Err(err))
		} else {
			found = devices
		}
	}
	if len(found) == 0 {
		found = simulatedDevices()
	}

	out := []model.Device{s.local}
	seen := map[string]bool{deviceKey(s.local): true}
	for _, d := range found {
		key := deviceKey(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func deviceKey(d model.Device) string {
	return d.Name + "|" + d.IP
}

func browse(ctx context.Context, timeout time.Duration) ([]model.Device, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(browseCtx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse %s: %w", ServiceType, err)
	}

	var devices []model.Device
	for entry := range entries {
		devices = append(devices, deviceFromEntry(entry))
	}
	return devices, nil
}

func deviceFromEntry(entry *zeroconf.ServiceEntry) model.Device {
	txt := parseTXT(entry.Text)

	id := txt["device_id"]
	if id == "" {
		id = entry.Instance
	}
	name := txt["name"]
	if name == "" {
		name = entry.Instance
	}
	var caps []string
	for _, c := range strings.Split(txt["capabilities"], ",") {
		if c != "" {
			caps = append(caps, c)
		}
	}

	ip := ""
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	}

	return model.Device{
		ID:           id,
		Name:         name,
		IP:           ip,
		Status:       model.PresenceOnline,
		Capabilities: caps,
	}
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, record := range records {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}
		out[key] = value
	}
	return out
}

// simulatedDevices is the deterministic fallback neighborhood.
func simulatedDevices() []model.Device {
	names := []string{"MYLAPTOP2", "ALIENWAREPC", "IPAD", "SAMSUNGFLIP3", "WORKSTATION"}
	devices := make([]model.Device, 0, len(names))
	for i, name := range names {
		devices = append(devices, model.Device{
			ID:           fmt.Sprintf("sim-%d", i+1),
			Name:         name,
			IP:           fmt.Sprintf("192.168.1.%d", 100+i),
			Status:       model.PresenceOnline,
			Capabilities: []string{"hyperbox", "requests"},
		})
	}
	return devices
}
