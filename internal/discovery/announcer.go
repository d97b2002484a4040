package discovery

import (
	"fmt"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/internal/model"
)

// Announcer advertises the local device on the control port via mDNS.
// Register and Unregister are idempotent and safe under rapid start/stop.
// When mDNS is disabled the announcer is a no-op.
type Announcer struct {
	device model.Device
	port   int

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAnnouncer returns an announcer for the local device.
func NewAnnouncer(device model.Device, port int) *Announcer {
	return &Announcer{device: device, port: port}
}

// Register publishes the service record. Calling it while already registered
// is a no-op.
func (a *Announcer) Register() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}
	if !mdnsEnabled() {
		logger.Debug("mDNS disabled, announcer idle",
			logger.DeviceID(a.device.ID))
		return nil
	}

	instance := fmt.Sprintf("%s-%s", a.device.Name, a.device.ID)
	txt := []string{
		"device_id=" + a.device.ID,
		"name=" + a.device.Name,
		"capabilities=" + strings.Join(a.device.Capabilities, ","),
	}
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, a.port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	a.server = server
	logger.Info("announced device on mDNS",
		logger.DeviceID(a.device.ID),
		logger.Peer(instance),
		logger.Port(a.port))
	return nil
}

// Unregister withdraws the service record. Calling it while not registered is
// a no-op.
func (a *Announcer) Unregister() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
}
