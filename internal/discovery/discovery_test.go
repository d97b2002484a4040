package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperdesk/hyperdesk/internal/model"
)

func localDevice() model.Device {
	return model.Device{
		ID:     "local-1",
		Name:   "HOSTBOX",
		IP:     "192.168.1.50",
		Status: model.PresenceLocal,
	}
}

func TestScanSimulatedFallback(t *testing.T) {
	t.Setenv("HYPERDESK_USE_MDNS", "")

	s := NewScanner(localDevice())
	devices := s.Scan(context.Background(), 0, time.Second)

	require.Len(t, devices, 6)
	assert.Equal(t, "HOSTBOX", devices[0].Name)
	assert.Equal(t, model.PresenceLocal, devices[0].Status)

	names := make([]string, 0, len(devices)-1)
	for _, d := range devices[1:] {
		names = append(names, d.Name)
		assert.Equal(t, model.PresenceOnline, d.Status)
	}
	assert.Equal(t, []string{"MYLAPTOP2", "ALIENWAREPC", "IPAD", "SAMSUNGFLIP3", "WORKSTATION"}, names)
	assert.Equal(t, "192.168.1.100", devices[1].IP)
	assert.Equal(t, "192.168.1.104", devices[5].IP)
}

func TestScanLimit(t *testing.T) {
	t.Setenv("HYPERDESK_USE_MDNS", "")

	s := NewScanner(localDevice())
	devices := s.Scan(context.Background(), 3, time.Second)
	require.Len(t, devices, 3)
	assert.Equal(t, "HOSTBOX", devices[0].Name)
}

func TestScanDedupesLocal(t *testing.T) {
	t.Setenv("HYPERDESK_USE_MDNS", "")

	// Local device colliding with a simulated (name, ip) pair is kept once.
	local := model.Device{ID: "local-1", Name: "MYLAPTOP2", IP: "192.168.1.100", Status: model.PresenceLocal}
	s := NewScanner(local)
	devices := s.Scan(context.Background(), 0, time.Second)

	count := 0
	for _, d := range devices {
		if d.Name == "MYLAPTOP2" && d.IP == "192.168.1.100" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, devices, 5)
}

func TestAnnouncerIdempotentWhenDisabled(t *testing.T) {
	t.Setenv("HYPERDESK_USE_MDNS", "")

	a := NewAnnouncer(localDevice(), 8765)
	require.NoError(t, a.Register())
	require.NoError(t, a.Register())
	a.Unregister()
	a.Unregister()
	require.NoError(t, a.Register())
	a.Unregister()
}

func TestParseTXT(t *testing.T) {
	txt := parseTXT([]string{"device_id=abc", "name=IPAD", "capabilities=hyperbox,requests", "garbage"})
	assert.Equal(t, "abc", txt["device_id"])
	assert.Equal(t, "IPAD", txt["name"])
	assert.Equal(t, "hyperbox,requests", txt["capabilities"])
	_, ok := txt["garbage"]
	assert.False(t, ok)
}
