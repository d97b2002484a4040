package controller

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hyperdesk/hyperdesk/internal/control"
	"github.com/hyperdesk/hyperdesk/internal/discovery"
	"github.com/hyperdesk/hyperdesk/internal/hyperbox"
	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/internal/metrics"
	"github.com/hyperdesk/hyperdesk/internal/model"
	"github.com/hyperdesk/hyperdesk/internal/pairing"
	"github.com/hyperdesk/hyperdesk/internal/protocol"
	"github.com/hyperdesk/hyperdesk/internal/store"
	"github.com/hyperdesk/hyperdesk/pkg/config"
)

// transferDebounce suppresses filesystem events on a path that fired within
// this window of its last transfer.
const transferDebounce = time.Second

// scanTimeout bounds a discovery scan.
const scanTimeout = 2 * time.Second

// Controller owns the application state machine. The active session and
// pending pairing are controller-owned; transfer workers post updates back
// through the observable state and the store.
type Controller struct {
	cfg   *config.Config
	store *store.Store
	state *State

	pairings  *pairing.Manager
	scanner   *discovery.Scanner
	announcer *discovery.Announcer
	box       *hyperbox.Manager
	watcher   *hyperbox.Watcher
	server    *control.Server

	local model.Device

	mu             sync.Mutex
	session        *model.Session
	pending        *model.PairingSession
	lastTransfer   map[string]time.Time // per-path debounce clock
	rates          map[string]rateSample
	requestSources map[string]string // request id -> chosen source path

	closing atomic.Bool
	workers sync.WaitGroup
}

type rateSample struct {
	bytes int64
	at    time.Time
}

// New wires a controller from configuration and an opened store.
func New(cfg *config.Config, st *store.Store) *Controller {
	local := model.Device{
		ID:           uuid.NewString(),
		Name:         cfg.Device.Name,
		IP:           localIP(),
		Status:       model.PresenceLocal,
		Capabilities: []string{"hyperbox", "requests"},
	}

	c := &Controller{
		cfg:            cfg,
		store:          st,
		state:          NewState(),
		pairings:       pairing.NewManager(),
		scanner:        discovery.NewScanner(local),
		announcer:      discovery.NewAnnouncer(local, cfg.Control.Port),
		box:            hyperbox.NewManager(cfg.Hyperbox.Root),
		local:          local,
		lastTransfer:   make(map[string]time.Time),
		rates:          make(map[string]rateSample),
		requestSources: make(map[string]string),
	}
	c.server = control.NewServer(cfg.Control.Host, cfg.Control.Port, c.handleMessage)
	c.watcher = hyperbox.NewWatcher(c.box.Root(), c.handleFSEvent)
	return c
}

// State exposes the observable application state.
func (c *Controller) State() *State { return c.state }

// LocalDevice returns the device advertised on the control plane.
func (c *Controller) LocalDevice() model.Device { return c.local }

// Hyperbox exposes the directory layout manager.
func (c *Controller) Hyperbox() *hyperbox.Manager { return c.box }

// ControlPort returns the bound control port.
func (c *Controller) ControlPort() int { return c.server.Port() }

// Start brings up the hyperbox, control server, watcher and announcer.
func (c *Controller) Start() error {
	if err := c.box.EnsureLayout(); err != nil {
		return err
	}
	if _, err := c.box.EnsureDemoFile(); err != nil {
		return err
	}
	if err := c.server.Start(); err != nil {
		return err
	}
	if err := c.watcher.Start(); err != nil {
		return err
	}
	// A failed announcement is not fatal; the daemon runs unadvertised.
	if err := c.announcer.Register(); err != nil {
		logger.Warn("mDNS announcement failed", logger.Err(err))
	}

	if err := c.store.RecordDevice(c.local); err != nil {
		logger.Warn("failed to persist local device", logger.Err(err))
	}
	c.state.AddLog(fmt.Sprintf("HYPERDESK ready on %s:%d", c.cfg.Control.Host, c.server.Port()))
	return nil
}

// Shutdown stops the watcher, announcer and server, then closes the store.
// The closing flag suppresses persistence writes from in-flight workers so
// they cannot race the closed database.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.closing.Store(true)
	c.watcher.Stop()
	c.announcer.Unregister()
	if err := c.server.Stop(ctx); err != nil {
		logger.Warn("control server stop failed", logger.Err(err))
	}
	return c.store.Close()
}

// Scan runs discovery, publishes the device list, and persists each device.
func (c *Controller) Scan(ctx context.Context) []model.Device {
	devices := c.scanner.Scan(ctx, 0, scanTimeout)
	c.state.SetDevices(devices)
	for _, device := range devices {
		c.persistDevice(device)
	}
	c.audit("", "scan", fmt.Sprintf("found %d devices", len(devices)))
	c.state.AddLog(fmt.Sprintf("Scan complete: %d devices", len(devices)))
	return devices
}

// StartPairing creates a pending pairing and publishes its code. Requires no
// active session and no pending pairing.
func (c *Controller) StartPairing() (model.PairingSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return model.PairingSession{}, fmt.Errorf("a session is already active")
	}
	if c.pending != nil {
		return model.PairingSession{}, fmt.Errorf("a pairing is already pending")
	}

	p, err := c.pairings.CreatePairing(c.local)
	if err != nil {
		return model.PairingSession{}, err
	}
	c.pending = &p
	c.state.SetPairing(&p)
	c.state.AddLog("Pairing code: " + p.Code)
	return p, nil
}

// LinkToDevice pairs directly with a known device, skipping the code
// exchange. The per-device preset decides the initial policy.
func (c *Controller) LinkToDevice(device model.Device) (model.Session, error) {
	mode, rule := c.devicePreset(device.ID)
	policy := model.DefaultPolicy()
	policy.Mode = mode
	policy.ConflictRule = rule

	p, err := c.pairings.CreatePairing(c.local)
	if err != nil {
		return model.Session{}, err
	}
	session, err := c.pairings.ConfirmPairing(p, p.Code, device, policy)
	if err != nil {
		return model.Session{}, err
	}

	c.adoptSession(session, device)
	c.state.AddLog("Linked to " + device.Name)
	c.broadcastSessionUpdate(session)
	return session, nil
}

// Disconnect tears down the active session. The stored row keeps its
// terminal disconnected status for audit.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session == nil {
		return
	}

	if !c.closing.Load() {
		if err := c.store.UpdateSessionStatus(session.ID, model.SessionDisconnected); err != nil {
			logger.Warn("failed to persist disconnect", logger.SessionID(session.ID), logger.Err(err))
		}
	}
	c.audit(session.ID, "session_disconnected", "")
	metrics.ActiveSessions.Set(0)
	c.state.SetSession(nil)
	c.state.AddLog("Disconnected from " + session.PeerDevice.Name)

	c.server.Broadcast(protocol.TypeSessionUpdate, protocol.Payload{
		"session_id":         session.ID,
		"status":             string(model.SessionDisconnected),
		"mode":               "",
		"approval_required":  false,
		"conflict_rule":      string(model.KeepBoth),
		"allow_browse":       false,
		"allow_requests":     false,
		"allow_edits":        false,
		"edit_mode":          "",
		"allow_client_share": false,
	})
}

// UpdateSyncRules rewrites the live session policy and saves it as the
// peer's preset.
func (c *Controller) UpdateSyncRules(mode model.SyncMode, rule model.ConflictRule) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no active session")
	}

	policy := session.Policy
	policy.Mode = mode
	policy.ConflictRule = rule
	updated := c.pairings.UpdateSession(*session, model.SessionConnected, policy)

	c.mu.Lock()
	c.session = &updated
	c.mu.Unlock()

	c.persistSession(updated)
	c.saveDevicePreset(updated.PeerDevice.ID, mode, rule)
	c.state.SetSession(&updated)
	c.state.AddLog(fmt.Sprintf("Sync rules updated: %s / %s", mode, rule))
	c.broadcastSessionUpdate(updated)
	return nil
}

// Session returns the controller's active session, or nil.
func (c *Controller) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// RequestHistory lists the active session's requests, newest first.
func (c *Controller) RequestHistory() ([]model.FileRequest, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil, fmt.Errorf("no active session")
	}
	return c.store.ListRequests(session.ID)
}

// RequestHistoryAll lists every recorded request across sessions.
func (c *Controller) RequestHistoryAll() ([]model.FileRequest, error) {
	return c.store.ListRequestsHistory("")
}

// SessionIndex lists all stored sessions with their peer names.
func (c *Controller) SessionIndex() ([]store.SessionPeer, error) {
	return c.store.ListSessionsWithPeers()
}

// adoptSession installs a freshly confirmed session as the active one.
func (c *Controller) adoptSession(session model.Session, peer model.Device) {
	c.mu.Lock()
	c.session = &session
	c.pending = nil
	c.mu.Unlock()

	c.persistDevice(peer)
	c.persistSession(session)
	c.audit(session.ID, "pairing_confirmed", "peer="+peer.ID)
	metrics.ActiveSessions.Set(1)
	c.state.SetPairing(nil)
	c.state.SetSession(&session)
}

func (c *Controller) persistDevice(device model.Device) {
	if c.closing.Load() {
		return
	}
	if err := c.store.RecordDevice(device); err != nil {
		logger.Warn("failed to persist device", logger.DeviceID(device.ID), logger.Err(err))
	}
}

func (c *Controller) persistSession(session model.Session) {
	if c.closing.Load() {
		return
	}
	if err := c.store.RecordSession(session); err != nil {
		logger.Warn("failed to persist session", logger.SessionID(session.ID), logger.Err(err))
	}
}

func (c *Controller) audit(sessionID, event, details string) {
	if c.closing.Load() {
		return
	}
	if err := c.store.RecordAuditEvent(sessionID, event, details); err != nil {
		logger.Warn("failed to persist audit event", logger.Err(err))
	}
}

func (c *Controller) broadcastSessionUpdate(session model.Session) {
	c.server.Broadcast(protocol.TypeSessionUpdate, sessionUpdatePayload(session))
}

func sessionUpdatePayload(session model.Session) protocol.Payload {
	return protocol.Payload{
		"session_id":         session.ID,
		"status":             string(session.Status),
		"mode":               string(session.Policy.Mode),
		"approval_required":  session.Policy.ApprovalRequired,
		"conflict_rule":      string(session.Policy.ConflictRule),
		"allow_browse":       session.Policy.AllowBrowse,
		"allow_requests":     session.Policy.AllowRequests,
		"allow_edits":        session.Policy.AllowEdits,
		"edit_mode":          string(session.Policy.EditMode),
		"allow_client_share": session.Policy.AllowClientShare,
	}
}

// localIP finds the outbound IPv4 address, falling back to loopback.
func localIP() string {
	conn, err := net.Dial("udp", "192.168.1.1:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
