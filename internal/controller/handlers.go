package controller

import (
	"fmt"
	"time"

	"github.com/hyperdesk/hyperdesk/internal/control"
	"github.com/hyperdesk/hyperdesk/internal/hyperbox"
	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/internal/model"
	"github.com/hyperdesk/hyperdesk/internal/protocol"
)

// handleMessage dispatches one inbound control message. It runs on the
// connection's read goroutine; per-connection ordering is preserved.
func (c *Controller) handleMessage(conn *control.Conn, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypePairingRequest:
		c.handlePairingRequest(conn, msg)
	case protocol.TypeSessionUpdate:
		c.handleSessionUpdate(msg)
	case protocol.TypeTransferStatus:
		c.handleTransferStatus(msg)
	case protocol.TypeTransferReq:
		c.handleTransferRequest(msg)
	default:
		logger.Debug("ignoring control message", logger.MsgType(msg.Type))
	}
}

func (c *Controller) handlePairingRequest(conn *control.Conn, msg *protocol.Message) {
	code := msg.String("pair_code", "")

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	p := model.PairingSession{}
	found := false
	if pending != nil {
		p, found = *pending, true
	} else {
		p, found = c.pairings.FindByCode(code)
	}
	if !found {
		c.audit("", "pairing_rejected", "no pending pairing")
		c.state.AddLog("Pairing request rejected: no pending pairing")
		return
	}

	peer := model.Device{
		ID:           msg.String("device_id", ""),
		Name:         msg.String("device_name", msg.String("device_id", "peer")),
		IP:           msg.String("device_ip", conn.RemoteAddr()),
		Status:       model.PresenceOnline,
		Capabilities: msg.Strings("capabilities"),
	}

	mode, rule := c.devicePreset(peer.ID)
	policy := model.DefaultPolicy()
	policy.Mode = mode
	policy.ConflictRule = rule

	session, err := c.pairings.ConfirmPairing(p, code, peer, policy)
	if err != nil {
		// Wrong code: no reply, the pending pairing stays live.
		c.audit("", "pairing_rejected", fmt.Sprintf("peer=%s wrong code", peer.ID))
		c.state.AddLog("Pairing request rejected: wrong code")
		return
	}

	c.adoptSession(session, peer)
	c.state.AddLog("Paired with " + peer.Name)

	if err := conn.Send(protocol.TypePairingAccept, protocol.Payload{
		"session_id":    session.ID,
		"device_id":     c.local.ID,
		"session_token": session.Token,
	}, msg.RequestID); err != nil {
		logger.Warn("failed to send pairing accept",
			logger.SessionID(session.ID), logger.Err(err))
	}
	c.broadcastSessionUpdate(session)
}

func (c *Controller) handleSessionUpdate(msg *protocol.Message) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil || msg.String("session_id", "") != session.ID {
		return
	}

	policy := session.Policy
	if v := msg.String("mode", ""); v != "" {
		policy.Mode = model.SyncMode(v)
	}
	if v := msg.String("conflict_rule", ""); v != "" {
		policy.ConflictRule = model.ConflictRule(v)
	}
	policy.AllowBrowse = msg.Bool("allow_browse", policy.AllowBrowse)
	policy.AllowRequests = msg.Bool("allow_requests", policy.AllowRequests)
	policy.AllowEdits = msg.Bool("allow_edits", policy.AllowEdits)
	if v := msg.String("edit_mode", ""); v != "" {
		policy.EditMode = model.EditMode(v)
	}
	policy.AllowClientShare = msg.Bool("allow_client_share", policy.AllowClientShare)

	status := model.SessionStatus(msg.String("status", string(session.Status)))
	updated := c.pairings.UpdateSession(*session, status, policy)

	c.mu.Lock()
	c.session = &updated
	c.mu.Unlock()
	c.persistSession(updated)
	c.state.SetSession(&updated)
}

// handleTransferStatus hydrates a job from a peer's status report.
// "receiving"/"sending" arrive as-is and are persisted unchanged.
func (c *Controller) handleTransferStatus(msg *protocol.Message) {
	job := model.TransferJob{
		ID:       msg.String("job_id", ""),
		Path:     msg.String("filename", msg.String("path", "")),
		Status:   model.TransferStatus(msg.String("status", "")),
		Progress: msg.Float64("progress", 0),
		Checksum: msg.String("checksum", ""),
		Size:     msg.Int64("size", 0),
	}
	if job.ID == "" {
		return
	}
	c.publishTransfer(job)
}

// handleTransferRequest files a peer-originated request. The size and
// direction fields are advisory; only the path matters here.
func (c *Controller) handleTransferRequest(msg *protocol.Message) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return
	}

	request := model.FileRequest{
		ID:        newID(),
		SessionID: session.ID,
		Path:      msg.String("path", ""),
		Requester: model.Requester(msg.String("requester", string(model.RequesterPeer))),
		Status:    model.RequestPending,
		CreatedAt: time.Now().UTC(),
	}
	c.persistRequest(request)
	c.refreshRequests(session.ID)
	c.state.AddLog("File request from peer: " + request.Path)
}

// handleFSEvent reacts to hyperbox changes. Active only while a session
// exists; events on a path transferred within the last second are dropped.
func (c *Controller) handleFSEvent(eventType hyperbox.EventType, path string) {
	if c.closing.Load() {
		return
	}
	c.mu.Lock()
	session := c.session
	last, seen := c.lastTransfer[path]
	c.mu.Unlock()
	if session == nil {
		return
	}
	if seen && time.Since(last) < transferDebounce {
		return
	}

	switch c.box.Section(path) {
	case "requests":
		if session.Policy.Mode == model.ModeApproval {
			c.markTransferred(path)
			c.fileLocalRequest(session, path)
		} else {
			c.state.AddLog(fmt.Sprintf("Ignoring %s in requests/ (mode %s)", eventType, session.Policy.Mode))
		}
	case "outbox":
		mode := session.Policy.Mode
		if (mode == model.ModeMirror || mode == model.ModeCopy) &&
			(eventType == hyperbox.EventCreated || eventType == hyperbox.EventModified) {
			c.markTransferred(path)
			c.startTransferWorker(session, path, model.DirectionUpload, nil)
		}
	case "inbox":
		c.state.AddLog(fmt.Sprintf("Inbox %s: %s", eventType, path))
	}
}

func (c *Controller) fileLocalRequest(session *model.Session, path string) {
	request := model.FileRequest{
		ID:        newID(),
		SessionID: session.ID,
		Path:      path,
		Requester: model.RequesterLocal,
		Status:    model.RequestPending,
		CreatedAt: time.Now().UTC(),
	}
	c.persistRequest(request)

	c.mu.Lock()
	c.requestSources[request.ID] = path
	c.mu.Unlock()

	c.refreshRequests(session.ID)
	c.state.AddLog("File request created: " + path)
}

func (c *Controller) markTransferred(path string) {
	c.mu.Lock()
	c.lastTransfer[path] = time.Now()
	c.mu.Unlock()
}

func (c *Controller) persistRequest(request model.FileRequest) {
	if c.closing.Load() {
		return
	}
	if err := c.store.RecordRequest(request); err != nil {
		logger.Warn("failed to persist request",
			logger.RequestID(request.ID), logger.Err(err))
	}
}

func (c *Controller) refreshRequests(sessionID string) {
	if c.closing.Load() {
		return
	}
	requests, err := c.store.ListRequests(sessionID)
	if err != nil {
		logger.Warn("failed to list requests", logger.Err(err))
		return
	}
	c.state.SetRequests(requests)
}
