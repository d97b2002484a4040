package controller

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperdesk/hyperdesk/internal/bytesize"
	"github.com/hyperdesk/hyperdesk/internal/logger"
	"github.com/hyperdesk/hyperdesk/internal/metrics"
	"github.com/hyperdesk/hyperdesk/internal/model"
	"github.com/hyperdesk/hyperdesk/internal/protocol"
	"github.com/hyperdesk/hyperdesk/internal/transfer"
)

func newID() string { return uuid.NewString() }

// SimulateTransfer copies the demo payload into the inbox through the full
// transfer pipeline, as an incoming file would arrive.
func (c *Controller) SimulateTransfer() error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no active session")
	}

	source, err := c.box.EnsureDemoFile()
	if err != nil {
		return err
	}
	c.startTransferWorker(session, source, model.DirectionDownload, nil)
	return nil
}

// SimulateRequest files a fake peer request for the demo payload.
func (c *Controller) SimulateRequest() error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no active session")
	}

	request := model.FileRequest{
		ID:        newID(),
		SessionID: session.ID,
		Path:      "demo_payload.bin",
		Requester: model.RequesterPeer,
		Status:    model.RequestPending,
		CreatedAt: time.Now().UTC(),
	}
	c.persistRequest(request)
	c.refreshRequests(session.ID)
	c.state.AddLog("Simulated peer request: " + request.Path)
	return nil
}

// ApproveRequest approves a pending request and starts its transfer.
func (c *Controller) ApproveRequest(requestID string) error {
	return c.ApproveRequestWithSource(requestID, "")
}

// ApproveRequestWithSource approves a request, overriding the source path
// resolution with an explicit file.
func (c *Controller) ApproveRequestWithSource(requestID, sourcePath string) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no active session")
	}

	request, err := c.findRequest(session.ID, requestID)
	if err != nil {
		return err
	}
	if request.Status.Terminal() {
		return fmt.Errorf("request %s is already %s", requestID, request.Status)
	}

	source := c.resolveSource(request, sourcePath)
	if source == "" {
		return fmt.Errorf("no source available for request %s", requestID)
	}

	request.Status = model.RequestApproved
	c.persistRequest(request)
	c.refreshRequests(session.ID)
	c.state.AddLog("Request approved: " + request.Path)

	if request.Requester == model.RequesterPeer {
		return c.startNetworkTransfer(session, source, request)
	}
	c.startTransferWorker(session, source, model.DirectionUpload, &request)
	return nil
}

// DeclineRequest marks a pending request declined.
func (c *Controller) DeclineRequest(requestID string) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no active session")
	}

	request, err := c.findRequest(session.ID, requestID)
	if err != nil {
		return err
	}
	if request.Status.Terminal() {
		return fmt.Errorf("request %s is already %s", requestID, request.Status)
	}

	request.Status = model.RequestDeclined
	c.persistRequest(request)
	c.refreshRequests(session.ID)
	c.audit(session.ID, "request_declined", request.Path)
	c.state.AddLog("Request declined: " + request.Path)
	return nil
}

func (c *Controller) findRequest(sessionID, requestID string) (model.FileRequest, error) {
	requests, err := c.store.ListRequests(sessionID)
	if err != nil {
		return model.FileRequest{}, err
	}
	for _, request := range requests {
		if request.ID == requestID {
			return request, nil
		}
	}
	return model.FileRequest{}, fmt.Errorf("unknown request %s", requestID)
}

// resolveSource picks the file to serve: explicit override, the recorded
// drop-zone source, the request path itself, a hyperbox-relative path, then
// the demo payload.
func (c *Controller) resolveSource(request model.FileRequest, explicit string) string {
	if explicit != "" {
		return explicit
	}

	c.mu.Lock()
	recorded := c.requestSources[request.ID]
	c.mu.Unlock()
	if recorded != "" {
		return recorded
	}

	if filepath.IsAbs(request.Path) {
		if _, err := os.Stat(request.Path); err == nil {
			return request.Path
		}
	}
	relative := filepath.Join(c.box.Root(), request.Path)
	if _, err := os.Stat(relative); err == nil {
		return relative
	}

	demo, err := c.box.EnsureDemoFile()
	if err != nil {
		return ""
	}
	return demo
}

// startTransferWorker runs one local copy into the inbox on its own
// goroutine. A linked request follows the job into its terminal status.
func (c *Controller) startTransferWorker(session *model.Session, source string, direction model.Direction, linked *model.FileRequest) {
	job := model.TransferJob{
		ID:        newID(),
		Path:      filepath.Base(source),
		Direction: direction,
		Status:    model.TransferRunning,
	}
	if info, err := os.Stat(source); err == nil {
		job.Size = info.Size()
	}

	c.publishTransfer(job)
	c.broadcastTransferStatus(job)

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		c.runLocalTransfer(session, source, job, linked)
	}()
}

func (c *Controller) runLocalTransfer(session *model.Session, source string, job model.TransferJob, linked *model.FileRequest) {
	dest := filepath.Join(c.box.Inbox(), filepath.Base(source))

	// Conflict rules apply to local copies in mirror mode only.
	if session.Policy.Mode == model.ModeMirror {
		if _, err := os.Stat(dest); err == nil {
			switch session.Policy.ConflictRule {
			case model.PreferPeer:
				job.Status = model.TransferSkipped
				c.finishTransfer(session, job, linked)
				c.state.AddLog("Transfer skipped (prefer_peer): " + job.Path)
				return
			case model.KeepBoth:
				renamed := conflictSibling(dest)
				if err := os.Rename(dest, renamed); err != nil {
					logger.Warn("failed to set aside conflicting file",
						logger.Path(dest), logger.Err(err))
				}
			}
			// prefer_host writes over the existing file.
		}
	}

	settings := c.TransferSettings()
	result, err := transfer.CopyWithChecksum(source, dest, transfer.CopyOptions{
		ChunkSize:    settings.ChunkSizeBytes(),
		Resume:       true,
		MaxBandwidth: bytesize.ParseBandwidth(settings.MaxBandwidth),
		RetryPolicy:  settings.RetryPolicy,
		MaxRetries:   int(settings.MaxRetries),
		OnProgress: func(copied, total int64) {
			job.BytesCopied = copied
			job.Size = total
			if total > 0 {
				job.Progress = float64(copied) / float64(total)
			}
			job.RateMBps = c.computeRate(job.ID, copied)
			c.publishTransfer(job)
		},
	})
	c.markTransferred(dest)

	if err != nil {
		job.Status = model.TransferFailed
		c.state.AddLog(fmt.Sprintf("Transfer failed: %s: %v", job.Path, err))
	} else {
		job.Status = model.TransferComplete
		job.BytesCopied = result.BytesCopied
		job.Progress = 1.0
		job.Checksum = result.Checksum
		c.state.AddLog("Transfer complete: " + job.Path)
	}
	c.finishTransfer(session, job, linked)
}

// startNetworkTransfer serves a file to the peer over the framed TCP
// channel, announcing the endpoint in a TRANSFER_OFFER first.
func (c *Controller) startNetworkTransfer(session *model.Session, source string, request model.FileRequest) error {
	settings := c.TransferSettings()

	var cipher *transfer.Cipher
	if settings.Encryption {
		var err error
		cipher, err = transfer.NewCipher(session.Token)
		if err != nil {
			return err
		}
	}

	sender, err := transfer.NewSender(transfer.SenderOptions{
		ChunkSize: settings.ChunkSizeBytes(),
		Cipher:    cipher,
	})
	if err != nil {
		return err
	}

	job := model.TransferJob{
		ID:        newID(),
		Path:      filepath.Base(source),
		Direction: model.DirectionUpload,
		Status:    model.TransferRunning,
	}
	if info, err := os.Stat(source); err == nil {
		job.Size = info.Size()
	}

	request.Status = model.RequestInProgress
	c.persistRequest(request)
	c.refreshRequests(session.ID)

	c.publishTransfer(job)
	c.server.Broadcast(protocol.TypeTransferOffer, protocol.Payload{
		"session_id":    session.ID,
		"job_id":        job.ID,
		"filename":      job.Path,
		"size":          job.Size,
		"host":          c.local.IP,
		"port":          sender.Port(),
		"conflict_rule": string(session.Policy.ConflictRule),
		"encrypted":     settings.Encryption,
	})

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		result, err := sender.SendFile(source, func(sent, total int64) {
			job.BytesCopied = sent
			job.Size = total
			if total > 0 {
				job.Progress = float64(sent) / float64(total)
			}
			job.RateMBps = c.computeRate(job.ID, sent)
			c.publishTransfer(job)
		}, bytesize.ParseBandwidth(settings.MaxBandwidth))

		if err != nil {
			job.Status = model.TransferFailed
			c.state.AddLog(fmt.Sprintf("Network transfer failed: %s: %v", job.Path, err))
		} else {
			job.Status = model.TransferComplete
			job.BytesCopied = result.BytesCopied
			job.Progress = 1.0
			job.Checksum = result.Checksum
			c.state.AddLog("Served file to peer: " + job.Path)
		}
		c.finishTransfer(session, job, &request)
	}()
	return nil
}

// finishTransfer publishes a terminal job, updates metrics, broadcasts the
// boundary status, and settles any linked request.
func (c *Controller) finishTransfer(session *model.Session, job model.TransferJob, linked *model.FileRequest) {
	c.publishTransfer(job)
	c.broadcastTransferStatus(job)
	metrics.TransfersTotal.WithLabelValues(string(job.Status)).Inc()
	if job.Status == model.TransferComplete {
		metrics.TransferBytesTotal.WithLabelValues(string(job.Direction)).Add(float64(job.BytesCopied))
	}

	c.mu.Lock()
	delete(c.rates, job.ID)
	c.mu.Unlock()

	if linked == nil {
		return
	}
	switch job.Status {
	case model.TransferComplete:
		linked.Status = model.RequestCompleted
	case model.TransferSkipped:
		linked.Status = model.RequestSkipped
	default:
		linked.Status = model.RequestFailed
	}
	c.persistRequest(*linked)
	c.refreshRequests(session.ID)
}

// publishTransfer pushes a job snapshot to observers and the store.
func (c *Controller) publishTransfer(job model.TransferJob) {
	c.state.UpsertTransfer(job)
	if c.closing.Load() {
		return
	}
	sessionID := ""
	c.mu.Lock()
	if c.session != nil {
		sessionID = c.session.ID
	}
	c.mu.Unlock()
	if err := c.store.RecordTransfer(sessionID, job); err != nil {
		logger.Warn("failed to persist transfer", logger.JobID(job.ID), logger.Err(err))
	}
}

func (c *Controller) broadcastTransferStatus(job model.TransferJob) {
	c.server.Broadcast(protocol.TypeTransferStatus, protocol.Payload{
		"job_id":   job.ID,
		"status":   string(job.Status),
		"progress": job.Progress,
		"checksum": job.Checksum,
	})
}

// computeRate derives MB/s from the delta since the previous sample.
func (c *Controller) computeRate(jobID string, bytes int64) float64 {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.rates[jobID]
	c.rates[jobID] = rateSample{bytes: bytes, at: now}
	if !ok {
		return 0
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes-prev.bytes) / elapsed / (1024 * 1024)
}

// conflictSibling mirrors the network receiver's keep-both naming for local
// set-asides.
func conflictSibling(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamp := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("%s_conflict_%s%s", stem, stamp, ext))
}
