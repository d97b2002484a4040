package store

import (
	"strings"
	"time"

	"github.com/hyperdesk/hyperdesk/internal/model"
)

// Row types mirror the on-disk schema. Timestamps are stored as ISO-8601 UTC
// strings so the database stays readable with plain sqlite tooling.

type deviceRow struct {
	ID           string `gorm:"column:id;primaryKey"`
	Name         string `gorm:"column:name"`
	IP           string `gorm:"column:ip"`
	Status       string `gorm:"column:status"`
	Capabilities string `gorm:"column:capabilities"`
	LastSeen     string `gorm:"column:last_seen"`
}

func (deviceRow) TableName() string { return "devices" }

func newDeviceRow(d model.Device, lastSeen string) deviceRow {
	return deviceRow{
		ID:           d.ID,
		Name:         d.Name,
		IP:           d.IP,
		Status:       string(d.Status),
		Capabilities: strings.Join(d.Capabilities, ","),
		LastSeen:     lastSeen,
	}
}

func (r deviceRow) toModel() model.Device {
	var caps []string
	for _, c := range strings.Split(r.Capabilities, ",") {
		if c != "" {
			caps = append(caps, c)
		}
	}
	return model.Device{
		ID:           r.ID,
		Name:         r.Name,
		IP:           r.IP,
		Status:       model.PresenceStatus(r.Status),
		Capabilities: caps,
	}
}

type sessionRow struct {
	ID               string `gorm:"column:id;primaryKey"`
	HostDeviceID     string `gorm:"column:host_device_id"`
	PeerDeviceID     string `gorm:"column:peer_device_id"`
	Status           string `gorm:"column:status"`
	Mode             string `gorm:"column:mode"`
	ApprovalRequired bool   `gorm:"column:approval_required"`
	ConflictRule     string `gorm:"column:conflict_rule"`
	Token            string `gorm:"column:token"`
	CreatedAt        string `gorm:"column:created_at"`
}

func (sessionRow) TableName() string { return "sessions" }

func newSessionRow(s model.Session) sessionRow {
	return sessionRow{
		ID:               s.ID,
		HostDeviceID:     s.HostDevice.ID,
		PeerDeviceID:     s.PeerDevice.ID,
		Status:           string(s.Status),
		Mode:             string(s.Policy.Mode),
		ApprovalRequired: s.Policy.ApprovalRequired,
		ConflictRule:     string(s.Policy.ConflictRule),
		Token:            s.Token,
		CreatedAt:        s.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type auditEventRow struct {
	ID        uint   `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID string `gorm:"column:session_id"`
	EventType string `gorm:"column:event_type"`
	Details   string `gorm:"column:details"`
	CreatedAt string `gorm:"column:created_at"`
}

func (auditEventRow) TableName() string { return "audit_events" }

type transferRow struct {
	ID        string  `gorm:"column:id;primaryKey"`
	SessionID string  `gorm:"column:session_id"`
	Path      string  `gorm:"column:path"`
	Direction string  `gorm:"column:direction"`
	Status    string  `gorm:"column:status"`
	Progress  float64 `gorm:"column:progress"`
	Checksum  string  `gorm:"column:checksum"`
	UpdatedAt string  `gorm:"column:updated_at"`
}

func (transferRow) TableName() string { return "transfers" }

func newTransferRow(sessionID string, job model.TransferJob, updatedAt string) transferRow {
	return transferRow{
		ID:        job.ID,
		SessionID: sessionID,
		Path:      job.Path,
		Direction: string(job.Direction),
		Status:    string(job.Status),
		Progress:  job.Progress,
		Checksum:  job.Checksum,
		UpdatedAt: updatedAt,
	}
}

type fileRequestRow struct {
	ID        string `gorm:"column:id;primaryKey"`
	SessionID string `gorm:"column:session_id"`
	Path      string `gorm:"column:path"`
	Requester string `gorm:"column:requester"`
	Status    string `gorm:"column:status"`
	CreatedAt string `gorm:"column:created_at"`
}

func (fileRequestRow) TableName() string { return "file_requests" }

func newFileRequestRow(r model.FileRequest) fileRequestRow {
	return fileRequestRow{
		ID:        r.ID,
		SessionID: r.SessionID,
		Path:      r.Path,
		Requester: string(r.Requester),
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (r fileRequestRow) toModel() model.FileRequest {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return model.FileRequest{
		ID:        r.ID,
		SessionID: r.SessionID,
		Path:      r.Path,
		Requester: model.Requester(r.Requester),
		Status:    model.RequestStatus(r.Status),
		CreatedAt: created,
	}
}

type preferenceRow struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

func (preferenceRow) TableName() string { return "preferences" }
