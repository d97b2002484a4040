// Package store provides the embedded relational persistence layer.
//
// All durable state lives in a single SQLite database: devices, sessions,
// transfers, file requests, audit events, and user preferences. Schema is
// created idempotently at open via AutoMigrate, which also adds columns
// introduced after older database files were written (sessions.token,
// sessions.conflict_rule). The in-memory state is authoritative at runtime;
// write errors are reported to callers who may choose to continue.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hyperdesk/hyperdesk/internal/model"
)

// Config contains store configuration.
type Config struct {
	// Path is the SQLite database file. Default: <cwd>/data/hyperdesk.db.
	// ":memory:" opens an in-memory database (used by tests).
	Path string
}

// DefaultPath returns the default database location under the working
// directory.
func DefaultPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return filepath.Join(cwd, "data", "hyperdesk.db")
}

// Store wraps the GORM handle. Safe for concurrent use: SQLite runs in WAL
// mode with a busy timeout, and every row mutation is its own transaction.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at cfg.Path and migrates the
// schema.
func Open(cfg Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL for concurrent readers, busy_timeout to ride out writer contention.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&deviceRow{},
		&sessionRow{},
		&auditEventRow{},
		&transferRow{},
		&fileRequestRow{},
		&preferenceRow{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordDevice upserts a device row and refreshes last_seen.
func (s *Store) RecordDevice(device model.Device) error {
	row := newDeviceRow(device, utcNow())
	return s.db.Save(&row).Error
}

// GetDevice returns a device by id, or model.Device zero value and false.
func (s *Store) GetDevice(id string) (model.Device, bool, error) {
	var row deviceRow
	err := s.db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Device{}, false, nil
	}
	if err != nil {
		return model.Device{}, false, err
	}
	return row.toModel(), true, nil
}

// RecordSession upserts the full session row, including its policy.
func (s *Store) RecordSession(session model.Session) error {
	row := newSessionRow(session)
	return s.db.Save(&row).Error
}

// UpdateSessionStatus sets the status column only. Used for the sticky
// terminal disconnect.
func (s *Store) UpdateSessionStatus(sessionID string, status model.SessionStatus) error {
	return s.db.Model(&sessionRow{}).
		Where("id = ?", sessionID).
		Update("status", string(status)).Error
}

// RecordAuditEvent appends to the audit log. Audit rows are never updated.
func (s *Store) RecordAuditEvent(sessionID, eventType, details string) error {
	row := auditEventRow{
		SessionID: sessionID,
		EventType: eventType,
		Details:   details,
		CreatedAt: utcNow(),
	}
	return s.db.Create(&row).Error
}

// RecordTransfer upserts a transfer row keyed by job id.
func (s *Store) RecordTransfer(sessionID string, job model.TransferJob) error {
	row := newTransferRow(sessionID, job, utcNow())
	return s.db.Save(&row).Error
}

// RecordRequest upserts a file request row.
func (s *Store) RecordRequest(request model.FileRequest) error {
	row := newFileRequestRow(request)
	return s.db.Save(&row).Error
}

// ListRequests returns the requests for a session, newest first.
func (s *Store) ListRequests(sessionID string) ([]model.FileRequest, error) {
	var rows []fileRequestRow
	err := s.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return requestsToModel(rows), nil
}

// ListRequestsHistory returns requests newest first, optionally filtered to
// one session. An empty sessionID returns the full history.
func (s *Store) ListRequestsHistory(sessionID string) ([]model.FileRequest, error) {
	query := s.db.Order("created_at DESC")
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	var rows []fileRequestRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return requestsToModel(rows), nil
}

// SessionPeer is one row of the session/device left join.
type SessionPeer struct {
	SessionID    string
	PeerDeviceID string
	PeerName     string
}

// ListSessionsWithPeers lists all sessions joined against the device table,
// newest first. Sessions whose peer device row is missing report "Unknown".
func (s *Store) ListSessionsWithPeers() ([]SessionPeer, error) {
	var results []struct {
		SessionID    string
		PeerDeviceID string
		PeerName     *string
	}
	err := s.db.Raw(`
		SELECT sessions.id AS session_id,
		       sessions.peer_device_id AS peer_device_id,
		       devices.name AS peer_name
		FROM sessions
		LEFT JOIN devices ON sessions.peer_device_id = devices.id
		ORDER BY sessions.created_at DESC
	`).Scan(&results).Error
	if err != nil {
		return nil, err
	}

	out := make([]SessionPeer, 0, len(results))
	for _, r := range results {
		name := "Unknown"
		if r.PeerName != nil && *r.PeerName != "" {
			name = *r.PeerName
		}
		out = append(out, SessionPeer{
			SessionID:    r.SessionID,
			PeerDeviceID: r.PeerDeviceID,
			PeerName:     name,
		})
	}
	return out, nil
}

func requestsToModel(rows []fileRequestRow) []model.FileRequest {
	out := make([]model.FileRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out
}

// utcNow returns the current time as an ISO-8601 UTC string, the timestamp
// format used throughout the schema.
func utcNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
