// Package model defines the domain value types shared across the daemon.
//
// Session, PermissionPolicy, PairingSession, Device, and FileRequest are
// immutable value objects: every mutation produces a new value which is then
// written through to the store. TransferJob values are owned by the transfer
// worker that created them.
package model

import "time"

// SyncMode controls how files move between paired devices.
type SyncMode string

const (
	ModeMirror   SyncMode = "mirror"
	ModeCopy     SyncMode = "copy"
	ModeApproval SyncMode = "approval"
)

// ConflictRule governs how a destination-exists collision is handled.
type ConflictRule string

const (
	KeepBoth   ConflictRule = "keep_both"
	PreferHost ConflictRule = "prefer_host"
	PreferPeer ConflictRule = "prefer_peer"
)

// EditMode controls how peer edits are applied.
type EditMode string

const (
	CopyOnEdit EditMode = "copy_on_edit"
	InPlace    EditMode = "in_place"
)

// PresenceStatus is a device's last observed presence.
type PresenceStatus string

const (
	PresenceLocal   PresenceStatus = "local"
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// SessionStatus is a session's lifecycle state. Disconnected is terminal.
type SessionStatus string

const (
	SessionConnected    SessionStatus = "connected"
	SessionDisconnected SessionStatus = "disconnected"
)

// Direction of a transfer relative to the local device.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// TransferStatus is a transfer job's state. "receiving" and "sending" are
// peer-reported synonyms of "transferring" used for display.
type TransferStatus string

const (
	TransferRunning   TransferStatus = "transferring"
	TransferReceiving TransferStatus = "receiving"
	TransferSending   TransferStatus = "sending"
	TransferComplete  TransferStatus = "complete"
	TransferFailed    TransferStatus = "failed"
	TransferSkipped   TransferStatus = "skipped"
)

// RequestStatus advances monotonically; terminal statuses are immutable.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestApproved   RequestStatus = "approved"
	RequestDeclined   RequestStatus = "declined"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
	RequestSkipped    RequestStatus = "skipped"
)

// Requester identifies which side of the session originated a file request.
type Requester string

const (
	RequesterLocal Requester = "local"
	RequesterPeer  Requester = "peer"
)

// Device is a discovered or local machine. Devices are upserted on every
// re-observation and never deleted.
type Device struct {
	ID           string
	Name         string
	IP           string
	Status       PresenceStatus
	Capabilities []string
}

// PermissionPolicy is the mutable policy attached to a session.
// Invariant: ApprovalRequired is true iff Mode is ModeApproval.
type PermissionPolicy struct {
	Mode             SyncMode
	ApprovalRequired bool
	ConflictRule     ConflictRule
	AllowBrowse      bool
	AllowRequests    bool
	AllowEdits       bool
	EditMode         EditMode
	AllowClientShare bool
}

// DefaultPolicy returns the policy applied to a fresh pairing when the host
// has no stored preset for the peer.
func DefaultPolicy() PermissionPolicy {
	return PermissionPolicy{
		Mode:             ModeApproval,
		ApprovalRequired: true,
		ConflictRule:     KeepBoth,
		AllowBrowse:      true,
		AllowRequests:    true,
		AllowEdits:       false,
		EditMode:         CopyOnEdit,
		AllowClientShare: true,
	}
}

// Session is an authenticated pairing between the host and one peer.
type Session struct {
	ID         string
	HostDevice Device
	PeerDevice Device
	Status     SessionStatus
	Policy     PermissionPolicy
	Token      string
	CreatedAt  time.Time
}

// PairingSession is the transient one-time-code handshake state. It lives in
// memory only and is consumed on confirmation.
type PairingSession struct {
	ID         string
	Code       string
	HostDevice Device
	CreatedAt  time.Time
}

// TransferJob tracks one chunked file copy. Mutated only by the owning
// transfer worker.
type TransferJob struct {
	ID          string
	Path        string
	Direction   Direction
	Status      TransferStatus
	Size        int64
	BytesCopied int64
	Progress    float64
	Checksum    string // hex SHA-256; empty until completion
	RateMBps    float64
}

// FileRequest is a peer- or locally-originated ask for a file transfer.
type FileRequest struct {
	ID        string
	SessionID string
	Path      string
	Requester Requester
	Status    RequestStatus
	CreatedAt time.Time
}

// Terminal reports whether the request status admits no further transitions.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestDeclined, RequestCompleted, RequestFailed, RequestSkipped:
		return true
	}
	return false
}

// Terminal reports whether the transfer status admits no further transitions.
func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferComplete, TransferFailed, TransferSkipped:
		return true
	}
	return false
}
