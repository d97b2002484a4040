package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so session and transfer activity can be
// correlated after the fact.
const (
	KeyDeviceID   = "device_id"   // stable device identifier
	KeyDeviceName = "device_name" // human-readable device name
	KeyDeviceIP   = "device_ip"   // device IPv4 address
	KeySessionID  = "session_id"  // paired session identifier
	KeyJobID      = "job_id"      // transfer job identifier
	KeyRequestID  = "request_id"  // file request identifier
	KeyPath       = "path"        // file path (absolute or hyperbox-relative)
	KeyDirection  = "direction"   // transfer direction: upload, download
	KeyStatus     = "status"      // session/job/request status string
	KeyMode       = "mode"        // sync mode: mirror, copy, approval
	KeySize       = "size"        // payload size in bytes
	KeyBytes      = "bytes"       // bytes copied so far
	KeyRateMBps   = "rate_mbps"   // instantaneous transfer rate
	KeyMsgType    = "msg_type"    // control protocol message type
	KeyPeer       = "peer"        // remote peer address
	KeyPort       = "port"        // TCP port
	KeyAttempt    = "attempt"     // retry attempt number
	KeyError      = "error"       // error message
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
)

// Field constructors for type safety.

// DeviceID returns a slog.Attr for a device identifier
func DeviceID(id string) slog.Attr {
	return slog.String(KeyDeviceID, id)
}

// SessionID returns a slog.Attr for a session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// JobID returns a slog.Attr for a transfer job identifier
func JobID(id string) slog.Attr {
	return slog.String(KeyJobID, id)
}

// RequestID returns a slog.Attr for a file request identifier
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Path returns a slog.Attr for a file path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Status returns a slog.Attr for a status string
func Status(s string) slog.Attr {
	return slog.String(KeyStatus, s)
}

// Size returns a slog.Attr for a payload size
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// MsgType returns a slog.Attr for a control message type
func MsgType(t string) slog.Attr {
	return slog.String(KeyMsgType, t)
}

// Peer returns a slog.Attr for a remote peer address
func Peer(addr string) slog.Attr {
	return slog.String(KeyPeer, addr)
}

// Port returns a slog.Attr for a TCP port
func Port(n int) slog.Attr {
	return slog.Int(KeyPort, n)
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
