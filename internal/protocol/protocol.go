// Package protocol implements the versioned JSON envelope carried on the
// control plane. The codec is pure: it performs no I/O and holds no state
// beyond the static schema table.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Version is the current wire protocol version.
const Version = "0.1"

// Message types carried on the control plane.
const (
	TypeDiscoveryPing  = "DISCOVERY_PING"
	TypeDiscoveryOffer = "DISCOVERY_OFFER"
	TypePairingRequest = "PAIRING_REQUEST"
	TypePairingOffer   = "PAIRING_OFFER"
	TypePairingConfirm = "PAIRING_CONFIRM"
	TypePairingDecline = "PAIRING_DECLINE"
	TypePairingAccept  = "PAIRING_ACCEPT"
	TypeSessionUpdate  = "SESSION_UPDATE"
	TypeTransferReq    = "TRANSFER_REQUEST"
	TypeTransferOffer  = "TRANSFER_OFFER"
	TypeTransferStatus = "TRANSFER_STATUS"
)

// policyFields are the payload fields shared by PAIRING_OFFER and
// SESSION_UPDATE beyond their own identifiers.
var policyFields = []string{
	"mode",
	"approval_required",
	"conflict_rule",
	"allow_browse",
	"allow_requests",
	"allow_edits",
	"edit_mode",
	"allow_client_share",
}

// messageSchemas maps each message type to its required payload fields.
// Extra payload fields are accepted and forwarded unchanged.
var messageSchemas = map[string][]string{
	TypeDiscoveryPing:  {"device_id", "name", "capabilities"},
	TypeDiscoveryOffer: {"device_id", "name", "ip", "capabilities"},
	TypePairingRequest: {"device_id", "pair_code"},
	TypePairingOffer: append(
		[]string{"session_id", "host_id", "host_name", "host_ip"},
		policyFields...,
	),
	TypePairingConfirm: {"session_id", "device_id"},
	TypePairingDecline: {"session_id", "device_id"},
	TypePairingAccept:  {"session_id", "device_id", "session_token"},
	TypeSessionUpdate: append(
		[]string{"session_id", "status"},
		policyFields...,
	),
	TypeTransferReq:    {"session_id", "path", "direction", "size"},
	TypeTransferOffer:  {"session_id", "job_id", "filename", "size", "host", "port"},
	TypeTransferStatus: {"job_id", "status", "progress", "checksum"},
}

// Error is a typed protocol error raised on malformed or invalid envelopes.
// The control plane logs and drops the offending frame without closing the
// connection.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "protocol: " + e.Reason
}

func errorf(format string, args ...any) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

// Message is a decoded control plane envelope.
type Message struct {
	Version   string         `json:"version"`
	Type      string         `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Payload is a convenience alias for building outbound payloads.
type Payload = map[string]any

// Encode validates the payload against the schema for messageType and
// returns the serialized envelope. The timestamp is ISO-8601 UTC.
func Encode(messageType string, payload Payload, requestID string) ([]byte, error) {
	if _, ok := messageSchemas[messageType]; !ok {
		return nil, errorf("unknown message type: %s", messageType)
	}
	if err := validatePayload(messageType, payload); err != nil {
		return nil, err
	}
	msg := Message{
		Version:   Version,
		Type:      messageType,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errorf("marshal failed: %v", err)
	}
	return data, nil
}

// Decode parses and validates a raw envelope.
func Decode(raw []byte) (*Message, error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, errorf("invalid JSON payload")
	}

	for _, key := range []string{"version", "type", "timestamp", "payload"} {
		if _, ok := outer[key]; !ok {
			return nil, errorf("missing required field: %s", key)
		}
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errorf("invalid envelope: %v", err)
	}
	if _, ok := messageSchemas[msg.Type]; !ok {
		return nil, errorf("unknown message type: %s", msg.Type)
	}
	if msg.Payload == nil {
		return nil, errorf("payload must be an object")
	}
	if err := validatePayload(msg.Type, msg.Payload); err != nil {
		return nil, err
	}
	return &msg, nil
}

func validatePayload(messageType string, payload Payload) error {
	var missing []string
	for _, key := range messageSchemas[messageType] {
		if _, ok := payload[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return errorf("payload missing fields for %s: %v", messageType, missing)
	}
	return nil
}

// String extracts a string payload field, returning fallback when the field
// is absent or not a string.
func (m *Message) String(key, fallback string) string {
	if v, ok := m.Payload[key].(string); ok {
		return v
	}
	return fallback
}

// Int64 extracts an integer payload field. JSON numbers decode as float64.
func (m *Message) Int64(key string, fallback int64) int64 {
	switch v := m.Payload[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

// Float64 extracts a numeric payload field.
func (m *Message) Float64(key string, fallback float64) float64 {
	if v, ok := m.Payload[key].(float64); ok {
		return v
	}
	return fallback
}

// Bool extracts a boolean payload field.
func (m *Message) Bool(key string, fallback bool) bool {
	if v, ok := m.Payload[key].(bool); ok {
		return v
	}
	return fallback
}

// Strings extracts a string-slice payload field. A comma-joined string is
// split, matching what discovery TXT records carry.
func (m *Message) Strings(key string) []string {
	switch v := m.Payload[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}
