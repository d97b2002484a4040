// Package pairing implements the one-time-code handshake that upgrades a
// discovered device into an authenticated session.
package pairing

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperdesk/hyperdesk/internal/model"
)

// tokenBytes is the entropy of a session token before URL-safe encoding.
const tokenBytes = 24

// Manager holds the transient pairing state. Sessions and PairingSessions
// are immutable values; every mutation returns a fresh copy.
type Manager struct {
	mu     sync.Mutex
	byID   map[string]model.PairingSession
	byCode map[string]model.PairingSession
}

// NewManager returns an empty pairing manager.
func NewManager() *Manager {
	return &Manager{
		byID:   make(map[string]model.PairingSession),
		byCode: make(map[string]model.PairingSession),
	}
}

// CreatePairing mints a new pairing session for the host device with a
// uniformly random zero-padded 6-digit code.
func (m *Manager) CreatePairing(host model.Device) (model.PairingSession, error) {
	code, err := generateCode()
	if err != nil {
		return model.PairingSession{}, fmt.Errorf("failed to generate pairing code: %w", err)
	}
	pairing := model.PairingSession{
		ID:         uuid.NewString(),
		Code:       code,
		HostDevice: host,
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	m.byID[pairing.ID] = pairing
	m.byCode[pairing.Code] = pairing
	m.mu.Unlock()

	return pairing, nil
}

// FindByCode resolves a pending pairing by its display code.
func (m *Manager) FindByCode(code string) (model.PairingSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byCode[code]
	return p, ok
}

// Find resolves a pending pairing by id.
func (m *Manager) Find(id string) (model.PairingSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	return p, ok
}

// Pending returns the pending pairings, if any.
func (m *Manager) Pending() []model.PairingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PairingSession, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out
}

// ConfirmPairing verifies the presented code against the pending pairing,
// mints a session token, and consumes the pairing. ApprovalRequired follows
// the selected mode.
func (m *Manager) ConfirmPairing(p model.PairingSession, code string, peer model.Device, policy model.PermissionPolicy) (model.Session, error) {
	if p.Code != code {
		return model.Session{}, fmt.Errorf("pairing code mismatch for pairing %s", p.ID)
	}

	token, err := generateToken()
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to mint session token: %w", err)
	}

	policy.ApprovalRequired = policy.Mode == model.ModeApproval
	session := model.Session{
		ID:         uuid.NewString(),
		HostDevice: p.HostDevice,
		PeerDevice: peer,
		Status:     model.SessionConnected,
		Policy:     policy,
		Token:      token,
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	delete(m.byID, p.ID)
	delete(m.byCode, p.Code)
	m.mu.Unlock()

	return session, nil
}

// UpdateSession returns a copy of the session with the new status and policy
// applied. ApprovalRequired is re-derived from the mode.
func (m *Manager) UpdateSession(session model.Session, status model.SessionStatus, policy model.PermissionPolicy) model.Session {
	policy.ApprovalRequired = policy.Mode == model.ModeApproval
	session.Status = status
	session.Policy = policy
	return session
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
