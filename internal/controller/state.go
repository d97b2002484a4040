// Package controller orchestrates discovery, pairing, transfers and the
// control plane into one observable application.
package controller

import (
	"sync"
	"time"

	"github.com/hyperdesk/hyperdesk/internal/model"
)

// signal is a minimal typed observer list. Emission runs subscribers
// synchronously on the emitting goroutine; subscribers must hand off any
// slow work to their own scheduling.
type signal[T any] struct {
	mu   sync.Mutex
	subs []func(T)
}

func (s *signal[T]) subscribe(fn func(T)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *signal[T]) emit(value T) {
	s.mu.Lock()
	subs := append([]func(T){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(value)
	}
}

// LogEntry is one line on the state's log channel.
type LogEntry struct {
	Time    time.Time
	Message string
}

// State is the observable application state. Mutations can arrive from any
// goroutine; snapshots are copied out under lock.
type State struct {
	mu        sync.Mutex
	devices   []model.Device
	session   *model.Session
	pairing   *model.PairingSession
	transfers map[string]model.TransferJob
	order     []string // transfer ids in first-seen order
	requests  []model.FileRequest
	logs      []LogEntry

	devicesChanged   signal[[]model.Device]
	sessionChanged   signal[*model.Session]
	pairingChanged   signal[*model.PairingSession]
	logAdded         signal[LogEntry]
	transfersChanged signal[[]model.TransferJob]
	requestsChanged  signal[[]model.FileRequest]
}

// NewState returns an empty observable state.
func NewState() *State {
	return &State{transfers: make(map[string]model.TransferJob)}
}

// OnDevicesChanged registers a devices listener.
func (s *State) OnDevicesChanged(fn func([]model.Device)) { s.devicesChanged.subscribe(fn) }

// OnSessionChanged registers a session listener. A nil session means no
// active pairing.
func (s *State) OnSessionChanged(fn func(*model.Session)) { s.sessionChanged.subscribe(fn) }

// OnPairingChanged registers a pending-pairing listener.
func (s *State) OnPairingChanged(fn func(*model.PairingSession)) { s.pairingChanged.subscribe(fn) }

// OnLogAdded registers a log line listener.
func (s *State) OnLogAdded(fn func(LogEntry)) { s.logAdded.subscribe(fn) }

// OnTransfersChanged registers a transfer list listener.
func (s *State) OnTransfersChanged(fn func([]model.TransferJob)) { s.transfersChanged.subscribe(fn) }

// OnRequestsChanged registers a request list listener.
func (s *State) OnRequestsChanged(fn func([]model.FileRequest)) { s.requestsChanged.subscribe(fn) }

// SetDevices replaces the device list.
func (s *State) SetDevices(devices []model.Device) {
	s.mu.Lock()
	s.devices = append([]model.Device(nil), devices...)
	s.mu.Unlock()
	s.devicesChanged.emit(devices)
}

// Devices returns a snapshot of the device list.
func (s *State) Devices() []model.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Device(nil), s.devices...)
}

// SetSession publishes the current session, or nil for none.
func (s *State) SetSession(session *model.Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	s.sessionChanged.emit(session)
}

// Session returns the current session, or nil.
func (s *State) Session() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SetPairing publishes the pending pairing, or nil for none.
func (s *State) SetPairing(pairing *model.PairingSession) {
	s.mu.Lock()
	s.pairing = pairing
	s.mu.Unlock()
	s.pairingChanged.emit(pairing)
}

// Pairing returns the pending pairing, or nil.
func (s *State) Pairing() *model.PairingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairing
}

// UpsertTransfer publishes one transfer job update.
func (s *State) UpsertTransfer(job model.TransferJob) {
	s.mu.Lock()
	if _, ok := s.transfers[job.ID]; !ok {
		s.order = append(s.order, job.ID)
	}
	s.transfers[job.ID] = job
	snapshot := s.transferSnapshotLocked()
	s.mu.Unlock()
	s.transfersChanged.emit(snapshot)
}

// Transfers returns the jobs in first-seen order.
func (s *State) Transfers() []model.TransferJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferSnapshotLocked()
}

func (s *State) transferSnapshotLocked() []model.TransferJob {
	out := make([]model.TransferJob, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.transfers[id])
	}
	return out
}

// SetRequests replaces the request list.
func (s *State) SetRequests(requests []model.FileRequest) {
	s.mu.Lock()
	s.requests = append([]model.FileRequest(nil), requests...)
	s.mu.Unlock()
	s.requestsChanged.emit(requests)
}

// Requests returns a snapshot of the request list.
func (s *State) Requests() []model.FileRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.FileRequest(nil), s.requests...)
}

// AddLog appends a line to the log channel.
func (s *State) AddLog(message string) {
	entry := LogEntry{Time: time.Now().UTC(), Message: message}
	s.mu.Lock()
	s.logs = append(s.logs, entry)
	s.mu.Unlock()
	s.logAdded.emit(entry)
}

// Logs returns a snapshot of the log lines.
func (s *State) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.logs...)
}
