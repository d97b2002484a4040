// Package hyperbox manages the shared directory tree and watches it for
// changes.
//
// The hyperbox root holds three working directories: inbox/ receives files
// from the peer, outbox/ stages files to send, and requests/ is a drop zone
// that turns file appearances into FileRequests when the session runs in
// approval mode.
package hyperbox

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DemoFileName is the reproducible test payload written into the root.
const DemoFileName = "demo_payload.bin"

// DemoFileSize is the demo payload size.
const DemoFileSize = 2 << 20 // 2 MiB

// Manager owns the hyperbox directory layout.
type Manager struct {
	root string
}

// NewManager returns a manager rooted at root, defaulting to <cwd>/hyperbox.
func NewManager(root string) *Manager {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		root = filepath.Join(cwd, "hyperbox")
	}
	return &Manager{root: root}
}

// Root returns the hyperbox root directory.
func (m *Manager) Root() string { return m.root }

// Inbox returns the inbox directory.
func (m *Manager) Inbox() string { return filepath.Join(m.root, "inbox") }

// Outbox returns the outbox directory.
func (m *Manager) Outbox() string { return filepath.Join(m.root, "outbox") }

// Requests returns the requests drop zone.
func (m *Manager) Requests() string { return filepath.Join(m.root, "requests") }

// EnsureLayout creates the root and its three working directories.
func (m *Manager) EnsureLayout() error {
	for _, dir := range []string{m.root, m.Inbox(), m.Outbox(), m.Requests()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create hyperbox directory %s: %w", dir, err)
		}
	}
	return nil
}

// DemoFile returns the demo payload path.
func (m *Manager) DemoFile() string {
	return filepath.Join(m.root, DemoFileName)
}

// EnsureDemoFile writes a 2 MiB random payload if the file is absent or has
// the wrong size, so simulated transfers always have a stable subject.
func (m *Manager) EnsureDemoFile() (string, error) {
	path := m.DemoFile()
	if info, err := os.Stat(path); err == nil && info.Size() == DemoFileSize {
		return path, nil
	}
	if err := m.EnsureLayout(); err != nil {
		return "", err
	}

	payload := make([]byte, DemoFileSize)
	if _, err := rand.Read(payload); err != nil {
		return "", fmt.Errorf("failed to generate demo payload: %w", err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return "", fmt.Errorf("failed to write demo payload: %w", err)
	}
	return path, nil
}

// Section returns which working directory a path falls under: "inbox",
// "outbox", "requests", or "" for anything else (including the root itself).
func (m *Manager) Section(path string) string {
	for _, section := range []string{"inbox", "outbox", "requests"} {
		dir := filepath.Join(m.root, section)
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." || rel == ".." ||
			strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return section
	}
	return ""
}
