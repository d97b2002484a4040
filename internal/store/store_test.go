package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperdesk/hyperdesk/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDeviceUpsert(t *testing.T) {
	s := openTestStore(t)

	device := model.Device{
		ID:           "dev-1",
		Name:         "MYLAPTOP2",
		IP:           "192.168.1.100",
		Status:       model.PresenceOnline,
		Capabilities: []string{"hyperbox", "requests"},
	}
	require.NoError(t, s.RecordDevice(device))

	// Re-observation updates in place, no duplicate rows.
	device.IP = "192.168.1.101"
	require.NoError(t, s.RecordDevice(device))

	got, ok, err := s.GetDevice("dev-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.101", got.IP)
	assert.Equal(t, []string{"hyperbox", "requests"}, got.Capabilities)

	_, ok, err = s.GetDevice("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionRecordAndStatus(t *testing.T) {
	s := openTestStore(t)

	session := model.Session{
		ID:         "sess-1",
		HostDevice: model.Device{ID: "host-1"},
		PeerDevice: model.Device{ID: "peer-1"},
		Status:     model.SessionConnected,
		Policy:     model.DefaultPolicy(),
		Token:      "tok",
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.RecordSession(session))
	require.NoError(t, s.UpdateSessionStatus("sess-1", model.SessionDisconnected))

	var row sessionRow
	require.NoError(t, s.db.Where("id = ?", "sess-1").First(&row).Error)
	assert.Equal(t, "disconnected", row.Status)
	assert.Equal(t, "approval", row.Mode)
	assert.True(t, row.ApprovalRequired)
	assert.Equal(t, "keep_both", row.ConflictRule)
	assert.Equal(t, "tok", row.Token)
}

func TestListSessionsWithPeers(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordDevice(model.Device{ID: "peer-1", Name: "ALIENWAREPC"}))
	base := time.Now().UTC()
	require.NoError(t, s.RecordSession(model.Session{
		ID:         "sess-old",
		HostDevice: model.Device{ID: "host"},
		PeerDevice: model.Device{ID: "peer-1"},
		Policy:     model.DefaultPolicy(),
		CreatedAt:  base.Add(-time.Hour),
	}))
	require.NoError(t, s.RecordSession(model.Session{
		ID:         "sess-new",
		HostDevice: model.Device{ID: "host"},
		PeerDevice: model.Device{ID: "peer-gone"},
		Policy:     model.DefaultPolicy(),
		CreatedAt:  base,
	}))

	peers, err := s.ListSessionsWithPeers()
	require.NoError(t, err)
	require.Len(t, peers, 2)
	// Newest first; missing device row falls back to "Unknown".
	assert.Equal(t, "sess-new", peers[0].SessionID)
	assert.Equal(t, "Unknown", peers[0].PeerName)
	assert.Equal(t, "sess-old", peers[1].SessionID)
	assert.Equal(t, "ALIENWAREPC", peers[1].PeerName)
}

func TestTransferUpsert(t *testing.T) {
	s := openTestStore(t)

	job := model.TransferJob{
		ID:        "job-1",
		Path:      "reports/q3.pdf",
		Direction: model.DirectionUpload,
		Status:    model.TransferRunning,
		Progress:  0.25,
	}
	require.NoError(t, s.RecordTransfer("sess-1", job))

	job.Status = model.TransferComplete
	job.Progress = 1.0
	job.Checksum = "abc123"
	require.NoError(t, s.RecordTransfer("sess-1", job))

	var rows []transferRow
	require.NoError(t, s.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "complete", rows[0].Status)
	assert.Equal(t, 1.0, rows[0].Progress)
	assert.Equal(t, "abc123", rows[0].Checksum)
}

func TestRequestHistory(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().UTC()
	reqs := []model.FileRequest{
		{ID: "r1", SessionID: "s1", Path: "a.txt", Requester: model.RequesterPeer, Status: model.RequestPending, CreatedAt: base.Add(-2 * time.Minute)},
		{ID: "r2", SessionID: "s1", Path: "b.txt", Requester: model.RequesterLocal, Status: model.RequestCompleted, CreatedAt: base.Add(-time.Minute)},
		{ID: "r3", SessionID: "s2", Path: "c.txt", Requester: model.RequesterPeer, Status: model.RequestDeclined, CreatedAt: base},
	}
	for _, r := range reqs {
		require.NoError(t, s.RecordRequest(r))
	}

	one, err := s.ListRequests("s1")
	require.NoError(t, err)
	require.Len(t, one, 2)
	assert.Equal(t, "r2", one[0].ID)
	assert.Equal(t, "r1", one[1].ID)

	all, err := s.ListRequestsHistory("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID)

	// Upsert by id: approving updates status in place.
	reqs[0].Status = model.RequestApproved
	require.NoError(t, s.RecordRequest(reqs[0]))
	one, err = s.ListRequests("s1")
	require.NoError(t, err)
	assert.Equal(t, model.RequestApproved, one[1].Status)
}

func TestAuditEvents(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordAuditEvent("sess-1", "pairing_confirmed", "peer=dev-2"))
	require.NoError(t, s.RecordAuditEvent("sess-1", "session_disconnected", ""))

	var rows []auditEventRow
	require.NoError(t, s.db.Order("id ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "pairing_confirmed", rows[0].EventType)
	assert.NotEmpty(t, rows[0].CreatedAt)
}

func TestPreferences(t *testing.T) {
	s := openTestStore(t)

	v, err := s.GetPreference("missing", "dflt")
	require.NoError(t, err)
	assert.Equal(t, "dflt", v)

	require.NoError(t, s.SetPreference("transfer_chunk_size", "8388608"))
	require.NoError(t, s.SetPreference("transfer_verify", "True"))
	require.NoError(t, s.SetPreference("transfer_retry", "bogus"))

	n, err := s.GetPreferenceInt("transfer_chunk_size", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8388608), n)

	n, err = s.GetPreferenceInt("transfer_retry", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	b, err := s.GetPreferenceBool("transfer_verify", false)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = s.GetPreferenceBool("transfer_retry", true)
	require.NoError(t, err)
	assert.False(t, b)

	// Overwrite wins.
	require.NoError(t, s.SetPreference("transfer_verify", "false"))
	b, err = s.GetPreferenceBool("transfer_verify", true)
	require.NoError(t, err)
	assert.False(t, b)

	all, err := s.ListPreferences()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
