package controller

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperdesk/hyperdesk/internal/model"
	"github.com/hyperdesk/hyperdesk/internal/protocol"
)

func linkInMode(t *testing.T, c *Controller, deviceID string, mode model.SyncMode, rule model.ConflictRule) *model.Session {
	t.Helper()
	require.NoError(t, c.store.SetPreference("device."+deviceID+".sync_mode", string(mode)))
	require.NoError(t, c.store.SetPreference("device."+deviceID+".conflict_rule", string(rule)))
	_, err := c.LinkToDevice(model.Device{ID: deviceID, Name: "PEERBOX"})
	require.NoError(t, err)
	return c.Session()
}

func TestOutboxAutoSyncInMirrorMode(t *testing.T) {
	c := newTestController(t)
	linkInMode(t, c, "m1", model.ModeMirror, model.KeepBoth)

	source := filepath.Join(c.Hyperbox().Outbox(), "x.txt")
	require.NoError(t, os.WriteFile(source, []byte("mirror me"), 0644))

	dest := filepath.Join(c.Hyperbox().Inbox(), "x.txt")
	waitFor(t, "outbox sync", func() bool {
		data, err := os.ReadFile(dest)
		return err == nil && string(data) == "mirror me"
	})

	waitFor(t, "job completion", func() bool {
		transfers := c.State().Transfers()
		return len(transfers) == 1 && transfers[0].Status == model.TransferComplete
	})
	job := c.State().Transfers()[0]
	assert.Equal(t, "x.txt", job.Path)
	assert.Equal(t, model.DirectionUpload, job.Direction)
	assert.Len(t, job.Checksum, 64)
}

func TestOutboxDebounce(t *testing.T) {
	c := newTestController(t)
	linkInMode(t, c, "m2", model.ModeMirror, model.KeepBoth)

	source := filepath.Join(c.Hyperbox().Outbox(), "burst.txt")
	require.NoError(t, os.WriteFile(source, []byte("v1"), 0644))
	// Second change lands inside the debounce window.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(source, []byte("v2"), 0644))

	waitFor(t, "first transfer", func() bool {
		return len(c.State().Transfers()) >= 1
	})
	time.Sleep(500 * time.Millisecond)
	assert.Len(t, c.State().Transfers(), 1)
}

func TestOutboxSkipWithPreferPeer(t *testing.T) {
	c := newTestController(t)
	linkInMode(t, c, "m3", model.ModeMirror, model.PreferPeer)

	dest := filepath.Join(c.Hyperbox().Inbox(), "keep.txt")
	require.NoError(t, os.WriteFile(dest, []byte("local copy"), 0644))

	source := filepath.Join(c.Hyperbox().Outbox(), "keep.txt")
	require.NoError(t, os.WriteFile(source, []byte("overwriting copy"), 0644))

	waitFor(t, "skipped job", func() bool {
		transfers := c.State().Transfers()
		return len(transfers) == 1 && transfers[0].Status == model.TransferSkipped
	})

	// No data written.
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "local copy", string(data))
}

func TestRequestsDropZoneInApprovalMode(t *testing.T) {
	c := newTestController(t)
	linkInMode(t, c, "m4", model.ModeApproval, model.KeepBoth)

	path := filepath.Join(c.Hyperbox().Requests(), "wanted.txt")
	require.NoError(t, os.WriteFile(path, []byte("please"), 0644))

	waitFor(t, "local request", func() bool {
		requests := c.State().Requests()
		return len(requests) == 1 && requests[0].Requester == model.RequesterLocal
	})
	request := c.State().Requests()[0]
	assert.Equal(t, model.RequestPending, request.Status)
	assert.Equal(t, path, request.Path)
}

func TestRequestsDropZoneDebounce(t *testing.T) {
	c := newTestController(t)
	linkInMode(t, c, "m8", model.ModeApproval, model.KeepBoth)

	// One write emits a create/write event pair; a follow-up change lands
	// inside the debounce window. Expect a single request.
	path := filepath.Join(c.Hyperbox().Requests(), "once.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))

	waitFor(t, "first request", func() bool {
		return len(c.State().Requests()) >= 1
	})
	time.Sleep(500 * time.Millisecond)
	assert.Len(t, c.State().Requests(), 1)
}

func TestRequestsDropZoneIgnoredOutsideApproval(t *testing.T) {
	c := newTestController(t)
	linkInMode(t, c, "m5", model.ModeCopy, model.KeepBoth)

	path := filepath.Join(c.Hyperbox().Requests(), "nope.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	time.Sleep(500 * time.Millisecond)
	assert.Empty(t, c.State().Requests())
}

func TestFSEventsIgnoredWithoutSession(t *testing.T) {
	c := newTestController(t)

	source := filepath.Join(c.Hyperbox().Outbox(), "idle.txt")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0644))

	time.Sleep(500 * time.Millisecond)
	assert.Empty(t, c.State().Transfers())
}

func TestInboundSessionUpdateAppliesDeltas(t *testing.T) {
	c := newTestController(t)
	session := linkInMode(t, c, "m6", model.ModeApproval, model.KeepBoth)

	msg := &protocol.Message{
		Type: protocol.TypeSessionUpdate,
		Payload: protocol.Payload{
			"session_id":         session.ID,
			"status":             "connected",
			"mode":               "mirror",
			"approval_required":  false,
			"conflict_rule":      "prefer_host",
			"allow_browse":       true,
			"allow_requests":     true,
			"allow_edits":        true,
			"edit_mode":          "in_place",
			"allow_client_share": false,
		},
	}
	c.handleSessionUpdate(msg)

	updated := c.Session()
	require.NotNil(t, updated)
	assert.Equal(t, model.ModeMirror, updated.Policy.Mode)
	assert.Equal(t, model.PreferHost, updated.Policy.ConflictRule)
	assert.True(t, updated.Policy.AllowEdits)
	assert.Equal(t, model.InPlace, updated.Policy.EditMode)
	assert.False(t, updated.Policy.AllowClientShare)
	assert.False(t, updated.Policy.ApprovalRequired)

	// Mismatched session id is ignored.
	msg.Payload["session_id"] = "other"
	msg.Payload["mode"] = "approval"
	c.handleSessionUpdate(msg)
	assert.Equal(t, model.ModeMirror, c.Session().Policy.Mode)
}

func TestInboundTransferStatusHydratesJob(t *testing.T) {
	c := newTestController(t)
	linkInMode(t, c, "m7", model.ModeApproval, model.KeepBoth)

	c.handleTransferStatus(&protocol.Message{
		Type: protocol.TypeTransferStatus,
		Payload: protocol.Payload{
			"job_id":   "remote-job",
			"status":   "receiving",
			"progress": 0.4,
			"checksum": "",
		},
	})

	transfers := c.State().Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "remote-job", transfers[0].ID)
	assert.Equal(t, model.TransferReceiving, transfers[0].Status)
	assert.InDelta(t, 0.4, transfers[0].Progress, 0.001)
}

func TestTransferSettingsRoundTrip(t *testing.T) {
	c := newTestController(t)

	assert.Equal(t, DefaultTransferSettings(), c.TransferSettings())

	custom := TransferSettings{
		ChunkSizeMB:  4,
		MaxBandwidth: "10MB/s",
		RetryPolicy:  "linear",
		MaxRetries:   5,
		Encryption:   true,
	}
	require.NoError(t, c.SaveTransferSettings(custom))
	assert.Equal(t, custom, c.TransferSettings())
	assert.Equal(t, int64(4*1024*1024), custom.ChunkSizeBytes())
}
