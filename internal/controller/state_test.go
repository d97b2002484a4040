package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperdesk/hyperdesk/internal/model"
)

func TestSignalDeliversToAllSubscribers(t *testing.T) {
	state := NewState()

	var first, second [][]model.Device
	state.OnDevicesChanged(func(devices []model.Device) { first = append(first, devices) })
	state.OnDevicesChanged(func(devices []model.Device) { second = append(second, devices) })

	state.SetDevices([]model.Device{{ID: "d1", Name: "ONE"}})
	state.SetDevices([]model.Device{{ID: "d1"}, {ID: "d2"}})

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, "ONE", first[0][0].Name)
	assert.Len(t, first[1], 2)
}

func TestSignalSubscribeDuringEmit(t *testing.T) {
	state := NewState()

	var late int
	state.OnLogAdded(func(LogEntry) {
		// Subscribing from inside a callback must not deadlock and must not
		// deliver the in-flight emission to the new subscriber.
		state.OnLogAdded(func(LogEntry) { late++ })
	})

	state.AddLog("first")
	assert.Equal(t, 0, late)
	state.AddLog("second")
	assert.Equal(t, 1, late)
}

func TestStateTransferOrderAndSnapshots(t *testing.T) {
	state := NewState()

	state.UpsertTransfer(model.TransferJob{ID: "a", Status: model.TransferRunning})
	state.UpsertTransfer(model.TransferJob{ID: "b", Status: model.TransferRunning})
	state.UpsertTransfer(model.TransferJob{ID: "a", Status: model.TransferComplete})

	transfers := state.Transfers()
	require.Len(t, transfers, 2)
	assert.Equal(t, "a", transfers[0].ID)
	assert.Equal(t, model.TransferComplete, transfers[0].Status)
	assert.Equal(t, "b", transfers[1].ID)

	// Snapshots are copies; mutating one must not leak back.
	transfers[0].Status = model.TransferFailed
	assert.Equal(t, model.TransferComplete, state.Transfers()[0].Status)
}
