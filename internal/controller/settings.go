package controller

import (
	"fmt"
	"strconv"

	"github.com/hyperdesk/hyperdesk/internal/model"
)

// Preference keys.
const (
	prefChunkSizeMB  = "transfer.chunk_size_mb"
	prefMaxBandwidth = "transfer.max_bandwidth"
	prefRetryPolicy  = "transfer.retry_policy"
	prefMaxRetries   = "transfer.max_retries"
	prefEncryption   = "transfer.encryption"
)

// TransferSettings is the bounded set of tunables stored as preferences.
type TransferSettings struct {
	ChunkSizeMB  int64
	MaxBandwidth string
	RetryPolicy  string
	MaxRetries   int64
	Encryption   bool
}

// DefaultTransferSettings returns the out-of-the-box tuning.
func DefaultTransferSettings() TransferSettings {
	return TransferSettings{
		ChunkSizeMB:  8,
		MaxBandwidth: "unlimited",
		RetryPolicy:  "exponential",
		MaxRetries:   3,
		Encryption:   false,
	}
}

// ChunkSizeBytes converts the stored megabyte count.
func (s TransferSettings) ChunkSizeBytes() int64 {
	return s.ChunkSizeMB * 1024 * 1024
}

// SaveTransferSettings persists the tunables as preferences.
func (c *Controller) SaveTransferSettings(settings TransferSettings) error {
	pairs := map[string]string{
		prefChunkSizeMB:  strconv.FormatInt(settings.ChunkSizeMB, 10),
		prefMaxBandwidth: settings.MaxBandwidth,
		prefRetryPolicy:  settings.RetryPolicy,
		prefMaxRetries:   strconv.FormatInt(settings.MaxRetries, 10),
		prefEncryption:   strconv.FormatBool(settings.Encryption),
	}
	for key, value := range pairs {
		if err := c.store.SetPreference(key, value); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}
	c.state.AddLog("Transfer settings saved")
	return nil
}

// configSettings derives the fallback tuning from the static config, for
// keys never saved as preferences.
func (c *Controller) configSettings() TransferSettings {
	defaults := DefaultTransferSettings()
	if c.cfg == nil {
		return defaults
	}
	if mb := c.cfg.Transfer.ChunkSize.Int64() / (1024 * 1024); mb > 0 {
		defaults.ChunkSizeMB = mb
	}
	if c.cfg.Transfer.MaxBandwidth != "" {
		defaults.MaxBandwidth = c.cfg.Transfer.MaxBandwidth
	}
	if c.cfg.Transfer.RetryPolicy != "" {
		defaults.RetryPolicy = c.cfg.Transfer.RetryPolicy
	}
	if c.cfg.Transfer.MaxRetries > 0 {
		defaults.MaxRetries = int64(c.cfg.Transfer.MaxRetries)
	}
	if c.cfg.Transfer.Encryption {
		defaults.Encryption = true
	}
	return defaults
}

// TransferSettings loads the tunables, defaulting any missing key.
func (c *Controller) TransferSettings() TransferSettings {
	defaults := c.configSettings()
	settings := defaults

	if n, err := c.store.GetPreferenceInt(prefChunkSizeMB, defaults.ChunkSizeMB); err == nil {
		settings.ChunkSizeMB = n
	}
	if v, err := c.store.GetPreference(prefMaxBandwidth, defaults.MaxBandwidth); err == nil {
		settings.MaxBandwidth = v
	}
	if v, err := c.store.GetPreference(prefRetryPolicy, defaults.RetryPolicy); err == nil {
		settings.RetryPolicy = v
	}
	if n, err := c.store.GetPreferenceInt(prefMaxRetries, defaults.MaxRetries); err == nil {
		settings.MaxRetries = n
	}
	if b, err := c.store.GetPreferenceBool(prefEncryption, defaults.Encryption); err == nil {
		settings.Encryption = b
	}
	return settings
}

// devicePreset loads the per-device sync preset, defaulting to approval
// mode with keep_both.
func (c *Controller) devicePreset(deviceID string) (model.SyncMode, model.ConflictRule) {
	mode, _ := c.store.GetPreference("device."+deviceID+".sync_mode", string(model.ModeApproval))
	rule, _ := c.store.GetPreference("device."+deviceID+".conflict_rule", string(model.KeepBoth))
	return model.SyncMode(mode), model.ConflictRule(rule)
}

// saveDevicePreset stores the per-device sync preset.
func (c *Controller) saveDevicePreset(deviceID string, mode model.SyncMode, rule model.ConflictRule) {
	if err := c.store.SetPreference("device."+deviceID+".sync_mode", string(mode)); err != nil {
		c.state.AddLog(fmt.Sprintf("Failed to save sync preset for %s: %v", deviceID, err))
	}
	if err := c.store.SetPreference("device."+deviceID+".conflict_rule", string(rule)); err != nil {
		c.state.AddLog(fmt.Sprintf("Failed to save conflict preset for %s: %v", deviceID, err))
	}
}
