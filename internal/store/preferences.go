package store

import (
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Preferences are a flat string key/value table. Typed accessors coerce
// leniently and fall back to the provided default on any parse failure, so a
// hand-edited database never crashes the daemon.

// SetPreference upserts one preference key.
func (s *Store) SetPreference(key, value string) error {
	row := preferenceRow{Key: key, Value: value}
	return s.db.Save(&row).Error
}

// GetPreference returns the stored value or fallback when the key is absent.
func (s *Store) GetPreference(key, fallback string) (string, error) {
	var row preferenceRow
	err := s.db.Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	return row.Value, nil
}

// GetPreferenceInt parses the stored value as an integer.
func (s *Store) GetPreferenceInt(key string, fallback int64) (int64, error) {
	value, err := s.GetPreference(key, "")
	if err != nil || value == "" {
		return fallback, err
	}
	n, perr := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if perr != nil {
		return fallback, nil
	}
	return n, nil
}

// GetPreferenceBool parses the stored value as a boolean. "True", "true" and
// "1" are truthy; everything else is falsy.
func (s *Store) GetPreferenceBool(key string, fallback bool) (bool, error) {
	value, err := s.GetPreference(key, "")
	if err != nil || value == "" {
		return fallback, err
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1":
		return true, nil
	default:
		return false, nil
	}
}

// ListPreferences returns every stored preference as a map.
func (s *Store) ListPreferences() (map[string]string, error) {
	var rows []preferenceRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}
