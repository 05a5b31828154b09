package storage

import (
	"context"

	"autosig/host"
	"autosig/utils"
)

// Settings reads and writes JSON values in the host's roaming settings
type Settings struct {
	roaming host.RoamingSettings
	log     *utils.Logger
}

// NewSettings wraps the host roaming settings
func NewSettings(roaming host.RoamingSettings, log *utils.Logger) *Settings {
	if log == nil {
		log = utils.Nop()
	}
	return &Settings{roaming: roaming, log: log.WithField("storage", "roaming")}
}

// Get returns the decoded setting, or nil if it is not set
func (s *Settings) Get(ctx context.Context, key string) (interface{}, error) {
	raw, ok, err := s.roaming.GetSetting(ctx, key)
	if err != nil {
		return nil, utils.StorageError("read roaming setting", err).WithContext("key", key)
	}
	if !ok {
		return nil, nil
	}
	s.log.Debug("Retrieved setting %s", key)
	return Decode(raw), nil
}

// GetString returns a string setting, or "" when unset or not a string
func (s *Settings) GetString(ctx context.Context, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	str, _ := v.(string)
	return str, nil
}

// IsSet reports whether a flag setting holds a truthy value
func (s *Settings) IsSet(ctx context.Context, key string) (bool, error) {
	v, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Set writes and saves a setting
func (s *Settings) Set(ctx context.Context, key string, value interface{}) error {
	if err := s.roaming.SetSetting(ctx, key, Encode(value)); err != nil {
		return utils.StorageError("write roaming setting", err).WithContext("key", key)
	}
	if err := s.roaming.SaveSettings(ctx); err != nil {
		return utils.StorageError("save roaming settings", err).WithContext("key", key)
	}
	s.log.Debug("Updated setting %s", key)
	return nil
}

// Remove deletes settings and saves once
func (s *Settings) Remove(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if err := s.roaming.RemoveSetting(ctx, k); err != nil {
			return utils.StorageError("remove roaming setting", err).WithContext("key", k)
		}
	}
	if err := s.roaming.SaveSettings(ctx); err != nil {
		return utils.StorageError("save roaming settings", err).WithContext("keys", keys)
	}
	s.log.Debug("Removed settings %v", keys)
	return nil
}
