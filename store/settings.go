package store

import (
	"context"
	"log/slog"
	"sync"
)

const enabledKey = "settings:enabled"

// Settings is the persisted feature toggle: a read-through cached boolean
// refreshed on explicit toggle events. Default is enabled.
type Settings struct {
	kv     KV
	logger *slog.Logger

	mu      sync.Mutex
	loaded  bool
	enabled bool
}

// NewSettings creates the settings cache.
func NewSettings(kv KV, logger *slog.Logger) *Settings {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settings{kv: kv, logger: logger, enabled: true}
}

// Enabled returns the cached toggle, reading through to the KV on first
// use. A read failure logs and falls back to the default (true) — the
// toggle must never take the feature down with it.
func (s *Settings) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		s.loadLocked()
	}
	return s.enabled
}

// SetEnabled persists the toggle and updates the cache.
func (s *Settings) SetEnabled(ctx context.Context, enabled bool) error {
	val := []byte("0")
	if enabled {
		val = []byte("1")
	}
	if err := s.kv.Set(ctx, enabledKey, val); err != nil {
		return err
	}
	s.mu.Lock()
	s.enabled = enabled
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Refresh drops the cache so the next Enabled call re-reads the KV.
// Call on an external toggle event.
func (s *Settings) Refresh() {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
}

func (s *Settings) loadLocked() {
	raw, ok, err := s.kv.Get(context.Background(), enabledKey)
	if err != nil {
		s.logger.Warn("store: read toggle failed, defaulting to enabled", "error", err)
		s.enabled = true
		return
	}
	s.enabled = !ok || string(raw) != "0"
	s.loaded = true
}
