package policy

import "sync/atomic"

// Source holds the live policy configuration. Readers take a snapshot;
// reloads swap the whole configuration atomically, so a message in flight
// keeps the snapshot it started with.
type Source struct {
	current atomic.Pointer[Config]
}

// NewSource creates a source with an initial configuration.
func NewSource(cfg Config) *Source {
	s := &Source{}
	s.current.Store(&cfg)
	return s
}

// Snapshot returns the current configuration by value.
func (s *Source) Snapshot() Config {
	return *s.current.Load()
}

// Swap replaces the configuration for all subsequent snapshots.
func (s *Source) Swap(cfg Config) {
	s.current.Store(&cfg)
}
