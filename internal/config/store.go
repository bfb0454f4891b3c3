package config

import "sync/atomic"

// Store holds the live configuration for a running process. Readers take an
// immutable snapshot with Load; settings updates build a modified copy and
// swap it in with Replace. A snapshot obtained from Load must never be
// mutated: concurrent readers may hold it.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store with cfg as the initial snapshot. The caller must
// not write to cfg afterwards.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Load returns the current configuration snapshot.
func (s *Store) Load() *Config {
	return s.current.Load()
}

// Replace swaps in cfg as the live configuration. Callers performing a
// read-modify-write (load, copy, patch, replace) must serialize among
// themselves; Replace itself only guarantees readers see either the old or
// the new snapshot.
func (s *Store) Replace(cfg *Config) {
	s.current.Store(cfg)
}
