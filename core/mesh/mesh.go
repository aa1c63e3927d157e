// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package mesh defines the shared key-value store that units read
// from and write to, together with the snapshot and read-only view
// types the reactor evaluates triggers against.
//
// The split between View and Mesh is deliberate: trigger predicates
// receive a View, so a misbehaving unit cannot write to the mesh
// during evaluation without getting past the compiler first.
package mesh

import (
	"sort"
	"time"
)

// View is read-only access to mesh state.
type View interface {
	// Get returns the value stored under key, if any.
	Get(key string) (any, bool)

	// Exists reports whether key is present.
	Exists(key string) bool

	// Keys returns all present keys in lexical order.
	Keys() []string
}

// Mesh is full read/write access to the shared store.
type Mesh interface {
	View

	// Set stores value under key, reporting whether the write was
	// accepted.
	Set(key string, value any) bool

	// CompareAndSet stores value under key only if the current
	// value equals expected.
	CompareAndSet(key string, expected, value any) bool

	// Delete removes key, reporting whether it was present.
	Delete(key string) bool

	// Snapshot returns a point-in-time copy of the entries whose
	// keys match any of the given glob patterns. No patterns means
	// all keys.
	Snapshot(patterns ...string) (Snapshot, error)
}

// Snapshot is a point-in-time copy of mesh state.
type Snapshot struct {
	// TakenAt is the time the snapshot was captured.
	TakenAt time.Time `yaml:"taken-at" json:"taken-at"`

	// Entries holds the captured key-value pairs.
	Entries map[string]any `yaml:"entries" json:"entries"`
}

// Get returns the snapshotted value stored under key, if any.
func (s Snapshot) Get(key string) (any, bool) {
	v, ok := s.Entries[key]
	return v, ok
}

// Exists reports whether key was present when the snapshot was taken.
func (s Snapshot) Exists(key string) bool {
	_, ok := s.Entries[key]
	return ok
}

// Keys returns the snapshotted keys in lexical order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Entries))
	for k := range s.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of snapshotted entries.
func (s Snapshot) Len() int {
	return len(s.Entries)
}
