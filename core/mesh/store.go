// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mesh

import (
	"path"
	"reflect"
	"sync"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

// Store is an in-memory Mesh implementation. It is safe for
// concurrent use; consistency across processes is out of its scope.
type Store struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]any
}

// NewStore returns an empty in-memory mesh.
func NewStore(clk clock.Clock) *Store {
	return &Store{
		clock:   clk,
		entries: make(map[string]any),
	}
}

// Get is part of the Mesh interface.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

// Exists is part of the Mesh interface.
func (s *Store) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[key]
	return ok
}

// Keys is part of the Mesh interface.
func (s *Store) Keys() []string {
	s.mu.RLock()
	snap := Snapshot{Entries: s.entries}
	keys := snap.Keys()
	s.mu.RUnlock()
	return keys
}

// Set is part of the Mesh interface. Writes with an empty key are
// rejected.
func (s *Store) Set(key string, value any) bool {
	if key == "" {
		return false
	}
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
	return true
}

// CompareAndSet is part of the Mesh interface. The expected value is
// compared by deep equality; expecting nil matches an absent key.
func (s *Store) CompareAndSet(key string, expected, value any) bool {
	if key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[key]
	if !ok {
		if expected != nil {
			return false
		}
	} else if !reflect.DeepEqual(current, expected) {
		return false
	}
	s.entries[key] = value
	return true
}

// Delete is part of the Mesh interface.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// Snapshot is part of the Mesh interface.
func (s *Store) Snapshot(patterns ...string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		TakenAt: s.clock.Now(),
		Entries: make(map[string]any),
	}
	for key, value := range s.entries {
		matched := len(patterns) == 0
		for _, pattern := range patterns {
			ok, err := path.Match(pattern, key)
			if err != nil {
				return Snapshot{}, errors.Annotatef(err, "key pattern %q", pattern)
			}
			if ok {
				matched = true
				break
			}
		}
		if matched {
			snap.Entries[key] = value
		}
	}
	return snap, nil
}
