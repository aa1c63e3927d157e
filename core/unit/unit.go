// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package unit defines the contract between the reactor and the
// execution units it schedules. Units are externally owned: the
// reactor holds a reference keyed by identity and never manages a
// unit's lifetime.
package unit

import (
	"time"

	"github.com/swarmlab/reactor/core/mesh"
)

// Unit is a single schedulable execution unit. The trigger predicate
// is evaluated against a read-only view of the mesh; the action runs
// against the live mesh.
type Unit interface {
	// Identity returns the unit's immutable identity.
	Identity() Identity

	// Priority orders units within a tick; higher runs first.
	// Ties are broken by registration order.
	Priority() int

	// MutexGroup names the mutual-exclusion group this unit belongs
	// to, or returns the empty string for none. At most one member
	// of a group executes per tick.
	MutexGroup() string

	// Cooldown is the minimum interval before the unit may be
	// re-triggered after executing. Zero means no cooldown.
	Cooldown() time.Duration

	// Triggered reports whether the unit wants to run this tick,
	// judged against a read-only view of the mesh snapshot.
	Triggered(view mesh.View) (bool, error)

	// Execute runs the unit's action against the live mesh. An
	// action may register or unregister units on the owning
	// reactor; such changes take effect from the next tick.
	Execute(store mesh.Mesh) error
}
