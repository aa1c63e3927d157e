// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reactor holds the serializable outcome records produced by
// the swarm reactor: per-tick results, per-unit execution results and
// the nested health report consumed by observability surfaces.
package reactor

import (
	"time"

	"github.com/juju/errors"

	"github.com/swarmlab/reactor/core/mesh"
)

// ChangeType classifies a single mesh mutation.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Mutation records one observed change to the mesh during a unit's
// execution, derived by diffing the before and after snapshots.
type Mutation struct {
	Key    string     `yaml:"key" json:"key"`
	Change ChangeType `yaml:"change" json:"change"`
	Before any        `yaml:"before,omitempty" json:"before,omitempty"`
	After  any        `yaml:"after,omitempty" json:"after,omitempty"`
}

// ExecutionResult is the outcome of one unit execution within a tick.
type ExecutionResult struct {
	UnitID    string    `yaml:"unit-id" json:"unit-id"`
	Success   bool      `yaml:"success" json:"success"`
	Error     string    `yaml:"error,omitempty" json:"error,omitempty"`
	StartedAt time.Time `yaml:"started-at" json:"started-at"`

	// Duration is how long the action ran. A unit rejected by the
	// safety enforcer is recorded as a zero-duration failure.
	Duration time.Duration `yaml:"duration" json:"duration"`

	// MemoryDelta is the advisory heap delta observed across the
	// execution. It can be negative.
	MemoryDelta int64 `yaml:"memory-delta" json:"memory-delta"`

	// DeadlineExceeded notes that the action returned after its
	// advisory execution deadline. The action was not preempted.
	DeadlineExceeded bool `yaml:"deadline-exceeded,omitempty" json:"deadline-exceeded,omitempty"`

	Mutations []Mutation `yaml:"mutations,omitempty" json:"mutations,omitempty"`
}

// TickResult is the immutable outcome record for one reactor tick.
type TickResult struct {
	TickID    uint64        `yaml:"tick-id" json:"tick-id"`
	StartedAt time.Time     `yaml:"started-at" json:"started-at"`
	Duration  time.Duration `yaml:"duration" json:"duration"`

	UnitsEvaluated int `yaml:"units-evaluated" json:"units-evaluated"`
	UnitsTriggered int `yaml:"units-triggered" json:"units-triggered"`
	UnitsExecuted  int `yaml:"units-executed" json:"units-executed"`
	UnitsFailed    int `yaml:"units-failed" json:"units-failed"`

	// Snapshot is the mesh snapshot triggers were evaluated against.
	Snapshot mesh.Snapshot `yaml:"snapshot" json:"snapshot"`

	Results []ExecutionResult `yaml:"results,omitempty" json:"results,omitempty"`
}

// Validate checks the tick counters against the pipeline ordering
// invariant: failed <= executed <= triggered <= evaluated.
func (r TickResult) Validate() error {
	if r.UnitsFailed > r.UnitsExecuted {
		return errors.NotValidf("tick %d: %d failed of %d executed", r.TickID, r.UnitsFailed, r.UnitsExecuted)
	}
	if r.UnitsExecuted > r.UnitsTriggered {
		return errors.NotValidf("tick %d: %d executed of %d triggered", r.TickID, r.UnitsExecuted, r.UnitsTriggered)
	}
	if r.UnitsTriggered > r.UnitsEvaluated {
		return errors.NotValidf("tick %d: %d triggered of %d evaluated", r.TickID, r.UnitsTriggered, r.UnitsEvaluated)
	}
	return nil
}
