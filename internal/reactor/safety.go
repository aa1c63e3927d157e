// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactor

import (
	"github.com/swarmlab/reactor/core/unit"
)

// SafetyEnforcer is consulted before and after unit work. It is an
// external collaborator; the reactor only reacts to its verdicts.
type SafetyEnforcer interface {
	// CheckRegistration is consulted before a unit is admitted to
	// the registry.
	CheckRegistration(identity unit.Identity) error

	// RecordUnregistration releases any registration accounting
	// held for the unit.
	RecordUnregistration(unitID string)

	// CheckEvaluation is the non-reserving pre-check applied during
	// trigger evaluation.
	CheckEvaluation(unitID string) error

	// CheckExecutionStart reserves an execution slot, failing if
	// concurrency or rate limits are exceeded.
	CheckExecutionStart(unitID string) error

	// RecordExecutionEnd releases the slot taken by
	// CheckExecutionStart.
	RecordExecutionEnd(unitID string)
}
