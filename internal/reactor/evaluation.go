// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactor

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/swarmlab/reactor/core/mesh"
	"github.com/swarmlab/reactor/core/unit"
)

// TriggeredUnit is the transient record describing one unit that
// wants to run this tick. It is created per tick and discarded after.
type TriggeredUnit struct {
	Unit        unit.Unit
	Priority    int
	MutexGroup  string
	EvaluatedAt time.Time

	// order is the unit's registration order, used to break
	// priority ties deterministically.
	order int
}

// EvaluationOutcome is the result of one trigger scan.
type EvaluationOutcome struct {
	// Triggered holds the triggered units, priority-descending,
	// stable on registration order.
	Triggered []TriggeredUnit

	// Evaluated is the number of units the scan examined. It equals
	// the registry size unless the scan was truncated.
	Evaluated int

	// Truncated notes that the time budget or examination cap cut
	// the scan short.
	Truncated bool
}

// EvaluationConfig holds the dependencies and tuning of a
// UnitEvaluationEngine.
type EvaluationConfig struct {
	Clock  clock.Clock
	Logger Logger
	Safety SafetyEnforcer

	// Timeout is the wall-clock budget for one scan.
	Timeout time.Duration

	// MaxUnits caps how many units one scan may examine.
	MaxUnits int
}

// Validate returns an error if the config cannot drive an engine.
func (config EvaluationConfig) Validate() error {
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.Safety == nil {
		return errors.NotValidf("nil Safety")
	}
	if config.Timeout <= 0 {
		return errors.NotValidf("evaluation timeout %s", config.Timeout)
	}
	if config.MaxUnits <= 0 {
		return errors.NotValidf("max units %d", config.MaxUnits)
	}
	return nil
}

// UnitEvaluationEngine decides which registered units are triggered
// for a tick, judging each trigger predicate against a read-only view
// of the tick's mesh snapshot.
type UnitEvaluationEngine struct {
	config EvaluationConfig

	unitsEvaluated  atomic.Uint64
	scansTruncated  atomic.Uint64
	triggerFailures atomic.Uint64
}

// NewUnitEvaluationEngine returns an engine backed by config.
func NewUnitEvaluationEngine(config EvaluationConfig) (*UnitEvaluationEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &UnitEvaluationEngine{config: config}, nil
}

// EvaluateUnits scans units in registration order and returns those
// whose triggers fire, sorted priority-descending with ties kept in
// registration order. A unit is skipped, with a log line, when the
// scan budget is exhausted, the safety pre-check fails, the unit is
// on cooldown, or its trigger predicate fails.
func (e *UnitEvaluationEngine) EvaluateUnits(
	units []*registeredUnit,
	snapshot mesh.Snapshot,
	cooldowns map[string]time.Time,
) EvaluationOutcome {
	var outcome EvaluationOutcome
	deadline := e.config.Clock.Now().Add(e.config.Timeout)
	view := mesh.NewReadOnlyView(snapshot)

	for _, ru := range units {
		now := e.config.Clock.Now()
		if now.After(deadline) {
			e.config.Logger.Warningf(
				"evaluation budget %s exhausted after %d of %d units, truncating scan",
				e.config.Timeout, outcome.Evaluated, len(units))
			outcome.Truncated = true
			e.scansTruncated.Add(1)
			break
		}
		if outcome.Evaluated >= e.config.MaxUnits {
			e.config.Logger.Warningf(
				"evaluation cap %d reached with %d units remaining, truncating scan",
				e.config.MaxUnits, len(units)-outcome.Evaluated)
			outcome.Truncated = true
			e.scansTruncated.Add(1)
			break
		}
		outcome.Evaluated++
		e.unitsEvaluated.Add(1)

		id := ru.identity.ID
		if err := e.config.Safety.CheckEvaluation(id); err != nil {
			e.config.Logger.Debugf("unit %q skipped by safety pre-check: %v", id, err)
			continue
		}
		if until, ok := cooldowns[id]; ok && now.Before(until) {
			e.config.Logger.Debugf("unit %q on cooldown until %s", id, until.Format(time.RFC3339))
			continue
		}
		triggered, err := evaluateTrigger(ru.unit, view)
		if err != nil {
			e.config.Logger.Warningf("unit %q trigger failed, treating as not triggered: %v", id, err)
			e.triggerFailures.Add(1)
			continue
		}
		if !triggered {
			continue
		}
		outcome.Triggered = append(outcome.Triggered, TriggeredUnit{
			Unit:        ru.unit,
			Priority:    ru.unit.Priority(),
			MutexGroup:  ru.unit.MutexGroup(),
			EvaluatedAt: now,
			order:       ru.order,
		})
	}

	sortByPriority(outcome.Triggered)
	return outcome
}

// Stats returns the engine's lifetime counters.
func (e *UnitEvaluationEngine) Stats() (evaluated, truncated, failures uint64) {
	return e.unitsEvaluated.Load(), e.scansTruncated.Load(), e.triggerFailures.Load()
}

// evaluateTrigger isolates a trigger predicate: a panicking unit is
// reported as an error, never propagated.
func evaluateTrigger(u unit.Unit, view mesh.View) (triggered bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			triggered = false
			err = errors.Errorf("trigger panic: %v", r)
		}
	}()
	return u.Triggered(view)
}

// sortByPriority sorts records priority-descending, ties broken by
// registration order.
func sortByPriority(records []TriggeredUnit) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority > records[j].Priority
		}
		return records[i].order < records[j].order
	})
}
