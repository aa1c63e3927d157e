// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reactor implements the tick-based unit scheduler: a
// population of registered units is evaluated against a mesh
// snapshot, contested mutex groups are collapsed to single winners,
// the survivors execute against the live mesh under instrumentation,
// and the controller adapts its pacing from the measured load.
package reactor

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/pubsub/v2"

	"github.com/swarmlab/reactor/core/mesh"
	coreactor "github.com/swarmlab/reactor/core/reactor"
	"github.com/swarmlab/reactor/core/unit"
	"github.com/swarmlab/reactor/internal/reactor/config"
)

// Pubsub topics published by the reactor when a hub is configured.
const (
	TickCompleteTopic     = "reactor.tick-complete"
	UnitRegisteredTopic   = "reactor.unit-registered"
	UnitUnregisteredTopic = "reactor.unit-unregistered"
)

// registeredUnit pairs a unit reference with its immutable identity
// and registration order.
type registeredUnit struct {
	unit     unit.Unit
	identity unit.Identity
	order    int
}

// ReactorConfig holds the collaborators and settings of a
// SwarmReactor. Collaborators arrive already resolved; the reactor
// performs no discovery of its own.
type ReactorConfig struct {
	Clock  clock.Clock
	Logger Logger
	Mesh   mesh.Mesh
	Safety SafetyEnforcer

	// Hub, when set, receives tick-complete and unit registration
	// events.
	Hub *pubsub.SimpleHub

	// Settings is the validated reactor configuration.
	Settings config.Config

	// Rand seeds the weighted_random mutex strategy. Left nil, a
	// time-seeded source is used.
	Rand *rand.Rand
}

// Validate returns an error if the config cannot drive a reactor.
func (c ReactorConfig) Validate() error {
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Mesh == nil {
		return errors.NotValidf("nil Mesh")
	}
	if c.Safety == nil {
		return errors.NotValidf("nil Safety")
	}
	if c.Settings == nil {
		return errors.NotValidf("nil Settings")
	}
	if err := c.Settings.Validate(); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// SwarmReactor owns unit registration, cooldown and mutex-group
// state, and runs one tick at a time by composing the evaluation,
// resolution, execution and throttling engines in fixed order.
//
// A reactor instance is single-threaded with respect to ticks: one
// tick runs to completion before the next begins, and the reactor's
// own bookkeeping is mutated only between pipeline stages, never
// concurrently with them. The registry lock is not held while unit
// actions run, so an action may register or unregister units; changes
// take effect from the next tick.
type SwarmReactor struct {
	cfg        ReactorConfig
	instanceID string

	evaluator *UnitEvaluationEngine
	resolver  *MutexResolutionEngine
	monitor   *ExecutionMonitor
	throttle  *ThrottlingController

	// tickMu serializes whole ticks; mu guards the registry and
	// bookkeeping tables and is released while unit actions run,
	// so an action may register or unregister units.
	tickMu      sync.Mutex
	mu          sync.Mutex
	units       []*registeredUnit
	byID        map[string]*registeredUnit
	nextOrder   int
	cooldowns   map[string]time.Time
	mutexGroups map[string]*MutexGroupState
	tickSeq     uint64
	lastTickAt  time.Time
	lastResult  *coreactor.TickResult
}

// NewSwarmReactor returns a reactor built from the given config,
// with all four engines wired from the validated settings.
func NewSwarmReactor(cfg ReactorConfig) (*SwarmReactor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Clock.Now().UnixNano()))
	}

	evaluator, err := NewUnitEvaluationEngine(EvaluationConfig{
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
		Safety:   cfg.Safety,
		Timeout:  cfg.Settings.EvaluationTimeout(),
		MaxUnits: cfg.Settings.MaxUnitsPerEvaluation(),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	resolver, err := NewMutexResolutionEngine(ResolutionConfig{
		Logger:   cfg.Logger,
		Strategy: cfg.Settings.MutexStrategy(),
		Rand:     rng,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	monitor, err := NewExecutionMonitor(MonitorConfig{
		Clock:           cfg.Clock,
		Logger:          cfg.Logger,
		Safety:          cfg.Safety,
		UnitTimeout:     cfg.Settings.UnitExecutionTimeout(),
		MaxTrackedUnits: cfg.Settings.MaxUnitsPerEvaluation(),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	throttle, err := NewThrottlingController(ThrottleConfig{
		Clock:      cfg.Clock,
		Logger:     cfg.Logger,
		Target:     cfg.Settings.TargetTickDuration(),
		Factor:     cfg.Settings.ThrottleAdjustmentFactor(),
		MinRate:    cfg.Settings.MinThrottleRate(),
		WindowSize: cfg.Settings.PerformanceWindowSize(),
		Enabled:    cfg.Settings.AdaptiveThrottlingEnabled(),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &SwarmReactor{
		cfg:         cfg,
		instanceID:  uuid.New().String(),
		evaluator:   evaluator,
		resolver:    resolver,
		monitor:     monitor,
		throttle:    throttle,
		byID:        make(map[string]*registeredUnit),
		cooldowns:   make(map[string]time.Time),
		mutexGroups: make(map[string]*MutexGroupState),
	}, nil
}

// InstanceID returns the reactor's unique instance id.
func (r *SwarmReactor) InstanceID() string {
	return r.instanceID
}

// RegisterUnit admits a unit to the registry. Registration failures
// are logged, never raised: the return value is false on an invalid
// identity, a duplicate id, or a safety rejection.
func (r *SwarmReactor) RegisterUnit(u unit.Unit) bool {
	identity := u.Identity()
	if err := identity.Validate(); err != nil {
		r.cfg.Logger.Warningf("rejecting unit registration: %v", err)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[identity.ID]; exists {
		r.cfg.Logger.Warningf("rejecting duplicate registration of unit %q", identity.ID)
		return false
	}
	if err := r.cfg.Safety.CheckRegistration(identity); err != nil {
		r.cfg.Logger.Warningf("safety check rejected unit %q: %v", identity.ID, err)
		return false
	}

	ru := &registeredUnit{
		unit:     u,
		identity: identity,
		order:    r.nextOrder,
	}
	r.nextOrder++
	r.units = append(r.units, ru)
	r.byID[identity.ID] = ru
	r.cfg.Logger.Infof("registered unit %s (priority %d)", identity, u.Priority())
	r.publish(UnitRegisteredTopic, identity)
	return true
}

// UnregisterUnit removes a unit from the registry. It is idempotent:
// the first call for a registered id returns true, subsequent calls
// false.
func (r *SwarmReactor) UnregisterUnit(unitID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ru, exists := r.byID[unitID]
	if !exists {
		r.cfg.Logger.Debugf("unregister of unknown unit %q", unitID)
		return false
	}
	delete(r.byID, unitID)
	delete(r.cooldowns, unitID)
	for i, candidate := range r.units {
		if candidate == ru {
			r.units = append(r.units[:i], r.units[i+1:]...)
			break
		}
	}
	r.cfg.Safety.RecordUnregistration(unitID)
	r.cfg.Logger.Infof("unregistered unit %q", unitID)
	r.publish(UnitUnregisteredTopic, ru.identity)
	return true
}

// RegisteredUnits returns the identities of all registered units in
// registration order.
func (r *SwarmReactor) RegisteredUnits() []unit.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]unit.Identity, len(r.units))
	for i, ru := range r.units {
		out[i] = ru.identity
	}
	return out
}

// ExecuteTick runs one complete tick: snapshot, evaluate, resolve,
// execute, then update cooldowns, mutex-group state and throttling.
// It either returns a complete result or an error; a failed tick
// never corrupts registered state.
func (r *SwarmReactor) ExecuteTick() (coreactor.TickResult, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	r.mu.Lock()
	tickID := r.tickSeq + 1
	startedAt := r.cfg.Clock.Now()

	snapshot, err := r.cfg.Mesh.Snapshot()
	if err != nil {
		r.mu.Unlock()
		r.cfg.Logger.Errorf("tick %d aborted: mesh snapshot: %v", tickID, err)
		return coreactor.TickResult{}, errors.Annotatef(err, "tick %d: snapshotting mesh", tickID)
	}
	r.tickSeq = tickID

	outcome := r.evaluator.EvaluateUnits(r.units, snapshot, r.cooldowns)
	resolved := r.resolver.ResolveMutexCollisions(outcome.Triggered, r.mutexGroups)

	if max := r.cfg.Settings.MaxUnitsPerTick(); len(resolved) > max {
		r.cfg.Logger.Warningf("tick %d: capping executions at %d of %d resolved units", tickID, max, len(resolved))
		resolved = resolved[:max]
	}
	r.mu.Unlock()

	// Unit actions run without the registry lock, so they may call
	// back into RegisterUnit or UnregisterUnit.
	results := r.monitor.ExecuteUnits(resolved, r.cfg.Mesh)

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.cfg.Clock.Now()
	r.updateCooldowns(resolved, results, now)
	r.updateMutexGroups(resolved, results, now)

	r.throttle.AdjustThrottling(startedAt, r.monitor.AggregateHealth())

	failed := 0
	for _, result := range results {
		if !result.Success {
			failed++
		}
	}
	result := coreactor.TickResult{
		TickID:         tickID,
		StartedAt:      startedAt,
		Duration:       now.Sub(startedAt),
		UnitsEvaluated: outcome.Evaluated,
		UnitsTriggered: len(outcome.Triggered),
		UnitsExecuted:  len(results),
		UnitsFailed:    failed,
		Snapshot:       snapshot,
		Results:        results,
	}
	r.lastTickAt = now
	r.lastResult = &result
	r.cfg.Logger.Debugf(
		"tick %d: evaluated %d, triggered %d, executed %d, failed %d in %s",
		tickID, result.UnitsEvaluated, result.UnitsTriggered,
		result.UnitsExecuted, result.UnitsFailed, result.Duration)
	r.publish(TickCompleteTopic, result)
	return result, nil
}

// updateCooldowns future-dates a cooldown entry for every executed
// unit that declares one, and prunes entries that have expired.
// Caller holds the lock.
func (r *SwarmReactor) updateCooldowns(executed []TriggeredUnit, results []coreactor.ExecutionResult, now time.Time) {
	for i, record := range executed {
		if i >= len(results) {
			break
		}
		cooldown := record.Unit.Cooldown()
		if cooldown <= 0 {
			continue
		}
		id := record.Unit.Identity().ID
		if _, registered := r.byID[id]; !registered {
			continue
		}
		r.cooldowns[id] = now.Add(cooldown)
	}
	for id, until := range r.cooldowns {
		if !now.Before(until) {
			delete(r.cooldowns, id)
		}
	}
}

// updateMutexGroups advances group state for every executed unit with
// a mutex group, strictly after the whole batch has executed. Caller
// holds the lock.
func (r *SwarmReactor) updateMutexGroups(executed []TriggeredUnit, results []coreactor.ExecutionResult, now time.Time) {
	for i, record := range executed {
		if i >= len(results) || record.MutexGroup == "" {
			continue
		}
		r.resolver.UpdateMutexGroupState(record.MutexGroup, record.Unit.Identity().ID, r.mutexGroups, now)
	}
}

// LatestTick returns the most recent tick result, if any tick has
// completed.
func (r *SwarmReactor) LatestTick() (coreactor.TickResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastResult == nil {
		return coreactor.TickResult{}, false
	}
	return *r.lastResult, true
}

// PacingDelay returns the delay the throttling controller wants
// inserted before the next tick.
func (r *SwarmReactor) PacingDelay() time.Duration {
	return r.throttle.PacingDelay()
}

// IsSystemHealthy reports the execution monitor's verdict.
func (r *SwarmReactor) IsSystemHealthy() bool {
	return r.monitor.IsSystemHealthy()
}

// ResetHealthMetrics is an operator action clearing all per-unit
// aggregates.
func (r *SwarmReactor) ResetHealthMetrics() {
	r.monitor.ResetHealthMetrics()
}

// ResetThrottle is an operator override restoring full rate.
func (r *SwarmReactor) ResetThrottle() {
	r.throttle.Reset()
}

// ForceThrottleRate is an operator override pinning the rate.
func (r *SwarmReactor) ForceThrottleRate(rate float64) {
	r.throttle.ForceRate(rate)
}

// GetHealthMetrics assembles the nested health report for
// health-check consumers.
func (r *SwarmReactor) GetHealthMetrics() coreactor.HealthReport {
	r.mu.Lock()
	registered := len(r.units)
	ticksRun := r.tickSeq
	lastTickAt := r.lastTickAt
	activeCooldowns := len(r.cooldowns)
	groups := make([]coreactor.MutexGroupReport, 0, len(r.mutexGroups))
	for name, state := range r.mutexGroups {
		groups = append(groups, coreactor.MutexGroupReport{
			Group:          name,
			LastSelectedID: state.LastSelectedID,
			SelectionCount: state.SelectionCount,
			LastExecutedAt: state.LastExecutedAt,
		})
	}
	r.mu.Unlock()
	sort.Slice(groups, func(i, j int) bool { return groups[i].Group < groups[j].Group })

	evaluated, truncated, failures := r.evaluator.Stats()
	return coreactor.HealthReport{
		InstanceID:  r.instanceID,
		GeneratedAt: r.cfg.Clock.Now(),
		Reactor: coreactor.ReactorSection{
			RegisteredUnits: registered,
			TicksRun:        ticksRun,
			LastTickAt:      lastTickAt,
			ActiveCooldowns: activeCooldowns,
		},
		Evaluation: coreactor.EvaluationSection{
			UnitsEvaluated:  evaluated,
			ScansTruncated:  truncated,
			TriggerFailures: failures,
		},
		Mutex: coreactor.MutexSection{
			Strategy: string(r.cfg.Settings.MutexStrategy()),
			Groups:   groups,
		},
		Execution: coreactor.ExecutionSection{
			Aggregate: r.monitor.AggregateHealth(),
			Healthy:   r.monitor.IsSystemHealthy(),
			Units:     r.monitor.UnitHealthSnapshot(),
		},
		Throttling: coreactor.ThrottlingSection{
			Rate:        r.throttle.CurrentRate(),
			Throttled:   r.throttle.IsThrottled(),
			Severity:    string(r.throttle.Severity()),
			Adjustments: r.throttle.Adjustments(),
			HistorySize: len(r.throttle.History()),
		},
	}
}

// publish sends to the hub when one is configured. Caller may hold
// the lock; SimpleHub delivery is asynchronous.
func (r *SwarmReactor) publish(topic string, data any) {
	if r.cfg.Hub == nil {
		return
	}
	r.cfg.Hub.Publish(topic, data)
}
