// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactor

import (
	"reflect"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/swarmlab/reactor/core/mesh"
	coreactor "github.com/swarmlab/reactor/core/reactor"
	"github.com/swarmlab/reactor/core/unit"
)

const (
	// healthySuccessRate is the minimum aggregate success rate for
	// the system to be considered healthy.
	healthySuccessRate = 0.95

	// healthyAvgDuration is the maximum average execution duration
	// for the system to be considered healthy.
	healthyAvgDuration = 100 * time.Millisecond

	// healthyAvgMemory is the maximum average memory delta for the
	// system to be considered healthy.
	healthyAvgMemory = 200 << 20
)

// MonitorConfig holds the dependencies and tuning of an
// ExecutionMonitor.
type MonitorConfig struct {
	Clock  clock.Clock
	Logger Logger
	Safety SafetyEnforcer

	// UnitTimeout is the advisory per-unit execution deadline. The
	// action is never preempted; overruns are only recorded.
	UnitTimeout time.Duration

	// MaxTrackedUnits caps the health metrics table. When a new
	// unit would exceed the cap, the entry with the oldest last
	// execution is evicted.
	MaxTrackedUnits int
}

// Validate returns an error if the config cannot drive a monitor.
func (config MonitorConfig) Validate() error {
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.Safety == nil {
		return errors.NotValidf("nil Safety")
	}
	if config.UnitTimeout <= 0 {
		return errors.NotValidf("unit timeout %s", config.UnitTimeout)
	}
	if config.MaxTrackedUnits <= 0 {
		return errors.NotValidf("max tracked units %d", config.MaxTrackedUnits)
	}
	return nil
}

// ExecutionMonitor executes resolved units against the live mesh,
// diffs mesh state around each execution, and folds the outcomes
// into per-unit health aggregates.
type ExecutionMonitor struct {
	config MonitorConfig

	mu     sync.Mutex
	health map[string]*unitHealth
}

type unitHealth struct {
	executions     uint64
	successes      uint64
	failures       uint64
	totalDuration  time.Duration
	totalMemory    int64
	lastExecutedAt time.Time
}

// NewExecutionMonitor returns a monitor backed by config.
func NewExecutionMonitor(config MonitorConfig) (*ExecutionMonitor, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &ExecutionMonitor{
		config: config,
		health: make(map[string]*unitHealth),
	}, nil
}

// ExecuteUnits runs the prioritized batch in order against the live
// mesh. Unit failures are isolated: each is recorded as a failed
// result and the batch continues. Health metrics are updated strictly
// after each unit finishes.
func (m *ExecutionMonitor) ExecuteUnits(prioritized []TriggeredUnit, store mesh.Mesh) []coreactor.ExecutionResult {
	results := make([]coreactor.ExecutionResult, 0, len(prioritized))
	for _, record := range prioritized {
		result := m.executeOne(record, store)
		m.UpdateUnitHealthMetrics(result)
		results = append(results, result)
	}
	return results
}

func (m *ExecutionMonitor) executeOne(record TriggeredUnit, store mesh.Mesh) coreactor.ExecutionResult {
	id := record.Unit.Identity().ID
	startedAt := m.config.Clock.Now()

	if err := m.config.Safety.CheckExecutionStart(id); err != nil {
		m.config.Logger.Warningf("unit %q aborted by safety check: %v", id, err)
		return coreactor.ExecutionResult{
			UnitID:    id,
			Success:   false,
			Error:     err.Error(),
			StartedAt: startedAt,
		}
	}
	defer m.config.Safety.RecordExecutionEnd(id)

	result := coreactor.ExecutionResult{
		UnitID:    id,
		StartedAt: startedAt,
	}

	before, err := store.Snapshot()
	if err != nil {
		m.config.Logger.Errorf("unit %q pre-execution snapshot: %v", id, err)
		result.Error = err.Error()
		return result
	}

	var memBefore runtime.MemStats
	runtime.ReadMemStats(&memBefore)

	deadline := startedAt.Add(m.config.UnitTimeout)
	execErr := executeAction(record.Unit, store)
	finishedAt := m.config.Clock.Now()

	var memAfter runtime.MemStats
	runtime.ReadMemStats(&memAfter)

	result.Duration = finishedAt.Sub(startedAt)
	result.MemoryDelta = int64(memAfter.HeapAlloc) - int64(memBefore.HeapAlloc)
	result.DeadlineExceeded = finishedAt.After(deadline)
	if result.DeadlineExceeded {
		m.config.Logger.Warningf("unit %q overran its %s deadline (%s)", id, m.config.UnitTimeout, result.Duration)
	}

	after, err := store.Snapshot()
	if err != nil {
		m.config.Logger.Errorf("unit %q post-execution snapshot: %v", id, err)
	} else {
		result.Mutations = diffSnapshots(before, after)
	}

	if execErr != nil {
		m.config.Logger.Warningf("unit %q failed: %v", id, execErr)
		result.Error = execErr.Error()
		return result
	}
	result.Success = true
	return result
}

// UpdateUnitHealthMetrics folds one execution outcome into the unit's
// running aggregate.
func (m *ExecutionMonitor) UpdateUnitHealthMetrics(result coreactor.ExecutionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	health := m.health[result.UnitID]
	if health == nil {
		m.evictIfFull(result.UnitID)
		health = &unitHealth{}
		m.health[result.UnitID] = health
	}
	health.executions++
	health.lastExecutedAt = m.config.Clock.Now()
	if result.Success {
		health.successes++
		health.totalDuration += result.Duration
		health.totalMemory += result.MemoryDelta
	} else {
		health.failures++
	}
}

// evictIfFull makes room for a new entry by dropping the unit with
// the oldest last execution. Caller holds the lock.
func (m *ExecutionMonitor) evictIfFull(incoming string) {
	if len(m.health) < m.config.MaxTrackedUnits {
		return
	}
	var oldest string
	var oldestAt time.Time
	for id, health := range m.health {
		if oldest == "" || health.lastExecutedAt.Before(oldestAt) {
			oldest = id
			oldestAt = health.lastExecutedAt
		}
	}
	m.config.Logger.Debugf("health table full, evicting %q for %q", oldest, incoming)
	delete(m.health, oldest)
}

// UnitHealth returns the aggregate for one unit.
func (m *ExecutionMonitor) UnitHealth(unitID string) (coreactor.UnitHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	health, ok := m.health[unitID]
	if !ok {
		return coreactor.UnitHealth{}, false
	}
	return health.snapshot(), true
}

// UnitHealthSnapshot returns the aggregates for all tracked units.
func (m *ExecutionMonitor) UnitHealthSnapshot() map[string]coreactor.UnitHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]coreactor.UnitHealth, len(m.health))
	for id, health := range m.health {
		snapshot[id] = health.snapshot()
	}
	return snapshot
}

// AggregateHealth summarizes execution health across all tracked
// units. An idle system reports a success rate of 1.
func (m *ExecutionMonitor) AggregateHealth() coreactor.AggregateHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	var aggregate coreactor.AggregateHealth
	var totalDuration time.Duration
	var totalMemory int64
	for _, health := range m.health {
		aggregate.Executions += health.executions
		aggregate.Successes += health.successes
		aggregate.Failures += health.failures
		totalDuration += health.totalDuration
		totalMemory += health.totalMemory
	}
	aggregate.SuccessRate = 1
	if aggregate.Executions > 0 {
		aggregate.SuccessRate = float64(aggregate.Successes) / float64(aggregate.Executions)
	}
	if aggregate.Successes > 0 {
		aggregate.AvgDuration = totalDuration / time.Duration(aggregate.Successes)
		aggregate.AvgMemory = totalMemory / int64(aggregate.Successes)
	}
	return aggregate
}

// IsSystemHealthy reports whether the aggregate success rate, average
// duration and average memory are all within their thresholds.
func (m *ExecutionMonitor) IsSystemHealthy() bool {
	aggregate := m.AggregateHealth()
	return aggregate.SuccessRate >= healthySuccessRate &&
		aggregate.AvgDuration < healthyAvgDuration &&
		aggregate.AvgMemory < healthyAvgMemory
}

// ResetHealthMetrics clears all aggregates. This is an explicit
// operator action; nothing resets them otherwise.
func (m *ExecutionMonitor) ResetHealthMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = make(map[string]*unitHealth)
}

func (h *unitHealth) snapshot() coreactor.UnitHealth {
	out := coreactor.UnitHealth{
		Executions:     h.executions,
		Successes:      h.successes,
		Failures:       h.failures,
		TotalDuration:  h.totalDuration,
		TotalMemory:    h.totalMemory,
		LastExecutedAt: h.lastExecutedAt,
	}
	if h.executions > 0 {
		out.ErrorRate = float64(h.failures) / float64(h.executions)
	}
	if h.successes > 0 {
		out.AvgDuration = h.totalDuration / time.Duration(h.successes)
	}
	return out
}

// executeAction isolates a unit action: a panicking unit is reported
// as an error, never propagated.
func executeAction(u unit.Unit, store mesh.Mesh) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("action panic: %v", r)
		}
	}()
	return u.Execute(store)
}

// diffSnapshots derives the mutations a unit made, sorted by key.
func diffSnapshots(before, after mesh.Snapshot) []coreactor.Mutation {
	var mutations []coreactor.Mutation
	for key, afterValue := range after.Entries {
		beforeValue, existed := before.Entries[key]
		if !existed {
			mutations = append(mutations, coreactor.Mutation{
				Key:    key,
				Change: coreactor.ChangeCreate,
				After:  afterValue,
			})
		} else if !reflect.DeepEqual(beforeValue, afterValue) {
			mutations = append(mutations, coreactor.Mutation{
				Key:    key,
				Change: coreactor.ChangeUpdate,
				Before: beforeValue,
				After:  afterValue,
			})
		}
	}
	for key, beforeValue := range before.Entries {
		if _, exists := after.Entries[key]; !exists {
			mutations = append(mutations, coreactor.Mutation{
				Key:    key,
				Change: coreactor.ChangeDelete,
				Before: beforeValue,
			})
		}
	}
	sort.Slice(mutations, func(i, j int) bool {
		return mutations[i].Key < mutations[j].Key
	})
	return mutations
}
