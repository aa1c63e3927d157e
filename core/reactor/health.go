// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactor

import (
	"time"
)

// UnitHealth is the running aggregate kept for one unit. It is reset
// only by explicit operator action.
type UnitHealth struct {
	Executions     uint64        `yaml:"executions" json:"executions"`
	Successes      uint64        `yaml:"successes" json:"successes"`
	Failures       uint64        `yaml:"failures" json:"failures"`
	TotalDuration  time.Duration `yaml:"total-duration" json:"total-duration"`
	TotalMemory    int64         `yaml:"total-memory" json:"total-memory"`
	LastExecutedAt time.Time     `yaml:"last-executed-at" json:"last-executed-at"`

	// ErrorRate is failures over executions.
	ErrorRate float64 `yaml:"error-rate" json:"error-rate"`

	// AvgDuration is total duration over successes.
	AvgDuration time.Duration `yaml:"avg-duration" json:"avg-duration"`
}

// AggregateHealth summarizes execution health across all units.
type AggregateHealth struct {
	Executions  uint64        `yaml:"executions" json:"executions"`
	Successes   uint64        `yaml:"successes" json:"successes"`
	Failures    uint64        `yaml:"failures" json:"failures"`
	SuccessRate float64       `yaml:"success-rate" json:"success-rate"`
	AvgDuration time.Duration `yaml:"avg-duration" json:"avg-duration"`
	AvgMemory   int64         `yaml:"avg-memory" json:"avg-memory"`
}

// ReactorSection reports orchestrator-level state.
type ReactorSection struct {
	RegisteredUnits int       `yaml:"registered-units" json:"registered-units"`
	TicksRun        uint64    `yaml:"ticks-run" json:"ticks-run"`
	LastTickAt      time.Time `yaml:"last-tick-at,omitempty" json:"last-tick-at,omitempty"`
	ActiveCooldowns int       `yaml:"active-cooldowns" json:"active-cooldowns"`
}

// EvaluationSection reports trigger-evaluation state.
type EvaluationSection struct {
	UnitsEvaluated  uint64 `yaml:"units-evaluated" json:"units-evaluated"`
	ScansTruncated  uint64 `yaml:"scans-truncated" json:"scans-truncated"`
	TriggerFailures uint64 `yaml:"trigger-failures" json:"trigger-failures"`
}

// MutexGroupReport reports one mutex group's selection state.
type MutexGroupReport struct {
	Group          string    `yaml:"group" json:"group"`
	LastSelectedID string    `yaml:"last-selected-id,omitempty" json:"last-selected-id,omitempty"`
	SelectionCount uint64    `yaml:"selection-count" json:"selection-count"`
	LastExecutedAt time.Time `yaml:"last-executed-at,omitempty" json:"last-executed-at,omitempty"`
}

// MutexSection reports mutex-resolution state.
type MutexSection struct {
	Strategy string             `yaml:"strategy" json:"strategy"`
	Groups   []MutexGroupReport `yaml:"groups,omitempty" json:"groups,omitempty"`
}

// ExecutionSection reports execution-monitor state.
type ExecutionSection struct {
	Aggregate AggregateHealth       `yaml:"aggregate" json:"aggregate"`
	Healthy   bool                  `yaml:"healthy" json:"healthy"`
	Units     map[string]UnitHealth `yaml:"units,omitempty" json:"units,omitempty"`
}

// ThrottlingSection reports pacing-controller state.
type ThrottlingSection struct {
	Rate        float64 `yaml:"rate" json:"rate"`
	Throttled   bool    `yaml:"throttled" json:"throttled"`
	Severity    string  `yaml:"severity" json:"severity"`
	Adjustments uint64  `yaml:"adjustments" json:"adjustments"`
	HistorySize int     `yaml:"history-size" json:"history-size"`
}

// HealthReport is the nested report returned to health-check
// consumers.
type HealthReport struct {
	InstanceID  string    `yaml:"instance-id" json:"instance-id"`
	GeneratedAt time.Time `yaml:"generated-at" json:"generated-at"`

	Reactor    ReactorSection    `yaml:"reactor" json:"reactor"`
	Evaluation EvaluationSection `yaml:"evaluation" json:"evaluation"`
	Mutex      MutexSection      `yaml:"mutex" json:"mutex"`
	Execution  ExecutionSection  `yaml:"execution" json:"execution"`
	Throttling ThrottlingSection `yaml:"throttling" json:"throttling"`
}
