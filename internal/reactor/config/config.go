// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the recognized reactor configuration options,
// their defaults, and the schema used to coerce raw attribute maps
// into validated values. Configuration is validated once at startup
// and passed into each component's constructor; there is no global
// lookup.
package config

import (
	"time"

	"github.com/juju/errors"
	"github.com/juju/schema"
)

// MutexStrategy selects how a contested mutex group picks its winner.
type MutexStrategy string

const (
	// StrategyPriorityBased picks the highest-priority member, ties
	// broken by registration order.
	StrategyPriorityBased MutexStrategy = "priority_based"

	// StrategyRoundRobin picks the member after the group's last
	// selected id, wrapping.
	StrategyRoundRobin MutexStrategy = "round_robin"

	// StrategyWeightedRandom draws uniformly over cumulative
	// priority weight.
	StrategyWeightedRandom MutexStrategy = "weighted_random"
)

// Attribute keys recognized in a reactor configuration.
const (
	EvaluationTimeout         = "evaluation-timeout"
	MaxUnitsPerEvaluation     = "max-units-per-evaluation"
	MaxUnitsPerTick           = "max-units-per-tick"
	MutexStrategyKey          = "mutex-strategy"
	TargetTickDuration        = "target-tick-duration"
	ThrottleAdjustmentFactor  = "throttle-adjustment-factor"
	MinThrottleRate           = "min-throttle-rate"
	PerformanceWindowSize     = "performance-window-size"
	AdaptiveThrottlingEnabled = "adaptive-throttling"
	UnitExecutionTimeout      = "unit-execution-timeout"
)

const (
	DefaultEvaluationTimeout         = 500 * time.Millisecond
	DefaultMaxUnitsPerEvaluation     = 1000
	DefaultMaxUnitsPerTick           = 100
	DefaultTargetTickDuration        = time.Second
	DefaultThrottleAdjustmentFactor  = 0.2
	DefaultMinThrottleRate           = 0.1
	DefaultPerformanceWindowSize     = 100
	DefaultUnitExecutionTimeout      = 30 * time.Second
	DefaultAdaptiveThrottlingEnabled = true
)

var configChecker = schema.FieldMap(schema.Fields{
	EvaluationTimeout:         schema.TimeDurationString(),
	MaxUnitsPerEvaluation:     schema.ForceInt(),
	MaxUnitsPerTick:           schema.ForceInt(),
	MutexStrategyKey:          schema.String(),
	TargetTickDuration:        schema.TimeDurationString(),
	ThrottleAdjustmentFactor:  schema.Float(),
	MinThrottleRate:           schema.Float(),
	PerformanceWindowSize:     schema.ForceInt(),
	AdaptiveThrottlingEnabled: schema.Bool(),
	UnitExecutionTimeout:      schema.TimeDurationString(),
}, schema.Defaults{
	EvaluationTimeout:         DefaultEvaluationTimeout,
	MaxUnitsPerEvaluation:     DefaultMaxUnitsPerEvaluation,
	MaxUnitsPerTick:           DefaultMaxUnitsPerTick,
	MutexStrategyKey:          string(StrategyPriorityBased),
	TargetTickDuration:        DefaultTargetTickDuration,
	ThrottleAdjustmentFactor:  DefaultThrottleAdjustmentFactor,
	MinThrottleRate:           DefaultMinThrottleRate,
	PerformanceWindowSize:     DefaultPerformanceWindowSize,
	AdaptiveThrottlingEnabled: DefaultAdaptiveThrottlingEnabled,
	UnitExecutionTimeout:      DefaultUnitExecutionTimeout,
})

// Config is a fully coerced and validated attribute map.
type Config map[string]any

// New coerces the given raw attributes against the schema, applies
// defaults, and validates the result.
func New(attrs map[string]any) (Config, error) {
	coerced, err := configChecker.Coerce(attrs, nil)
	if err != nil {
		return nil, errors.Annotate(err, "reactor config")
	}
	cfg := Config(coerced.(map[string]any))
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// Validate returns an error if any coerced value is out of range.
func (c Config) Validate() error {
	switch c.MutexStrategy() {
	case StrategyPriorityBased, StrategyRoundRobin, StrategyWeightedRandom:
	default:
		return errors.NotValidf("mutex strategy %q", c.MutexStrategy())
	}
	if c.EvaluationTimeout() <= 0 {
		return errors.NotValidf("evaluation timeout %s", c.EvaluationTimeout())
	}
	if c.MaxUnitsPerEvaluation() <= 0 {
		return errors.NotValidf("max units per evaluation %d", c.MaxUnitsPerEvaluation())
	}
	if c.MaxUnitsPerTick() <= 0 {
		return errors.NotValidf("max units per tick %d", c.MaxUnitsPerTick())
	}
	if c.TargetTickDuration() <= 0 {
		return errors.NotValidf("target tick duration %s", c.TargetTickDuration())
	}
	if c.ThrottleAdjustmentFactor() <= 0 {
		return errors.NotValidf("throttle adjustment factor %v", c.ThrottleAdjustmentFactor())
	}
	if rate := c.MinThrottleRate(); rate <= 0 || rate > 1 {
		return errors.NotValidf("minimum throttle rate %v", rate)
	}
	if c.PerformanceWindowSize() <= 0 {
		return errors.NotValidf("performance window size %d", c.PerformanceWindowSize())
	}
	if c.UnitExecutionTimeout() <= 0 {
		return errors.NotValidf("unit execution timeout %s", c.UnitExecutionTimeout())
	}
	return nil
}

// EvaluationTimeout is the wall-clock budget for one trigger scan.
func (c Config) EvaluationTimeout() time.Duration {
	return c.duration(EvaluationTimeout)
}

// MaxUnitsPerEvaluation caps how many units one scan may examine.
func (c Config) MaxUnitsPerEvaluation() int {
	return c.intVal(MaxUnitsPerEvaluation)
}

// MaxUnitsPerTick caps how many units may execute in one tick.
func (c Config) MaxUnitsPerTick() int {
	return c.intVal(MaxUnitsPerTick)
}

// MutexStrategy returns the configured collision-resolution strategy.
func (c Config) MutexStrategy() MutexStrategy {
	return MutexStrategy(c[MutexStrategyKey].(string))
}

// TargetTickDuration is the tick duration the throttling controller
// steers toward.
func (c Config) TargetTickDuration() time.Duration {
	return c.duration(TargetTickDuration)
}

// ThrottleAdjustmentFactor scales each throttle rate adjustment.
func (c Config) ThrottleAdjustmentFactor() float64 {
	return c[ThrottleAdjustmentFactor].(float64)
}

// MinThrottleRate is the floor of the throttle rate.
func (c Config) MinThrottleRate() float64 {
	return c[MinThrottleRate].(float64)
}

// PerformanceWindowSize bounds the throttling history ring buffer.
func (c Config) PerformanceWindowSize() int {
	return c.intVal(PerformanceWindowSize)
}

// AdaptiveThrottlingEnabled reports whether the controller adjusts
// its rate from measured load.
func (c Config) AdaptiveThrottlingEnabled() bool {
	return c[AdaptiveThrottlingEnabled].(bool)
}

// UnitExecutionTimeout is the advisory per-unit execution deadline.
func (c Config) UnitExecutionTimeout() time.Duration {
	return c.duration(UnitExecutionTimeout)
}

// duration reads a coerced duration attribute. The schema checker
// stores durations in their string encoding; an empty or unparseable
// value reads as zero and is rejected by Validate.
func (c Config) duration(key string) time.Duration {
	value, err := time.ParseDuration(c[key].(string))
	if err != nil {
		return 0
	}
	return value
}

func (c Config) intVal(key string) int {
	return c[key].(int)
}
