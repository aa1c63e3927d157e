// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package safety enforces the execution limits the reactor consults
// before admitting or running a unit: registry capacity, concurrent
// execution slots, and a token-bucket rate limit on execution starts.
package safety

import (
	"sync"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/ratelimit"

	"github.com/swarmlab/reactor/core/unit"
)

// Logger represents the methods the limiter uses to log information.
type Logger interface {
	Warningf(string, ...any)
	Debugf(string, ...any)
}

// LimiterConfig holds the tuning of a Limiter.
type LimiterConfig struct {
	Logger Logger

	// MaxRegisteredUnits caps the registry size.
	MaxRegisteredUnits int

	// MaxConcurrentExecutions caps the number of units holding an
	// execution slot at once.
	MaxConcurrentExecutions int

	// StartRate is the sustained execution-start rate per second.
	StartRate float64

	// StartBurst is the token bucket capacity.
	StartBurst int64
}

// Validate returns an error if the config cannot drive a limiter.
func (config LimiterConfig) Validate() error {
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.MaxRegisteredUnits <= 0 {
		return errors.NotValidf("max registered units %d", config.MaxRegisteredUnits)
	}
	if config.MaxConcurrentExecutions <= 0 {
		return errors.NotValidf("max concurrent executions %d", config.MaxConcurrentExecutions)
	}
	if config.StartRate <= 0 {
		return errors.NotValidf("start rate %v", config.StartRate)
	}
	if config.StartBurst <= 0 {
		return errors.NotValidf("start burst %d", config.StartBurst)
	}
	return nil
}

// Limiter is the safety limits enforcer.
type Limiter struct {
	config LimiterConfig
	bucket *ratelimit.Bucket

	mu         sync.Mutex
	registered set.Strings
	executing  set.Strings
}

// NewLimiter returns a limiter backed by config.
func NewLimiter(config LimiterConfig) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Limiter{
		config:     config,
		bucket:     ratelimit.NewBucketWithRate(config.StartRate, config.StartBurst),
		registered: set.NewStrings(),
		executing:  set.NewStrings(),
	}, nil
}

// CheckRegistration fails when the registry is at capacity.
func (l *Limiter) CheckRegistration(identity unit.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.registered.Size() >= l.config.MaxRegisteredUnits {
		return errors.Errorf("unit registry at capacity (%d)", l.config.MaxRegisteredUnits)
	}
	l.registered.Add(identity.ID)
	return nil
}

// RecordUnregistration releases the unit's registration slot.
func (l *Limiter) RecordUnregistration(unitID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registered.Remove(unitID)
}

// CheckEvaluation is the non-reserving pre-check applied during
// trigger evaluation: it fails while the start bucket is empty, but
// consumes nothing.
func (l *Limiter) CheckEvaluation(unitID string) error {
	if l.bucket.Available() <= 0 {
		return errors.Errorf("execution start rate exceeded")
	}
	return nil
}

// CheckExecutionStart reserves an execution slot and a start token.
func (l *Limiter) CheckExecutionStart(unitID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.executing.Size() >= l.config.MaxConcurrentExecutions {
		return errors.Errorf("concurrent execution limit reached (%d)", l.config.MaxConcurrentExecutions)
	}
	if l.bucket.TakeAvailable(1) == 0 {
		return errors.Errorf("execution start rate exceeded")
	}
	l.executing.Add(unitID)
	l.config.Logger.Debugf("execution slot granted to %q (%d active)", unitID, l.executing.Size())
	return nil
}

// RecordExecutionEnd releases the unit's execution slot.
func (l *Limiter) RecordExecutionEnd(unitID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executing.Remove(unitID)
}
