// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactor

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	coreactor "github.com/swarmlab/reactor/core/reactor"
)

const (
	// slowdownRatio is the tick-to-target ratio above which the
	// controller backs off.
	slowdownRatio = 1.2

	// recoveryRatio is the tick-to-target ratio below which a
	// throttled controller recovers.
	recoveryRatio = 0.8
)

// ThrottleSeverity bands the current throttle rate for operators.
type ThrottleSeverity string

const (
	SeverityNone     ThrottleSeverity = "none"
	SeverityLight    ThrottleSeverity = "light"
	SeverityModerate ThrottleSeverity = "moderate"
	SeverityHeavy    ThrottleSeverity = "heavy"
	SeveritySevere   ThrottleSeverity = "severe"
)

// PerformanceSample is one entry in the controller's bounded history.
type PerformanceSample struct {
	Timestamp    time.Time
	TickDuration time.Duration
	Rate         float64
	SuccessRate  float64
	AvgDuration  time.Duration
	AvgMemory    int64
}

// ThrottleConfig holds the dependencies and tuning of a
// ThrottlingController.
type ThrottleConfig struct {
	Clock  clock.Clock
	Logger Logger

	// Target is the tick duration the controller steers toward.
	Target time.Duration

	// Factor scales each rate adjustment.
	Factor float64

	// MinRate is the floor of the throttle rate.
	MinRate float64

	// WindowSize bounds the performance history ring buffer.
	WindowSize int

	// Enabled turns adaptive adjustment on. History is recorded
	// either way.
	Enabled bool
}

// Validate returns an error if the config cannot drive a controller.
func (config ThrottleConfig) Validate() error {
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.Target <= 0 {
		return errors.NotValidf("target tick duration %s", config.Target)
	}
	if config.Factor <= 0 {
		return errors.NotValidf("adjustment factor %v", config.Factor)
	}
	if config.MinRate <= 0 || config.MinRate > 1 {
		return errors.NotValidf("minimum rate %v", config.MinRate)
	}
	if config.WindowSize <= 0 {
		return errors.NotValidf("window size %d", config.WindowSize)
	}
	return nil
}

// ThrottlingController observes tick durations and execution health
// and adapts a global throttle rate in [MinRate, 1.0]. A rate below
// 1.0 translates into a pacing delay between ticks.
type ThrottlingController struct {
	config ThrottleConfig

	mu          sync.Mutex
	rate        float64
	adjustments uint64

	// history is a ring buffer: next is the slot the next sample
	// lands in, wrapped is set once the window has filled.
	history []PerformanceSample
	next    int
	wrapped bool
}

// NewThrottlingController returns a controller backed by config, at
// full rate.
func NewThrottlingController(config ThrottleConfig) (*ThrottlingController, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &ThrottlingController{
		config:  config,
		rate:    1.0,
		history: make([]PerformanceSample, config.WindowSize),
	}, nil
}

// AdjustThrottling folds one finished tick into the controller: the
// rate is lowered when the tick overran the target by more than 20%,
// raised when a throttled controller ran under 80% of target, and
// left alone otherwise. Every call appends to the history window.
func (t *ThrottlingController) AdjustThrottling(tickStart time.Time, health coreactor.AggregateHealth) {
	now := t.config.Clock.Now()
	tickDuration := now.Sub(tickStart)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.Enabled {
		ratio := float64(tickDuration) / float64(t.config.Target)
		switch {
		case ratio > slowdownRatio:
			t.rate -= t.config.Factor * (ratio - 1)
			t.adjustments++
			t.clampRate()
			t.config.Logger.Debugf("tick ran %.2fx target, throttle rate now %.3f", ratio, t.rate)
		case ratio < recoveryRatio && t.rate < 1.0:
			t.rate += t.config.Factor * (1 - ratio)
			t.adjustments++
			t.clampRate()
			t.config.Logger.Debugf("tick ran %.2fx target, throttle rate recovering to %.3f", ratio, t.rate)
		}
	}

	t.history[t.next] = PerformanceSample{
		Timestamp:    now,
		TickDuration: tickDuration,
		Rate:         t.rate,
		SuccessRate:  health.SuccessRate,
		AvgDuration:  health.AvgDuration,
		AvgMemory:    health.AvgMemory,
	}
	t.next = (t.next + 1) % len(t.history)
	if t.next == 0 {
		t.wrapped = true
	}
}

func (t *ThrottlingController) clampRate() {
	if t.rate < t.config.MinRate {
		t.rate = t.config.MinRate
	}
	if t.rate > 1.0 {
		t.rate = 1.0
	}
}

// PacingDelay returns the delay to insert before the next tick,
// proportional to how far the rate is below full.
func (t *ThrottlingController) PacingDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rate >= 1.0 {
		return 0
	}
	return time.Duration(float64(t.config.Target) * (1.0 - t.rate))
}

// CurrentRate returns the throttle rate.
func (t *ThrottlingController) CurrentRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rate
}

// IsThrottled reports whether the rate is below full.
func (t *ThrottlingController) IsThrottled() bool {
	return t.CurrentRate() < 1.0
}

// Severity bands the current rate.
func (t *ThrottlingController) Severity() ThrottleSeverity {
	rate := t.CurrentRate()
	switch {
	case rate >= 0.9:
		return SeverityNone
	case rate >= 0.7:
		return SeverityLight
	case rate >= 0.5:
		return SeverityModerate
	case rate >= 0.3:
		return SeverityHeavy
	default:
		return SeveritySevere
	}
}

// Adjustments returns how many rate adjustments have been applied.
func (t *ThrottlingController) Adjustments() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.adjustments
}

// History returns the recorded samples, oldest first.
func (t *ThrottlingController) History() []PerformanceSample {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.wrapped {
		out := make([]PerformanceSample, t.next)
		copy(out, t.history[:t.next])
		return out
	}
	out := make([]PerformanceSample, 0, len(t.history))
	out = append(out, t.history[t.next:]...)
	out = append(out, t.history[:t.next]...)
	return out
}

// Reset is an operator override restoring full rate and clearing
// history.
func (t *ThrottlingController) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rate = 1.0
	t.adjustments = 0
	t.history = make([]PerformanceSample, t.config.WindowSize)
	t.next = 0
	t.wrapped = false
	t.config.Logger.Infof("throttling controller reset")
}

// ForceRate is an operator override pinning the rate, clamped to
// [MinRate, 1.0].
func (t *ThrottlingController) ForceRate(rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rate = rate
	t.clampRate()
	t.config.Logger.Infof("throttle rate forced to %.3f", t.rate)
}
