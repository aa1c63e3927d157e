// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactor

import (
	"time"

	"github.com/juju/clock/testclock"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coreactor "github.com/swarmlab/reactor/core/reactor"
	coretesting "github.com/swarmlab/reactor/testing"
)

type ThrottleSuite struct {
	coretesting.BaseSuite

	clock *testclock.Clock
}

var _ = gc.Suite(&ThrottleSuite{})

func (s *ThrottleSuite) SetUpTest(c *gc.C) {
	s.BaseSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
}

func (s *ThrottleSuite) controller(c *gc.C, cfg ThrottleConfig) *ThrottlingController {
	if cfg.Clock == nil {
		cfg.Clock = s.clock
	}
	if cfg.Logger == nil {
		cfg.Logger = coretesting.NewCheckLogger(c)
	}
	if cfg.Target == 0 {
		cfg.Target = time.Second
	}
	if cfg.Factor == 0 {
		cfg.Factor = 0.2
	}
	if cfg.MinRate == 0 {
		cfg.MinRate = 0.1
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 5
	}
	controller, err := NewThrottlingController(cfg)
	c.Assert(err, jc.ErrorIsNil)
	return controller
}

// tick simulates one tick of the given duration and feeds it to the
// controller.
func (s *ThrottleSuite) tick(controller *ThrottlingController, duration time.Duration) {
	start := s.clock.Now()
	s.clock.Advance(duration)
	controller.AdjustThrottling(start, coreactor.AggregateHealth{SuccessRate: 1})
}

func (s *ThrottleSuite) TestConfigValidation(c *gc.C) {
	base := ThrottleConfig{
		Clock:      s.clock,
		Logger:     coretesting.NoopLogger{},
		Target:     time.Second,
		Factor:     0.2,
		MinRate:    0.1,
		WindowSize: 5,
	}

	cfg := base
	cfg.Target = 0
	_, err := NewThrottlingController(cfg)
	c.Check(err, gc.ErrorMatches, "target tick duration 0s not valid")

	cfg = base
	cfg.MinRate = 1.5
	_, err = NewThrottlingController(cfg)
	c.Check(err, gc.ErrorMatches, "minimum rate 1.5 not valid")

	cfg = base
	cfg.WindowSize = 0
	_, err = NewThrottlingController(cfg)
	c.Check(err, gc.ErrorMatches, "window size 0 not valid")
}

func (s *ThrottleSuite) TestStartsAtFullRate(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	c.Assert(controller.CurrentRate(), gc.Equals, 1.0)
	c.Assert(controller.IsThrottled(), jc.IsFalse)
	c.Assert(controller.PacingDelay(), gc.Equals, time.Duration(0))
}

func (s *ThrottleSuite) TestOverrunSlowsDown(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	s.tick(controller, 2*time.Second)
	c.Assert(controller.CurrentRate(), gc.Equals, 0.8)
	c.Assert(controller.IsThrottled(), jc.IsTrue)
	c.Assert(controller.Adjustments(), gc.Equals, uint64(1))
}

func (s *ThrottleSuite) TestFastTickRecoversThrottledRate(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	controller.ForceRate(0.5)
	s.tick(controller, 500*time.Millisecond)
	c.Assert(controller.CurrentRate(), gc.Equals, 0.6)
}

func (s *ThrottleSuite) TestFastTickAtFullRateNoChange(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	s.tick(controller, 100*time.Millisecond)
	c.Assert(controller.CurrentRate(), gc.Equals, 1.0)
	c.Assert(controller.Adjustments(), gc.Equals, uint64(0))
}

func (s *ThrottleSuite) TestDeadBandNoChange(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	controller.ForceRate(0.5)
	s.tick(controller, time.Second)
	c.Assert(controller.CurrentRate(), gc.Equals, 0.5)
	c.Assert(controller.Adjustments(), gc.Equals, uint64(0))
}

func (s *ThrottleSuite) TestRateFloorsAtMinimum(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	for i := 0; i < 5; i++ {
		s.tick(controller, 10*time.Second)
	}
	c.Assert(controller.CurrentRate(), gc.Equals, 0.1)
}

func (s *ThrottleSuite) TestRecoveryCapsAtFullRate(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	controller.ForceRate(0.95)
	s.tick(controller, 100*time.Millisecond)
	c.Assert(controller.CurrentRate(), gc.Equals, 1.0)
}

func (s *ThrottleSuite) TestPacingDelayProportional(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	controller.ForceRate(0.75)
	c.Assert(controller.PacingDelay(), gc.Equals, 250*time.Millisecond)
	controller.ForceRate(0.25)
	c.Assert(controller.PacingDelay(), gc.Equals, 750*time.Millisecond)
}

func (s *ThrottleSuite) TestSeverityBands(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	tests := []struct {
		rate     float64
		expected ThrottleSeverity
	}{
		{1.0, SeverityNone},
		{0.9, SeverityNone},
		{0.8, SeverityLight},
		{0.6, SeverityModerate},
		{0.4, SeverityHeavy},
		{0.2, SeveritySevere},
	}
	for _, test := range tests {
		controller.ForceRate(test.rate)
		c.Check(controller.Severity(), gc.Equals, test.expected,
			gc.Commentf("rate %v", test.rate))
	}
}

func (s *ThrottleSuite) TestHistoryWindowEvictsOldest(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true, WindowSize: 3})
	durations := []time.Duration{
		time.Second,
		2 * time.Second,
		3 * time.Second,
		4 * time.Second,
		5 * time.Second,
	}
	for _, d := range durations {
		s.tick(controller, d)
	}
	history := controller.History()
	c.Assert(history, gc.HasLen, 3)
	c.Assert(history[0].TickDuration, gc.Equals, 3*time.Second)
	c.Assert(history[1].TickDuration, gc.Equals, 4*time.Second)
	c.Assert(history[2].TickDuration, gc.Equals, 5*time.Second)
}

func (s *ThrottleSuite) TestHistoryBeforeWrap(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true, WindowSize: 5})
	s.tick(controller, time.Second)
	s.tick(controller, 2*time.Second)
	history := controller.History()
	c.Assert(history, gc.HasLen, 2)
	c.Assert(history[0].TickDuration, gc.Equals, time.Second)
	c.Assert(history[1].TickDuration, gc.Equals, 2*time.Second)
}

func (s *ThrottleSuite) TestDisabledRecordsButNeverAdjusts(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: false})
	s.tick(controller, 10*time.Second)
	c.Assert(controller.CurrentRate(), gc.Equals, 1.0)
	c.Assert(controller.Adjustments(), gc.Equals, uint64(0))
	c.Assert(controller.History(), gc.HasLen, 1)
}

func (s *ThrottleSuite) TestReset(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	s.tick(controller, 3*time.Second)
	c.Assert(controller.IsThrottled(), jc.IsTrue)
	controller.Reset()
	c.Assert(controller.CurrentRate(), gc.Equals, 1.0)
	c.Assert(controller.Adjustments(), gc.Equals, uint64(0))
	c.Assert(controller.History(), gc.HasLen, 0)
}

func (s *ThrottleSuite) TestForceRateClamps(c *gc.C) {
	controller := s.controller(c, ThrottleConfig{Enabled: true})
	controller.ForceRate(2.0)
	c.Assert(controller.CurrentRate(), gc.Equals, 1.0)
	controller.ForceRate(0.01)
	c.Assert(controller.CurrentRate(), gc.Equals, 0.1)
}
