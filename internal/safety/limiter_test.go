// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package safety

import (
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/swarmlab/reactor/core/unit"
	coretesting "github.com/swarmlab/reactor/testing"
)

type LimiterSuite struct {
	coretesting.BaseSuite
}

var _ = gc.Suite(&LimiterSuite{})

func (s *LimiterSuite) limiter(c *gc.C, cfg LimiterConfig) *Limiter {
	if cfg.Logger == nil {
		cfg.Logger = coretesting.NewCheckLogger(c)
	}
	if cfg.MaxRegisteredUnits == 0 {
		cfg.MaxRegisteredUnits = 100
	}
	if cfg.MaxConcurrentExecutions == 0 {
		cfg.MaxConcurrentExecutions = 10
	}
	if cfg.StartRate == 0 {
		cfg.StartRate = 100
	}
	if cfg.StartBurst == 0 {
		cfg.StartBurst = 100
	}
	limiter, err := NewLimiter(cfg)
	c.Assert(err, jc.ErrorIsNil)
	return limiter
}

func identity(id string) unit.Identity {
	return unit.Identity{ID: id, Version: "1.0.0"}
}

func (s *LimiterSuite) TestConfigValidation(c *gc.C) {
	tests := []struct {
		cfg      LimiterConfig
		expected string
	}{{
		cfg:      LimiterConfig{MaxRegisteredUnits: 1, MaxConcurrentExecutions: 1, StartRate: 1, StartBurst: 1},
		expected: "nil Logger not valid",
	}, {
		cfg:      LimiterConfig{Logger: coretesting.NoopLogger{}, MaxConcurrentExecutions: 1, StartRate: 1, StartBurst: 1},
		expected: "max registered units 0 not valid",
	}, {
		cfg:      LimiterConfig{Logger: coretesting.NoopLogger{}, MaxRegisteredUnits: 1, StartRate: 1, StartBurst: 1},
		expected: "max concurrent executions 0 not valid",
	}, {
		cfg:      LimiterConfig{Logger: coretesting.NoopLogger{}, MaxRegisteredUnits: 1, MaxConcurrentExecutions: 1, StartBurst: 1},
		expected: "start rate 0 not valid",
	}, {
		cfg:      LimiterConfig{Logger: coretesting.NoopLogger{}, MaxRegisteredUnits: 1, MaxConcurrentExecutions: 1, StartRate: 1},
		expected: "start burst 0 not valid",
	}}
	for i, test := range tests {
		c.Logf("test %d", i)
		_, err := NewLimiter(test.cfg)
		c.Check(err, gc.ErrorMatches, test.expected)
	}
}

func (s *LimiterSuite) TestRegistrationCapacity(c *gc.C) {
	limiter := s.limiter(c, LimiterConfig{MaxRegisteredUnits: 2})
	c.Assert(limiter.CheckRegistration(identity("a")), jc.ErrorIsNil)
	c.Assert(limiter.CheckRegistration(identity("b")), jc.ErrorIsNil)
	c.Assert(limiter.CheckRegistration(identity("c")), gc.ErrorMatches, `unit registry at capacity \(2\)`)

	limiter.RecordUnregistration("a")
	c.Assert(limiter.CheckRegistration(identity("c")), jc.ErrorIsNil)
}

func (s *LimiterSuite) TestConcurrentExecutionSlots(c *gc.C) {
	limiter := s.limiter(c, LimiterConfig{MaxConcurrentExecutions: 2})
	c.Assert(limiter.CheckExecutionStart("a"), jc.ErrorIsNil)
	c.Assert(limiter.CheckExecutionStart("b"), jc.ErrorIsNil)
	c.Assert(limiter.CheckExecutionStart("c"), gc.ErrorMatches, `concurrent execution limit reached \(2\)`)

	limiter.RecordExecutionEnd("a")
	c.Assert(limiter.CheckExecutionStart("c"), jc.ErrorIsNil)
}

func (s *LimiterSuite) TestStartRateBucketExhaustion(c *gc.C) {
	limiter := s.limiter(c, LimiterConfig{
		MaxConcurrentExecutions: 100,
		StartRate:               0.001,
		StartBurst:              2,
	})
	c.Assert(limiter.CheckExecutionStart("a"), jc.ErrorIsNil)
	c.Assert(limiter.CheckExecutionStart("b"), jc.ErrorIsNil)
	c.Assert(limiter.CheckExecutionStart("c"), gc.ErrorMatches, "execution start rate exceeded")
}

func (s *LimiterSuite) TestEvaluationPreCheckConsumesNothing(c *gc.C) {
	limiter := s.limiter(c, LimiterConfig{
		MaxConcurrentExecutions: 100,
		StartRate:               0.001,
		StartBurst:              1,
	})
	for i := 0; i < 5; i++ {
		c.Assert(limiter.CheckEvaluation("a"), jc.ErrorIsNil)
	}
	c.Assert(limiter.CheckExecutionStart("a"), jc.ErrorIsNil)
	c.Assert(limiter.CheckEvaluation("b"), gc.ErrorMatches, "execution start rate exceeded")
}
