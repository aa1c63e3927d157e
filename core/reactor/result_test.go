// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactor_test

import (
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
	"gopkg.in/yaml.v3"

	"github.com/swarmlab/reactor/core/reactor"
	coretesting "github.com/swarmlab/reactor/testing"
)

type ResultSuite struct {
	coretesting.BaseSuite
}

var _ = gc.Suite(&ResultSuite{})

func (s *ResultSuite) TestValidateOrdered(c *gc.C) {
	result := reactor.TickResult{
		TickID:         1,
		UnitsEvaluated: 5,
		UnitsTriggered: 3,
		UnitsExecuted:  2,
		UnitsFailed:    1,
	}
	c.Assert(result.Validate(), jc.ErrorIsNil)
}

func (s *ResultSuite) TestValidateViolations(c *gc.C) {
	for _, result := range []reactor.TickResult{
		{TickID: 1, UnitsEvaluated: 1, UnitsTriggered: 2},
		{TickID: 2, UnitsTriggered: 1, UnitsExecuted: 2},
		{TickID: 3, UnitsExecuted: 1, UnitsFailed: 2},
	} {
		c.Check(result.Validate(), jc.ErrorIs, errors.NotValid)
	}
}

func (s *ResultSuite) TestSerializable(c *gc.C) {
	result := reactor.TickResult{
		TickID:         7,
		UnitsEvaluated: 1,
		UnitsTriggered: 1,
		UnitsExecuted:  1,
		Results: []reactor.ExecutionResult{{
			UnitID:  "balancer",
			Success: true,
			Mutations: []reactor.Mutation{{
				Key:    "cluster/load",
				Change: reactor.ChangeUpdate,
				Before: 0.5,
				After:  0.7,
			}},
		}},
	}
	data, err := yaml.Marshal(result)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(string(data), jc.Contains, "tick-id: 7")
	c.Assert(string(data), jc.Contains, "change: update")
}
