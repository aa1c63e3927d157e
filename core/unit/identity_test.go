// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package unit_test

import (
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/swarmlab/reactor/core/unit"
	coretesting "github.com/swarmlab/reactor/testing"
)

type IdentitySuite struct {
	coretesting.BaseSuite
}

var _ = gc.Suite(&IdentitySuite{})

func (s *IdentitySuite) TestValidate(c *gc.C) {
	identity := unit.Identity{
		ID:          "balancer",
		Version:     "1.2.0",
		ContentHash: "abcd1234",
	}
	c.Assert(identity.Validate(), jc.ErrorIsNil)
}

func (s *IdentitySuite) TestValidateEmptyID(c *gc.C) {
	identity := unit.Identity{Version: "1.0.0"}
	err := identity.Validate()
	c.Assert(err, jc.ErrorIs, errors.NotValid)
	c.Assert(err, gc.ErrorMatches, "empty unit id not valid")
}

func (s *IdentitySuite) TestValidateEmptyVersion(c *gc.C) {
	identity := unit.Identity{ID: "balancer"}
	c.Assert(identity.Validate(), gc.ErrorMatches, `unit "balancer" without version not valid`)
}

func (s *IdentitySuite) TestString(c *gc.C) {
	identity := unit.Identity{ID: "balancer", Version: "1.2.0"}
	c.Assert(identity.String(), gc.Equals, "balancer/1.2.0")
}

func (s *IdentitySuite) TestSets(c *gc.C) {
	identity := unit.Identity{
		ID:           "balancer",
		Version:      "1.2.0",
		Capabilities: []string{"scale", "scale", "drain"},
		Dependencies: []string{"metrics"},
		MeshKeys:     []string{"cluster/load", "cluster/members"},
	}
	c.Assert(identity.CapabilitySet().SortedValues(), gc.DeepEquals, []string{"drain", "scale"})
	c.Assert(identity.DependencySet().SortedValues(), gc.DeepEquals, []string{"metrics"})
	c.Assert(identity.MeshKeySet().Contains("cluster/load"), jc.IsTrue)
}
