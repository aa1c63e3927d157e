// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"time"

	jujutesting "github.com/juju/testing"
)

const (
	// LongWait is used when something should have already happened,
	// and we just want to make sure it has before proceeding.
	LongWait = 10 * time.Second

	// ShortWait is a reasonable amount of time to block waiting for
	// something that should not happen.
	ShortWait = 50 * time.Millisecond
)

// BaseSuite provides isolation from the host environment for all
// suites in this repository.
type BaseSuite struct {
	jujutesting.IsolationSuite
}
