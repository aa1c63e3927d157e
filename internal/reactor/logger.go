// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactor

// logger is here to stop the desire of creating a package level logger.
// Don't do this, instead pass one through the component config.
type logger interface{}

var _ logger = struct{}{}

// Logger represents the methods the reactor and its engines use to
// log information. Logging never affects control flow.
type Logger interface {
	Errorf(string, ...any)
	Warningf(string, ...any)
	Infof(string, ...any)
	Debugf(string, ...any)
}
