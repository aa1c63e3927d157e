// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package unit

import (
	"fmt"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// Identity identifies a unit to the reactor. It is created once at
// registration and never mutated; the reactor uses it as the map key
// everywhere.
type Identity struct {
	// ID uniquely names the unit within a reactor instance.
	ID string `yaml:"id" json:"id"`

	// Version is the unit's semantic version.
	Version string `yaml:"version" json:"version"`

	// ContentHash is a hash of the unit's content, used to detect
	// drift across hot swaps.
	ContentHash string `yaml:"content-hash,omitempty" json:"content-hash,omitempty"`

	// Capabilities declares what the unit can do.
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`

	// Dependencies declares the capabilities the unit relies on.
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	// MeshKeys declares the mesh keys the unit intends to touch.
	MeshKeys []string `yaml:"mesh-keys,omitempty" json:"mesh-keys,omitempty"`
}

// Validate returns an error if the identity cannot be registered.
func (i Identity) Validate() error {
	if i.ID == "" {
		return errors.NotValidf("empty unit id")
	}
	if i.Version == "" {
		return errors.NotValidf("unit %q without version", i.ID)
	}
	return nil
}

// CapabilitySet returns the declared capabilities as a set.
func (i Identity) CapabilitySet() set.Strings {
	return set.NewStrings(i.Capabilities...)
}

// DependencySet returns the declared dependencies as a set.
func (i Identity) DependencySet() set.Strings {
	return set.NewStrings(i.Dependencies...)
}

// MeshKeySet returns the declared mesh key touch list as a set.
func (i Identity) MeshKeySet() set.Strings {
	return set.NewStrings(i.MeshKeys...)
}

// String implements fmt.Stringer.
func (i Identity) String() string {
	return fmt.Sprintf("%s/%s", i.ID, i.Version)
}
