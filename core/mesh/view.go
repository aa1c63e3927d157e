// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mesh

import (
	"github.com/juju/errors"
)

// ReadOnlyView adapts a Snapshot to the View interface. It also
// carries mutator methods that always fail, so callers holding the
// concrete type instead of the interface still cannot write through
// it.
type ReadOnlyView struct {
	snapshot Snapshot
}

// NewReadOnlyView returns a View over the given snapshot.
func NewReadOnlyView(snapshot Snapshot) *ReadOnlyView {
	return &ReadOnlyView{snapshot: snapshot}
}

// Get is part of the View interface.
func (v *ReadOnlyView) Get(key string) (any, bool) {
	return v.snapshot.Get(key)
}

// Exists is part of the View interface.
func (v *ReadOnlyView) Exists(key string) bool {
	return v.snapshot.Exists(key)
}

// Keys is part of the View interface.
func (v *ReadOnlyView) Keys() []string {
	return v.snapshot.Keys()
}

// Set always fails: the snapshot is read-only.
func (v *ReadOnlyView) Set(key string, value any) error {
	return errors.NotSupportedf("snapshot is read-only, write to %q", key)
}

// CompareAndSet always fails: the snapshot is read-only.
func (v *ReadOnlyView) CompareAndSet(key string, expected, value any) error {
	return errors.NotSupportedf("snapshot is read-only, write to %q", key)
}

// Delete always fails: the snapshot is read-only.
func (v *ReadOnlyView) Delete(key string) error {
	return errors.NotSupportedf("snapshot is read-only, delete of %q", key)
}
