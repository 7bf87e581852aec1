// Package selector decides which source versions a migration carries forward.
//
// The contract is "skip exactly the versions already present on the target".
// Two policy knobs exist for internal use and are not exposed on the command
// line: Force disables all skipping, and Pin restricts the migration to a
// single version. The pin keeps the legacy single-version filter available
// and is off by default.
package selector

import (
	"github.com/input-output-hk/migrate-npm-registry/registry"
)

// LegacyPinnedVersion is the version the legacy filter let through. Set
// Policy.Pin to it to reproduce that behaviour.
const LegacyPinnedVersion = "0.0.3"

// Reason explains why a version was not carried forward.
type Reason string

const (
	// ReasonOnTarget means the target registry already lists the version.
	ReasonOnTarget Reason = "already exists on target. Skipping."

	// ReasonNotPinned means the version differs from Policy.Pin.
	ReasonNotPinned Reason = "does not match the pinned version. Skipping."
)

// Policy configures selection.
type Policy struct {
	// Force carries every source version forward.
	Force bool

	// Pin, when non-empty, skips every version not equal to it.
	Pin string
}

// DefaultPolicy skips versions present on the target and nothing else.
func DefaultPolicy() Policy {
	return Policy{}
}

// Skip records one excluded version.
type Skip struct {
	Version string
	Reason  Reason
}

// String renders the operator-facing notice for s.
func (s Skip) String() string {
	return s.Version + " " + string(s.Reason)
}

// Selection is the outcome of Select.
type Selection struct {
	// Retained is a copy of the source metadata holding only the versions
	// to migrate.
	Retained *registry.Metadata

	// Skipped lists excluded versions in registry.SortVersions order.
	Skipped []Skip
}

// Versions returns the retained version strings in migration order.
func (s Selection) Versions() []string {
	return s.Retained.VersionKeys()
}

// Select filters source against target under policy. target may be nil when
// the package is absent on the target registry. source is not modified.
func Select(source, target *registry.Metadata, policy Policy) Selection {
	retained := source.Clone()
	if retained == nil {
		retained = &registry.Metadata{Versions: map[string]registry.Version{}}
	}

	sel := Selection{Retained: retained}
	if policy.Force {
		return sel
	}

	for _, v := range source.VersionKeys() {
		var reason Reason
		switch {
		case target.Has(v):
			reason = ReasonOnTarget
		case policy.Pin != "" && v != policy.Pin:
			reason = ReasonNotPinned
		default:
			continue
		}

		delete(retained.Versions, v)
		sel.Skipped = append(sel.Skipped, Skip{Version: v, Reason: reason})
	}

	return sel
}
