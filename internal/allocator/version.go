package allocator

import "github.com/Masterminds/semver/v3"

// EngineVersion identifies this package's on-disk format and invariant set:
// the persisted block/free-list layout in block.go and freelist.go, plus
// the coalescing and placement rules in allocator.go. A caller persisting
// a region across process restarts (or shipping one between binaries that
// embed this package at different versions) should check CompatibleWith
// before trusting a region it did not create itself, grounded on the
// package manager's resolver.CheckCompatibility use of semver constraints.
const EngineVersion = "1.0.0"

var engineVersion = semver.MustParse(EngineVersion)

// CompatibleWith reports whether this package's EngineVersion satisfies
// the given semver constraint (e.g. ">=1.0.0, <2.0.0"). An invalid
// constraint string is treated as incompatible rather than panicking.
func CompatibleWith(constraint string) bool {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}

	return c.Check(engineVersion)
}
