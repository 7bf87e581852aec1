package registry

import (
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// SortVersions orders version strings in place: valid semantic versions
// first in ascending precedence, then anything unparsable in lexical order.
func SortVersions(versions []string) {
	parsed := make(map[string]*semver.Version, len(versions))
	for _, v := range versions {
		if sv, err := semver.NewVersion(v); err == nil {
			parsed[v] = sv
		}
	}

	slices.SortStableFunc(versions, func(a, b string) int {
		va, aok := parsed[a]
		vb, bok := parsed[b]
		switch {
		case aok && bok:
			if c := va.Compare(vb); c != 0 {
				return c
			}
			return strings.Compare(a, b)
		case aok:
			return -1
		case bok:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
}
