package discovery

import (
	"github.com/gobwas/glob"
)

// partitionMatches reports whether partition name a matches partition name
// b, honoring DDS partition QoS wildcard conventions (shell-style glob:
// "*" and "?") in either direction, since either a writer or a reader may
// be the one supplying the wildcard pattern.
func partitionMatches(a, b string) bool {
	if a == b {
		return true
	}
	if globMatch(a, b) {
		return true
	}
	return globMatch(b, a)
}

func globMatch(pattern, name string) bool {
	g, err := glob.Compile(pattern)
	if err != nil {
		// Not a valid glob (e.g. contains regex-special but non-glob
		// characters) — fall back to exact comparison, already checked
		// by the caller.
		return false
	}
	return g.Match(name)
}
