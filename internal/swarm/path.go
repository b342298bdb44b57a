// Package swarm tracks who is connected and which swarms they belong to.
//
// Two structures live here: the Registry (peer id → session handle) and the
// Directory (domain → swarm → peer ids). Both are safe for concurrent use and
// never perform I/O while holding their lock.
package swarm

import "strings"

// NormalizePath derives the canonical swarm key from a resource path by
// dropping any query string or fragment. Matching is byte-exact.
//
//	"/a/b.mp4?x=1#y" → "/a/b.mp4"
func NormalizePath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}
