// Package notepath manipulates the materialized-path encoding used by note
// entities: a note's location in the tree is its ancestor ids joined by "/",
// with the empty string meaning root. A note's full location is its path
// plus its own id.
package notepath

import "strings"

const delimiter = "/"

// Split returns the ordered ancestor ids encoded in a path.
//
//	"a/b/c" -> ["a", "b", "c"]
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, delimiter)
}

// Parent returns the id of the immediate parent, i.e. the last path element.
// ok is false for the root path.
//
//	"a/b/c" -> "c"
func Parent(path string) (string, bool) {
	ids := Split(path)
	if len(ids) == 0 {
		return "", false
	}
	return ids[len(ids)-1], true
}

// Append extends a path with a further ancestor id.
//
//	"a/b", "c" -> "a/b/c"
func Append(path, id string) string {
	if path == "" {
		return id
	}
	return path + delimiter + id
}

// Depth returns the number of ancestors encoded in a path.
//
//	"a/b/c" -> 3
func Depth(path string) int {
	return len(Split(path))
}
