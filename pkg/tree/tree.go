// Package tree provides helpers for the slash-separated paths used by the
// file API. Every path is absolute and rooted at "/".
package tree

import (
	"path"
	"strings"
)

// Root is the path of the top-level directory.
const Root = "/"

// Clean normalizes p to an absolute, slash-separated path.
// Empty input maps to Root. ".." segments cannot climb above Root.
func Clean(p string) string {
	if p == "" {
		return Root
	}
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean("/" + p)
}

// Escapes reports whether p tries to climb above Root with ".." segments.
func Escapes(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	depth := 0
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

// BuildChildPath joins a directory path and an entry name.
func BuildChildPath(dir, name string) string {
	dir = Clean(dir)
	if dir == Root {
		return Root + name
	}
	return dir + "/" + name
}

// Parent returns the directory containing p. The parent of Root is Root.
func Parent(p string) string {
	return path.Dir(Clean(p))
}

// Base returns the last element of p, or "" for Root.
func Base(p string) string {
	p = Clean(p)
	if p == Root {
		return ""
	}
	return path.Base(p)
}

// Depth returns the number of segments below Root.
func Depth(p string) int {
	p = Clean(p)
	if p == Root {
		return 0
	}
	return strings.Count(p, "/")
}

// IsWithin reports whether p equals dir or lies below it.
func IsWithin(dir, p string) bool {
	dir, p = Clean(dir), Clean(p)
	if dir == Root || dir == p {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}
