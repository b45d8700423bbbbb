package schema

import (
	"fmt"
	"strings"
)

// Path addresses a value inside a nested document.
// "author.name" is Path{"author", "name"}.
type Path []string

// ParsePath splits a dotted key into its segments.
func ParsePath(key string) (Path, error) {
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}
	parts := strings.Split(key, ".")
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("key %q: empty segment at position %d", key, i)
		}
	}
	return Path(parts), nil
}

// MustPath is ParsePath for literals known to be valid.
func MustPath(key string) Path {
	p, err := ParsePath(key)
	if err != nil {
		panic(err)
	}
	return p
}

// String joins the segments back into a dotted key.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a new path with name appended.
func (p Path) Child(name string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, name)
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1]
}

// Last returns the final segment.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Equal reports whether both paths have identical segments.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether o is a leading part of p.
func (p Path) HasPrefix(o Path) bool {
	if len(o) > len(p) {
		return false
	}
	return p[:len(o)].Equal(o)
}
