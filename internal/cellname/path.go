package cellname

import (
	"strings"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// Path addresses a cell reachable from the local registry by descending
// through zero or more nested daemons. The zero value is the Empty variant.
type Path struct {
	segments []CellName
}

// Empty is the path that addresses no cell (used for requests targeting the
// local daemon's root).
var Empty = Path{}

// ParsePath validates a "/"-separated cell-name-path. An empty string parses
// to Empty.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Empty, nil
	}
	if len(s) > MaxPathLength {
		return Path{}, rpcerr.InvalidArgumentf("cell name path %q exceeds %d characters", s, MaxPathLength)
	}

	parts := strings.Split(s, Separator)
	segments := make([]CellName, 0, len(parts))
	for _, part := range parts {
		name, err := New(part)
		if err != nil {
			return Path{}, err
		}
		segments = append(segments, name)
	}
	return Path{segments: segments}, nil
}

// IsEmpty reports whether p is the Empty variant.
func (p Path) IsEmpty() bool {
	return len(p.segments) == 0
}

// Head returns the first segment of p. Only valid when !p.IsEmpty().
func (p Path) Head() CellName {
	return p.segments[0]
}

// SplitHead returns the first segment and the remaining path (which may be
// Empty). The second return is false when p is already Empty.
func (p Path) SplitHead() (CellName, Path, bool) {
	if p.IsEmpty() {
		return CellName{}, Empty, false
	}
	if len(p.segments) == 1 {
		return p.segments[0], Empty, true
	}
	return p.segments[0], Path{segments: p.segments[1:]}, true
}

// String renders p back to its "/"-separated form. Parsing the result of
// String reproduces an equivalent Path (the round-trip law from ).
func (p Path) String() string {
	if p.IsEmpty() {
		return ""
	}
	parts := make([]string, len(p.segments))
	for i, s := range p.segments {
		parts[i] = s.String()
	}
	return strings.Join(parts, Separator)
}

// Single returns a Path addressing exactly one cell.
func Single(name CellName) Path {
	return Path{segments: []CellName{name}}
}
