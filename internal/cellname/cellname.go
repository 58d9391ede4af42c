// Package cellname implements the DNS-label grammar used to name cells and
// the hierarchical cell-name-path used to address descendant cells through
// nested daemons.
package cellname

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// MaxLength is the longest a single CellName may be.
const MaxLength = 63

// MaxPathLength is the longest a rendered CellNamePath may be.
const MaxPathLength = 253

// Separator joins CellNames inside a CellNamePath.
const Separator = "/"

// leafMarker is reserved because it names the leaf cgroup under every cell.
const leafMarker = "_"

var labelRE = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)

// CellName is a validated DNS-label. The zero value is not valid; construct
// with New.
type CellName struct {
	name string
}

// New validates s against the cell name grammar.
func New(s string) (CellName, error) {
	if s == "" {
		return CellName{}, rpcerr.InvalidArgumentf("cell name must not be empty")
	}
	if len(s) > MaxLength {
		return CellName{}, rpcerr.InvalidArgumentf("cell name %q exceeds %d characters", s, MaxLength)
	}
	if strings.Contains(s, leafMarker) {
		return CellName{}, rpcerr.InvalidArgumentf("cell name %q must not contain %q (reserved for the leaf cgroup)", s, leafMarker)
	}
	if !labelRE.MatchString(s) {
		return CellName{}, rpcerr.InvalidArgumentf("cell name %q is not a valid DNS label", s)
	}
	return CellName{name: s}, nil
}

// String returns the underlying label.
func (n CellName) String() string {
	return n.name
}

// IsZero reports whether n was never validated via New.
func (n CellName) IsZero() bool {
	return n.name == ""
}

// LeafPath returns the cgroup leaf path segment for this cell, "<name>/_".
func (n CellName) LeafPath() string {
	return n.name + "/" + leafMarker
}

func (n CellName) GoString() string {
	return fmt.Sprintf("CellName(%s)", n.name)
}
