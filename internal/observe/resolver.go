package observe

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// NSPIDResolver resolves the PID of a process as observed from inside its
// own PID namespace: the innermost value of the `NSpid:` line in
// /proc/<pid>/status.
type NSPIDResolver interface {
	NSPID(pid int32) (nspid int32, ok bool)
}

// ProcfsResolver reads /proc/<pid>/status directly. A dedicated procfs
// library was considered and rejected here: the only field needed is a
// single already-whitespace-delimited line, and the raw read keeps this
// package free of an extra dependency for one field.
type ProcfsResolver struct{}

// NSPID implements NSPIDResolver.
func (ProcfsResolver) NSPID(pid int32) (int32, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return 0, false
	}
	return parseNSpid(data)
}

func parseNSpid(status []byte) (int32, bool) {
	for _, line := range strings.Split(string(status), "\n") {
		rest, ok := strings.CutPrefix(line, "NSpid:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return 0, false
		}
		v, err := strconv.ParseInt(fields[len(fields)-1], 10, 32)
		if err != nil {
			return 0, false
		}
		return int32(v), true
	}
	return 0, false
}
