package isolation

import (
	"github.com/syndtr/gocapability/capability"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// requiredCaps are the capabilities a nested daemon retains after a cell
// narrows its own bounding set: enough to finish building its mount
// namespace and to clear its bounding set, mirroring runsc/sandbox's own
// AmbientCaps construction for a process that sets up an empty root before
// dropping to an unprivileged one.
var requiredCaps = []capability.Cap{
	capability.CAP_SYS_ADMIN,
	capability.CAP_SYS_CHROOT,
	capability.CAP_SETPCAP,
}

// HasRequiredCapabilities reports whether the calling process holds every
// capability a nested daemon needs to unshare namespaces and mount /proc,
// the same style of pre-flight check runsc/sandbox runs before choosing
// between a chroot and a user-namespace launch path.
func HasRequiredCapabilities() (bool, error) {
	caps, err := loadCaps()
	if err != nil {
		return false, err
	}
	for _, c := range requiredCaps {
		if !caps.Get(capability.EFFECTIVE, c) {
			return false, nil
		}
	}
	return true, nil
}

// DropBoundingSetExceptRequired clears every capability from the calling
// process' bounding set other than requiredCaps, narrowing what a freshly
// unshared cell can escalate to even if its binary is exec'd again from
// inside it.
func DropBoundingSetExceptRequired() error {
	caps, err := loadCaps()
	if err != nil {
		return err
	}
	caps.Clear(capability.BOUNDING)
	caps.Set(capability.BOUNDING, requiredCaps...)
	if err := caps.Apply(capability.BOUNDING); err != nil {
		return rpcerr.Internalf(err, "apply narrowed capability bounding set")
	}
	return nil
}

func loadCaps() (capability.Capabilities, error) {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return nil, rpcerr.Internalf(err, "load process capabilities")
	}
	if err := caps.Load(); err != nil {
		return nil, rpcerr.Internalf(err, "load process capabilities")
	}
	return caps, nil
}
