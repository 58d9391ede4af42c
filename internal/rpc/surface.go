// Package rpc implements the daemon's RpcSurface: translating wire
// requests into calls against cell.Registry, pod.Table, and a cell's
// own executable table, and forwarding cell-name-path tails to nested
// daemons over their own mTLS connection.
package rpc

import (
	"context"

	"github.com/cellsys/cellsd/internal/cell"
	"github.com/cellsys/cellsd/internal/cellname"
	"github.com/cellsys/cellsd/internal/isolation"
	"github.com/cellsys/cellsd/internal/observe"
	"github.com/cellsys/cellsd/internal/pod"
	"github.com/cellsys/cellsd/internal/wire"
)

// Surface is the daemon-side implementation of every unary and
// streaming call the wire protocol names.
type Surface struct {
	registry *cell.Registry
	pods     *pod.Table
	signals  *observe.Bus[wire.PosixSignal]
}

// NewSurface constructs a Surface over an already-built registry and
// pod table. signals may be nil, in which case GetPosixSignalsStream
// refuses subscriptions.
func NewSurface(registry *cell.Registry, pods *pod.Table, signals *observe.Bus[wire.PosixSignal]) *Surface {
	return &Surface{registry: registry, pods: pods, signals: signals}
}

func specFromRequest(req wire.AllocateCellRequest) isolation.Spec {
	var resources isolation.Resources
	if req.CPUWeight != nil || req.CPUMaxMicros != nil {
		resources.CPU = &isolation.CPU{Weight: req.CPUWeight, MaxMicros: req.CPUMaxMicros}
	}
	if req.CpusetCpus != "" || req.CpusetMems != "" {
		resources.Cpuset = &isolation.Cpuset{Cpus: req.CpusetCpus, Mems: req.CpusetMems}
	}
	if req.MemMin != nil || req.MemLow != nil || req.MemHigh != nil || req.MemMax != nil {
		resources.Memory = &isolation.Memory{Min: req.MemMin, Low: req.MemLow, High: req.MemHigh, Max: req.MemMax}
	}
	return isolation.Spec{
		Resources: resources,
		Namespaces: isolation.Namespaces{
			Mount:  req.ShareMount,
			UTS:    req.ShareUTS,
			IPC:    req.ShareIPC,
			PID:    req.SharePID,
			Net:    req.ShareNet,
			Cgroup: req.ShareCgroup,
		},
	}
}

// AllocateCell validates and dispatches an AllocateCellRequest.
func (s *Surface) AllocateCell(ctx context.Context, req wire.AllocateCellRequest) (wire.AllocateCellResponse, error) {
	path, err := cellname.ParsePath(req.CellNamePath)
	if err != nil {
		return wire.AllocateCellResponse{}, err
	}
	spec := specFromRequest(req)
	if err := spec.Validate(); err != nil {
		return wire.AllocateCellResponse{}, err
	}
	if err := s.registry.Allocate(ctx, path, spec); err != nil {
		return wire.AllocateCellResponse{}, err
	}

	var resp wire.AllocateCellResponse
	_ = s.registry.GetMut(cellname.Single(path.Head()), func(c *cell.Cell) error {
		resp.CellName = c.Name().String()
		v2, _ := c.V2()
		resp.CgroupIsV2 = v2
		return nil
	})
	return resp, nil
}

// FreeCell dispatches a FreeCellRequest and, on success, publishes the
// SIGTERM record issued against the freed cell.
func (s *Surface) FreeCell(ctx context.Context, req wire.FreeCellRequest) error {
	path, err := cellname.ParsePath(req.CellNamePath)
	if err != nil {
		return err
	}
	if err := s.registry.Free(ctx, path); err != nil {
		return err
	}
	s.publishSignal(wire.WorkloadCell, req.CellNamePath, 15)
	return nil
}

// StartExecutable dispatches a StartExecutableRequest against the cell
// addressed by CellNamePath (must be local; no forwarding for
// executable calls, matching the original's single-hop executable
// scope).
func (s *Surface) StartExecutable(req wire.StartExecutableRequest) (wire.StartExecutableResponse, error) {
	path, err := cellname.ParsePath(req.CellNamePath)
	if err != nil {
		return wire.StartExecutableResponse{}, err
	}

	var resp wire.StartExecutableResponse
	err = s.registry.GetMut(path, func(c *cell.Cell) error {
		pid, err := c.StartExecutable(req.Name, req.Argv, req.Description, req.TTY)
		if err != nil {
			return err
		}
		resp.PID = pid
		return nil
	})
	if err != nil {
		return wire.StartExecutableResponse{}, err
	}
	return resp, nil
}

// ResizeExecutable dispatches a ResizeExecutableRequest against the
// owning cell's executable table.
func (s *Surface) ResizeExecutable(req wire.ResizeExecutableRequest) error {
	path, err := cellname.ParsePath(req.CellNamePath)
	if err != nil {
		return err
	}
	return s.registry.GetMut(path, func(c *cell.Cell) error {
		return c.ResizeExecutable(req.ExecutableName, req.Cols, req.Rows)
	})
}

// StopExecutable dispatches a StopExecutableRequest and, on success,
// publishes the SIGKILL record issued to stop it.
func (s *Surface) StopExecutable(req wire.StopExecutableRequest) error {
	path, err := cellname.ParsePath(req.CellNamePath)
	if err != nil {
		return err
	}
	err = s.registry.GetMut(path, func(c *cell.Cell) error {
		return c.StopExecutable(req.ExecutableName)
	})
	if err != nil {
		return err
	}
	s.publishSignal(wire.WorkloadCell, req.CellNamePath, 9)
	return nil
}

// AllocatePod dispatches an AllocatePodRequest. resolver is supplied by
// the caller (the daemon's configured pod.Resolver) rather than carried
// on the wire, since image resolution policy is host-local.
func (s *Surface) AllocatePod(ctx context.Context, req wire.AllocatePodRequest, resolver pod.Resolver) error {
	image, err := pod.ValidateImageRef(req.Image)
	if err != nil {
		return err
	}
	return s.pods.Allocate(ctx, pod.Name(req.PodName), pod.Spec{Image: image}, resolver)
}

// StartPod dispatches a StartPodRequest.
func (s *Surface) StartPod(ctx context.Context, req wire.StartPodRequest) error {
	return s.pods.Start(ctx, pod.Name(req.PodName))
}

// StopPod dispatches a StopPodRequest and publishes the SIGTERM record.
func (s *Surface) StopPod(ctx context.Context, req wire.StopPodRequest) error {
	if err := s.pods.Stop(ctx, pod.Name(req.PodName)); err != nil {
		return err
	}
	s.publishSignal(wire.WorkloadPod, req.PodName, 15)
	return nil
}

// FreePod dispatches a FreePodRequest and publishes the SIGTERM record.
func (s *Surface) FreePod(ctx context.Context, req wire.FreePodRequest) error {
	if err := s.pods.Free(ctx, pod.Name(req.PodName)); err != nil {
		return err
	}
	s.publishSignal(wire.WorkloadPod, req.PodName, 15)
	return nil
}

func (s *Surface) publishSignal(kind wire.WorkloadKind, id string, sig int32) {
	if s.signals == nil {
		return
	}
	s.signals.Publish(wire.PosixSignal{Kind: kind, ID: id, Signal: sig})
}

// Shutdown runs best-effort cleanup of every locally-owned cell and pod.
func (s *Surface) Shutdown() {
	s.registry.CloseAll()
	s.pods.CloseAll()
}
