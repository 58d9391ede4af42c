package rpc

import (
	"context"
	"net"

	"github.com/cellsys/cellsd/internal/cellname"
	"github.com/cellsys/cellsd/internal/isolation"
	"github.com/cellsys/cellsd/internal/nesteddaemon"
	"github.com/cellsys/cellsd/internal/rpcerr"
	"github.com/cellsys/cellsd/internal/transport"
	"github.com/cellsys/cellsd/internal/wire"
)

// DialForwarder implements cell.Forwarder by dialing a nested daemon's
// own mTLS socket and re-issuing the request over the same wire
// protocol the top-level daemon serves, one hop at a time.
type DialForwarder struct{}

func requestFromSpec(path string, spec isolation.Spec) wire.AllocateCellRequest {
	req := wire.AllocateCellRequest{
		CellNamePath: path,
		ShareMount:   spec.Namespaces.Mount,
		ShareUTS:     spec.Namespaces.UTS,
		ShareIPC:     spec.Namespaces.IPC,
		SharePID:     spec.Namespaces.PID,
		ShareNet:     spec.Namespaces.Net,
		ShareCgroup:  spec.Namespaces.Cgroup,
	}
	if spec.Resources.CPU != nil {
		req.CPUWeight = spec.Resources.CPU.Weight
		req.CPUMaxMicros = spec.Resources.CPU.MaxMicros
	}
	if spec.Resources.Cpuset != nil {
		req.CpusetCpus = spec.Resources.Cpuset.Cpus
		req.CpusetMems = spec.Resources.Cpuset.Mems
	}
	if spec.Resources.Memory != nil {
		req.MemMin = spec.Resources.Memory.Min
		req.MemLow = spec.Resources.Memory.Low
		req.MemHigh = spec.Resources.Memory.High
		req.MemMax = spec.Resources.Memory.Max
	}
	return req
}

func dial(client nesteddaemon.ClientConfig) (net.Conn, error) {
	return transport.Dial(client.SocketPath, transport.DialerConfig{
		CACertPath:     client.CACert,
		ClientCertPath: client.ClientCert,
		ClientKeyPath:  client.ClientKey,
		ServerName:     client.ServerName,
	})
}

// roundTrip writes one request envelope and reads back exactly one
// response envelope, translating a relayed Error envelope back into an
// rpcerr.
func roundTrip(conn net.Conn, reqType string, req wire.Message, resp wire.Message) error {
	if err := wire.WriteEnvelope(conn, reqType, req); err != nil {
		return err
	}
	env, err := wire.ReadEnvelope(conn)
	if err != nil {
		return err
	}
	if env.Type == "Error" {
		var errMsg errorMessage
		if decodeErr := wire.DecodePayload(env, &errMsg); decodeErr != nil {
			return decodeErr
		}
		for k := rpcerr.InvalidArgument; k <= rpcerr.Aborted; k++ {
			if k.String() == errMsg.Kind {
				return &rpcerr.Error{Kind: k, Message: "daemon returned: " + errMsg.Message}
			}
		}
		return rpcerr.Internalf(nil, "nested daemon returned %s: %s", errMsg.Kind, errMsg.Message)
	}
	if resp == nil {
		return nil
	}
	return wire.DecodePayload(env, resp)
}

// ForwardAllocate dials client and issues an AllocateCellRequest for
// tail's full remaining path.
func (DialForwarder) ForwardAllocate(ctx context.Context, client nesteddaemon.ClientConfig, tail cellname.Path, name cellname.CellName, spec isolation.Spec) error {
	conn, err := dial(client)
	if err != nil {
		return rpcerr.Internalf(err, "dial nested daemon at %q", client.SocketPath)
	}
	defer conn.Close()

	var resp wire.AllocateCellResponse
	return roundTrip(conn, "AllocateCellRequest", requestFromSpec(tail.String(), spec), &resp)
}

// ForwardFree dials client and issues a FreeCellRequest for tail's full
// remaining path.
func (DialForwarder) ForwardFree(ctx context.Context, client nesteddaemon.ClientConfig, tail cellname.Path) error {
	conn, err := dial(client)
	if err != nil {
		return rpcerr.Internalf(err, "dial nested daemon at %q", client.SocketPath)
	}
	defer conn.Close()

	return roundTrip(conn, "FreeCellRequest", wire.FreeCellRequest{CellNamePath: tail.String()}, nil)
}
