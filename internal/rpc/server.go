package rpc

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/cellsys/cellsd/internal/pod"
	"github.com/cellsys/cellsd/internal/rpcerr"
	"github.com/cellsys/cellsd/internal/wire"
)

// Deps are the surface's pod-image resolution dependency, supplied by
// the daemon rather than carried on the wire.
type Deps struct {
	Resolver pod.Resolver
}

// errorMessage is the wire shape of an Error envelope payload.
type errorMessage struct {
	Kind    string
	Message string
}

func errorMessageOf(err error) wire.Message {
	return errorMessage{Kind: rpcerr.KindOf(err).String(), Message: err.Error()}
}

// Serve handles every request on conn until it closes or a framing
// error occurs. One goroutine per connection, matching the
// accept-loop-spawns-goroutine shape of the listener this is driven
// from.
func (s *Surface) Serve(ctx context.Context, conn net.Conn, deps Deps) {
	defer conn.Close()

	for {
		env, err := wire.ReadEnvelope(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.WithError(err).Debug("rpc: connection closed reading envelope")
			}
			return
		}

		resp, respType, streamer, err := s.dispatch(ctx, env, deps)
		if err != nil {
			if writeErr := wire.WriteEnvelope(conn, "Error", errorMessageOf(err)); writeErr != nil {
				logrus.WithError(writeErr).Debug("rpc: failed writing error envelope")
				return
			}
			continue
		}

		if streamer != nil {
			if err := streamer(conn); err != nil {
				logrus.WithError(err).Debug("rpc: stream handler failed")
				return
			}
			continue
		}

		if err := wire.WriteEnvelope(conn, respType, resp); err != nil {
			logrus.WithError(err).Debug("rpc: failed writing response envelope")
			return
		}
	}
}

func (s *Surface) dispatch(ctx context.Context, env wire.Envelope, deps Deps) (wire.Message, string, func(net.Conn) error, error) {
	switch env.Type {
	case "AllocateCellRequest":
		var req wire.AllocateCellRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		resp, err := s.AllocateCell(ctx, req)
		return resp, "AllocateCellResponse", nil, err

	case "FreeCellRequest":
		var req wire.FreeCellRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		err := s.FreeCell(ctx, req)
		return struct{}{}, "Ack", nil, err

	case "StartExecutableRequest":
		var req wire.StartExecutableRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		resp, err := s.StartExecutable(req)
		return resp, "StartExecutableResponse", nil, err

	case "StopExecutableRequest":
		var req wire.StopExecutableRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		err := s.StopExecutable(req)
		return struct{}{}, "Ack", nil, err

	case "ResizeExecutableRequest":
		var req wire.ResizeExecutableRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		err := s.ResizeExecutable(req)
		return struct{}{}, "Ack", nil, err

	case "AllocatePodRequest":
		var req wire.AllocatePodRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		if deps.Resolver == nil {
			return nil, "", nil, rpcerr.PreconditionFailedf("this daemon instance has no pod image resolver configured")
		}
		err := s.AllocatePod(ctx, req, deps.Resolver)
		return struct{}{}, "Ack", nil, err

	case "StartPodRequest":
		var req wire.StartPodRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		err := s.StartPod(ctx, req)
		return struct{}{}, "Ack", nil, err

	case "StopPodRequest":
		var req wire.StopPodRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		err := s.StopPod(ctx, req)
		return struct{}{}, "Ack", nil, err

	case "FreePodRequest":
		var req wire.FreePodRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		err := s.FreePod(ctx, req)
		return struct{}{}, "Ack", nil, err

	case "GetPosixSignalsStreamRequest":
		var req wire.GetPosixSignalsStreamRequest
		if err := wire.DecodePayload(env, &req); err != nil {
			return nil, "", nil, err
		}
		if s.signals == nil {
			return nil, "", nil, rpcerr.NotFoundf("this daemon instance does not publish a signal stream")
		}
		return nil, "", s.streamPosixSignals(ctx, req), nil

	default:
		return nil, "", nil, rpcerr.InvalidArgumentf("unknown request type %q", env.Type)
	}
}

// streamPosixSignals returns a handler that filters the shared signal
// bus down to req's workload and relays matching records as individual
// frames until the connection breaks or ctx is canceled, then writes
// the stream terminator. The handler drops its subscription as soon as
// either happens, instead of blocking forever on an idle bus.
func (s *Surface) streamPosixSignals(ctx context.Context, req wire.GetPosixSignalsStreamRequest) func(net.Conn) error {
	return func(conn net.Conn) error {
		sub := s.signals.Subscribe()
		defer sub.Unsubscribe()

		stop := make(chan struct{})
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				close(stop)
			case <-done:
			}
		}()

		for {
			sig, ok := sub.Recv(stop)
			if !ok {
				return wire.WriteEndOfStream(conn)
			}
			if sig.Kind != req.Kind || sig.ID != req.ID {
				continue
			}
			if err := wire.WriteMessage(conn, sig); err != nil {
				return err
			}
		}
	}
}
