package rpc

import (
	"net"

	"github.com/cellsys/cellsd/internal/rpcerr"
	"github.com/cellsys/cellsd/internal/transport"
	"github.com/cellsys/cellsd/internal/wire"
)

// Client is a thin synchronous wrapper over one mTLS connection to a
// daemon's RPC surface, used by cellsctl.
type Client struct {
	conn net.Conn
}

// Dial opens a new connection to a daemon listening at socketPath.
func Dial(socketPath string, cfg transport.DialerConfig) (*Client, error) {
	conn, err := transport.Dial(socketPath, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Call issues one request envelope and decodes the single response
// envelope into resp (nil if the caller doesn't need the payload).
func (c *Client) Call(reqType string, req wire.Message, resp wire.Message) error {
	return roundTrip(c.conn, reqType, req, resp)
}

// StreamPosixSignals issues a GetPosixSignalsStreamRequest and invokes
// onSignal for every record until the server sends the end-of-stream
// frame or the connection fails.
func (c *Client) StreamPosixSignals(req wire.GetPosixSignalsStreamRequest, onSignal func(wire.PosixSignal) error) error {
	if err := wire.WriteEnvelope(c.conn, "GetPosixSignalsStreamRequest", req); err != nil {
		return err
	}
	for {
		payload, err := wire.ReadFrame(c.conn)
		if err != nil {
			return err
		}
		if payload == nil {
			return nil
		}
		var sig wire.PosixSignal
		if err := decodeFramePayload(payload, &sig); err != nil {
			return err
		}
		if err := onSignal(sig); err != nil {
			return err
		}
	}
}

func decodeFramePayload(payload []byte, v wire.Message) error {
	return wire.DecodeGobBytes(payload, v)
}

// ExitCodeFor maps an error returned from Call into cellsctl's process
// exit code contract.
func ExitCodeFor(err error) int {
	return rpcerr.ExitCode(err)
}
