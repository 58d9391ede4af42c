// Package wire implements the length-prefixed frame codec and message
// set the RPC surface exchanges over a transport.Listen connection
//. Unary calls are one frame in, one frame out; server-streaming
// calls are one frame in, N frames out, terminated by a zero-length
// frame or connection close.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// MaxFrameSize bounds a single frame's payload, guarding against a
// corrupt or hostile length prefix driving an unbounded allocation.
const MaxFrameSize = 16 << 20

// WriteFrame writes a uint32 big-endian length prefix followed by
// payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return rpcerr.Internalf(err, "write frame length prefix")
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return rpcerr.Internalf(err, "write frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. A zero-length frame
// returns a nil, nil payload (the server-streaming terminator).
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, nil
	}
	if n > MaxFrameSize {
		return nil, rpcerr.InvalidArgumentf("frame size %d exceeds maximum %d", n, MaxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, rpcerr.Internalf(err, "read frame payload")
	}
	return payload, nil
}

// WriteEndOfStream writes the zero-length frame that terminates a
// server-streaming response.
func WriteEndOfStream(w io.Writer) error {
	return WriteFrame(w, nil)
}
