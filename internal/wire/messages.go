package wire

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// Message is any request/response/record type exchanged over a framed
// connection. Encoding uses encoding/gob rather than a hand-rolled
// protobuf wire codec: this corpus carries no protoc-generated
// descriptors to ground a reflection-free proto.Message shim against,
// and a hand-written one would be unverifiable without the toolchain
// (see DESIGN.md).
type Message any

// WriteMessage gob-encodes v and writes it as one frame.
func WriteMessage(w io.Writer, v Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return rpcerr.Internalf(err, "encode message")
	}
	return WriteFrame(w, buf.Bytes())
}

// ReadMessage reads one frame and gob-decodes it into v (a pointer).
func ReadMessage(r io.Reader, v Message) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	if payload == nil {
		return rpcerr.Internalf(nil, "expected a message frame, got end-of-stream")
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return rpcerr.Internalf(err, "decode message")
	}
	return nil
}

// AllocateCellRequest carries a cell-name-path and its IsolationSpec.
type AllocateCellRequest struct {
	CellNamePath string
	CPUWeight    *uint64
	CPUMaxMicros *int64
	CpusetCpus   string
	CpusetMems   string
	MemMin       *int64
	MemLow       *int64
	MemHigh      *int64
	MemMax       *int64
	ShareMount   bool
	ShareUTS     bool
	ShareIPC     bool
	SharePID     bool
	ShareNet     bool
	ShareCgroup  bool
}

// AllocateCellResponse reports the allocated cell's derived facts.
type AllocateCellResponse struct {
	CellName   string
	CgroupIsV2 bool
}

// FreeCellRequest names the cell to free.
type FreeCellRequest struct {
	CellNamePath string
}

// StartExecutableRequest carries a target cell path and the executable
// to run inside it.
type StartExecutableRequest struct {
	CellNamePath string
	Name         string
	Argv         []string
	Description  string
	TTY          bool
}

// ResizeExecutableRequest resizes a running executable's pty.
type ResizeExecutableRequest struct {
	CellNamePath   string
	ExecutableName string
	Cols, Rows     uint16
}

// StartExecutableResponse reports the spawned PID.
type StartExecutableResponse struct {
	PID int
}

// StopExecutableRequest names the executable to stop.
type StopExecutableRequest struct {
	CellNamePath   string
	ExecutableName string
}

// AllocatePodRequest carries a pod name and image reference.
type AllocatePodRequest struct {
	PodName string
	Image   string
}

// StartPodRequest names the pod to start.
type StartPodRequest struct {
	PodName string
}

// StopPodRequest names the pod to stop.
type StopPodRequest struct {
	PodName string
}

// FreePodRequest names the pod to free.
type FreePodRequest struct {
	PodName string
}

// WorkloadKind discriminates the target of GetPosixSignalsStream.
type WorkloadKind int

const (
	WorkloadCell WorkloadKind = iota
	WorkloadPod
)

// GetPosixSignalsStreamRequest subscribes to a workload's signal stream.
type GetPosixSignalsStreamRequest struct {
	Kind WorkloadKind
	ID   string
}

// PosixSignal is one record of a GetPosixSignalsStream response: a
// signal the daemon itself issued against a workload it owns.
type PosixSignal struct {
	Kind   WorkloadKind
	ID     string
	PID    int32
	Signal int32
}

// Envelope tags a frame's payload with the message type name so the
// receiving side can gob-decode into the right concrete type without a
// separate out-of-band schema negotiation.
type Envelope struct {
	Type    string
	Payload []byte
}

// WriteEnvelope wraps v in an Envelope keyed by typeName and writes it
// as one frame.
func WriteEnvelope(w io.Writer, typeName string, v Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return rpcerr.Internalf(err, "encode envelope payload for %q", typeName)
	}
	return WriteMessage(w, Envelope{Type: typeName, Payload: buf.Bytes()})
}

// ReadEnvelope reads one Envelope frame.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	var env Envelope
	if err := ReadMessage(r, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DecodeGobBytes gob-decodes a raw frame payload into v (a pointer),
// for callers that read frames directly rather than through
// ReadMessage (e.g. a streaming client draining PosixSignal records).
func DecodeGobBytes(payload []byte, v Message) error {
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return rpcerr.Internalf(err, "decode frame payload")
	}
	return nil
}

// DecodePayload gob-decodes env's payload into v (a pointer).
func DecodePayload(env Envelope, v Message) error {
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(v); err != nil {
		return rpcerr.Internalf(err, "decode envelope payload of type %q", env.Type)
	}
	return nil
}
