// Package wire is the frame protocol between the verifier and its child
// runtime. Frames are msgpack values written back to back on the child's
// stdin (requests) and stdout (responses); the child's stderr is left free
// for raw crash output.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind identifies a frame.
type Kind uint8

const (
	// Requests (parent -> child).
	KindLoad Kind = iota + 1
	KindRun
	KindQuit

	// Responses (child -> parent).
	KindHello
	KindLoaded
	KindLoadFailed
	KindOutput
	KindDone
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindRun:
		return "run"
	case KindQuit:
		return "quit"
	case KindHello:
		return "hello"
	case KindLoaded:
		return "loaded"
	case KindLoadFailed:
		return "load-failed"
	case KindOutput:
		return "output"
	case KindDone:
		return "done"
	case KindFatal:
		return "fatal"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Stream tells which program stream an output frame belongs to.
type Stream uint8

const (
	Stdout Stream = iota + 1
	Stderr
)

// Artifact is a compiled type shipped to the child.
type Artifact struct {
	Name  string `msgpack:"name"`
	Bytes []byte `msgpack:"bytes"`
}

// Request is a parent -> child frame.
type Request struct {
	Kind      Kind       `msgpack:"kind"`
	Seq       uint64     `msgpack:"seq"`
	Artifacts []Artifact `msgpack:"artifacts,omitempty"`
	Entry     string     `msgpack:"entry,omitempty"`
	Args      []string   `msgpack:"args,omitempty"`
	Flags     []string   `msgpack:"flags,omitempty"`
}

// Response is a child -> parent frame.
type Response struct {
	Kind    Kind   `msgpack:"kind"`
	Seq     uint64 `msgpack:"seq"`
	Stream  Stream `msgpack:"stream,omitempty"`
	Data    []byte `msgpack:"data,omitempty"`
	Exit    int32  `msgpack:"exit,omitempty"`
	Message string `msgpack:"message,omitempty"`
}

// Encoder writes frames; it is safe for concurrent use so program stdout
// and stderr writers can share it.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Send encodes v and writes it as one Write call.
func (e *Encoder) Send(v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode %T: %w", v, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	return nil
}

// Decoder reads frames from a stream.
type Decoder struct {
	dec *msgpack.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: msgpack.NewDecoder(bufio.NewReader(r))}
}

// Decode reads the next frame into v. It returns io.EOF at a clean end of stream.
func (d *Decoder) Decode(v any) error {
	return d.dec.Decode(v)
}

// OutputWriter turns program writes into output frames for one run.
type OutputWriter struct {
	Enc    *Encoder
	Seq    uint64
	Stream Stream
}

func (w OutputWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data := make([]byte, len(p))
	copy(data, p)
	if err := w.Enc.Send(Response{Kind: KindOutput, Seq: w.Seq, Stream: w.Stream, Data: data}); err != nil {
		return 0, err
	}
	return len(p), nil
}
