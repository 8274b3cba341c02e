package fuzztests

import (
	"bytes"
	"testing"

	"difftest/internal/verifier/wire"
)

func FuzzDecodeFrames(f *testing.F) {
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	_ = enc.Send(wire.Response{Kind: wire.KindHello})
	_ = enc.Send(wire.Response{Kind: wire.KindOutput, Seq: 1, Stream: wire.Stdout, Data: []byte("hi\n")})
	_ = enc.Send(wire.Response{Kind: wire.KindDone, Seq: 1, Exit: 3})
	f.Add(buf.Bytes())
	f.Add([]byte{})

	f.Fuzz(func(_ *testing.T, data []byte) {
		dec := wire.NewDecoder(bytes.NewReader(data))
		for i := 0; i < 64; i++ {
			var resp wire.Response
			if err := dec.Decode(&resp); err != nil {
				return
			}
		}
	})
}
