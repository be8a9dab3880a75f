package chunk

import (
	"testing"

	"github.com/jankowskirobert/rtmpy/internal/bufpool"
)

// TestChannelDemuxerStreamablePassthrough covers spec.md §8 property 7:
// audio/video frames reach the caller per-chunk without buffering.
func TestChannelDemuxerStreamablePassthrough(t *testing.T) {
	h := Header{ChannelID: 4, BodyLength: 200, Datatype: DatatypeAudio, StreamID: 1}
	body := make([]byte, 200)

	wire := append(encodeFull(t, h), body[:128]...)
	wire = append(wire, 0xC4) // continuation, channel 4
	wire = append(wire, body[128:]...)

	reader := NewFrameReader(bufpool.New(), nil)
	d := NewChannelDemuxer(reader, bufpool.New())
	d.Push(wire)

	result, msg, err := d.Step()
	if err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if result != Produced || len(msg.Body) != 128 {
		t.Fatalf("step 1: result=%v msg=%+v, want a 128-byte passthrough frame", result, msg)
	}

	result, msg, err = d.Step()
	if err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if result != Produced || len(msg.Body) != 72 {
		t.Fatalf("step 2: result=%v msg=%+v, want a 72-byte passthrough frame", result, msg)
	}
}

// TestChannelDemuxerBuffersNonStreamable covers the non-streamable half of
// property 7: the full body is delivered as one contiguous message only
// once the final chunk arrives.
func TestChannelDemuxerBuffersNonStreamable(t *testing.T) {
	h := Header{ChannelID: 3, BodyLength: 300, Datatype: 0x14, StreamID: 1}
	body := make([]byte, 300)
	for i := range body {
		body[i] = byte(i)
	}

	wire := append(encodeFull(t, h), body[:128]...)
	wire = append(wire, 0xC3)
	wire = append(wire, body[128:256]...)
	wire = append(wire, 0xC3)
	wire = append(wire, body[256:]...)

	reader := NewFrameReader(bufpool.New(), nil)
	d := NewChannelDemuxer(reader, bufpool.New())
	d.Push(wire)

	for i := 0; i < 2; i++ {
		result, msg, err := d.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if result != NeedMore || msg.Body != nil {
			t.Fatalf("step %d: result=%v msg=%+v, want NeedMore/empty", i, result, msg)
		}
	}

	result, msg, err := d.Step()
	if err != nil {
		t.Fatalf("final step: %v", err)
	}
	if result != Produced || len(msg.Body) != 300 {
		t.Fatalf("final step: result=%v len(body)=%d, want Produced/300", result, len(msg.Body))
	}
	for i, b := range msg.Body {
		if b != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, b, byte(i))
		}
	}
}

// TestChannelDemuxerInterleaving covers spec.md S3 / property 3: two
// channels interleaved one frame at a time reassemble independently.
func TestChannelDemuxerInterleaving(t *testing.T) {
	h3 := Header{ChannelID: 3, BodyLength: 300, Datatype: 0x14, StreamID: 1}
	h4 := Header{ChannelID: 4, BodyLength: 200, Datatype: 0x12, StreamID: 2}
	body3 := make([]byte, 300)
	body4 := make([]byte, 200)
	for i := range body3 {
		body3[i] = byte(i)
	}
	for i := range body4 {
		body4[i] = byte(200 - i)
	}

	var wire []byte
	wire = append(wire, encodeFull(t, h3)...)
	wire = append(wire, body3[:128]...)
	wire = append(wire, encodeFull(t, h4)...)
	wire = append(wire, body4[:128]...)
	wire = append(wire, 0xC4)
	wire = append(wire, body4[128:]...)
	wire = append(wire, 0xC3)
	wire = append(wire, body3[128:256]...)
	wire = append(wire, 0xC3)
	wire = append(wire, body3[256:]...)

	reader := NewFrameReader(bufpool.New(), nil)
	d := NewChannelDemuxer(reader, bufpool.New())
	d.Push(wire)

	var ch4Body, ch3Body []byte
	for {
		result, msg, err := d.Step()
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		if result == Produced {
			switch msg.ChannelID {
			case 4:
				ch4Body = msg.Body
			case 3:
				ch3Body = msg.Body
			}
		}
		if ch3Body != nil {
			break
		}
	}

	if len(ch4Body) != 200 || len(ch3Body) != 300 {
		t.Fatalf("ch4=%d bytes ch3=%d bytes", len(ch4Body), len(ch3Body))
	}
	for i, b := range ch3Body {
		if b != byte(i) {
			t.Fatalf("ch3 byte %d = %d, want %d", i, b, byte(i))
		}
	}
	for i, b := range ch4Body {
		if b != byte(200-i) {
			t.Fatalf("ch4 byte %d = %d, want %d", i, b, byte(200-i))
		}
	}
}
