package chunk

import (
	"testing"

	"github.com/jankowskirobert/rtmpy/internal/bufpool"
	errs "github.com/jankowskirobert/rtmpy/internal/errors"
)

func TestChannelSetHeaderRelativeOnFreshChannelFails(t *testing.T) {
	ch := newChannel(3, bufpool.New())
	raw := Header{ChannelID: 3, Relative: true, format: formatContinuation}
	if _, err := ch.SetHeader(raw, DefaultFrameSize); !errs.IsFatal(err) {
		t.Fatalf("want fatal protocol error, got %v", err)
	}
}

func TestChannelReadFrameSpansOneFrame(t *testing.T) {
	ch := newChannel(3, bufpool.New())
	raw := Header{ChannelID: 3, BodyLength: 300, Datatype: 0x14, StreamID: 1, format: formatFull}
	if _, err := ch.SetHeader(raw, 128); err != nil {
		t.Fatalf("SetHeader: %v", err)
	}

	body := make([]byte, 300)
	for i := range body {
		body[i] = byte(i)
	}

	f1, err := ch.ReadFrame(body)
	if err != nil {
		t.Fatalf("frame1: %v", err)
	}
	if len(f1) != 128 || ch.Complete() {
		t.Fatalf("frame1 len=%d complete=%v", len(f1), ch.Complete())
	}

	f2, err := ch.ReadFrame(body[128:])
	if err != nil {
		t.Fatalf("frame2: %v", err)
	}
	if len(f2) != 128 || ch.Complete() {
		t.Fatalf("frame2 len=%d complete=%v", len(f2), ch.Complete())
	}

	f3, err := ch.ReadFrame(body[256:])
	if err != nil {
		t.Fatalf("frame3: %v", err)
	}
	if len(f3) != 44 || !ch.Complete() {
		t.Fatalf("frame3 len=%d complete=%v, want 44/true", len(f3), ch.Complete())
	}
}

func TestChannelReadFrameIncompleteRewindable(t *testing.T) {
	ch := newChannel(3, bufpool.New())
	raw := Header{ChannelID: 3, BodyLength: 100, format: formatFull}
	if _, err := ch.SetHeader(raw, 128); err != nil {
		t.Fatalf("SetHeader: %v", err)
	}

	if _, err := ch.ReadFrame(make([]byte, 50)); !errs.IsIncomplete(err) {
		t.Fatalf("want Incomplete, got %v", err)
	}
	// The channel's counters must be untouched by the failed read.
	if ch.bytes != 0 || ch.bodyRemaining != 100 {
		t.Fatalf("counters mutated by failed read: bytes=%d bodyRemaining=%d", ch.bytes, ch.bodyRemaining)
	}
}

func TestChannelResetIsIdempotentForNextMessage(t *testing.T) {
	ch := newChannel(3, bufpool.New())
	raw := Header{ChannelID: 3, BodyLength: 10, format: formatFull}
	if _, err := ch.SetHeader(raw, 128); err != nil {
		t.Fatalf("SetHeader: %v", err)
	}
	if _, err := ch.ReadFrame(make([]byte, 10)); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !ch.Complete() {
		t.Fatalf("expected complete")
	}
	ch.Reset()

	// A relative header on the now-idle channel must fail exactly as it
	// would on a never-used channel (spec.md §8 property 6).
	relative := Header{ChannelID: 3, Relative: true, format: formatTimestampDelta}
	if _, err := ch.SetHeader(relative, 128); !errs.IsFatal(err) {
		t.Fatalf("want fatal protocol error after reset, got %v", err)
	}

	fresh := Header{ChannelID: 3, BodyLength: 20, format: formatFull}
	merged, err := ch.SetHeader(fresh, 128)
	if err != nil {
		t.Fatalf("SetHeader after reset: %v", err)
	}
	if merged.BodyLength != 20 || ch.bytes != 0 {
		t.Fatalf("got merged=%+v bytes=%d", merged, ch.bytes)
	}
}

func TestChannelWriteFrameAdvancesCounters(t *testing.T) {
	ch := newChannel(3, bufpool.New())
	raw := Header{ChannelID: 3, BodyLength: 200, format: formatFull}
	if _, err := ch.SetHeader(raw, 128); err != nil {
		t.Fatalf("SetHeader: %v", err)
	}

	body := make([]byte, 200)
	f1 := ch.WriteFrame(body)
	if len(f1) != 128 || ch.Complete() {
		t.Fatalf("f1 len=%d complete=%v", len(f1), ch.Complete())
	}
	f2 := ch.WriteFrame(body)
	if len(f2) != 72 || !ch.Complete() {
		t.Fatalf("f2 len=%d complete=%v, want 72/true", len(f2), ch.Complete())
	}
}

// TestChannelFrameSizeChangeAppliesAtNextBoundary covers spec.md S6 and the
// third §9 open-question resolution: a mid-frame channel keeps its current
// countdown, the new size only governs the frame after that.
func TestChannelFrameSizeChangeAppliesAtNextBoundary(t *testing.T) {
	set := newChannelSet(bufpool.New())
	ch := set.getChannel(3)
	raw := Header{ChannelID: 3, BodyLength: 500, format: formatFull}
	if _, err := ch.SetHeader(raw, set.frameSize); err != nil {
		t.Fatalf("SetHeader: %v", err)
	}

	body := make([]byte, 500)
	f1 := ch.WriteFrame(body)
	if len(f1) != 128 {
		t.Fatalf("f1 len=%d, want 128", len(f1))
	}

	set.setFrameSize(64) // channel is at a frame boundary (frameRemaining==0), so this takes effect immediately

	f2 := ch.WriteFrame(body[128:])
	if len(f2) != 64 {
		t.Fatalf("f2 len=%d, want 64 once the new size takes effect", len(f2))
	}
}
