package chunk

// Channel is the per-channel-id reassembly cursor shared by the inbound and
// outbound sides: the running Header (for merge/compression), how many body
// bytes have been consumed/produced so far, and how many bytes remain in the
// current frame. It does not accumulate message bodies itself — that is
// ChannelDemuxer's job on the inbound side and ChannelMuxer's stored message
// body on the outbound side; Channel only hands back the bytes of one frame
// at a time.
//
// Grounded on original_source/rtmpy/protocol/rtmp/codec.py's Channel class
// (reset/setHeader/_adjustFrameRemaining/readFrame/complete); this models
// spec.md's stated invariants more directly than the teacher's
// ChunkStreamState, which ties header-compression bookkeeping to a blocking
// io.Reader. _adjustFrameRemaining is ported as the one piece of genuinely
// non-obvious arithmetic in the original.

import (
	"fmt"

	"github.com/jankowskirobert/rtmpy/internal/bufpool"
	errs "github.com/jankowskirobert/rtmpy/internal/errors"
)

// Channel tracks in-flight reassembly state for one chunk-stream id.
type Channel struct {
	id     uint32
	pool   *bufpool.Pool
	header *Header // last absolute header applied; nil until the first SetHeader

	bytes          int // bytes of the current message body consumed/produced so far
	bodyRemaining  int
	frameRemaining int
	frameSize      int // last frameSize adjustFrameRemaining was called with
}

func newChannel(id uint32, pool *bufpool.Pool) *Channel {
	return &Channel{id: id, pool: pool}
}

// Reset clears in-flight message state (header included) so the channel
// behaves as fresh for the next SetHeader (spec.md §8 property 6).
func (c *Channel) Reset() {
	c.header = nil
	c.bytes = 0
	c.bodyRemaining = 0
	c.frameRemaining = 0
}

// SetHeader merges raw (a just-decoded, possibly relative header) against
// the channel's prior absolute header, adopts the merged result, and
// (re)computes the frame/body countdown. frameSize is the chunk size
// currently in effect for this channel. A Continuation header never starts
// a new message — it only continues the in-progress one.
func (c *Channel) SetHeader(raw Header, frameSize int) (Header, error) {
	if c.header == nil && raw.Relative {
		return Header{}, errs.NewProtocol("channel.set_header", fmt.Errorf("relative header on fresh channel %d", c.id))
	}

	merged, err := MergeHeaders(c.header, raw)
	if err != nil {
		return Header{}, err
	}

	h := merged
	c.header = &h

	if raw.format != formatContinuation {
		c.bytes = 0
		c.bodyRemaining = int(merged.BodyLength)
	}

	c.adjustFrameRemaining(frameSize)
	return merged, nil
}

// adjustFrameRemaining recomputes how many bytes belong to the current
// frame, clamped to whatever of the body remains. Ported from
// Channel._adjustFrameRemaining in the original. frameSize is remembered on
// the channel (spec.md §9: "channels carry only their id and a reference to
// the shared frameSize") so a later frame boundary crossed outside of
// SetHeader — i.e. by WriteFrame alone, since the outbound side has no
// per-frame SetHeader call to piggyback on — can recompute against it.
func (c *Channel) adjustFrameRemaining(frameSize int) {
	c.frameSize = frameSize
	remaining := c.bodyRemaining - c.bytes
	if remaining > frameSize {
		remaining = frameSize
	}
	if remaining < 0 {
		remaining = 0
	}
	c.frameRemaining = remaining
}

// ReadFrame consumes exactly c.frameRemaining bytes from buf, advances the
// body/frame counters, and returns a pool-backed copy of those bytes (so the
// result outlives the caller's reuse of buf). Returns errs.NewIncomplete if
// buf is shorter than required. As in WriteFrame, a channel sitting at a
// frame boundary with body left recomputes the next frame's share first.
func (c *Channel) ReadFrame(buf []byte) ([]byte, error) {
	if c.frameRemaining == 0 && c.bytes < c.bodyRemaining {
		c.adjustFrameRemaining(c.frameSize)
	}
	n := c.frameRemaining
	if len(buf) < n {
		return nil, errs.NewIncomplete("channel.read_frame", nil)
	}
	out := c.pool.Get(n)
	copy(out, buf[:n])
	c.bytes += n
	c.frameRemaining = 0
	return out, nil
}

// WriteFrame pulls up to c.frameRemaining bytes from body (the pending
// outbound message body, at offset c.bytes) and advances the counters.
// Returns the slice written (a sub-slice of body, not copied — the caller
// owns body for the lifetime of the send).
//
// Unlike the inbound side, where FrameReader.Step calls SetHeader (and
// therefore adjustFrameRemaining) on every single frame including
// continuations, a multi-frame outbound message only gets one SetHeader
// call, from Send. Every frame after the first starts at frameRemaining==0
// (the prior WriteFrame having drained it), so WriteFrame recomputes the
// next frame's share of the body itself before pulling from it — otherwise
// a body longer than one frame would never drain past its first frame.
func (c *Channel) WriteFrame(body []byte) []byte {
	if c.frameRemaining == 0 && c.bytes < c.bodyRemaining {
		c.adjustFrameRemaining(c.frameSize)
	}
	n := c.frameRemaining
	out := body[c.bytes : c.bytes+n]
	c.bytes += n
	c.frameRemaining = 0
	return out
}

// Complete reports whether the full message body has been consumed/produced.
func (c *Channel) Complete() bool {
	return c.header != nil && c.bytes >= c.bodyRemaining
}

// CurrentHeader returns the last absolute header applied to this channel,
// or nil if the channel is idle.
func (c *Channel) CurrentHeader() *Header {
	return c.header
}
