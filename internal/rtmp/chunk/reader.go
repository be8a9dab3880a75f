package chunk

// FrameReader pulls one chunk (header + frame) at a time from an
// append-only byte buffer fed via Push. It never blocks: a short buffer
// rewinds the read cursor and reports NeedMore instead of waiting for more
// bytes, per spec.md §4.3's step protocol.
//
// Grounded on original_source/rtmpy/protocol/rtmp/codec.py's FrameReader
// (send/next): its `pos = tell(); try: ...; except IOError: seek(pos); if
// at_eof: consume(); raise StopIteration` control flow is the direct model
// for NeedMore/Exhausted here — the difference is this operates on an
// explicit []byte cursor rather than a seekable stream, since spec.md's
// push(bytes)/step() model rules out blocking reads entirely. Teacher's
// reader.go contributed the per-format wire decoding detail (extended
// timestamp re-reading on Continuation, stream-id inheritance on
// TimestampDeltaTypeLength) but not its io.Reader-blocking shape.

import (
	"fmt"

	errs "github.com/jankowskirobert/rtmpy/internal/errors"
	"github.com/jankowskirobert/rtmpy/internal/logger"
	"github.com/jankowskirobert/rtmpy/internal/metrics"

	"github.com/jankowskirobert/rtmpy/internal/bufpool"
)

// StepResult tags the outcome of one reader/decoder/encoder step.
type StepResult int

const (
	NeedMore StepResult = iota
	Produced
	Idle
	Exhausted
)

func (r StepResult) String() string {
	switch r {
	case NeedMore:
		return "NeedMore"
	case Produced:
		return "Produced"
	case Idle:
		return "Idle"
	case Exhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// RawFrame is one chunk's worth of a message: the merged absolute header
// that governs it, the frame's raw bytes, and whether this frame completed
// the message (in which case Bytes holds only this final frame, not the
// whole body — ChannelDemuxer is responsible for splicing).
type RawFrame struct {
	ChannelID uint32
	Header    Header
	Bytes     []byte
	Completed bool
}

// FrameReader is the inbound chunk reader. It owns its own channel set,
// disjoint from any ChannelMuxer's (spec.md §9).
type FrameReader struct {
	set    *channelSet
	pool   *bufpool.Pool
	mx     *metrics.Collectors
	buf    []byte
	pos    int
	closed bool
}

// NewFrameReader constructs a reader backed by pool for frame-byte
// allocation. mx may be nil.
func NewFrameReader(pool *bufpool.Pool, mx *metrics.Collectors) *FrameReader {
	if pool == nil {
		pool = bufpool.New()
	}
	return &FrameReader{set: newChannelSet(pool), pool: pool, mx: mx}
}

// Push appends newly arrived bytes to the read buffer.
func (r *FrameReader) Push(b []byte) {
	r.buf = append(r.buf, b...)
}

// Close marks the input as half-open: once the buffered bytes are drained,
// Step reports Exhausted instead of NeedMore.
func (r *FrameReader) Close() {
	r.closed = true
}

// SetFrameSize applies a new chunk size to every channel this reader knows
// about (spec.md §3, §9).
func (r *FrameReader) SetFrameSize(n int) {
	r.set.setFrameSize(n)
}

// compact drops already-consumed bytes from the front of the buffer so it
// does not grow unbounded across many Step calls.
func (r *FrameReader) compact() {
	if r.pos == 0 {
		return
	}
	n := copy(r.buf, r.buf[r.pos:])
	r.buf = r.buf[:n]
	r.pos = 0
}

// Step attempts to decode and consume exactly one chunk (header + frame).
func (r *FrameReader) Step() (StepResult, RawFrame, error) {
	if r.pos >= len(r.buf) {
		if r.closed {
			r.compact()
			return Exhausted, RawFrame{}, nil
		}
		return NeedMore, RawFrame{}, nil
	}

	cursor := r.buf[r.pos:]

	format, channelID, basicN, err := decodeBasicHeader(cursor)
	if err != nil {
		return r.incompleteOr(err)
	}
	if channelID > MaxChannels {
		ferr := errs.NewProtocol("reader.step", fmt.Errorf("channel id %d exceeds MAX_CHANNELS", channelID))
		r.mx.ProtocolError()
		return 0, RawFrame{}, ferr
	}

	ch := r.set.getChannel(channelID)
	var priorExtended bool
	if ch.header != nil {
		priorExtended = ch.header.extended
	}

	raw, msgN, err := decodeMessageHeader(cursor[basicN:], format, channelID, priorExtended)
	if err != nil {
		return r.incompleteOr(err)
	}
	headerLen := basicN + msgN

	merged, err := ch.SetHeader(raw, r.set.frameSize)
	if err != nil {
		r.mx.ProtocolError()
		return 0, RawFrame{}, err
	}

	frameSrc := cursor[headerLen:]
	frameBytes, err := ch.ReadFrame(frameSrc)
	if err != nil {
		return r.incompleteOr(err)
	}

	r.pos += headerLen + len(frameBytes)
	r.compact()

	completed := ch.Complete()
	if completed {
		ch.Reset()
	}

	logger.Debug("frame decoded", "channel_id", channelID, "format", format, "len", len(frameBytes), "completed", completed)
	r.mx.FrameIn()

	return Produced, RawFrame{ChannelID: channelID, Header: merged, Bytes: frameBytes, Completed: completed}, nil
}

// incompleteOr converts an Incomplete error into a rewind + NeedMore/
// Exhausted signal; any other error is fatal and passed through.
func (r *FrameReader) incompleteOr(err error) (StepResult, RawFrame, error) {
	if errs.IsIncomplete(err) {
		if r.closed {
			r.compact()
			return Exhausted, RawFrame{}, nil
		}
		return NeedMore, RawFrame{}, nil
	}
	r.mx.ProtocolError()
	return 0, RawFrame{}, err
}
