package chunk

// InboundDecoder resolves a stream object per message, advances its running
// timestamp, and dispatches the complete message to an injected
// Dispatcher. Collaborators are passed in through the constructor, not
// reached via an ambient registry (spec.md §9).
//
// Grounded on original_source/rtmpy/rtmp/stream.py's
// BaseStream.setTimestamp(datatype, time, relative=True) for the
// accrual-mode split that resolves spec.md §9's first open question: the
// distillation's literal source (rtmpy's Decoder.next) adds unconditionally,
// but the mandated corrected policy assigns on an absolute (format-0-
// derived) header and adds on a delta-bearing one. Header.TimestampIsDelta
// (which survives MergeHeaders, including across Continuation frames, as a
// per-message tag independent of Relative — see header.go) is the signal
// used to choose between the two.

import (
	"github.com/jankowskirobert/rtmpy/internal/logger"
	"github.com/jankowskirobert/rtmpy/internal/metrics"
)

// Stream is the minimal surface InboundDecoder needs from the (out of
// scope) application-level stream object: a mutable running timestamp.
type Stream interface {
	Timestamp() uint32
	SetTimestamp(uint32)
}

// StreamFactory resolves a Stream for a given streamId, creating one on
// first reference if the caller's implementation chooses to.
type StreamFactory interface {
	StreamFor(streamID uint32) Stream
}

// Dispatcher receives complete, timestamp-resolved messages. Its return
// value, if any, is ignored by the core (spec.md §6).
type Dispatcher interface {
	Dispatch(stream Stream, datatype uint8, timestamp uint32, body []byte)
}

// InboundDecoder wraps a ChannelDemuxer with stream resolution and
// timestamp accrual.
type InboundDecoder struct {
	demux      *ChannelDemuxer
	streams    StreamFactory
	dispatcher Dispatcher
	mx         *metrics.Collectors
}

// NewInboundDecoder wires demux to dispatcher via streams. mx may be nil.
func NewInboundDecoder(demux *ChannelDemuxer, streams StreamFactory, dispatcher Dispatcher, mx *metrics.Collectors) *InboundDecoder {
	return &InboundDecoder{demux: demux, streams: streams, dispatcher: dispatcher, mx: mx}
}

// Push forwards newly arrived bytes to the underlying demuxer.
func (d *InboundDecoder) Push(b []byte) { d.demux.Push(b) }

// SetFrameSize forwards a chunk-size change to the underlying demuxer.
func (d *InboundDecoder) SetFrameSize(n int) { d.demux.SetFrameSize(n) }

// Close marks input as half-open (see FrameReader.Close).
func (d *InboundDecoder) Close() { d.demux.Close() }

// Step pulls one message from the demuxer (if available) and dispatches it.
func (d *InboundDecoder) Step() (StepResult, error) {
	result, msg, err := d.demux.Step()
	if err != nil {
		return 0, err
	}
	if result != Produced {
		return result, nil
	}

	stream := d.streams.StreamFor(msg.Header.StreamID)
	if msg.Header.TimestampIsDelta() {
		stream.SetTimestamp(stream.Timestamp() + msg.Header.Timestamp)
	} else {
		stream.SetTimestamp(msg.Header.Timestamp)
	}

	logger.Debug("dispatching message", "channel_id", msg.ChannelID, "stream_id", msg.Header.StreamID,
		"datatype", msg.Header.Datatype, "timestamp", stream.Timestamp(), "len", len(msg.Body))
	d.mx.MessageIn()

	d.dispatcher.Dispatch(stream, msg.Header.Datatype, stream.Timestamp(), msg.Body)
	return Produced, nil
}
