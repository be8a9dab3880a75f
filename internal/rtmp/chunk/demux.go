package chunk

// ChannelDemuxer sits atop FrameReader: streamable datatypes (audio/video)
// pass each frame straight through without buffering, everything else is
// accumulated per-channel until the message completes.
//
// Grounded on original_source/rtmpy/protocol/rtmp/codec.py's
// ChannelDemuxer.next (the `bucket` dict keyed by channel, the
// message.STREAMABLE_TYPES check) — ported close to its original shape,
// generalized to Go's explicit StepResult tagging instead of Python's
// (None, None) "no message yet" sentinel.

import "github.com/jankowskirobert/rtmpy/internal/bufpool"

// Streamable datatypes bypass reassembly buffering (spec.md §6).
const (
	DatatypeAudio uint8 = 0x08
	DatatypeVideo uint8 = 0x09
)

func isStreamable(datatype uint8) bool {
	return datatype == DatatypeAudio || datatype == DatatypeVideo
}

// Message is a fully reassembled (or streamable-passthrough) payload ready
// for the InboundDecoder.
type Message struct {
	ChannelID uint32
	Header    Header
	Body      []byte
}

// ChannelDemuxer buffers non-streamable chunk bodies into complete
// messages.
type ChannelDemuxer struct {
	reader  *FrameReader
	pool    *bufpool.Pool
	buckets map[uint32][]byte
}

// NewChannelDemuxer wraps reader with message-level reassembly.
func NewChannelDemuxer(reader *FrameReader, pool *bufpool.Pool) *ChannelDemuxer {
	if pool == nil {
		pool = bufpool.New()
	}
	return &ChannelDemuxer{reader: reader, pool: pool, buckets: make(map[uint32][]byte)}
}

// Push forwards newly arrived bytes to the underlying reader.
func (d *ChannelDemuxer) Push(b []byte) { d.reader.Push(b) }

// SetFrameSize forwards a chunk-size change to the underlying reader.
func (d *ChannelDemuxer) SetFrameSize(n int) { d.reader.SetFrameSize(n) }

// Close marks input as half-open (see FrameReader.Close).
func (d *ChannelDemuxer) Close() { d.reader.Close() }

// Step pulls one frame from the reader and, if it completes a message (or
// is streamable), returns Produced with the message populated. Otherwise
// returns NeedMore (a frame was consumed without completing a message, or
// more input is needed) or, once a closed reader is drained, Exhausted.
func (d *ChannelDemuxer) Step() (StepResult, Message, error) {
	result, frame, err := d.reader.Step()
	if err != nil {
		return 0, Message{}, err
	}
	if result != Produced {
		return result, Message{}, nil
	}

	if isStreamable(frame.Header.Datatype) {
		return Produced, Message{ChannelID: frame.ChannelID, Header: frame.Header, Body: frame.Bytes}, nil
	}

	acc := append(d.buckets[frame.ChannelID], frame.Bytes...)
	d.pool.Put(frame.Bytes)

	if !frame.Completed {
		d.buckets[frame.ChannelID] = acc
		return NeedMore, Message{}, nil
	}

	delete(d.buckets, frame.ChannelID)
	body := make([]byte, len(acc))
	copy(body, acc)
	d.pool.Put(acc)

	return Produced, Message{ChannelID: frame.ChannelID, Header: frame.Header, Body: body}, nil
}
