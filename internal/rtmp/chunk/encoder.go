package chunk

// OutboundEncoder wraps ChannelMuxer with backpressure: messages that arrive
// while the channel pool is saturated queue in FIFO order and are pumped in
// once a channel frees up — spec.md §4.7.
//
// Grounded on original_source/rtmpy/protocol/rtmp/codec.py's Encoder
// (`pending` list, send/next: ChannelMuxer.next(self); if not pending: if
// not activeChannels: raise StopIteration).

import (
	"io"

	"github.com/jankowskirobert/rtmpy/internal/bufpool"
	"github.com/jankowskirobert/rtmpy/internal/metrics"
)

type pendingMessage struct {
	body      []byte
	datatype  uint8
	streamID  uint32
	timestamp uint32
}

// OutboundEncoder queues and pumps outbound messages through a ChannelMuxer.
type OutboundEncoder struct {
	muxer   *ChannelMuxer
	pool    *bufpool.Pool
	mx      *metrics.Collectors
	pending []pendingMessage
}

// NewOutboundEncoder constructs an encoder over muxer. mx may be nil.
func NewOutboundEncoder(muxer *ChannelMuxer, pool *bufpool.Pool, mx *metrics.Collectors) *OutboundEncoder {
	if pool == nil {
		pool = bufpool.New()
	}
	return &OutboundEncoder{muxer: muxer, pool: pool, mx: mx}
}

// SetFrameSize forwards a chunk-size change to the underlying muxer.
func (e *OutboundEncoder) SetFrameSize(n int) {
	e.muxer.SetFrameSize(n)
}

// PendingDepth reports how many messages are queued awaiting a free channel.
func (e *OutboundEncoder) PendingDepth() int { return len(e.pending) }

// Send delegates to the muxer immediately if a channel is available,
// otherwise enqueues the message until Step can drain it.
func (e *OutboundEncoder) Send(body []byte, datatype uint8, streamID uint32, timestamp uint32) error {
	if e.muxer.IsFull() {
		buf := e.pool.Get(len(body))
		copy(buf, body)
		e.pending = append(e.pending, pendingMessage{body: buf, datatype: datatype, streamID: streamID, timestamp: timestamp})
		e.mx.SetPendingDepth(len(e.pending))
		return nil
	}
	return e.muxer.Send(body, datatype, streamID, timestamp)
}

// Step drains one frame per active channel via the muxer, then pumps as
// much of the pending queue into the muxer as capacity allows. Signals Idle
// once both the pending queue and the active set are empty.
func (e *OutboundEncoder) Step(w io.Writer) (StepResult, error) {
	produced, err := e.muxer.Step(w)
	if err != nil {
		return 0, err
	}

	for len(e.pending) > 0 && !e.muxer.IsFull() {
		next := e.pending[0]
		e.pending = e.pending[1:]
		if err := e.muxer.Send(next.body, next.datatype, next.streamID, next.timestamp); err != nil {
			return 0, err
		}
		e.pool.Put(next.body)
		produced = true
	}
	e.mx.SetPendingDepth(len(e.pending))

	if len(e.pending) == 0 && e.muxer.ActiveCount() == 0 {
		return Idle, nil
	}
	if produced {
		return Produced, nil
	}
	return NeedMore, nil
}
