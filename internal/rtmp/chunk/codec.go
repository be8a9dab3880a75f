package chunk

// channelSet is the shared channel-map base used independently by the
// inbound (FrameReader) and outbound (ChannelMuxer) sides — spec.md §9 notes
// the two sides keep disjoint channel maps, so each side owns one instance,
// never shares it.
//
// Grounded on original_source/rtmpy/protocol/rtmp/codec.py's Codec class
// (getChannel lazy-create, setFrameSize broadcast).

import "github.com/jankowskirobert/rtmpy/internal/bufpool"

// DefaultFrameSize is the chunk size in effect before any setFrameSize
// control message is processed (RTMP's initial default).
const DefaultFrameSize = 128

// MaxChannels and MinChannelID bound the channel-id pool the outbound
// muxer draws from (spec.md §3, §6). The inbound reader uses MaxChannels to
// reject wire-carried ids that could never have been legitimately
// allocated by a peer's muxer.
const (
	MaxChannels   = 64
	MinChannelID  = 3
)

type channelSet struct {
	pool      *bufpool.Pool
	channels  map[uint32]*Channel
	frameSize int
}

func newChannelSet(pool *bufpool.Pool) *channelSet {
	return &channelSet{
		pool:      pool,
		channels:  make(map[uint32]*Channel),
		frameSize: DefaultFrameSize,
	}
}

// getChannel returns the channel for id, lazily creating it on first use.
func (s *channelSet) getChannel(id uint32) *Channel {
	ch, ok := s.channels[id]
	if !ok {
		ch = newChannel(id, s.pool)
		s.channels[id] = ch
	}
	return ch
}

// setFrameSize updates the chunk size in effect for every channel in the
// set. A channel mid-frame keeps its current frameRemaining countdown; the
// new size only takes effect starting at that channel's next frame boundary
// (spec.md §9's resolution of the setFrameSize-mid-message open question).
// Channels that are not mid-frame (frameRemaining == 0) get their countdown
// recomputed immediately against the new size. Every channel's remembered
// frameSize is updated regardless, so a mid-frame channel that self-heals
// its countdown later (Channel.WriteFrame, on the outbound side) picks up
// the new size at that boundary instead of the one in effect when it last
// had a header applied.
func (s *channelSet) setFrameSize(size int) {
	s.frameSize = size
	for _, ch := range s.channels {
		if ch.frameRemaining == 0 && ch.header != nil {
			ch.adjustFrameRemaining(size)
		} else {
			ch.frameSize = size
		}
	}
}
