package chunk

// ChannelMuxer owns the bounded pool of outbound channel ids, the active set
// of in-flight messages, and emits one interleaved frame per active channel
// per Step — spec.md §4.6.
//
// Grounded on original_source/rtmpy/protocol/rtmp/codec.py's ChannelMuxer
// (availableChannels deque seeded with xrange(minChannelId, MAX_CHANNELS),
// aquireChannel/releaseChannel with activeChannelsIndex for O(1) removal,
// appendleft on release — LIFO return, per spec.md §9's resolution of the
// free-pool-ordering open question) and teacher's writer.go for per-message
// FMT selection (FMT0 on first use of a channel, FMT1/2 thereafter, FMT3 for
// continuation frames), adapted so the header-compression state lives on
// the Channel/lastSent map rather than a map[uint32]*ChunkHeader on the
// writer. The Python original's releaseChannel shifts list indices without
// updating activeChannelsIndex for entries after the removed one — a latent
// bug in the source; this implementation uses swap-with-last removal and
// keeps activeIdx consistent, since spec.md §4.6 promises true O(1)
// removal.

import (
	"fmt"
	"io"

	errs "github.com/jankowskirobert/rtmpy/internal/errors"
	"github.com/jankowskirobert/rtmpy/internal/logger"
	"github.com/jankowskirobert/rtmpy/internal/metrics"

	"github.com/jankowskirobert/rtmpy/internal/bufpool"
)

// ChannelMuxer multiplexes outbound messages across the fixed [MinChannelID,
// MaxChannels) pool of channel ids.
type ChannelMuxer struct {
	set  *channelSet
	pool *bufpool.Pool
	mx   *metrics.Collectors

	free      []uint32
	active    []*Channel
	activeIdx map[uint32]int
	inUse     int

	bodies    map[uint32][]byte
	lastSent  map[uint32]Header
	sentFirst map[uint32]bool
}

// NewChannelMuxer constructs a muxer with the free pool seeded per spec.md
// §3 ([MinChannelID, MaxChannels)). mx may be nil.
func NewChannelMuxer(pool *bufpool.Pool, mx *metrics.Collectors) *ChannelMuxer {
	if pool == nil {
		pool = bufpool.New()
	}
	free := make([]uint32, 0, MaxChannels-MinChannelID)
	for id := uint32(MinChannelID); id < MaxChannels; id++ {
		free = append(free, id)
	}
	return &ChannelMuxer{
		set:       newChannelSet(pool),
		pool:      pool,
		mx:        mx,
		free:      free,
		activeIdx: make(map[uint32]int),
		bodies:    make(map[uint32][]byte),
		lastSent:  make(map[uint32]Header),
		sentFirst: make(map[uint32]bool),
	}
}

// SetFrameSize applies a new chunk size to every channel this muxer knows
// about (spec.md §3, §9).
func (m *ChannelMuxer) SetFrameSize(n int) {
	m.set.setFrameSize(n)
}

// ActiveCount reports the number of channels currently carrying a message.
func (m *ChannelMuxer) ActiveCount() int { return len(m.active) }

// FreeCount reports the number of channel ids currently available.
func (m *ChannelMuxer) FreeCount() int { return len(m.free) }

// IsFull reports whether every allocatable channel id is in use.
func (m *ChannelMuxer) IsFull() bool {
	return m.inUse == MaxChannels-MinChannelID
}

// Acquire pops the next free channel id and marks it active, or returns
// false if the pool is saturated.
func (m *ChannelMuxer) Acquire() (*Channel, bool) {
	if len(m.free) == 0 {
		return nil, false
	}
	id := m.free[0]
	m.free = m.free[1:]

	ch := m.set.getChannel(id)
	m.active = append(m.active, ch)
	m.activeIdx[id] = len(m.active) - 1
	m.inUse++
	m.sentFirst[id] = false

	m.reportChannelCounts()
	return ch, true
}

// Release returns channelId to the free pool (pushed to the front — LIFO,
// see spec.md §4.6/§9) and removes it from the active set. Fails with
// EncodeError if the channel is not currently active, matching spec.md
// §4.6's explicit error-kind assignment for this operation (and the
// original source's EncodeError) over §7's looser prose grouping.
func (m *ChannelMuxer) Release(channelID uint32) error {
	idx, ok := m.activeIdx[channelID]
	if !ok {
		m.mx.ProtocolError()
		return errs.NewEncode("muxer.release", fmt.Errorf("channel %d is not active", channelID))
	}

	last := len(m.active) - 1
	moved := m.active[last]
	m.active[idx] = moved
	m.activeIdx[moved.id] = idx
	m.active = m.active[:last]
	delete(m.activeIdx, channelID)

	m.free = append([]uint32{channelID}, m.free...)
	m.inUse--

	m.reportChannelCounts()
	return nil
}

func (m *ChannelMuxer) reportChannelCounts() {
	m.mx.SetChannelCounts(m.inUse, len(m.free))
}

// Send acquires a channel, constructs an absolute Header describing the
// message, applies it, and stores the body for frame-by-frame draining by
// Step. The caller must have already confirmed !IsFull(); Send reaching a
// saturated pool is an internal bug (spec.md §7's Encode kind).
func (m *ChannelMuxer) Send(body []byte, datatype uint8, streamID uint32, timestamp uint32) error {
	ch, ok := m.Acquire()
	if !ok {
		m.mx.ProtocolError()
		return errs.NewEncode("muxer.send", fmt.Errorf("no free channel available"))
	}

	raw := Header{
		ChannelID:  ch.id,
		Timestamp:  timestamp,
		Datatype:   datatype,
		BodyLength: uint32(len(body)),
		StreamID:   streamID,
		Relative:   false,
		format:     formatFull,
		extended:   timestamp >= extendedTimestampMarker,
	}
	if _, err := ch.SetHeader(raw, m.set.frameSize); err != nil {
		return err
	}

	buf := m.pool.Get(len(body))
	copy(buf, body)
	m.bodies[ch.id] = buf

	m.mx.MessageOut()
	return nil
}

// Step writes one chunk header plus one frame of body for every active
// channel, in the order of the active list, releasing any channel whose
// message completes. The active list starts in allocation order, but Release
// moves the last active channel into the released slot, so after a release
// the order is no longer allocation order. Returns whether any channel was
// active to drain.
func (m *ChannelMuxer) Step(w io.Writer) (bool, error) {
	if len(m.active) == 0 {
		return false, nil
	}

	// Snapshot: Release mutates m.active mid-iteration via swap-removal.
	batch := make([]*Channel, len(m.active))
	copy(batch, m.active)

	for _, ch := range batch {
		id := ch.id
		hdr := *ch.CurrentHeader()

		var format uint8
		var prior *Header
		if m.sentFirst[id] {
			format = formatContinuation
			prior = ch.CurrentHeader()
		} else if last, ok := m.lastSent[id]; ok {
			p := last
			format = ChooseFormat(&p, hdr)
			prior = &p
		} else {
			format = formatFull
		}

		hdrBytes, err := EncodeHeader(hdr, format, prior)
		if err != nil {
			m.mx.ProtocolError()
			return false, err
		}

		frame := ch.WriteFrame(m.bodies[id])

		if _, err := w.Write(hdrBytes); err != nil {
			return false, err
		}
		if len(frame) > 0 {
			if _, err := w.Write(frame); err != nil {
				return false, err
			}
		}

		m.sentFirst[id] = true
		m.lastSent[id] = hdr
		m.mx.FrameOut()

		logger.Debug("frame encoded", "channel_id", id, "format", format, "len", len(frame), "completed", ch.Complete())

		if ch.Complete() {
			delete(m.bodies, id)
			delete(m.sentFirst, id)
			ch.Reset()
			if err := m.Release(id); err != nil {
				return false, err
			}
		}
	}

	return true, nil
}
