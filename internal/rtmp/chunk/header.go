package chunk

// Chunk header codec: the four wire forms (Full/TimestampDeltaTypeLength/
// TimestampDelta/Continuation), channel-id escapes, extended timestamps, and
// the relative-to-absolute merge rule (spec.md §3, §4.1).
//
// Decoding works against an in-memory byte slice rather than an io.Reader:
// spec.md's push(bytes)/step() model requires that a short read be
// recoverable without consuming input, which a plain slice + explicit
// consumed-byte count gives for free (no seek/rewind bookkeeping needed).
// Grounded on alxayo-rtmp-go/internal/rtmp/chunk/header.go for wire-format
// fidelity; the merge semantics follow
// original_source/rtmpy/protocol/rtmp/codec.py's Channel.setHeader.

import (
	"encoding/binary"
	"fmt"

	errs "github.com/jankowskirobert/rtmpy/internal/errors"
)

// Wire format selectors (chunk header byte 0, bits 7-6).
const (
	formatFull                     uint8 = 0 // 11-byte message header
	formatTimestampDeltaTypeLength uint8 = 1 // 7-byte message header
	formatTimestampDelta           uint8 = 2 // 3-byte message header
	formatContinuation             uint8 = 3 // 0-byte message header
)

const extendedTimestampMarker uint32 = 0xFFFFFF

// Header is the absolute description of a message on the wire (spec.md §3),
// or — before merging — the partial set of fields a compressed form carries.
// Relative is true for any header decoded from a TimestampDeltaTypeLength,
// TimestampDelta, or Continuation chunk; such a header must be passed
// through MergeHeaders against the channel's prior absolute header before
// its fields (other than ChannelID) are meaningful.
type Header struct {
	ChannelID  uint32
	Timestamp  uint32
	Datatype   uint8
	BodyLength uint32
	StreamID   uint32
	Relative   bool

	format   uint8
	extended bool // true if this header's timestamp used the 4-byte extended field

	// deltaTimestamp marks a merged header whose Timestamp was accrued by
	// addition (fmt1/fmt2, and fmt3 inheriting that mode) rather than
	// assigned outright (fmt0). Relative is always false on a merged header
	// per spec.md §3, so this is the signal InboundDecoder actually uses for
	// spec.md §9's assign-vs-add resolution; it survives a Continuation
	// merge even though that merge also resets format to formatContinuation.
	deltaTimestamp bool
}

// TimestampIsDelta reports whether h's Timestamp (once merged) was accrued
// by addition onto the prior stream timestamp rather than assigned as an
// absolute value (spec.md §9).
func (h Header) TimestampIsDelta() bool { return h.deltaTimestamp }

func readUint24(b []byte) uint32 { return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]) }

func writeUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// decodeBasicHeader parses the 1-3 byte Basic Header. Returns the format,
// channel id, and number of bytes consumed.
func decodeBasicHeader(buf []byte) (format uint8, channelID uint32, n int, err error) {
	if len(buf) < 1 {
		return 0, 0, 0, errs.NewIncomplete("header.basic", nil)
	}
	format = buf[0] >> 6
	raw := buf[0] & 0x3F
	switch raw {
	case 0: // 2-byte form, ids 64..319
		if len(buf) < 2 {
			return 0, 0, 0, errs.NewIncomplete("header.basic.ext1", nil)
		}
		return format, uint32(buf[1]) + 64, 2, nil
	case 1: // 3-byte form, ids 320..65599
		if len(buf) < 3 {
			return 0, 0, 0, errs.NewIncomplete("header.basic.ext2", nil)
		}
		return format, uint32(buf[1]) + 64 + uint32(buf[2])<<8, 3, nil
	default:
		return format, uint32(raw), 1, nil
	}
}

// decodeMessageHeader parses the Message Header (and any Extended Timestamp)
// following the Basic Header. priorExtended tells a Continuation chunk
// whether it must re-read the 4-byte extended timestamp field (RTMP repeats
// it on every chunk of a message that used one). The returned Header is not
// merged; for Relative headers, only ChannelID and (for fmt1/2) the delta
// carried in Timestamp are meaningful until MergeHeaders runs.
func decodeMessageHeader(buf []byte, format uint8, channelID uint32, priorExtended bool) (Header, int, error) {
	switch format {
	case formatFull:
		if len(buf) < 11 {
			return Header{}, 0, errs.NewIncomplete("header.message.full", nil)
		}
		ts := readUint24(buf[0:3])
		bodyLength := readUint24(buf[3:6])
		datatype := buf[6]
		streamID := binary.LittleEndian.Uint32(buf[7:11])
		n := 11
		extended := false
		if ts == extendedTimestampMarker {
			if len(buf) < 15 {
				return Header{}, 0, errs.NewIncomplete("header.message.full.ext", nil)
			}
			ts = binary.BigEndian.Uint32(buf[11:15])
			n = 15
			extended = true
		}
		return Header{
			ChannelID: channelID, Timestamp: ts, Datatype: datatype,
			BodyLength: bodyLength, StreamID: streamID, Relative: false,
			format: format, extended: extended,
		}, n, nil

	case formatTimestampDeltaTypeLength:
		if len(buf) < 7 {
			return Header{}, 0, errs.NewIncomplete("header.message.fmt1", nil)
		}
		delta := readUint24(buf[0:3])
		bodyLength := readUint24(buf[3:6])
		datatype := buf[6]
		n := 7
		extended := false
		if delta == extendedTimestampMarker {
			if len(buf) < 11 {
				return Header{}, 0, errs.NewIncomplete("header.message.fmt1.ext", nil)
			}
			delta = binary.BigEndian.Uint32(buf[7:11])
			n = 11
			extended = true
		}
		return Header{
			ChannelID: channelID, Timestamp: delta, Datatype: datatype,
			BodyLength: bodyLength, Relative: true, format: format, extended: extended,
		}, n, nil

	case formatTimestampDelta:
		if len(buf) < 3 {
			return Header{}, 0, errs.NewIncomplete("header.message.fmt2", nil)
		}
		delta := readUint24(buf[0:3])
		n := 3
		extended := false
		if delta == extendedTimestampMarker {
			if len(buf) < 7 {
				return Header{}, 0, errs.NewIncomplete("header.message.fmt2.ext", nil)
			}
			delta = binary.BigEndian.Uint32(buf[3:7])
			n = 7
			extended = true
		}
		return Header{
			ChannelID: channelID, Timestamp: delta, Relative: true,
			format: format, extended: extended,
		}, n, nil

	case formatContinuation:
		n := 0
		extended := false
		var ts uint32
		if priorExtended {
			if len(buf) < 4 {
				return Header{}, 0, errs.NewIncomplete("header.message.fmt3.ext", nil)
			}
			ts = binary.BigEndian.Uint32(buf[0:4])
			n = 4
			extended = true
		}
		return Header{
			ChannelID: channelID, Timestamp: ts, Relative: true,
			format: format, extended: extended,
		}, n, nil

	default:
		return Header{}, 0, errs.NewMalformed("header.message.format", fmt.Errorf("unsupported format %d", format))
	}
}

// MergeHeaders implements the merge rule of spec.md §3: for each of
// {timestamp, datatype, bodyLength, streamId}, use the new value when the
// incoming wire form encodes it, otherwise inherit from prior. The merged
// header always has Relative=false. A relative header merged against a nil
// prior is a protocol error (spec.md invariant).
func MergeHeaders(prior *Header, raw Header) (Header, error) {
	switch raw.format {
	case formatFull:
		raw.Relative = false
		raw.deltaTimestamp = false
		return raw, nil

	case formatTimestampDeltaTypeLength:
		if prior == nil {
			return Header{}, errs.NewProtocol("header.merge.fmt1", fmt.Errorf("no prior header for channel %d", raw.ChannelID))
		}
		return Header{
			ChannelID: raw.ChannelID, Timestamp: prior.Timestamp + raw.Timestamp,
			Datatype: raw.Datatype, BodyLength: raw.BodyLength, StreamID: prior.StreamID,
			Relative: false, format: raw.format, extended: raw.extended, deltaTimestamp: true,
		}, nil

	case formatTimestampDelta:
		if prior == nil {
			return Header{}, errs.NewProtocol("header.merge.fmt2", fmt.Errorf("no prior header for channel %d", raw.ChannelID))
		}
		return Header{
			ChannelID: raw.ChannelID, Timestamp: prior.Timestamp + raw.Timestamp,
			Datatype: prior.Datatype, BodyLength: prior.BodyLength, StreamID: prior.StreamID,
			Relative: false, format: raw.format, extended: raw.extended, deltaTimestamp: true,
		}, nil

	case formatContinuation:
		if prior == nil {
			return Header{}, errs.NewProtocol("header.merge.fmt3", fmt.Errorf("no prior header for channel %d", raw.ChannelID))
		}
		merged := *prior
		merged.Relative = false
		merged.format = formatContinuation
		return merged, nil

	default:
		return Header{}, errs.NewMalformed("header.merge.format", fmt.Errorf("unsupported format %d", raw.format))
	}
}

// ChooseFormat picks the most compressed form for emitting a new message
// header on a channel, given the last header actually emitted there
// (spec.md §4.1 encoding rule; Continuation is never chosen here — it is
// reserved for subsequent frames of the same message, selected explicitly
// by the muxer).
func ChooseFormat(prior *Header, h Header) uint8 {
	if prior == nil || prior.ChannelID != h.ChannelID {
		return formatFull
	}
	if h.StreamID != prior.StreamID {
		return formatFull
	}
	if h.Datatype != prior.Datatype || h.BodyLength != prior.BodyLength {
		return formatTimestampDeltaTypeLength
	}
	return formatTimestampDelta
}

func encodeBasicHeader(dst []byte, format uint8, channelID uint32) ([]byte, error) {
	switch {
	case channelID <= 1:
		return nil, errs.NewMalformed("header.encode.basic", fmt.Errorf("channel id %d is reserved", channelID))
	case channelID <= 63:
		return append(dst, format<<6|byte(channelID)), nil
	case channelID <= 319:
		return append(dst, format<<6, byte(channelID-64)), nil
	case channelID <= 65599:
		v := channelID - 64
		return append(dst, format<<6|1, byte(v), byte(v>>8)), nil
	default:
		return nil, errs.NewMalformed("header.encode.basic", fmt.Errorf("channel id %d out of range", channelID))
	}
}

// EncodeHeader serializes h using the given wire format, relative to prior
// (the last header emitted on this channel; required for every format
// except Full).
func EncodeHeader(h Header, format uint8, prior *Header) ([]byte, error) {
	buf := make([]byte, 0, 1+11+4)
	buf, err := encodeBasicHeader(buf, format, h.ChannelID)
	if err != nil {
		return nil, err
	}

	switch format {
	case formatFull:
		extended := h.Timestamp >= extendedTimestampMarker
		tsField := h.Timestamp
		if extended {
			tsField = extendedTimestampMarker
		}
		var mh [11]byte
		writeUint24(mh[0:3], tsField)
		writeUint24(mh[3:6], h.BodyLength)
		mh[6] = h.Datatype
		binary.LittleEndian.PutUint32(mh[7:11], h.StreamID)
		buf = append(buf, mh[:]...)
		if extended {
			buf = appendExtended(buf, h.Timestamp)
		}

	case formatTimestampDeltaTypeLength:
		if prior == nil {
			return nil, errs.NewMalformed("header.encode.fmt1", fmt.Errorf("fmt1 requires a prior header"))
		}
		delta := h.Timestamp - prior.Timestamp
		extended := delta >= extendedTimestampMarker
		tsField := delta
		if extended {
			tsField = extendedTimestampMarker
		}
		var mh [7]byte
		writeUint24(mh[0:3], tsField)
		writeUint24(mh[3:6], h.BodyLength)
		mh[6] = h.Datatype
		buf = append(buf, mh[:]...)
		if extended {
			buf = appendExtended(buf, delta)
		}

	case formatTimestampDelta:
		if prior == nil {
			return nil, errs.NewMalformed("header.encode.fmt2", fmt.Errorf("fmt2 requires a prior header"))
		}
		delta := h.Timestamp - prior.Timestamp
		extended := delta >= extendedTimestampMarker
		tsField := delta
		if extended {
			tsField = extendedTimestampMarker
		}
		var mh [3]byte
		writeUint24(mh[0:3], tsField)
		buf = append(buf, mh[:]...)
		if extended {
			buf = appendExtended(buf, delta)
		}

	case formatContinuation:
		if prior == nil {
			return nil, errs.NewMalformed("header.encode.fmt3", fmt.Errorf("fmt3 requires a prior header"))
		}
		if prior.extended {
			buf = appendExtended(buf, prior.Timestamp)
		}

	default:
		return nil, errs.NewMalformed("header.encode.format", fmt.Errorf("unsupported format %d", format))
	}

	return buf, nil
}

func appendExtended(buf []byte, v uint32) []byte {
	var ext [4]byte
	binary.BigEndian.PutUint32(ext[:], v)
	return append(buf, ext[:]...)
}
