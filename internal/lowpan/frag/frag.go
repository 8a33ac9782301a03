// Package frag splits oversized datagrams into link-sized fragments.
package frag

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"firestige.xyz/lowpan/internal/core"
	"firestige.xyz/lowpan/internal/lowpan/dispatch"
)

// MaxDatagramSize is the largest datagram the 11-bit size field can carry.
const MaxDatagramSize = 0x07FF

// Header is a decoded fragment header.
type Header struct {
	Size   int // total datagram size in bytes
	Tag    uint16
	Offset int // byte offset of this fragment's payload (8-byte granularity on the wire)
}

// ParseHeader decodes a FRAG1 or FRAGN header from the front of a frame.
// The dispatch classifier has already verified the minimum length.
func ParseHeader(class core.FrameClass, frame []byte) (Header, error) {
	var h Header
	switch class {
	case core.ClassFragFirst:
		if len(frame) < dispatch.Frag1HdrLen {
			return h, fmt.Errorf("%w: first fragment header", core.ErrFrameTooShort)
		}
		h.Size = int(frame[0]&0x07)<<8 | int(frame[1])
		h.Tag = binary.BigEndian.Uint16(frame[2:4])
	case core.ClassFragSubsequent:
		if len(frame) < dispatch.FragNHdrLen {
			return h, fmt.Errorf("%w: subsequent fragment header", core.ErrFrameTooShort)
		}
		h.Size = int(frame[0]&0x07)<<8 | int(frame[1])
		h.Tag = binary.BigEndian.Uint16(frame[2:4])
		h.Offset = int(frame[4]) * 8
	default:
		return h, fmt.Errorf("%w: not a fragment frame", core.ErrMalformedFrame)
	}
	return h, nil
}

// Fragmenter produces fragment trains for outbound datagrams. The only
// state it keeps between calls is the datagram tag counter.
type Fragmenter struct {
	tag atomic.Uint32
}

// NewFragmenter creates a fragmenter with the tag counter at zero.
func NewFragmenter() *Fragmenter {
	return &Fragmenter{}
}

// NextTag allocates a fresh datagram tag. Tags increase monotonically
// and wrap at 16 bits; a tag cannot still be referenced by a receiver
// after 65535 intervening datagrams within one reassembly window.
func (f *Fragmenter) NextTag() uint16 {
	return uint16(f.tag.Add(1) - 1)
}

// MaxFirstPayload returns the fragment payload capacity of a first
// fragment at the given MTU, rounded down to 8-byte granularity.
func MaxFirstPayload(mtu int) int {
	return (mtu - dispatch.Frag1HdrLen) &^ 7
}

// MaxNextPayload returns the payload capacity of a subsequent fragment.
// All fragments except the last must carry a multiple of 8 bytes so
// that successor offsets stay on the wire's 8-byte grid.
func MaxNextPayload(mtu int) int {
	return (mtu - dispatch.FragNHdrLen) &^ 7
}

// Split fragments a datagram into link frames, each at most mtu bytes.
// The caller is responsible for only fragmenting datagrams that do not
// fit in a single frame; Split always emits fragment headers.
// Frames must be transmitted in the order returned.
func (f *Fragmenter) Split(datagram []byte, mtu int) ([][]byte, error) {
	if len(datagram) == 0 {
		return nil, core.ErrDatagramEmpty
	}
	if len(datagram) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", core.ErrDatagramTooLarge, len(datagram))
	}
	first := MaxFirstPayload(mtu)
	next := MaxNextPayload(mtu)
	if first <= 0 || next <= 0 {
		return nil, fmt.Errorf("%w: mtu %d", core.ErrMTUTooSmall, mtu)
	}

	size := len(datagram)
	tag := f.NextTag()

	frames := make([][]byte, 0, 1+(size-first+next-1)/next)

	frame := make([]byte, dispatch.Frag1HdrLen+first)
	frame[0] = dispatch.DispatchFrag1 | byte(size>>8)
	frame[1] = byte(size)
	binary.BigEndian.PutUint16(frame[2:4], tag)
	copy(frame[dispatch.Frag1HdrLen:], datagram[:first])
	frames = append(frames, frame)

	for off := first; off < size; off += next {
		chunk := datagram[off:min(off+next, size)]
		frame := make([]byte, dispatch.FragNHdrLen+len(chunk))
		frame[0] = dispatch.DispatchFragN | byte(size>>8)
		frame[1] = byte(size)
		binary.BigEndian.PutUint16(frame[2:4], tag)
		frame[4] = byte(off / 8)
		copy(frame[dispatch.FragNHdrLen:], chunk)
		frames = append(frames, frame)
	}
	return frames, nil
}
