// Package iphc implements IPv6 header compression and decompression
// for the LoWPAN adaptation layer (LOWPAN_IPHC, RFC 6282 style).
package iphc

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"firestige.xyz/lowpan/internal/core"
)

// HeaderLen is the length of an uncompressed IPv6 header.
const HeaderLen = 40

// Header holds the IPv6 header fields the codec understands.
// Extension headers and everything after them are opaque payload.
type Header struct {
	TrafficClass uint8
	FlowLabel    uint32 // 20 bits
	PayloadLen   uint16
	NextHeader   uint8
	HopLimit     uint8
	Src          netip.Addr
	Dst          netip.Addr
}

// ParseHeader decodes a 40-byte IPv6 header from the front of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: IPv6 header needs %d bytes, have %d",
			core.ErrMalformedFrame, HeaderLen, len(b))
	}
	if b[0]>>4 != 6 {
		return Header{}, fmt.Errorf("%w: IP version %d", core.ErrMalformedFrame, b[0]>>4)
	}

	var h Header
	// Version(4) + Traffic Class(8) + Flow Label(20)
	h.TrafficClass = b[0]<<4 | b[1]>>4
	h.FlowLabel = uint32(b[1]&0x0F)<<16 | uint32(b[2])<<8 | uint32(b[3])
	h.PayloadLen = binary.BigEndian.Uint16(b[4:6])
	h.NextHeader = b[6]
	h.HopLimit = b[7]

	src, _ := netip.AddrFromSlice(b[8:24])
	dst, _ := netip.AddrFromSlice(b[24:40])
	h.Src = src
	h.Dst = dst
	return h, nil
}

// Marshal writes the 40-byte wire form of h into b.
func (h *Header) Marshal(b []byte) {
	b[0] = 0x60 | h.TrafficClass>>4
	b[1] = h.TrafficClass<<4 | uint8(h.FlowLabel>>16)&0x0F
	b[2] = uint8(h.FlowLabel >> 8)
	b[3] = uint8(h.FlowLabel)
	binary.BigEndian.PutUint16(b[4:6], h.PayloadLen)
	b[6] = h.NextHeader
	b[7] = h.HopLimit
	src := h.Src.As16()
	dst := h.Dst.As16()
	copy(b[8:24], src[:])
	copy(b[24:40], dst[:])
}
