package iphc

import (
	"bytes"
	"fmt"
	"net/netip"

	"firestige.xyz/lowpan/internal/core"
)

// IPHC wire flags. Byte 0 carries the 011 dispatch pattern and the
// elision flags, byte 1 the address compression fields.
const (
	iphcDispatch     = 0x60
	iphcDispatchMask = 0xE0

	iphc1FLC    = 0x10 // flow label elided (it is zero)
	iphc1TCC    = 0x08 // traffic class elided (it is zero)
	iphc1NH     = 0x04 // next header compressed
	iphc1NHMask = 0x03 // inline code of the compressed next header

	iphc2CID     = 0x80 // context identifier extension byte present
	iphc2SAC     = 0x40 // source address uses a context prefix
	iphc2SAMMask = 0x30
	iphc2M       = 0x08 // destination is multicast
	iphc2DAC     = 0x04 // destination address uses a context prefix
	iphc2DAMMask = 0x03
)

// Address modes (2 bits). Mode 10 is reserved and never emitted.
const (
	amFull   = 0x00 // 128 bits inline
	amIID    = 0x01 // 64-bit interface identifier inline
	amElided = 0x03 // fully derived from prefix and link-layer address
)

// Multicast destination modes.
const (
	mdFull = 0x00 // 128 bits inline
	md48   = 0x01 // ffXX::00XX:XXXX:XXXX, 6 bytes inline
	md32   = 0x02 // ffXX::00XX:XXXX, 4 bytes inline
	md8    = 0x03 // ff02::00XX, 1 byte inline
)

// nhCode returns the inline code for a next-header value the codec
// compresses, or false if the value must be carried explicitly.
func nhCode(nh uint8) (byte, bool) {
	switch nh {
	case 17: // UDP
		return 0x01, true
	case 6: // TCP
		return 0x02, true
	case 58: // ICMPv6
		return 0x03, true
	}
	return 0, false
}

// nhFromCode is the inverse of nhCode. Code 0 is reserved.
func nhFromCode(code byte) (uint8, bool) {
	switch code {
	case 0x01:
		return 17, true
	case 0x02:
		return 6, true
	case 0x03:
		return 58, true
	}
	return 0, false
}

// Codec compresses and decompresses IPv6 headers against a shared
// context table. It holds no per-packet state.
type Codec struct {
	contexts *ContextTable
}

// NewCodec creates a codec using the given context table.
func NewCodec(contexts *ContextTable) *Codec {
	return &Codec{contexts: contexts}
}

// Contexts returns the codec's context table.
func (c *Codec) Contexts() *ContextTable { return c.contexts }

// Compress encodes a full IPv6 datagram (40-byte header plus payload)
// into its IPHC wire form, dispatch byte included. srcLink is the
// sender's own link-layer address, dstLink the next hop's; both feed
// the fully-elided address modes. Among encodings that round-trip,
// the smallest is always chosen.
func (c *Codec) Compress(datagram []byte, srcLink, dstLink core.LinkAddr) ([]byte, error) {
	h, err := ParseHeader(datagram)
	if err != nil {
		return nil, err
	}
	payload := datagram[HeaderLen:]

	flags1 := byte(iphcDispatch)
	if h.FlowLabel == 0 {
		flags1 |= iphc1FLC
	}
	if h.TrafficClass == 0 {
		flags1 |= iphc1TCC
	}
	if code, ok := nhCode(h.NextHeader); ok {
		flags1 |= iphc1NH | code
	}

	srcMode, srcCtx, srcUsesCtx, srcInline := c.compressAddr(h.Src, srcLink)

	var flags2 byte
	var dstCtx byte
	var dstInline []byte
	if h.Dst.Is6() && h.Dst.As16()[0] == 0xFF {
		mode, inline := compressMulticast(h.Dst)
		flags2 |= iphc2M | mode
		dstInline = inline
	} else {
		mode, ctx, usesCtx, inline := c.compressAddr(h.Dst, dstLink)
		flags2 |= mode
		if usesCtx {
			flags2 |= iphc2DAC
			dstCtx = ctx
		}
		dstInline = inline
	}
	flags2 |= srcMode << 4
	if srcUsesCtx {
		flags2 |= iphc2SAC
	}

	cid := srcCtx<<4 | dstCtx
	if cid != 0 {
		flags2 |= iphc2CID
	}

	out := make([]byte, 0, 2+1+1+3+1+1+len(srcInline)+len(dstInline)+len(payload))
	out = append(out, flags1, flags2)
	if cid != 0 {
		out = append(out, cid)
	}
	if h.TrafficClass != 0 {
		out = append(out, h.TrafficClass)
	}
	if h.FlowLabel != 0 {
		out = append(out, byte(h.FlowLabel>>16)&0x0F, byte(h.FlowLabel>>8), byte(h.FlowLabel))
	}
	if flags1&iphc1NH == 0 {
		out = append(out, h.NextHeader)
	}
	out = append(out, h.HopLimit)
	out = append(out, srcInline...)
	out = append(out, dstInline...)
	out = append(out, payload...)
	return out, nil
}

// compressAddr picks the shortest unicast address encoding that still
// round-trips: elided beats IID beats full.
func (c *Codec) compressAddr(addr netip.Addr, link core.LinkAddr) (mode byte, ctxID byte, usesCtx bool, inline []byte) {
	a := addr.As16()

	prefixKnown := false
	if isLinkLocal64(a) {
		prefixKnown = true
	} else if id, ok := c.contexts.find(addr); ok {
		ctxID = id
		usesCtx = true
		prefixKnown = true
	}

	if prefixKnown {
		iid := IIDFromLink(link)
		if bytes.Equal(a[8:], iid[:]) {
			return amElided, ctxID, usesCtx, nil
		}
		inline = make([]byte, 8)
		copy(inline, a[8:])
		return amIID, ctxID, usesCtx, inline
	}

	inline = make([]byte, 16)
	copy(inline, a[:])
	return amFull, 0, false, inline
}

// compressMulticast picks the most compact recognized multicast form.
func compressMulticast(addr netip.Addr) (mode byte, inline []byte) {
	a := addr.As16()
	switch {
	case a[1] == 0x02 && allZero(a[2:15]):
		return md8, []byte{a[15]}
	case allZero(a[2:13]):
		return md32, []byte{a[1], a[13], a[14], a[15]}
	case allZero(a[2:11]):
		return md48, []byte{a[1], a[11], a[12], a[13], a[14], a[15]}
	}
	inline = make([]byte, 16)
	copy(inline, a[:])
	return mdFull, inline
}

// Decompress reconstructs the full IPv6 datagram from an IPHC frame
// (dispatch byte first). senderLink reconstructs elided source
// addresses, localLink elided destination addresses.
func (c *Codec) Decompress(frame []byte, senderLink, localLink core.LinkAddr) ([]byte, error) {
	if len(frame) < 2 {
		return nil, fmt.Errorf("%w: IPHC header needs 2 bytes", core.ErrFrameTooShort)
	}
	if frame[0]&iphcDispatchMask != iphcDispatch {
		return nil, fmt.Errorf("%w: not an IPHC frame", core.ErrMalformedFrame)
	}
	flags1, flags2 := frame[0], frame[1]
	pos := 2

	take := func(n int) ([]byte, error) {
		if len(frame)-pos < n {
			return nil, fmt.Errorf("%w: need %d more bytes at offset %d",
				core.ErrFrameTooShort, n, pos)
		}
		b := frame[pos : pos+n]
		pos += n
		return b, nil
	}

	var srcCtx, dstCtx byte
	if flags2&iphc2CID != 0 {
		b, err := take(1)
		if err != nil {
			return nil, err
		}
		srcCtx = b[0] >> 4
		dstCtx = b[0] & 0x0F
	}

	var h Header
	if flags1&iphc1TCC == 0 {
		b, err := take(1)
		if err != nil {
			return nil, err
		}
		h.TrafficClass = b[0]
	}
	if flags1&iphc1FLC == 0 {
		b, err := take(3)
		if err != nil {
			return nil, err
		}
		h.FlowLabel = uint32(b[0]&0x0F)<<16 | uint32(b[1])<<8 | uint32(b[2])
	}
	if flags1&iphc1NH != 0 {
		nh, ok := nhFromCode(flags1 & iphc1NHMask)
		if !ok {
			return nil, fmt.Errorf("%w: reserved next-header code", core.ErrMalformedFrame)
		}
		h.NextHeader = nh
	} else {
		b, err := take(1)
		if err != nil {
			return nil, err
		}
		h.NextHeader = b[0]
	}
	b, err := take(1)
	if err != nil {
		return nil, err
	}
	h.HopLimit = b[0]

	h.Src, err = c.readAddr(take, (flags2>>4)&0x03, flags2&iphc2SAC != 0, srcCtx, senderLink)
	if err != nil {
		return nil, err
	}

	if flags2&iphc2M != 0 {
		h.Dst, err = readMulticast(take, flags2&iphc2DAMMask)
	} else {
		h.Dst, err = c.readAddr(take, flags2&iphc2DAMMask, flags2&iphc2DAC != 0, dstCtx, localLink)
	}
	if err != nil {
		return nil, err
	}

	payload := frame[pos:]
	h.PayloadLen = uint16(len(payload))

	out := make([]byte, HeaderLen+len(payload))
	h.Marshal(out)
	copy(out[HeaderLen:], payload)
	return out, nil
}

// readAddr reconstructs a unicast address from its mode, context flag
// and inline bytes.
func (c *Codec) readAddr(take func(int) ([]byte, error), mode byte, usesCtx bool, ctxID byte, link core.LinkAddr) (netip.Addr, error) {
	if mode == amFull {
		b, err := take(16)
		if err != nil {
			return netip.Addr{}, err
		}
		addr, _ := netip.AddrFromSlice(b)
		return addr, nil
	}

	prefix := LinkLocalPrefix
	if usesCtx {
		p, ok := c.contexts.Lookup(ctxID)
		if !ok {
			return netip.Addr{}, fmt.Errorf("%w: context %d", core.ErrUnknownContext, ctxID)
		}
		prefix = p
	}

	switch mode {
	case amIID:
		b, err := take(8)
		if err != nil {
			return netip.Addr{}, err
		}
		var a [16]byte
		p := prefix.Addr().As16()
		copy(a[:8], p[:8])
		copy(a[8:], b)
		return netip.AddrFrom16(a), nil
	case amElided:
		return AddrFromLink(prefix, link), nil
	}
	return netip.Addr{}, fmt.Errorf("%w: reserved address mode", core.ErrMalformedFrame)
}

// readMulticast reconstructs a multicast destination from its mode.
func readMulticast(take func(int) ([]byte, error), mode byte) (netip.Addr, error) {
	var a [16]byte
	a[0] = 0xFF
	switch mode {
	case mdFull:
		b, err := take(16)
		if err != nil {
			return netip.Addr{}, err
		}
		addr, _ := netip.AddrFromSlice(b)
		return addr, nil
	case md48:
		b, err := take(6)
		if err != nil {
			return netip.Addr{}, err
		}
		a[1] = b[0]
		copy(a[11:], b[1:])
	case md32:
		b, err := take(4)
		if err != nil {
			return netip.Addr{}, err
		}
		a[1] = b[0]
		copy(a[13:], b[1:])
	case md8:
		b, err := take(1)
		if err != nil {
			return netip.Addr{}, err
		}
		a[1] = 0x02
		a[15] = b[0]
	}
	return netip.AddrFrom16(a), nil
}

func isLinkLocal64(a [16]byte) bool {
	return a[0] == 0xFE && a[1] == 0x80 && allZero(a[2:8])
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
