package iphc

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"

	"firestige.xyz/lowpan/internal/core"
)

var (
	linkA = core.LinkAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	linkB = core.LinkAddr{0x00, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x01}
)

// datagram marshals a header plus payload into one IPv6 datagram.
func datagram(t *testing.T, h Header, payload []byte) []byte {
	t.Helper()
	h.PayloadLen = uint16(len(payload))
	buf := make([]byte, HeaderLen+len(payload))
	h.Marshal(buf)
	copy(buf[HeaderLen:], payload)
	return buf
}

func tableWith(t *testing.T, id uint8, prefix string) *ContextTable {
	t.Helper()
	tab := NewContextTable()
	if err := tab.Set(id, netip.MustParsePrefix(prefix)); err != nil {
		t.Fatalf("Set context %d: %v", id, err)
	}
	return tab
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	ctxTable := tableWith(t, 1, "2001:db8:0:1::/64")
	ctxTable.Set(5, netip.MustParsePrefix("2001:db8:0:5::/64"))

	tests := []struct {
		name string
		h    Header
	}{
		{
			name: "link-local both elided",
			h: Header{
				NextHeader: 17,
				HopLimit:   64,
				Src:        AddrFromLink(LinkLocalPrefix, linkA),
				Dst:        AddrFromLink(LinkLocalPrefix, linkB),
			},
		},
		{
			name: "link-local foreign IID",
			h: Header{
				NextHeader: 58,
				HopLimit:   255,
				Src:        netip.MustParseAddr("fe80::1234:5678:9abc:def0"),
				Dst:        AddrFromLink(LinkLocalPrefix, linkB),
			},
		},
		{
			name: "context elided both",
			h: Header{
				NextHeader: 17,
				HopLimit:   64,
				Src:        AddrFromLink(netip.MustParsePrefix("2001:db8:0:1::/64"), linkA),
				Dst:        AddrFromLink(netip.MustParsePrefix("2001:db8:0:5::/64"), linkB),
			},
		},
		{
			name: "context with inline IID",
			h: Header{
				NextHeader: 6,
				HopLimit:   63,
				Src:        netip.MustParseAddr("2001:db8:0:1::42"),
				Dst:        netip.MustParseAddr("2001:db8:0:5::99"),
			},
		},
		{
			name: "global without context",
			h: Header{
				NextHeader: 17,
				HopLimit:   64,
				Src:        netip.MustParseAddr("2606:4700::1111"),
				Dst:        netip.MustParseAddr("2620:fe::fe"),
			},
		},
		{
			name: "traffic class and flow label inline",
			h: Header{
				TrafficClass: 0xB8,
				FlowLabel:    0xBEEF0,
				NextHeader:   17,
				HopLimit:     64,
				Src:          AddrFromLink(LinkLocalPrefix, linkA),
				Dst:          AddrFromLink(LinkLocalPrefix, linkB),
			},
		},
		{
			name: "uncompressible next header",
			h: Header{
				NextHeader: 99,
				HopLimit:   1,
				Src:        AddrFromLink(LinkLocalPrefix, linkA),
				Dst:        AddrFromLink(LinkLocalPrefix, linkB),
			},
		},
		{
			name: "multicast all-nodes",
			h: Header{
				NextHeader: 58,
				HopLimit:   1,
				Src:        AddrFromLink(LinkLocalPrefix, linkA),
				Dst:        netip.MustParseAddr("ff02::1"),
			},
		},
		{
			name: "multicast 32-bit form",
			h: Header{
				NextHeader: 17,
				HopLimit:   8,
				Src:        AddrFromLink(LinkLocalPrefix, linkA),
				Dst:        netip.MustParseAddr("ff05::1:3"),
			},
		},
		{
			name: "multicast 48-bit form",
			h: Header{
				NextHeader: 58,
				HopLimit:   255,
				Src:        AddrFromLink(LinkLocalPrefix, linkA),
				Dst:        netip.MustParseAddr("ff02::1:ff00:1"),
			},
		},
		{
			name: "multicast full inline",
			h: Header{
				NextHeader: 17,
				HopLimit:   16,
				Src:        AddrFromLink(LinkLocalPrefix, linkA),
				Dst:        netip.MustParseAddr("ff3e:40:2001:db8::1"),
			},
		},
	}

	codec := NewCodec(ctxTable)
	payload := []byte("knock knock")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := datagram(t, tt.h, payload)

			compressed, err := codec.Compress(in, linkA, linkB)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if compressed[0]&0xE0 != 0x60 {
				t.Fatalf("compressed frame lacks IPHC dispatch: %#02x", compressed[0])
			}

			out, err := codec.Decompress(compressed, linkA, linkB)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(in, out) {
				t.Errorf("round trip mismatch:\n in=%x\nout=%x", in, out)
			}
		})
	}
}

func TestCompressMinimality(t *testing.T) {
	ctxTable := tableWith(t, 1, "2001:db8:0:1::/64")
	codec := NewCodec(ctxTable)

	tests := []struct {
		name    string
		h       Header
		wantLen int // header bytes only, payload excluded
	}{
		{
			// flags(2) + hop(1), everything else elided
			name: "best case link-local UDP",
			h: Header{
				NextHeader: 17,
				HopLimit:   64,
				Src:        AddrFromLink(LinkLocalPrefix, linkA),
				Dst:        AddrFromLink(LinkLocalPrefix, linkB),
			},
			wantLen: 3,
		},
		{
			// flags(2) + CID(1) + hop(1)
			name: "context elided",
			h: Header{
				NextHeader: 17,
				HopLimit:   64,
				Src:        AddrFromLink(netip.MustParsePrefix("2001:db8:0:1::/64"), linkA),
				Dst:        AddrFromLink(LinkLocalPrefix, linkB),
			},
			wantLen: 4,
		},
		{
			// flags(2) + hop(1) + multicast(1)
			name: "multicast 8-bit",
			h: Header{
				NextHeader: 58,
				HopLimit:   1,
				Src:        AddrFromLink(LinkLocalPrefix, linkA),
				Dst:        netip.MustParseAddr("ff02::2"),
			},
			wantLen: 4,
		},
		{
			// flags(2) + NH(1) + hop(1) + src IID(8)
			name: "inline next header and IID",
			h: Header{
				NextHeader: 44,
				HopLimit:   64,
				Src:        netip.MustParseAddr("fe80::1"),
				Dst:        AddrFromLink(LinkLocalPrefix, linkB),
			},
			wantLen: 12,
		},
	}

	payload := []byte{0xDE, 0xAD}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := datagram(t, tt.h, payload)
			compressed, err := codec.Compress(in, linkA, linkB)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			got := len(compressed) - len(payload)
			if got != tt.wantLen {
				t.Errorf("compressed header is %d bytes, want %d (%x)",
					got, tt.wantLen, compressed)
			}
		})
	}
}

func TestDecompressUnknownContext(t *testing.T) {
	sender := NewCodec(tableWith(t, 3, "2001:db8:0:3::/64"))

	h := Header{
		NextHeader: 17,
		HopLimit:   64,
		Src:        AddrFromLink(netip.MustParsePrefix("2001:db8:0:3::/64"), linkA),
		Dst:        AddrFromLink(LinkLocalPrefix, linkB),
	}
	compressed, err := sender.Compress(datagram(t, h, nil), linkA, linkB)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	// The receiver never learned context 3.
	receiver := NewCodec(NewContextTable())
	_, err = receiver.Decompress(compressed, linkA, linkB)
	if !errors.Is(err, core.ErrUnknownContext) {
		t.Errorf("Decompress error = %v, want ErrUnknownContext", err)
	}
}

func TestDecompressTruncated(t *testing.T) {
	codec := NewCodec(NewContextTable())

	h := Header{
		TrafficClass: 0x04,
		FlowLabel:    0x12345,
		NextHeader:   99,
		HopLimit:     64,
		Src:          netip.MustParseAddr("2606:4700::1111"),
		Dst:          netip.MustParseAddr("2620:fe::fe"),
	}
	compressed, err := codec.Compress(datagram(t, h, nil), linkA, linkB)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	for i := 0; i < len(compressed); i++ {
		if _, err := codec.Decompress(compressed[:i], linkA, linkB); err == nil {
			t.Errorf("Decompress accepted %d of %d bytes", i, len(compressed))
		}
	}
}

func TestDecompressRejectsNonIPHC(t *testing.T) {
	codec := NewCodec(NewContextTable())
	if _, err := codec.Decompress([]byte{0x41, 0x00, 0x00}, linkA, linkB); !errors.Is(err, core.ErrMalformedFrame) {
		t.Errorf("error = %v, want ErrMalformedFrame", err)
	}
}

func TestCompressRejectsNonIPv6(t *testing.T) {
	codec := NewCodec(NewContextTable())
	bad := make([]byte, HeaderLen)
	bad[0] = 0x45 // IPv4
	if _, err := codec.Compress(bad, linkA, linkB); !errors.Is(err, core.ErrMalformedFrame) {
		t.Errorf("error = %v, want ErrMalformedFrame", err)
	}
}
