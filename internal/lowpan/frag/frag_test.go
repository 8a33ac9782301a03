package frag

import (
	"encoding/binary"
	"errors"
	"testing"

	"firestige.xyz/lowpan/internal/core"
	"firestige.xyz/lowpan/internal/lowpan/dispatch"
)

func patternDatagram(n int) []byte {
	d := make([]byte, n)
	for i := range d {
		d[i] = byte(i * 7)
	}
	return d
}

func TestSplitReassemblesByConcatenation(t *testing.T) {
	f := NewFragmenter()

	for _, tt := range []struct {
		name string
		size int
		mtu  int
	}{
		{"just over mtu", 128, 127},
		{"600 at small mtu", 600, 102},
		{"max datagram", MaxDatagramSize, 127},
		{"tiny mtu", 100, 16},
	} {
		t.Run(tt.name, func(t *testing.T) {
			in := patternDatagram(tt.size)
			frames, err := f.Split(in, tt.mtu)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}

			var out []byte
			for i, frame := range frames {
				if len(frame) > tt.mtu {
					t.Fatalf("frame %d is %d bytes, mtu %d", i, len(frame), tt.mtu)
				}
				hdrLen := dispatch.FragNHdrLen
				if i == 0 {
					hdrLen = dispatch.Frag1HdrLen
				}
				out = append(out, frame[hdrLen:]...)
			}
			if len(out) != tt.size {
				t.Fatalf("payloads total %d bytes, want %d", len(out), tt.size)
			}
			for i := range out {
				if out[i] != in[i] {
					t.Fatalf("byte %d differs", i)
				}
			}

			// All fragments but the last carry a multiple of 8 bytes.
			for i, frame := range frames[:len(frames)-1] {
				hdrLen := dispatch.FragNHdrLen
				if i == 0 {
					hdrLen = dispatch.Frag1HdrLen
				}
				if (len(frame)-hdrLen)%8 != 0 {
					t.Errorf("fragment %d payload %d not 8-aligned", i, len(frame)-hdrLen)
				}
			}
		})
	}
}

func TestSplitFragmentCount(t *testing.T) {
	f := NewFragmenter()
	in := patternDatagram(600)

	frames, err := f.Split(in, 102)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	// First fragment carries 96 bytes, each subsequent one up to 96:
	// 1 + ceil(504/96) = 7.
	if len(frames) != 7 {
		t.Errorf("got %d fragments, want 7", len(frames))
	}
}

func TestSplitHeaders(t *testing.T) {
	f := NewFragmenter()
	in := patternDatagram(300)

	frames, err := f.Split(in, 127)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	tag := binary.BigEndian.Uint16(frames[0][2:4])
	wantOffset := 0
	for i, frame := range frames {
		class := core.ClassFragSubsequent
		if i == 0 {
			class = core.ClassFragFirst
		}
		h, err := ParseHeader(class, frame)
		if err != nil {
			t.Fatalf("ParseHeader fragment %d: %v", i, err)
		}
		if h.Size != 300 {
			t.Errorf("fragment %d size %d, want 300", i, h.Size)
		}
		if h.Tag != tag {
			t.Errorf("fragment %d tag %d, want %d", i, h.Tag, tag)
		}
		if h.Offset != wantOffset {
			t.Errorf("fragment %d offset %d, want %d", i, h.Offset, wantOffset)
		}
		hdrLen := dispatch.FragNHdrLen
		if i == 0 {
			hdrLen = dispatch.Frag1HdrLen
		}
		wantOffset += len(frame) - hdrLen
	}
}

func TestSplitTagsDiffer(t *testing.T) {
	f := NewFragmenter()
	in := patternDatagram(200)

	a, _ := f.Split(in, 127)
	b, _ := f.Split(in, 127)
	tagA := binary.BigEndian.Uint16(a[0][2:4])
	tagB := binary.BigEndian.Uint16(b[0][2:4])
	if tagA == tagB {
		t.Errorf("consecutive trains share tag %d", tagA)
	}
}

func TestSplitErrors(t *testing.T) {
	f := NewFragmenter()

	if _, err := f.Split(nil, 127); !errors.Is(err, core.ErrDatagramEmpty) {
		t.Errorf("empty datagram: %v", err)
	}
	if _, err := f.Split(patternDatagram(MaxDatagramSize+1), 127); !errors.Is(err, core.ErrDatagramTooLarge) {
		t.Errorf("oversized datagram: %v", err)
	}
	if _, err := f.Split(patternDatagram(100), 10); !errors.Is(err, core.ErrMTUTooSmall) {
		t.Errorf("tiny mtu: %v", err)
	}
}

func TestParseHeaderRejectsNonFragment(t *testing.T) {
	if _, err := ParseHeader(core.ClassCompressed, patternDatagram(10)); !errors.Is(err, core.ErrMalformedFrame) {
		t.Errorf("error = %v, want ErrMalformedFrame", err)
	}
}

func TestNextTagWraps(t *testing.T) {
	f := NewFragmenter()
	f.tag.Store(0xFFFF)
	if tag := f.NextTag(); tag != 0xFFFF {
		t.Fatalf("tag = %d, want 65535", tag)
	}
	if tag := f.NextTag(); tag != 0 {
		t.Errorf("tag after wrap = %d, want 0", tag)
	}
}
