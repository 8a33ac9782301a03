// Package dispatch classifies inbound link frames by their dispatch byte.
package dispatch

import "firestige.xyz/lowpan/internal/core"

// Dispatch values per RFC 4944 / RFC 6282.
const (
	// DispatchIPv6 announces an uncompressed IPv6 datagram.
	DispatchIPv6 = 0x41

	// DispatchIPHC marks the three high bits of an IPHC-compressed header.
	DispatchIPHC     = 0x60
	DispatchIPHCMask = 0xE0

	// DispatchFrag1 marks the three high bits of a first-fragment header.
	DispatchFrag1 = 0xC0
	// DispatchFragN marks the three high bits of a subsequent-fragment header.
	DispatchFragN    = 0xE0
	DispatchFragMask = 0xF8

	// Frag1HdrLen is the length of a first-fragment header.
	Frag1HdrLen = 4
	// FragNHdrLen is the length of a subsequent-fragment header.
	FragNHdrLen = 5
)

// Classify inspects the leading byte of a link frame and returns its
// class plus the number of leading header bytes the caller must skip
// before handing the remainder to the next stage. For IPHC frames the
// skip is zero: the codec consumes the dispatch byte itself.
//
// The bit patterns are disjoint by construction: the two high bits
// separate fragments (11) from uncompressed (010) and IPHC (011)
// dispatches, and the third-from-top bit splits first (110) from
// subsequent (111) fragments.
func Classify(frame []byte) (core.FrameClass, int) {
	if len(frame) == 0 {
		return core.ClassUnknown, 0
	}
	b := frame[0]

	switch {
	case b == DispatchIPv6:
		if len(frame) < 1+40 {
			return core.ClassUnknown, 0
		}
		return core.ClassUncompressed, 1

	case b&DispatchFragMask == DispatchFrag1:
		if len(frame) < Frag1HdrLen {
			return core.ClassUnknown, 0
		}
		return core.ClassFragFirst, Frag1HdrLen

	case b&DispatchFragMask == DispatchFragN:
		if len(frame) < FragNHdrLen {
			return core.ClassUnknown, 0
		}
		return core.ClassFragSubsequent, FragNHdrLen

	case b&DispatchIPHCMask == DispatchIPHC:
		if len(frame) < 2 {
			return core.ClassUnknown, 0
		}
		return core.ClassCompressed, 0
	}

	return core.ClassUnknown, 0
}
