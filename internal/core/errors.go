package core

import "errors"

// Sentinel errors. Every failure in the adaptation layer is local and
// recoverable; these exist so callers can count and drop, never crash.
var (
	// Frame classification / decoding errors
	ErrMalformedFrame = errors.New("lowpan: malformed frame")
	ErrUnknownContext = errors.New("lowpan: compression context not defined")
	ErrFrameTooShort  = errors.New("lowpan: frame shorter than its header implies")

	// Reassembly errors
	ErrReassemblyConflict = errors.New("lowpan: fragment conflicts with reassembly state")
	ErrDatagramTooLarge   = errors.New("lowpan: datagram exceeds maximum reassembly size")

	// Capacity errors
	ErrPoolExhausted = errors.New("lowpan: frame buffer pool exhausted")
	ErrRegistryFull  = errors.New("lowpan: consumer registry full")

	// Send path errors
	ErrDatagramEmpty = errors.New("lowpan: empty datagram")
	ErrMTUTooSmall   = errors.New("lowpan: link MTU too small for fragment headers")
)
