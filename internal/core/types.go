// Package core defines the types shared across the adaptation layer.
package core

import (
	"encoding/hex"
	"strings"
)

// LinkAddr is an EUI-64 link-layer address as used on the radio.
type LinkAddr [8]byte

// String renders the address in colon-separated hex form.
func (a LinkAddr) String() string {
	var b strings.Builder
	for i, octet := range a {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex.EncodeToString([]byte{octet}))
	}
	return b.String()
}

// FrameClass identifies the encoding of an inbound link frame,
// determined by its dispatch byte.
type FrameClass uint8

const (
	ClassUnknown FrameClass = iota
	ClassUncompressed
	ClassCompressed
	ClassFragFirst
	ClassFragSubsequent
)

// String returns the class name used in logs and metric labels.
func (c FrameClass) String() string {
	switch c {
	case ClassUncompressed:
		return "uncompressed"
	case ClassCompressed:
		return "iphc"
	case ClassFragFirst:
		return "frag1"
	case ClassFragSubsequent:
		return "fragn"
	default:
		return "unknown"
	}
}

// Frame is a fully assembled, decompressed IPv6 datagram ready for
// delivery to registered consumers.
type Frame struct {
	Len  int
	Data []byte
}

// Role selects the node's position in the LoWPAN.
type Role uint8

const (
	RoleHost Role = iota
	RoleBorderRouter
)

func (r Role) String() string {
	if r == RoleBorderRouter {
		return "border-router"
	}
	return "host"
}
