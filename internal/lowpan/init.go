package lowpan

import (
	"fmt"
	"net/netip"

	"firestige.xyz/lowpan/internal/core"
)

// Init creates a stack with defaults for a node joining an existing
// LoWPAN. The thin initialization boundary mirrors the layer's
// traditional entry points; production setups build a Config instead.
func Init(tr Transceiver, localAddr core.LinkAddr, role core.Role) *Stack {
	return New(Config{
		LocalAddr:   localAddr,
		Role:        role,
		Compression: true,
	}, tr)
}

// InitAsRouter creates a border-router stack and installs the
// advertised prefix as compression context 1, so addresses under the
// advertised prefix compress from the first datagram on.
func InitAsRouter(tr Transceiver, advertisedPrefix netip.Prefix, localAddr core.LinkAddr) (*Stack, error) {
	s := Init(tr, localAddr, core.RoleBorderRouter)
	if err := s.Contexts().Set(1, advertisedPrefix); err != nil {
		return nil, fmt.Errorf("invalid advertised prefix: %w", err)
	}
	return s, nil
}
