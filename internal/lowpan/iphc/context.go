package iphc

import (
	"fmt"
	"net/netip"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"firestige.xyz/lowpan/internal/core"
)

// MaxContexts is the number of context identifier slots (4-bit id).
const MaxContexts = 16

// LinkLocalPrefix is the prefix permanently installed as context 0.
var LinkLocalPrefix = netip.MustParsePrefix("fe80::/64")

// ContextTable maps 4-bit context identifiers to /64 address prefixes
// shared between compressor and decompressor. Context 0 always exists
// and covers the link-local prefix.
type ContextTable struct {
	mu       sync.RWMutex
	prefixes [MaxContexts]netip.Prefix
	defined  [MaxContexts]bool
}

// NewContextTable creates a table with only the default context 0.
func NewContextTable() *ContextTable {
	t := &ContextTable{}
	t.prefixes[0] = LinkLocalPrefix
	t.defined[0] = true
	return t
}

// Set installs or replaces a context. Prefixes must be /64: address
// elision pastes a 64-bit interface identifier behind them.
func (t *ContextTable) Set(id uint8, prefix netip.Prefix) error {
	if id >= MaxContexts {
		return fmt.Errorf("context id %d out of range [0,%d)", id, MaxContexts)
	}
	if !prefix.Addr().Is6() || prefix.Bits() != 64 {
		return fmt.Errorf("context %d: prefix %s is not an IPv6 /64", id, prefix)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prefixes[id] = prefix.Masked()
	t.defined[id] = true
	return nil
}

// Lookup returns the prefix for a context id.
func (t *ContextTable) Lookup(id uint8) (netip.Prefix, bool) {
	if id >= MaxContexts {
		return netip.Prefix{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.defined[id] {
		return netip.Prefix{}, false
	}
	return t.prefixes[id], true
}

// find returns the lowest non-zero context id whose prefix covers addr.
// Context 0 is excluded: the link-local prefix is encoded without a
// context reference.
func (t *ContextTable) find(addr netip.Addr) (uint8, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id := 1; id < MaxContexts; id++ {
		if t.defined[id] && t.prefixes[id].Contains(addr) {
			return uint8(id), true
		}
	}
	return 0, false
}

// Snapshot returns a copy of all defined contexts for introspection.
func (t *ContextTable) Snapshot() map[uint8]netip.Prefix {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[uint8]netip.Prefix, MaxContexts)
	for id := 0; id < MaxContexts; id++ {
		if t.defined[id] {
			out[uint8(id)] = t.prefixes[id]
		}
	}
	return out
}

// contextFile is the YAML schema of a context table file.
type contextFile struct {
	Contexts []contextEntry `yaml:"contexts"`
}

type contextEntry struct {
	ID     uint8  `yaml:"id"`
	Prefix string `yaml:"prefix"`
}

// LoadContexts reads a YAML context table file and returns a table
// containing the default context 0 plus every listed entry.
func LoadContexts(path string) (*ContextTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}

	var cf contextFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}

	t := NewContextTable()
	for _, e := range cf.Contexts {
		if e.ID == 0 {
			return nil, fmt.Errorf("context id 0 is reserved for the link-local prefix")
		}
		prefix, err := netip.ParsePrefix(e.Prefix)
		if err != nil {
			return nil, fmt.Errorf("context %d: %w", e.ID, err)
		}
		if err := t.Set(e.ID, prefix); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// IIDFromLink derives the 64-bit interface identifier from an EUI-64
// link-layer address by inverting the universal/local bit.
func IIDFromLink(link core.LinkAddr) [8]byte {
	iid := [8]byte(link)
	iid[0] ^= 0x02
	return iid
}

// AddrFromLink builds the address prefix+IID for a link address.
func AddrFromLink(prefix netip.Prefix, link core.LinkAddr) netip.Addr {
	var b [16]byte
	p := prefix.Addr().As16()
	copy(b[:8], p[:8])
	iid := IIDFromLink(link)
	copy(b[8:], iid[:])
	return netip.AddrFrom16(b)
}
