package iphc

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"
)

func TestContextTableDefaults(t *testing.T) {
	tab := NewContextTable()

	p, ok := tab.Lookup(0)
	if !ok || p != LinkLocalPrefix {
		t.Fatalf("context 0 = %v,%v, want %v", p, ok, LinkLocalPrefix)
	}
	if _, ok := tab.Lookup(1); ok {
		t.Error("context 1 defined on a fresh table")
	}
	if _, ok := tab.Lookup(16); ok {
		t.Error("out-of-range id reported as defined")
	}
}

func TestContextTableSet(t *testing.T) {
	tab := NewContextTable()

	if err := tab.Set(16, netip.MustParsePrefix("2001:db8::/64")); err == nil {
		t.Error("Set accepted id 16")
	}
	if err := tab.Set(1, netip.MustParsePrefix("2001:db8::/48")); err == nil {
		t.Error("Set accepted a /48 prefix")
	}
	if err := tab.Set(1, netip.MustParsePrefix("10.0.0.0/8")); err == nil {
		t.Error("Set accepted an IPv4 prefix")
	}

	// Non-masked input is stored masked.
	if err := tab.Set(2, netip.MustParsePrefix("2001:db8::42/64")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	p, _ := tab.Lookup(2)
	if p != netip.MustParsePrefix("2001:db8::/64") {
		t.Errorf("stored prefix = %v, want masked /64", p)
	}

	// Replacement is in place.
	tab.Set(2, netip.MustParsePrefix("2001:db8:0:2::/64"))
	p, _ = tab.Lookup(2)
	if p != netip.MustParsePrefix("2001:db8:0:2::/64") {
		t.Errorf("replaced prefix = %v", p)
	}
}

func TestContextTableSnapshot(t *testing.T) {
	tab := NewContextTable()
	tab.Set(7, netip.MustParsePrefix("2001:db8:0:7::/64"))

	snap := tab.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(snap))
	}
	if snap[0] != LinkLocalPrefix {
		t.Errorf("snapshot context 0 = %v", snap[0])
	}
	if snap[7] != netip.MustParsePrefix("2001:db8:0:7::/64") {
		t.Errorf("snapshot context 7 = %v", snap[7])
	}
}

func TestLoadContexts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contexts.yml")

	content := `
contexts:
  - id: 1
    prefix: "2001:db8:0:1::/64"
  - id: 4
    prefix: "fd00:cafe::/64"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tab, err := LoadContexts(path)
	if err != nil {
		t.Fatalf("LoadContexts: %v", err)
	}
	if p, ok := tab.Lookup(1); !ok || p != netip.MustParsePrefix("2001:db8:0:1::/64") {
		t.Errorf("context 1 = %v,%v", p, ok)
	}
	if p, ok := tab.Lookup(4); !ok || p != netip.MustParsePrefix("fd00:cafe::/64") {
		t.Errorf("context 4 = %v,%v", p, ok)
	}
}

func TestLoadContextsRejectsReservedID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contexts.yml")
	content := `
contexts:
  - id: 0
    prefix: "2001:db8::/64"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadContexts(path); err == nil {
		t.Error("LoadContexts accepted context id 0")
	}
}

func TestIIDFromLink(t *testing.T) {
	link := [8]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	iid := IIDFromLink(link)
	want := [8]byte{0x02, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
	if iid != want {
		t.Errorf("IID = %x, want %x", iid, want)
	}

	addr := AddrFromLink(LinkLocalPrefix, link)
	if addr != netip.MustParseAddr("fe80::211:2233:4455:6677") {
		t.Errorf("AddrFromLink = %v", addr)
	}
}
