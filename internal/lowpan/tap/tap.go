// Package tap writes link frames and delivered datagrams to pcap files
// for offline inspection.
package tap

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// linkTypeIEEE802154NoFCS is LINKTYPE_IEEE802_15_4_NOFCS; gopacket has
// no named constant for it.
const linkTypeIEEE802154NoFCS = layers.LinkType(230)

const snapLen = 2048

// Config selects the tap outputs. Empty paths disable the
// corresponding tap.
type Config struct {
	FramesPath    string // raw link frames as seen on the radio
	DatagramsPath string // assembled IPv6 datagrams as delivered
}

// Tap mirrors traffic into pcap files. All methods are safe on a nil
// receiver, so callers can hold an optional *Tap and write
// unconditionally.
type Tap struct {
	mu        sync.Mutex
	frames    *pcapgo.Writer
	datagrams *pcapgo.Writer
	files     []*os.File
}

// Open creates the configured pcap files. With both paths empty it
// returns nil: a disabled tap.
func Open(cfg Config) (*Tap, error) {
	if cfg.FramesPath == "" && cfg.DatagramsPath == "" {
		return nil, nil
	}
	t := &Tap{}

	if cfg.FramesPath != "" {
		w, err := t.openFile(cfg.FramesPath, linkTypeIEEE802154NoFCS)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.frames = w
	}
	if cfg.DatagramsPath != "" {
		w, err := t.openFile(cfg.DatagramsPath, layers.LinkTypeRaw)
		if err != nil {
			t.Close()
			return nil, err
		}
		t.datagrams = w
	}
	return t, nil
}

func (t *Tap) openFile(path string, linkType layers.LinkType) (*pcapgo.Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file: %w", err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snapLen, linkType); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	t.files = append(t.files, f)
	return w, nil
}

// Frame records one raw link frame.
func (t *Tap) Frame(data []byte) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frames != nil {
		t.write(t.frames, data)
	}
}

// Datagram records one assembled IPv6 datagram.
func (t *Tap) Datagram(data []byte) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.datagrams != nil {
		t.write(t.datagrams, data)
	}
}

func (t *Tap) write(w *pcapgo.Writer, data []byte) {
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	// Best effort: a failed tap write never disturbs the packet path.
	_ = w.WritePacket(ci, data)
}

// Close flushes and closes the pcap files.
func (t *Tap) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, f := range t.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.files = nil
	return firstErr
}
