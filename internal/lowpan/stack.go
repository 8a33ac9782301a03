// Package lowpan wires the adaptation layer together: header
// compression, fragmentation, reassembly and delivery of assembled
// IPv6 datagrams to registered consumers.
package lowpan

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/lowpan/internal/core"
	"firestige.xyz/lowpan/internal/lowpan/dispatch"
	"firestige.xyz/lowpan/internal/lowpan/frag"
	"firestige.xyz/lowpan/internal/lowpan/iphc"
	"firestige.xyz/lowpan/internal/lowpan/pool"
	"firestige.xyz/lowpan/internal/lowpan/reassembly"
	"firestige.xyz/lowpan/internal/lowpan/tap"
	"firestige.xyz/lowpan/internal/metrics"
)

// DefaultMTU is the IEEE 802.15.4 frame payload capacity.
const DefaultMTU = 127

// DefaultSweepInterval drives the reassembly aging sweep.
const DefaultSweepInterval = time.Second

// Transceiver is the link/radio collaborator. The stack only ever asks
// it to put one frame on the air; inbound frames reach the stack via
// Receive.
type Transceiver interface {
	Transmit(dst core.LinkAddr, frame []byte) error
}

// Config contains stack configuration.
type Config struct {
	LocalAddr   core.LinkAddr
	Role        core.Role
	MTU         int  // link frame capacity in bytes
	Compression bool // send datagrams IPHC-compressed

	PoolSlots        int
	RegistryCapacity int
	Reassembly       reassembly.Config
	SweepInterval    time.Duration

	Contexts *iphc.ContextTable // nil selects a table with only context 0
	Tap      *tap.Tap           // nil disables the pcap taps
}

// Stack is one instance of the adaptation layer. All tables it owns
// are guarded by their own lock; no operation takes two of them at
// once, and none blocks.
type Stack struct {
	cfg         Config
	tr          Transceiver
	codec       *iphc.Codec
	fragmenter  *frag.Fragmenter
	reasm       *reassembly.Manager
	pool        *pool.Pool
	registry    *pool.Registry
	frameTap    *tap.Tap
	compression atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a stack. The transceiver is the only collaborator.
func New(cfg Config, tr Transceiver) *Stack {
	if cfg.MTU <= 0 {
		cfg.MTU = DefaultMTU
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Contexts == nil {
		cfg.Contexts = iphc.NewContextTable()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Stack{
		cfg:        cfg,
		tr:         tr,
		codec:      iphc.NewCodec(cfg.Contexts),
		fragmenter: frag.NewFragmenter(),
		reasm:      reassembly.New(cfg.Reassembly),
		pool:       pool.New(cfg.PoolSlots),
		registry:   pool.NewRegistry(cfg.RegistryCapacity),
		frameTap:   cfg.Tap,
		ctx:        ctx,
		cancel:     cancel,
	}
	s.compression.Store(cfg.Compression)
	return s
}

// Start launches the reassembly aging sweep.
func (s *Stack) Start() error {
	slog.Info("lowpan stack starting",
		"local_addr", s.cfg.LocalAddr.String(),
		"role", s.cfg.Role.String(),
		"mtu", s.cfg.MTU,
		"compression", s.compression.Load())

	s.wg.Add(1)
	go s.sweepLoop()
	return nil
}

// Stop stops the sweep goroutine and waits for it.
func (s *Stack) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("lowpan stack stopped")
}

func (s *Stack) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.reasm.Sweep(now); n > 0 {
				slog.Debug("reassembly entries expired", "count", n)
			}
		}
	}
}

// SetCompressionEnabled toggles IPHC on the send path.
func (s *Stack) SetCompressionEnabled(enabled bool) {
	s.compression.Store(enabled)
}

// CompressionEnabled reports whether the send path compresses headers.
func (s *Stack) CompressionEnabled() bool {
	return s.compression.Load()
}

// Contexts returns the compression context table for management.
func (s *Stack) Contexts() *iphc.ContextTable {
	return s.codec.Contexts()
}

// Register adds a consumer with its delivery inbox.
func (s *Stack) Register(id pool.ConsumerID, inbox chan<- core.Frame) error {
	return s.registry.Register(id, inbox)
}

// Unregister removes a consumer.
func (s *Stack) Unregister(id pool.ConsumerID) {
	s.registry.Unregister(id)
}

// Send encodes an IPv6 datagram, fragments it when it exceeds the link
// MTU, and hands the resulting frames to the transceiver in order.
func (s *Stack) Send(dst core.LinkAddr, datagram []byte) error {
	if len(datagram) == 0 {
		return core.ErrDatagramEmpty
	}

	var encoded []byte
	encoding := "uncompressed"
	if s.compression.Load() {
		var err error
		encoded, err = s.codec.Compress(datagram, s.cfg.LocalAddr, dst)
		if err != nil {
			return fmt.Errorf("compress failed: %w", err)
		}
		encoding = "iphc"
	} else {
		encoded = make([]byte, 1+len(datagram))
		encoded[0] = dispatch.DispatchIPv6
		copy(encoded[1:], datagram)
	}

	if len(encoded) <= s.cfg.MTU {
		if err := s.transmit(dst, encoded); err != nil {
			return err
		}
		metrics.DatagramsSentTotal.WithLabelValues(encoding).Inc()
		return nil
	}

	frames, err := s.fragmenter.Split(encoded, s.cfg.MTU)
	if err != nil {
		return fmt.Errorf("fragmentation failed: %w", err)
	}
	for _, frame := range frames {
		if err := s.transmit(dst, frame); err != nil {
			return err
		}
	}
	metrics.DatagramsSentTotal.WithLabelValues(encoding).Inc()
	slog.Debug("datagram fragmented",
		"dst", dst.String(), "size", len(encoded), "fragments", len(frames))
	return nil
}

func (s *Stack) transmit(dst core.LinkAddr, frame []byte) error {
	s.frameTap.Frame(frame)
	if err := s.tr.Transmit(dst, frame); err != nil {
		return fmt.Errorf("transmit failed: %w", err)
	}
	metrics.FramesSentTotal.Inc()
	return nil
}

// Receive is the inbound entry point, called by the transceiver glue
// for every frame that arrives from the radio. Failures are counted
// and dropped; nothing here panics or propagates.
func (s *Stack) Receive(src core.LinkAddr, frame []byte) {
	s.frameTap.Frame(frame)

	class, hdrLen := dispatch.Classify(frame)
	metrics.FramesReceivedTotal.WithLabelValues(class.String()).Inc()

	switch class {
	case core.ClassUncompressed:
		s.deliver(frame[hdrLen:])

	case core.ClassCompressed:
		s.decompressAndDeliver(src, frame)

	case core.ClassFragFirst, core.ClassFragSubsequent:
		s.receiveFragment(src, class, frame, hdrLen)

	default:
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropMalformed).Inc()
		slog.Debug("unclassifiable frame dropped", "src", src.String(), "len", len(frame))
	}
}

// receiveFragment feeds a fragment to the reassembly table and, when a
// train completes, decodes the assembled datagram. The assembled bytes
// are themselves a dispatched frame (uncompressed or IPHC), never
// another fragment.
func (s *Stack) receiveFragment(src core.LinkAddr, class core.FrameClass, frame []byte, hdrLen int) {
	h, err := frag.ParseHeader(class, frame)
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropMalformed).Inc()
		slog.Debug("bad fragment header", "src", src.String(), "error", err)
		return
	}

	datagram, err := s.reasm.Process(src, h, frame[hdrLen:], time.Now())
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropConflict).Inc()
		slog.Debug("fragment dropped", "src", src.String(), "tag", h.Tag, "error", err)
		return
	}
	if datagram == nil {
		return
	}

	class, hdrLen = dispatch.Classify(datagram)
	switch class {
	case core.ClassUncompressed:
		s.deliver(datagram[hdrLen:])
	case core.ClassCompressed:
		s.decompressAndDeliver(src, datagram)
	default:
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropMalformed).Inc()
		slog.Debug("assembled datagram has bad dispatch", "src", src.String(), "tag", h.Tag)
	}
}

func (s *Stack) decompressAndDeliver(src core.LinkAddr, frame []byte) {
	datagram, err := s.codec.Decompress(frame, src, s.cfg.LocalAddr)
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropDecode).Inc()
		slog.Debug("decompression failed", "src", src.String(), "error", err)
		return
	}
	s.deliver(datagram)
}

// deliver places an assembled datagram in a pool slot and fans it out
// to every registered consumer. Pool exhaustion drops the frame rather
// than stalling the receive path.
func (s *Stack) deliver(datagram []byte) {
	slot, err := s.pool.Acquire(datagram)
	if err != nil {
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropPoolFull).Inc()
		slog.Warn("frame dropped", "error", err, "len", len(datagram))
		return
	}
	defer s.pool.Release(slot)

	s.frameTap.Datagram(slot.Bytes())
	s.registry.DeliverAll(slot.Bytes())
	metrics.DatagramsDeliveredTotal.Inc()
}

// Snapshot is a read-only view of the stack's table state for tests
// and observability tooling.
type Snapshot struct {
	PoolInUse  int
	PoolCap    int
	Consumers  []pool.ConsumerID
	Reassembly []reassembly.EntryInfo
	Contexts   map[uint8]netip.Prefix
}

// Snapshot captures the current state of all tables.
func (s *Stack) Snapshot() Snapshot {
	return Snapshot{
		PoolInUse:  s.pool.InUse(),
		PoolCap:    s.pool.Cap(),
		Consumers:  s.registry.IDs(),
		Reassembly: s.reasm.Snapshot(),
		Contexts:   s.codec.Contexts().Snapshot(),
	}
}
