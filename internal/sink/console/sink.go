// Package console implements a datagram consumer that logs every
// delivery. It is the default sink wired up by the daemon so a node
// is observable out of the box.
package console

import (
	"log/slog"

	"firestige.xyz/lowpan/internal/core"
	"firestige.xyz/lowpan/internal/lowpan/iphc"
)

const Name = "console"

const defaultDepth = 16

// Sink drains its inbox and logs one line per delivered datagram.
type Sink struct {
	inbox chan core.Frame
	done  chan struct{}
}

func NewSink(depth int) *Sink {
	if depth <= 0 {
		depth = defaultDepth
	}
	return &Sink{
		inbox: make(chan core.Frame, depth),
		done:  make(chan struct{}),
	}
}

// Inbox is the channel to hand to the consumer registry.
func (s *Sink) Inbox() chan core.Frame { return s.inbox }

// Run drains the inbox until Close. Call it on its own goroutine.
func (s *Sink) Run() {
	for {
		select {
		case f := <-s.inbox:
			s.print(f)
		case <-s.done:
			return
		}
	}
}

func (s *Sink) print(f core.Frame) {
	hdr, err := iphc.ParseHeader(f.Data[:f.Len])
	if err != nil {
		slog.Warn("delivered datagram has unreadable header", "len", f.Len, "err", err)
		return
	}
	slog.Info("datagram delivered",
		"src", hdr.Src.String(),
		"dst", hdr.Dst.String(),
		"next_header", hdr.NextHeader,
		"hop_limit", hdr.HopLimit,
		"len", f.Len)
}

func (s *Sink) Close() {
	close(s.done)
}
