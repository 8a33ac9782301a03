package transceiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/net/ipv6"

	"firestige.xyz/lowpan/internal/core"
)

// Each frame on the wire is prefixed with the sender and destination
// link addresses; nodes filter on the destination themselves, exactly
// as radios do.
const addrHeaderLen = 16

// UDPConfig configures the multicast transport.
type UDPConfig struct {
	Group     string // multicast group, e.g. "ff15::6c70"
	Port      int
	Interface string // interface name to join the group on; empty = default
	Local     core.LinkAddr
}

// UDP simulates a shared radio channel over IPv6 multicast. Every
// node joins the same group; frames carry their link addressing in a
// small prologue.
type UDP struct {
	local core.LinkAddr
	pc    net.PacketConn
	conn  *ipv6.PacketConn
	group *net.UDPAddr
}

// NewUDP opens the socket and joins the multicast group.
func NewUDP(cfg UDPConfig) (*UDP, error) {
	group := net.ParseIP(cfg.Group)
	if group == nil || !group.IsMulticast() {
		return nil, fmt.Errorf("invalid multicast group %q", cfg.Group)
	}

	pc, err := net.ListenPacket("udp6", fmt.Sprintf("[::]:%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to open transport socket: %w", err)
	}

	conn := ipv6.NewPacketConn(pc)

	var ifi *net.Interface
	if cfg.Interface != "" {
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("interface %q: %w", cfg.Interface, err)
		}
	}
	if err := conn.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to join group %s: %w", cfg.Group, err)
	}
	// Our own transmissions must not loop back as received frames.
	if err := conn.SetMulticastLoopback(false); err != nil {
		slog.Warn("cannot disable multicast loopback", "error", err)
	}

	return &UDP{
		local: cfg.Local,
		pc:    pc,
		conn:  conn,
		group: &net.UDPAddr{IP: group, Port: cfg.Port},
	}, nil
}

// Transmit puts one frame on the channel.
func (u *UDP) Transmit(dst core.LinkAddr, frame []byte) error {
	buf := make([]byte, addrHeaderLen+len(frame))
	copy(buf[:8], u.local[:])
	copy(buf[8:16], dst[:])
	copy(buf[addrHeaderLen:], frame)

	if _, err := u.conn.WriteTo(buf, nil, u.group); err != nil {
		return fmt.Errorf("transport write failed: %w", err)
	}
	return nil
}

// Run reads frames until the context is cancelled, handing each frame
// addressed to this node (or broadcast) to rx.
func (u *UDP) Run(ctx context.Context, rx Receiver) error {
	go func() {
		<-ctx.Done()
		u.pc.Close()
	}()

	buf := make([]byte, 2048)
	for {
		n, _, _, err := u.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("transport read failed: %w", err)
		}
		if n < addrHeaderLen {
			continue
		}

		var src, dst core.LinkAddr
		copy(src[:], buf[:8])
		copy(dst[:], buf[8:16])
		if src == u.local {
			continue
		}
		if dst != u.local && dst != Broadcast {
			continue
		}

		frame := make([]byte, n-addrHeaderLen)
		copy(frame, buf[addrHeaderLen:n])
		rx(src, frame)
	}
}

// Close releases the socket.
func (u *UDP) Close() error {
	return u.pc.Close()
}
