package transceiver

import (
	"sync"

	"firestige.xyz/lowpan/internal/core"
)

// Air is an in-memory shared medium. Nodes attached to the same Air
// exchange frames synchronously; frames to unknown addresses vanish,
// as they would on a radio.
type Air struct {
	mu    sync.Mutex
	nodes map[core.LinkAddr]Receiver
}

// NewAir creates an empty medium.
func NewAir() *Air {
	return &Air{nodes: make(map[core.LinkAddr]Receiver)}
}

// Attach registers a node on the medium and returns its transceiver.
func (a *Air) Attach(addr core.LinkAddr, rx Receiver) *Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes[addr] = rx
	return &Node{air: a, addr: addr}
}

// Detach removes a node from the medium.
func (a *Air) Detach(addr core.LinkAddr) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.nodes, addr)
}

// Node is one station on an Air medium.
type Node struct {
	air  *Air
	addr core.LinkAddr
}

// Transmit delivers the frame to the addressed node, or to every other
// node for the broadcast address. The frame is copied per receiver:
// the caller may reuse its buffer immediately.
func (n *Node) Transmit(dst core.LinkAddr, frame []byte) error {
	n.air.mu.Lock()
	var targets []Receiver
	if dst == Broadcast {
		for addr, rx := range n.air.nodes {
			if addr != n.addr {
				targets = append(targets, rx)
			}
		}
	} else if rx, ok := n.air.nodes[dst]; ok {
		targets = append(targets, rx)
	}
	n.air.mu.Unlock()

	for _, rx := range targets {
		buf := make([]byte, len(frame))
		copy(buf, frame)
		rx(n.addr, buf)
	}
	return nil
}
