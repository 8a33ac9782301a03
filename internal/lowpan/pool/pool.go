// Package pool holds assembled frames awaiting delivery and the
// registry of consumers they fan out to.
package pool

import (
	"sync"

	"firestige.xyz/lowpan/internal/core"
	"firestige.xyz/lowpan/internal/lowpan/frag"
	"firestige.xyz/lowpan/internal/metrics"
)

// DefaultSlots is the pool capacity used when the config leaves it zero.
const DefaultSlots = 8

// Slot owns one assembled frame between decompression and delivery.
type Slot struct {
	buf   []byte
	n     int
	index int
	inUse bool
}

// Bytes returns the frame content held by the slot.
func (s *Slot) Bytes() []byte { return s.buf[:s.n] }

// Len returns the frame length.
func (s *Slot) Len() int { return s.n }

// Pool is a fixed-capacity circular pool of frame slots. Acquire never
// blocks: when every slot is in use the caller drops the frame.
type Pool struct {
	mu    sync.Mutex
	slots []Slot
	next  int
}

// New creates a pool of n slots, each able to hold a maximum-size
// reassembled datagram.
func New(n int) *Pool {
	if n <= 0 {
		n = DefaultSlots
	}
	p := &Pool{slots: make([]Slot, n)}
	for i := range p.slots {
		p.slots[i].buf = make([]byte, frag.MaxDatagramSize)
		p.slots[i].index = i
	}
	return p
}

// Acquire claims a free slot and copies the frame into it. Scanning
// resumes where the last acquisition left off so slots rotate evenly.
func (p *Pool) Acquire(frame []byte) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < len(p.slots); i++ {
		s := &p.slots[(p.next+i)%len(p.slots)]
		if s.inUse {
			continue
		}
		if len(frame) > len(s.buf) {
			return nil, core.ErrDatagramTooLarge
		}
		s.inUse = true
		s.n = copy(s.buf, frame)
		p.next = (s.index + 1) % len(p.slots)
		return s, nil
	}
	metrics.PoolExhaustedTotal.Inc()
	return nil, core.ErrPoolExhausted
}

// Release frees a slot for reuse.
func (p *Pool) Release(s *Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.inUse = false
	s.n = 0
}

// InUse returns the number of occupied slots.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.slots {
		if p.slots[i].inUse {
			n++
		}
	}
	return n
}

// Cap returns the pool capacity.
func (p *Pool) Cap() int { return len(p.slots) }
