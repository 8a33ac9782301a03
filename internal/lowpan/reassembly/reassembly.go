// Package reassembly accumulates fragment trains into whole datagrams.
package reassembly

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"firestige.xyz/lowpan/internal/core"
	"firestige.xyz/lowpan/internal/lowpan/frag"
	"firestige.xyz/lowpan/internal/metrics"
)

// Defaults applied by New when the config leaves fields zero.
const (
	DefaultCapacity = 8
	DefaultTimeout  = 15 * time.Second
)

// Config contains configuration for the reassembly table.
type Config struct {
	Capacity int           // maximum concurrent partial datagrams
	Timeout  time.Duration // age window from entry creation
}

// key identifies one in-flight datagram: all fragments of a train share
// the sender's link address and the sender-chosen datagram tag.
type key struct {
	src core.LinkAddr
	tag uint16
}

// span is a covered byte range [start, end) in the assembly buffer.
type span struct {
	start, end int
}

// entry is the accumulator for one partial datagram.
type entry struct {
	size    int
	buf     []byte
	spans   []span // sorted by start, non-overlapping, coalesced
	created time.Time
	updated time.Time
}

// covered reports the total number of accumulated bytes.
func (e *entry) covered() int {
	n := 0
	for _, s := range e.spans {
		n += s.end - s.start
	}
	return n
}

// complete reports whether the spans cover [0, size) without gaps.
func (e *entry) complete() bool {
	return len(e.spans) == 1 && e.spans[0].start == 0 && e.spans[0].end == e.size
}

// Manager holds in-flight partial datagrams keyed by (sender, tag).
// One mutex guards the whole table; no operation blocks.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	entries map[key]*entry
}

// New creates a reassembly manager.
func New(cfg Config) *Manager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Manager{
		cfg:     cfg,
		entries: make(map[key]*entry, cfg.Capacity),
	}
}

// Process accounts one fragment. It returns the assembled datagram once
// the last gap closes, nil while fragments are still outstanding, and
// an error when the fragment was dropped. Fragments of one datagram may
// arrive in any order; an entry is created from whichever ordinal shows
// up first, since every fragment header carries the total size.
func (m *Manager) Process(src core.LinkAddr, h frag.Header, payload []byte, now time.Time) ([]byte, error) {
	if h.Size == 0 || h.Size > frag.MaxDatagramSize {
		return nil, fmt.Errorf("%w: datagram size %d", core.ErrMalformedFrame, h.Size)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty fragment", core.ErrMalformedFrame)
	}
	end := h.Offset + len(payload)
	if end > h.Size {
		return nil, fmt.Errorf("%w: fragment [%d,%d) outside datagram of %d bytes",
			core.ErrMalformedFrame, h.Offset, end, h.Size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{src: src, tag: h.Tag}
	e, ok := m.entries[k]
	if ok && e.size != h.Size {
		// A new train reusing the tag with a different size: the old
		// entry is stale. Discard it and start over with this fragment.
		delete(m.entries, k)
		metrics.ReassemblyActive.Dec()
		metrics.ReassemblyConflictsTotal.Inc()
		ok = false
	}
	if !ok {
		if len(m.entries) >= m.cfg.Capacity {
			m.evictOldest()
		}
		e = &entry{
			size:    h.Size,
			buf:     make([]byte, h.Size),
			created: now,
		}
		m.entries[k] = e
		metrics.ReassemblyActive.Inc()
	}
	e.updated = now

	if err := e.insert(h.Offset, payload); err != nil {
		metrics.ReassemblyConflictsTotal.Inc()
		return nil, err
	}

	if e.complete() {
		delete(m.entries, k)
		metrics.ReassemblyActive.Dec()
		metrics.ReassemblyCompletedTotal.Inc()
		return e.buf, nil
	}
	return nil, nil
}

// insert copies payload into the buffer and merges the covered range.
// A range that re-covers existing bytes with identical content is a
// harmless duplicate; differing content rejects the fragment.
func (e *entry) insert(start int, payload []byte) error {
	end := start + len(payload)

	for _, s := range e.spans {
		ovStart := max(start, s.start)
		ovEnd := min(end, s.end)
		if ovStart >= ovEnd {
			continue
		}
		if !bytes.Equal(e.buf[ovStart:ovEnd], payload[ovStart-start:ovEnd-start]) {
			return fmt.Errorf("%w: range [%d,%d)", core.ErrReassemblyConflict, ovStart, ovEnd)
		}
	}

	copy(e.buf[start:end], payload)

	e.spans = append(e.spans, span{start: start, end: end})
	sort.Slice(e.spans, func(i, j int) bool { return e.spans[i].start < e.spans[j].start })

	merged := e.spans[:1]
	for _, s := range e.spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	e.spans = merged
	return nil
}

// evictOldest reclaims the oldest partial entry by creation time.
// Capacity policy, not a protocol error. Caller holds m.mu.
func (m *Manager) evictOldest() {
	var oldest key
	var oldestAt time.Time
	first := true
	for k, e := range m.entries {
		if first || e.created.Before(oldestAt) {
			oldest = k
			oldestAt = e.created
			first = false
		}
	}
	if !first {
		delete(m.entries, oldest)
		metrics.ReassemblyActive.Dec()
		metrics.ReassemblyEvictedTotal.Inc()
	}
}

// Sweep expires entries that received no fragment within the age
// window, measured from entry creation. Returns the number reclaimed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for k, e := range m.entries {
		if now.Sub(e.created) > m.cfg.Timeout {
			delete(m.entries, k)
			expired++
		}
	}
	if expired > 0 {
		metrics.ReassemblyActive.Sub(float64(expired))
		metrics.ReassemblyExpiredTotal.Add(float64(expired))
	}
	return expired
}

// Len returns the number of in-flight partial datagrams.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// EntryInfo is a read-only view of one partial datagram for
// introspection and tests.
type EntryInfo struct {
	Src     core.LinkAddr
	Tag     uint16
	Size    int
	Covered int
	Created time.Time
	Updated time.Time
}

// Snapshot returns a copy of the table state.
func (m *Manager) Snapshot() []EntryInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]EntryInfo, 0, len(m.entries))
	for k, e := range m.entries {
		out = append(out, EntryInfo{
			Src:     k.src,
			Tag:     k.tag,
			Size:    e.size,
			Covered: e.covered(),
			Created: e.created,
			Updated: e.updated,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}
