// Package pool implements the RX buffer pool: a fixed-capacity array of
// MTU-sized buffers shared between a single listener (producer) and a
// single router (consumer) per socket, acquired and released by index
// (spec §4.2).
package pool

import (
	"sync/atomic"

	"github.com/c2h5oh/datasize"
)

// DefaultCapacity is the default number of pool slots (spec §4.2).
const DefaultCapacity = 512

// DefaultMTU is the default size of each pool slot.
const DefaultMTU = 65507 * datasize.B

// Pool is a fixed-capacity array of MTU-sized buffers. acquire/release are
// index-based; the pool never grows. Exhaustion is a normal operating
// condition, counted rather than treated as an error (spec §4.2).
//
// Safe for exactly one concurrent acquirer and one concurrent releaser
// plus any number of readers of an already-acquired slot's bytes — it
// does not serialize access to buffer contents, only to occupancy.
type Pool struct {
	buffers [][]byte
	// occupied is one atomic word per slot: 0 free, 1 occupied. A single
	// word-per-slot scheme trades memory for a branch-free CAS, matching
	// spec §4.2's "bitmap of occupancy plus a hint index" alternative in
	// spirit, sized for correctness first.
	occupied []atomic.Uint32
	hint     atomic.Uint64

	dropped atomic.Uint64
}

// New allocates a pool of capacity slots, each mtu bytes.
func New(capacity int, mtu int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if mtu <= 0 {
		mtu = int(DefaultMTU.Bytes())
	}

	p := &Pool{
		buffers:  make([][]byte, capacity),
		occupied: make([]atomic.Uint32, capacity),
	}
	for i := range p.buffers {
		p.buffers[i] = make([]byte, mtu)
	}
	return p
}

// Capacity returns the number of slots in the pool.
func (p *Pool) Capacity() int {
	return len(p.buffers)
}

// Acquire returns a free slot index, or (0, false) if the pool is
// exhausted. On exhaustion the drop counter is NOT incremented here —
// callers decide whether exhaustion constitutes a drop (spec §4.4 step 4
// increments its own drop counter on acquire failure).
func (p *Pool) Acquire() (int, bool) {
	n := len(p.occupied)
	start := int(p.hint.Load()) % n

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if p.occupied[idx].CompareAndSwap(0, 1) {
			p.hint.Store(uint64(idx + 1))
			return idx, true
		}
	}
	return 0, false
}

// Release marks idx free again. Releasing an already-free index is a
// no-op, matching the pool-conservation property (spec §8): double-release
// never over-counts free slots.
func (p *Pool) Release(idx int) {
	if idx < 0 || idx >= len(p.occupied) {
		return
	}
	p.occupied[idx].Store(0)
}

// Buffer returns the byte slice backing idx. The caller must hold
// ownership of idx (between a successful Acquire and its matching
// Release) to use the returned slice safely.
func (p *Pool) Buffer(idx int) []byte {
	return p.buffers[idx]
}

// InFlight returns the number of currently-occupied slots. Intended for
// metrics and tests, not the hot path.
func (p *Pool) InFlight() int {
	n := 0
	for i := range p.occupied {
		if p.occupied[i].Load() != 0 {
			n++
		}
	}
	return n
}

// IncDropped increments the exhaustion drop counter. The transport
// listener calls it each time Acquire finds no free buffer.
func (p *Pool) IncDropped() {
	p.dropped.Add(1)
}

// Dropped returns the cumulative count of drops attributed to this pool.
func (p *Pool) Dropped() uint64 {
	return p.dropped.Load()
}
