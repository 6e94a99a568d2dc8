// Package shm implements the same-host, zero-copy ring transport (spec
// §4.9): one mmap'd ring segment per (domain_id, topic_name), written by
// colocated writers and read by colocated readers without a UDP hop.
package shm

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Policy selects how eagerly a participant prefers the SHM transport over
// UDP for same-host peers (spec §4.9).
type Policy int

const (
	// PolicyPrefer uses SHM when a same-host peer is detected, falling
	// back to UDP otherwise, and keeps dual-writing to UDP regardless
	// (spec §4.9: "dual-write with UDP").
	PolicyPrefer Policy = iota
	// PolicyRequire refuses to match a same-host peer at all unless SHM
	// is available.
	PolicyRequire
	// PolicyDisable never uses SHM, even for same-host peers.
	PolicyDisable
)

// ParsePolicy parses one of "prefer", "require", "disable" (spec §6
// config field).
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "prefer":
		return PolicyPrefer, nil
	case "require":
		return PolicyRequire, nil
	case "disable":
		return PolicyDisable, nil
	default:
		return PolicyPrefer, fmt.Errorf("unknown shm policy %q", s)
	}
}

// DefaultRingCapacity is the default number of frame slots per ring (spec
// §4.9).
const DefaultRingCapacity = 1024

// maxFrameSize bounds a single ring slot; larger samples must go through
// the fragment package and UDP instead (spec §4.9: SHM carries whole,
// unfragmented samples only).
const maxFrameSize = 64 * 1024

// frameHeaderSize is the per-slot control word layout: 4 bytes sequence +
// 4 bytes length, followed by up to maxFrameSize bytes of payload.
const frameHeaderSize = 8

// SegmentName derives the ring's filename from (domainID, topic), per
// spec §4.9: "keyed by (domain_id, hash(topic_name))".
func SegmentName(domainID uint32, topic string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(topic))
	return fmt.Sprintf("hdds-%d-%016x.ring", domainID, h.Sum64())
}

// Ring is one mmap'd, single-writer/multi-reader ring segment. Writers
// push with overwrite-on-full; readers pop non-blockingly and simply
// observe "no new frame yet" once they catch up to the writer (spec
// §4.9: "lock-free push with overwrite-oldest-on-full, non-blocking
// try_pop").
type Ring struct {
	file     *os.File
	data     []byte
	capacity uint32

	// head is the next slot index the writer will claim. Stored in the
	// mmap'd region itself (first 8 bytes) so every process mapping the
	// segment observes the same value.
	head *uint64
}

func ringFileSize(capacity uint32) int64 {
	return 8 + int64(capacity)*int64(frameHeaderSize+maxFrameSize)
}

// Create opens (or truncates and reinitializes) a ring segment at
// dir/SegmentName(domainID, topic) with the given capacity (spec §4.9:
// "stale-segment cleanup on writer create").
func Create(dir string, domainID uint32, topic string, capacity uint32) (*Ring, error) {
	if capacity == 0 {
		capacity = DefaultRingCapacity
	}

	path := filepath.Join(dir, SegmentName(domainID, topic))
	_ = os.Remove(path) // drop any stale segment from a prior crashed writer

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create shm segment: %w", err)
	}

	size := ringFileSize(capacity)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("size shm segment: %w", err)
	}

	return mapRing(f, capacity)
}

// Open maps an existing ring segment for reading, created earlier by a
// colocated writer via Create.
func Open(dir string, domainID uint32, topic string, capacity uint32) (*Ring, error) {
	if capacity == 0 {
		capacity = DefaultRingCapacity
	}

	path := filepath.Join(dir, SegmentName(domainID, topic))
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open shm segment: %w", err)
	}
	return mapRing(f, capacity)
}

func mapRing(f *os.File, capacity uint32) (*Ring, error) {
	size := ringFileSize(capacity)
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap shm segment: %w", err)
	}

	return &Ring{
		file:     f,
		data:     data,
		capacity: capacity,
		head:     (*uint64)(unsafe.Pointer(&data[0])),
	}, nil
}

// Close unmaps and closes the backing file. unlink additionally removes
// the segment from disk (spec §4.9 cleanup semantics); a writer should
// unlink, a reader should not.
func (r *Ring) Close(unlink bool) error {
	path := r.file.Name()
	err := unix.Munmap(r.data)
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	if unlink {
		_ = os.Remove(path)
	}
	return err
}

func (r *Ring) slotOffset(idx uint32) int {
	return 8 + int(idx%r.capacity)*(frameHeaderSize+maxFrameSize)
}

// Push writes payload into the next slot, overwriting the oldest frame if
// the ring is full (spec §4.9: "overwrite-oldest-on-full"). Returns an
// error only if payload exceeds the maximum frame size.
func (r *Ring) Push(payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds shm maximum %d", len(payload), maxFrameSize)
	}

	seq := atomic.AddUint64(r.head, 1)
	off := r.slotOffset(uint32(seq - 1))

	binary.LittleEndian.PutUint32(r.data[off+4:off+8], uint32(len(payload)))
	copy(r.data[off+frameHeaderSize:off+frameHeaderSize+len(payload)], payload)
	// The sequence word is written last so a concurrent reader never
	// observes a length/payload pair without its matching sequence.
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&r.data[off])), uint32(seq))

	return nil
}

// Reader tracks one consumer's position in a Ring (spec §4.9: multiple
// independent readers may trail the writer at different rates).
type Reader struct {
	ring *Ring
	next uint64
}

// NewReader constructs a Reader starting from the ring's current head, so
// it only observes frames pushed after it attaches (matching UDP's lack
// of retroactive delivery; TransientLocal replay uses the reliability
// engine's retransmit cache instead, not the SHM ring).
func NewReader(ring *Ring) *Reader {
	return &Reader{ring: ring, next: atomic.LoadUint64(ring.head)}
}

// TryPop returns the next frame if one is available, without blocking
// (spec §4.9: "non-blocking try_pop"). A reader that fell more than
// capacity frames behind first fast-forwards to the oldest frame still
// retained and returns it. ok is false if the writer has not pushed a new
// frame since the last call, or if the slot no longer holds the expected
// frame (the reader then resynchronizes to the writer's head).
func (r *Reader) TryPop() (payload []byte, ok bool) {
	head := atomic.LoadUint64(r.ring.head)
	if r.next >= head {
		return nil, false
	}

	if head-r.next > uint64(r.ring.capacity) {
		r.next = head - uint64(r.ring.capacity)
	}

	off := r.ring.slotOffset(uint32(r.next))
	seq := atomic.LoadUint32((*uint32)(unsafe.Pointer(&r.ring.data[off])))
	if uint64(seq) != r.next+1 {
		// The writer has already wrapped around and overwritten this
		// slot; resynchronize to the writer's current head.
		r.next = head
		return nil, false
	}

	length := binary.LittleEndian.Uint32(r.ring.data[off+4 : off+8])
	out := make([]byte, length)
	copy(out, r.ring.data[off+frameHeaderSize:off+frameHeaderSize+int(length)])

	r.next++
	return out, true
}
