// Package reliability implements the reliability engine (spec §4.7):
// writer-side retransmit cache and HEARTBEAT emission, reader-side reorder
// buffer and ACKNACK scheduling.
package reliability

import (
	"sync"

	"github.com/hdds-team/hdds/internal/wire"
)

// Sample is one cached outbound sample, keyed by sequence number in the
// writer's retransmit cache.
type Sample struct {
	SeqNum  wire.SequenceNumber
	Payload []byte
}

// WriterCache is the writer-side retransmit cache: an ordered mapping
// from sequence number to serialized sample bytes, bounded by history QoS
// (spec §3, §4.7). Entries are trimmed once every matched RELIABLE reader
// has acknowledged past them.
//
// The retransmit cache is the hot path; guarded by a single mutex per
// writer (spec §5 "the retransmit cache is the hot path; guard with a
// per-writer mutex").
type WriterCache struct {
	mu sync.Mutex

	// entries holds contiguous, strictly increasing sequence numbers
	// (spec §3 invariant b). first is the sequence number of entries[0].
	entries []Sample
	first   wire.SequenceNumber
	next    wire.SequenceNumber

	historyDepth int // 0 means unbounded (KEEP_ALL)

	// readerAcked holds each matched RELIABLE reader's acknowledged
	// prefix. Trimming only ever discards entries below the minimum of
	// these values.
	readerAcked map[wire.GUID]wire.SequenceNumber
}

// NewWriterCache constructs an empty cache. historyDepth bounds KEEP_LAST
// history; 0 means KEEP_ALL (spec §5 backpressure: "bounded by history
// QoS").
func NewWriterCache(historyDepth int) *WriterCache {
	return &WriterCache{
		next:         1,
		first:        1,
		historyDepth: historyDepth,
		readerAcked:  make(map[wire.GUID]wire.SequenceNumber),
	}
}

// Push allocates the next sequence number for payload, stores it, and
// returns the assigned Sample.
func (c *WriterCache) Push(payload []byte) Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Sample{SeqNum: c.next, Payload: payload}
	c.entries = append(c.entries, s)
	c.next++

	if c.historyDepth > 0 && len(c.entries) > c.historyDepth {
		drop := len(c.entries) - c.historyDepth
		c.entries = c.entries[drop:]
		c.first += wire.SequenceNumber(drop)
	}

	return s
}

// PushAt stores payload at an explicit, caller-chosen sequence number
// instead of allocating from the counter. SEDP endpoint announcements
// (runtime.Participant.AnnounceEndpoint) do not use it; they call Push.
func (c *WriterCache) PushAt(seq wire.SequenceNumber, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) == 0 {
		c.first = seq
		c.next = seq + 1
		c.entries = append(c.entries, Sample{SeqNum: seq, Payload: payload})
		return
	}

	idx := int(seq - c.first)
	switch {
	case idx < 0:
		return // older than our retained window; ignore
	case idx < len(c.entries):
		c.entries[idx] = Sample{SeqNum: seq, Payload: payload}
	case idx == len(c.entries):
		c.entries = append(c.entries, Sample{SeqNum: seq, Payload: payload})
		if seq >= c.next {
			c.next = seq + 1
		}
	default:
		// Gap beyond the contiguous window: pad with empty placeholders
		// so the cache's sequence space stays contiguous (spec §3
		// invariant b). A real write will overwrite the placeholder when
		// it eventually arrives via PushAt at that index.
		for len(c.entries) < idx {
			c.entries = append(c.entries, Sample{SeqNum: c.first + wire.SequenceNumber(len(c.entries))})
		}
		c.entries = append(c.entries, Sample{SeqNum: seq, Payload: payload})
		c.next = seq + 1
	}
}

// Range returns [first, last] currently held, or (0, 0, false) if empty.
func (c *WriterCache) Range() (first, last wire.SequenceNumber, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return 0, 0, false
	}
	return c.first, c.next - 1, true
}

// Get returns the cached sample for seq, if still retained.
func (c *WriterCache) Get(seq wire.SequenceNumber) (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := int(seq - c.first)
	if idx < 0 || idx >= len(c.entries) {
		return Sample{}, false
	}
	return c.entries[idx], true
}

// GetRange returns every cached sample with SeqNum in [from, to], skipping
// any that have already been trimmed.
func (c *WriterCache) GetRange(from, to wire.SequenceNumber) []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Sample
	for seq := from; seq <= to; seq++ {
		idx := int(seq - c.first)
		if idx < 0 || idx >= len(c.entries) {
			continue
		}
		out = append(out, c.entries[idx])
	}
	return out
}

// AckPositive records reader's acknowledged prefix (every sequence <= seq
// received) and trims the cache up to the minimum such point across all
// matched readers (spec §4.7 "On pure positive ACK, trim the retransmit
// cache up to the acknowledged prefix (for all matched readers - the
// minimum-acked point)").
func (c *WriterCache) AckPositive(reader wire.GUID, seq wire.SequenceNumber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readerAcked[reader] = seq
	c.trimLocked()
}

// RemoveReader drops reader's acknowledgment tracking (on unmatch/lease
// expiry), re-evaluating the trim point against the remaining readers.
func (c *WriterCache) RemoveReader(reader wire.GUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.readerAcked, reader)
	c.trimLocked()
}

func (c *WriterCache) trimLocked() {
	if len(c.readerAcked) == 0 {
		return
	}

	min := wire.SequenceNumber(-1)
	for _, acked := range c.readerAcked {
		if min == -1 || acked < min {
			min = acked
		}
	}
	if min < c.first {
		return
	}

	drop := int(min - c.first + 1)
	if drop <= 0 {
		return
	}
	if drop > len(c.entries) {
		drop = len(c.entries)
	}
	c.entries = c.entries[drop:]
	c.first += wire.SequenceNumber(drop)
}
