package reliability

import (
	"sync"

	"github.com/hdds-team/hdds/common/go/bitset"
	"github.com/hdds-team/hdds/internal/wire"
)

// ReaderState tracks, per matched writer, the next expected sequence
// number and a bitmap of out-of-order samples already received beyond it
// (spec §4.7 reader-side reorder buffer).
//
// nextExpected is always delivered in order: Insert returns every
// contiguous run starting at nextExpected that becomes deliverable,
// advancing nextExpected and shifting the bitmap down to match (spec
// §4.7 "shift the bitmap down whenever next-expected advances past a
// contiguous prefix").
type ReaderState struct {
	mu sync.Mutex

	nextExpected wire.SequenceNumber
	received     bitset.TinyBitset
	pending      map[wire.SequenceNumber][]byte

	lastHeartbeatCount uint32
}

// NewReaderState constructs a ReaderState expecting sequence 1 first,
// matching the writer-side counter's starting value.
func NewReaderState() *ReaderState {
	return &ReaderState{
		nextExpected: 1,
		pending:      make(map[wire.SequenceNumber][]byte),
	}
}

// Insert records a received sample and returns every sample now
// deliverable in order, including seq itself if it was the expected one.
func (s *ReaderState) Insert(seq wire.SequenceNumber, payload []byte) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.nextExpected {
		return nil // duplicate or already delivered
	}

	offset := uint32(seq - s.nextExpected)
	if offset >= bitset.MaxBitsetWords*64 {
		// Beyond what the gap bitmap can represent; drop rather than
		// panic (spec §9: bounded resources over unbounded reordering).
		return nil
	}

	if offset != 0 {
		if s.received.Test(offset) {
			return nil // duplicate
		}
		s.received.Insert(offset)
		s.pending[seq] = payload
		return nil
	}

	out := []Sample{{SeqNum: seq, Payload: payload}}
	s.nextExpected++

	for {
		next, ok := s.pending[s.nextExpected]
		if !ok {
			break
		}
		out = append(out, Sample{SeqNum: s.nextExpected, Payload: next})
		delete(s.pending, s.nextExpected)
		s.nextExpected++
	}

	shift := out[len(out)-1].SeqNum - seq + 1
	s.received.ShiftDown(uint32(shift))

	return out
}

// Missing returns the gap bitmap offsets (relative to nextExpected)
// currently unreceived within [nextExpected, upTo], for building an
// ACKNACK (spec §4.7).
func (s *ReaderState) Missing(upTo wire.SequenceNumber) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if upTo < s.nextExpected {
		return nil
	}

	span := uint32(upTo-s.nextExpected) + 1
	var missing []uint32
	for i := uint32(0); i < span; i++ {
		if !s.received.Test(i) {
			missing = append(missing, i)
		}
	}
	return missing
}

// NextExpected returns the current in-order watermark.
func (s *ReaderState) NextExpected() wire.SequenceNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextExpected
}

// ShouldRespond applies spec §4.7's ACKNACK rate limiting: at most one
// response per (writer, reader, heartbeat count). Returns false for a
// stale or already-answered heartbeat count.
func (s *ReaderState) ShouldRespond(heartbeatCount uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if heartbeatCount <= s.lastHeartbeatCount && s.lastHeartbeatCount != 0 {
		return false
	}
	s.lastHeartbeatCount = heartbeatCount
	return true
}
