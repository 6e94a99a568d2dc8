// Package fragment implements writer-side splitting and reader-side
// reassembly of samples too large for one UDP datagram (spec §4.3, §4.8).
package fragment

import (
	"sync"
	"time"

	"github.com/hdds-team/hdds/common/go/bitset"
	"github.com/hdds-team/hdds/internal/wire"
)

// DefaultReassemblyTimeout bounds how long a partial sample is retained
// before being abandoned (spec §4.8, §9: "default 10s").
const DefaultReassemblyTimeout = 10 * time.Second

// Fragment is one outbound piece of a split sample, ready to be wrapped
// in a DATA_FRAG submessage by the writer-side send path.
type Fragment struct {
	Meta    wire.FragmentMeta
	Payload []byte
}

// Split divides payload into fragments of at most fragmentSize bytes each
// (spec §4.8: "fragment_size-based, MTU-budget-aware split"). A payload
// that already fits in one fragment still yields a single Fragment, so
// callers can treat fragmented and unfragmented sends uniformly upstream
// of this package if they choose to.
func Split(payload []byte, fragmentSize int) []Fragment {
	if fragmentSize <= 0 {
		fragmentSize = len(payload)
	}
	if fragmentSize <= 0 {
		return nil
	}

	total := (len(payload) + fragmentSize - 1) / fragmentSize
	if total == 0 {
		total = 1
	}

	out := make([]Fragment, 0, total)
	for i := 0; i < total; i++ {
		start := i * fragmentSize
		end := start + fragmentSize
		if end > len(payload) {
			end = len(payload)
		}

		out = append(out, Fragment{
			Meta: wire.FragmentMeta{
				StartingFragmentNumber: uint32(i + 1), // RTPS fragment numbers are 1-based
				FragmentsInSubmessage:  1,
				FragmentSize:           uint16(fragmentSize),
				SampleSize:             uint32(len(payload)),
			},
			Payload: payload[start:end],
		})
	}
	return out
}

// reassembly tracks one (writer, sequence) sample's in-progress
// reassembly.
type reassembly struct {
	sampleSize   uint32
	fragmentSize uint16
	received     bitset.TinyBitset
	data         []byte
	lastActivity time.Time
	nackFragSent bool
}

func (r *reassembly) totalFragments() uint32 {
	if r.fragmentSize == 0 {
		return 0
	}
	return (r.sampleSize + uint32(r.fragmentSize) - 1) / uint32(r.fragmentSize)
}

func (r *reassembly) complete() bool {
	total := r.totalFragments()
	return total > 0 && r.received.Count() >= uint(total)
}

// key identifies one in-progress reassembly.
type key struct {
	writer wire.GUID
	seq    wire.SequenceNumber
}

// Reassembler holds every in-progress reassembly for a reader entity
// (spec §4.8). A background sweep (Reap) evicts samples that have been
// idle past the configured timeout.
type Reassembler struct {
	mu      sync.Mutex
	entries map[key]*reassembly
	timeout time.Duration
}

// NewReassembler constructs a Reassembler. timeout <= 0 uses
// DefaultReassemblyTimeout.
func NewReassembler(timeout time.Duration) *Reassembler {
	if timeout <= 0 {
		timeout = DefaultReassemblyTimeout
	}
	return &Reassembler{entries: make(map[key]*reassembly), timeout: timeout}
}

// Insert records one received fragment. It returns the fully reassembled
// payload and true once every fragment of the sample has arrived;
// otherwise it returns (nil, false).
func (r *Reassembler) Insert(writer wire.GUID, hdr wire.DataFragHeader, fragmentPayload []byte, now time.Time) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{writer: writer, seq: hdr.WriterSeqNum}
	re, ok := r.entries[k]
	if !ok {
		re = &reassembly{
			sampleSize:   hdr.Fragment.SampleSize,
			fragmentSize: hdr.Fragment.FragmentSize,
			data:         make([]byte, hdr.Fragment.SampleSize),
		}
		r.entries[k] = re
	}
	re.lastActivity = now

	start := hdr.Fragment.StartingFragmentNumber
	for i := uint32(0); i < uint32(hdr.Fragment.FragmentsInSubmessage); i++ {
		fragNum := start + i
		offset := uint32(hdr.Fragment.FragmentSize) * (fragNum - 1)
		if offset >= uint32(len(re.data)) {
			continue
		}
		end := offset + uint32(hdr.Fragment.FragmentSize)
		if end > uint32(len(re.data)) {
			end = uint32(len(re.data))
		}
		n := copy(re.data[offset:end], fragmentPayload)
		_ = n
		re.received.Insert(fragNum - 1)
	}

	if !re.complete() {
		return nil, false
	}

	delete(r.entries, k)
	return re.data, true
}

// Missing returns the 1-based fragment numbers still outstanding for
// (writer, seq), for building a NACK_FRAG (spec §4.8).
func (r *Reassembler) Missing(writer wire.GUID, seq wire.SequenceNumber) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	re, ok := r.entries[key{writer: writer, seq: seq}]
	if !ok {
		return nil
	}

	total := re.totalFragments()
	var missing []uint32
	for i := uint32(0); i < total; i++ {
		if !re.received.Test(i) {
			missing = append(missing, i+1)
		}
	}
	return missing
}

// Reap drops in-progress reassemblies idle longer than the configured
// timeout (spec §4.8, §9: bounded reassembly-buffer lifetime).
func (r *Reassembler) Reap(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for k, re := range r.entries {
		if now.Sub(re.lastActivity) > r.timeout {
			delete(r.entries, k)
			dropped++
		}
	}
	return dropped
}

// MarkNackFragSent records that a NACK_FRAG has already been sent once
// for (writer, seq), implementing spec §9's "one more NACK_FRAG, then
// accept the gap" policy: a second call returns false so the caller
// gives up rather than nacking indefinitely.
func (r *Reassembler) MarkNackFragSent(writer wire.GUID, seq wire.SequenceNumber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	re, ok := r.entries[key{writer: writer, seq: seq}]
	if !ok {
		return false
	}
	if re.nackFragSent {
		return false
	}
	re.nackFragSent = true
	return true
}

// Pending reports how many reassemblies are currently in flight, for
// metrics.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
