package runtime

import (
	"crypto/rand"
	"hash/fnv"
	"os"

	"github.com/hdds-team/hdds/internal/wire"
)

// NewGUIDPrefix builds a 12-byte participant GUID prefix from the
// process id, a hash of the hostname, and random bits (spec §3: "12-byte
// GUID prefix from process id/host fingerprint/random bits").
//
// Layout: 4 bytes hostname fingerprint, 4 bytes pid, 4 bytes random. This
// keeps prefixes from two participants on the same host (different pid)
// or two hosts (different fingerprint) from colliding without requiring
// any coordination.
func NewGUIDPrefix() (wire.GUIDPrefix, error) {
	var prefix wire.GUIDPrefix

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(hostname))
	fingerprint := h.Sum32()

	prefix[0] = byte(fingerprint)
	prefix[1] = byte(fingerprint >> 8)
	prefix[2] = byte(fingerprint >> 16)
	prefix[3] = byte(fingerprint >> 24)

	pid := uint32(os.Getpid())
	prefix[4] = byte(pid)
	prefix[5] = byte(pid >> 8)
	prefix[6] = byte(pid >> 16)
	prefix[7] = byte(pid >> 24)

	if _, err := rand.Read(prefix[8:12]); err != nil {
		return wire.GUIDPrefix{}, err
	}

	return prefix, nil
}

// EntityIDAllocator hands out monotonically increasing entity keys for
// user-created writers and readers within one participant (spec §3: "a
// monotonic per-participant counter").
type EntityIDAllocator struct {
	next uint32
}

// NewEntityIDAllocator constructs an allocator starting at key 0x10, past
// the participant (0x01) and SEDP (0x03, 0x04) builtin keys. The SPDP
// writer (0x100) and type-lookup (0x200, 0x201) builtin keys are higher.
func NewEntityIDAllocator() *EntityIDAllocator {
	return &EntityIDAllocator{next: 0x10}
}

// NextWriter allocates the next writer entity id.
func (a *EntityIDAllocator) NextWriter(keyed bool) wire.EntityID {
	key := a.next
	a.next++
	kind := wire.EntityKindWriterNoKey
	if keyed {
		kind = wire.EntityKindWriterWithKey
	}
	return wire.NewEntityID(key, kind)
}

// NextReader allocates the next reader entity id.
func (a *EntityIDAllocator) NextReader(keyed bool) wire.EntityID {
	key := a.next
	a.next++
	kind := wire.EntityKindReaderNoKey
	if keyed {
		kind = wire.EntityKindReaderWithKey
	}
	return wire.NewEntityID(key, kind)
}
