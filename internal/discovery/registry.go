package discovery

import (
	"net/netip"
	"sync"

	"github.com/hdds-team/hdds/internal/wire"
	"github.com/hdds-team/hdds/common/go/xnetip"
)

// topicEndpoints holds the writers and readers registered for one topic
// name, keyed by endpoint GUID so repeated SEDP updates overwrite in
// place (spec §3 TopicRegistry).
type topicEndpoints struct {
	writers map[wire.GUID]EndpointInfo
	readers map[wire.GUID]EndpointInfo
}

// TopicRegistry maps topic names to their writer/reader sets and answers
// "compatible readers for writer X" / "compatible writers for reader Y"
// (spec §3, §4.6).
//
// Guarded by a single RWMutex: inserts/removes are short, readers are
// preferred, matching the yanet2 RIB/Cache convention of RWMutex-protected
// maps with short write sections (spec §5 "Ownership").
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]*topicEndpoints
}

// NewTopicRegistry constructs an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]*topicEndpoints)}
}

// Upsert inserts or updates an endpoint in its topic's bucket; it returns
// nothing. Matching itself (endpoint comparison against peer endpoints in
// other topics is never needed; comparisons are topic-scoped) happens
// outside the lock via CompatibleReaders/CompatibleWriters.
func (r *TopicRegistry) Upsert(ep EndpointInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.topics[ep.TopicName]
	if !ok {
		bucket = &topicEndpoints{
			writers: make(map[wire.GUID]EndpointInfo),
			readers: make(map[wire.GUID]EndpointInfo),
		}
		r.topics[ep.TopicName] = bucket
	}

	switch ep.Kind {
	case EndpointWriter:
		bucket.writers[ep.EndpointGUID] = ep
	case EndpointReader:
		bucket.readers[ep.EndpointGUID] = ep
	}
}

// Remove deletes every endpoint whose participant prefix matches prefix,
// across all topics (spec §4.6 lease tracker: "(b) removes all endpoints
// whose prefix matches").
func (r *TopicRegistry) Remove(prefix wire.GUIDPrefix) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, bucket := range r.topics {
		for guid := range bucket.writers {
			if guid.Prefix == prefix {
				delete(bucket.writers, guid)
			}
		}
		for guid := range bucket.readers {
			if guid.Prefix == prefix {
				delete(bucket.readers, guid)
			}
		}
	}
}

// RemoveEndpoint deletes a single endpoint by GUID, regardless of kind.
func (r *TopicRegistry) RemoveEndpoint(topic string, guid wire.GUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.topics[topic]
	if !ok {
		return
	}
	delete(bucket.writers, guid)
	delete(bucket.readers, guid)
}

// Lookup returns the full registered EndpointInfo for guid, regardless of
// topic or kind. Used to recover a writer's topic/type/QoS from its GUID
// alone, e.g. before calling CompatibleReaders on an incoming DATA
// submessage that carries only the writer's entity id.
func (r *TopicRegistry) Lookup(guid wire.GUID) (EndpointInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, bucket := range r.topics {
		if ep, ok := bucket.writers[guid]; ok {
			return ep, true
		}
		if ep, ok := bucket.readers[guid]; ok {
			return ep, true
		}
	}
	return EndpointInfo{}, false
}

// CompatibleReaders returns every reader on writer's topic whose QoS and
// type are compatible with writer (spec §4.6 "Endpoint matching").
func (r *TopicRegistry) CompatibleReaders(writer EndpointInfo) []EndpointInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, ok := r.topics[writer.TopicName]
	if !ok {
		return nil
	}

	var out []EndpointInfo
	for _, reader := range bucket.readers {
		if matches(writer, reader) {
			out = append(out, reader)
		}
	}
	return out
}

// CompatibleWriters returns every writer on reader's topic compatible
// with reader.
func (r *TopicRegistry) CompatibleWriters(reader EndpointInfo) []EndpointInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, ok := r.topics[reader.TopicName]
	if !ok {
		return nil
	}

	var out []EndpointInfo
	for _, writer := range bucket.writers {
		if matches(writer, reader) {
			out = append(out, writer)
		}
	}
	return out
}

// All returns a snapshot of every endpoint across every topic, for the
// control-plane graph visitor (spec §6 "graph visitors: topics,
// endpoints").
func (r *TopicRegistry) All() []EndpointInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []EndpointInfo
	for _, bucket := range r.topics {
		for _, w := range bucket.writers {
			out = append(out, w)
		}
		for _, rd := range bucket.readers {
			out = append(out, rd)
		}
	}
	return out
}

// Names returns every known topic name, for the control-plane graph
// visitor.
func (r *TopicRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.topics))
	for name := range r.topics {
		out = append(out, name)
	}
	return out
}

func matches(writer, reader EndpointInfo) bool {
	if writer.TopicName != reader.TopicName {
		return false
	}
	if !typeCompatible(writer, reader) {
		return false
	}
	return qosCompatible(writer.QoS, reader.QoS)
}

// EndpointRegistry maps a participant GUID to its preferred unicast
// destination address (spec §3, §4.6). Populated on SPDP; prefers usable
// (non-loopback, non-unspecified, non-Docker-bridge) addresses by private
// range via xnetip.PreferLocator, and falls back to the first valid
// locator, loopback included, when none is usable (see Register).
type EndpointRegistry struct {
	mu   sync.RWMutex
	dest map[wire.GUID]netip.AddrPort
}

// NewEndpointRegistry constructs an empty registry.
func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{dest: make(map[wire.GUID]netip.AddrPort)}
}

// Register chooses the best of the given candidate locators (falling back
// to the metatraffic port when no user-data port was announced, per spec
// §3) and stores it for participant.
//
// A usable (non-loopback, non-unspecified, non-Docker-bridge) locator is
// always preferred when one was announced. But spec §8 scenario 1 runs
// two participants on one host with nothing but loopback locators
// announced, and still expects the registry to resolve a destination for
// each: when no candidate is usable, the first candidate offered is
// registered as a last-resort fallback rather than leaving the
// participant unreachable.
func Register(r *EndpointRegistry, participant wire.GUID, defaultUnicast, metatrafficUnicast []netip.AddrPort) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best netip.Addr
	var bestPort uint16

	consider := func(candidates []netip.AddrPort) {
		for _, c := range candidates {
			picked := xnetip.PreferLocator(best, c.Addr())
			if picked != best {
				best = picked
				bestPort = c.Port()
			}
		}
	}

	consider(defaultUnicast)
	if !best.IsValid() {
		consider(metatrafficUnicast)
	}

	if !best.IsValid() {
		if fallback, ok := firstValidLocator(defaultUnicast); ok {
			best, bestPort = fallback.Addr(), fallback.Port()
		} else if fallback, ok := firstValidLocator(metatrafficUnicast); ok {
			best, bestPort = fallback.Addr(), fallback.Port()
		}
	}

	if best.IsValid() {
		r.dest[participant] = netip.AddrPortFrom(best, bestPort)
	}
}

func firstValidLocator(candidates []netip.AddrPort) (netip.AddrPort, bool) {
	for _, c := range candidates {
		if c.Addr().IsValid() {
			return c, true
		}
	}
	return netip.AddrPort{}, false
}

// Lookup returns the preferred unicast destination for participant, if
// known.
func (r *EndpointRegistry) Lookup(participant wire.GUID) (netip.AddrPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.dest[participant]
	return addr, ok
}

// Remove deletes participant's registered destination.
func (r *EndpointRegistry) Remove(participant wire.GUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dest, participant)
}

// All returns a snapshot of every participant's preferred locator, for
// the control-plane graph visitor (spec §6 "graph visitors: locators").
func (r *EndpointRegistry) All() map[wire.GUID]netip.AddrPort {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[wire.GUID]netip.AddrPort, len(r.dest))
	for k, v := range r.dest {
		out[k] = v
	}
	return out
}
