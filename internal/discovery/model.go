// Package discovery implements the discovery FSM (spec §4.6): the
// participant database, per-topic endpoint registry, unicast locator
// registry, and the SPDP/SEDP handlers and lease tracker that keep them
// current.
package discovery

import (
	"net/netip"
	"time"

	"github.com/hdds-team/hdds/internal/wire"
)

// ReliabilityKind is the RTPS RELIABILITY QoS policy (spec §3).
type ReliabilityKind int

const (
	ReliabilityBestEffort ReliabilityKind = iota
	ReliabilityReliable
)

// DurabilityKind is the RTPS DURABILITY QoS policy, in spec §4.6's total
// order: Volatile < TransientLocal < Transient < Persistent.
type DurabilityKind int

const (
	DurabilityVolatile DurabilityKind = iota
	DurabilityTransientLocal
	DurabilityTransient
	DurabilityPersistent
)

// EndpointKind distinguishes a Writer from a Reader endpoint.
type EndpointKind int

const (
	EndpointWriter EndpointKind = iota
	EndpointReader
)

// QoS bundles the endpoint-matching-relevant QoS policies (spec §3, §4.6).
// Deadline/lifespan/liveliness/user_data are carried for completeness
// (spec §6 PID coverage) even though matching only consults reliability,
// durability, and partition.
type QoS struct {
	Reliability    ReliabilityKind
	Durability     DurabilityKind
	Partitions     []string
	DeadlineMillis int64
	LifespanMillis int64
	Liveliness     time.Duration
	UserData       []byte
}

// DefaultQoS returns the vendor-dialect defaults used when a SEDP
// parameter list omits a PID (spec §4.6: "falling back to vendor-dialect
// QoS defaults when PIDs are absent").
func DefaultQoS() QoS {
	return QoS{
		Reliability: ReliabilityBestEffort,
		Durability:  DurabilityVolatile,
	}
}

// ParticipantInfo is a discovered remote participant (spec §3).
type ParticipantInfo struct {
	GUID               wire.GUID
	MetatrafficUnicast []netip.AddrPort
	DefaultUnicast     []netip.AddrPort
	// MetatrafficMulticast/DefaultMulticast round-trip PID_METATRAFFIC_
	// MULTICAST_LOCATOR/PID_DEFAULT_MULTICAST_LOCATOR (spec §6); carried
	// for completeness but not consulted by locator selection, which
	// prefers a matched unicast destination per spec §4.6.
	MetatrafficMulticast []netip.AddrPort
	DefaultMulticast     []netip.AddrPort
	LeaseDuration        time.Duration
	LastSeen             time.Time
	IdentityToken        []byte
}

// EndpointInfo is a discovered (or locally registered) writer/reader
// (spec §3).
type EndpointInfo struct {
	ParticipantGUID  wire.GUID
	EndpointGUID     wire.GUID
	Kind             EndpointKind
	TopicName        string
	TypeName         string
	QoS              QoS
	UnicastLocators  []netip.AddrPort
	TypeHash         *wire.TypeHash
	LastSeen         time.Time
}

// typeCompatible reports whether two endpoints can be matched by type, per
// spec §4.6: "same type_name, or identical TypeObject hash, or one side
// missing TypeObject".
func typeCompatible(a, b EndpointInfo) bool {
	if a.TypeName != "" && b.TypeName != "" && a.TypeName == b.TypeName {
		return true
	}
	if a.TypeHash != nil && b.TypeHash != nil {
		return a.TypeHash.Compatible(*b.TypeHash)
	}
	return a.TypeHash == nil || b.TypeHash == nil
}

// qosCompatible reports whether a writer and reader's QoS are compatible
// (spec §4.6, §8):
//   - reliability: Reliable writer satisfies any reader; BestEffort writer
//     only satisfies a BestEffort reader.
//   - durability: writer's durability must be >= reader's required
//     durability in the Volatile < TransientLocal < Transient < Persistent
//     order.
//   - partition: the two partition name sets must intersect, or both be
//     empty (the default "" partition matches by convention).
func qosCompatible(writer, reader QoS) bool {
	if writer.Reliability == ReliabilityBestEffort && reader.Reliability == ReliabilityReliable {
		return false
	}
	if writer.Durability < reader.Durability {
		return false
	}
	return partitionsIntersect(writer.Partitions, reader.Partitions)
}

func partitionsIntersect(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	for _, pa := range a {
		for _, pb := range b {
			if partitionMatches(pa, pb) {
				return true
			}
		}
	}
	return false
}
