// Package metrics aggregates the participant's counters into one
// snapshot, exposed over the control-plane channel (spec §6, §8).
package metrics

import (
	"github.com/hdds-team/hdds/internal/discovery"
	"github.com/hdds-team/hdds/internal/transport"
)

// Snapshot is the full set of observable counters for one participant.
type Snapshot struct {
	Discovery discovery.Metrics
	Listener  transport.Counters

	// PoolDropped counts RX buffer pool exhaustion events (internal/pool).
	PoolDropped uint64

	// FragmentsPending counts in-progress reassemblies (internal/fragment).
	FragmentsPending int

	// RetransmitsSent counts samples the reliability engine resent in
	// response to a NACK.
	RetransmitsSent uint64

	// AckNacksSent/HeartbeatsSent count reliability-engine traffic.
	AckNacksSent   uint64
	HeartbeatsSent uint64
}

// Collector is implemented by anything that can report its own counters
// into a Snapshot.
type Collector interface {
	Collect(*Snapshot)
}
