package control

import (
	"net/netip"
	"slices"

	"github.com/hdds-team/hdds/common/go/xiter"
	"github.com/hdds-team/hdds/internal/discovery"
	"github.com/hdds-team/hdds/internal/metrics"
	"github.com/hdds-team/hdds/internal/wire"
)

// Locator pairs a participant GUID with its preferred unicast destination,
// for GraphVisitor's locator pass.
type Locator struct {
	Participant wire.GUID
	Addr        netip.AddrPort
}

// GraphVisitor walks the discovered system graph of one participant: its
// known peer nodes, topics, endpoints, and locators (spec §6 "graph
// visitors (nodes, topics, endpoints, locators)"). Each visit func
// returns false to stop early, mirroring the iter.Seq early-termination
// convention the rest of the module follows.
type GraphVisitor struct {
	pe *participantEntry
}

// Graph returns a GraphVisitor over participant's discovered state.
func (m *Manager) Graph(participant Handle) (*GraphVisitor, error) {
	pe, err := m.participant(participant)
	if err != nil {
		return nil, err
	}
	return &GraphVisitor{pe: pe}, nil
}

// VisitNodes walks every discovered remote participant, indexed in
// visitation order.
func (g *GraphVisitor) VisitNodes(visit func(index int, p discovery.ParticipantInfo) bool) {
	nodes := g.pe.p.Discovery().Participants().All()
	for i, p := range xiter.Enumerate(slices.Values(nodes)) {
		if !visit(i, p) {
			return
		}
	}
}

// VisitTopics walks every known topic name, indexed in visitation order.
func (g *GraphVisitor) VisitTopics(visit func(index int, name string) bool) {
	names := g.pe.p.Discovery().Topics().Names()
	for i, name := range xiter.Enumerate(slices.Values(names)) {
		if !visit(i, name) {
			return
		}
	}
}

// VisitEndpoints walks every discovered writer/reader endpoint across
// every topic, indexed in visitation order.
func (g *GraphVisitor) VisitEndpoints(visit func(index int, ep discovery.EndpointInfo) bool) {
	endpoints := g.pe.p.Discovery().Topics().All()
	for i, ep := range xiter.Enumerate(slices.Values(endpoints)) {
		if !visit(i, ep) {
			return
		}
	}
}

// VisitLocators walks every participant's preferred unicast destination,
// indexed in visitation order.
func (g *GraphVisitor) VisitLocators(visit func(index int, loc Locator) bool) {
	dest := g.pe.p.Discovery().Endpoints().All()
	locators := make([]Locator, 0, len(dest))
	for guid, addr := range dest {
		locators = append(locators, Locator{Participant: guid, Addr: addr})
	}
	for i, loc := range xiter.Enumerate(slices.Values(locators)) {
		if !visit(i, loc) {
			return
		}
	}
}

// Metrics returns participant's aggregated observability snapshot (spec
// §6, §8).
func (m *Manager) Metrics(participant Handle) (metrics.Snapshot, error) {
	pe, err := m.participant(participant)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return pe.p.Metrics(), nil
}
