// Package runtime implements the participant lifecycle (spec §4.2,
// §4.10): participant-id reservation, socket binding, wiring the wire
// codec, classifier, transport listeners, router, discovery engine, and
// reliability engine into one running process, and the public
// Writer/Reader/Topic factory operations.
package runtime

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hdds-team/hdds/internal/classify"
	"github.com/hdds-team/hdds/internal/config"
	"github.com/hdds-team/hdds/internal/discovery"
	"github.com/hdds-team/hdds/internal/fragment"
	"github.com/hdds-team/hdds/internal/metrics"
	"github.com/hdds-team/hdds/internal/pool"
	"github.com/hdds-team/hdds/internal/reliability"
	"github.com/hdds-team/hdds/internal/router"
	"github.com/hdds-team/hdds/internal/transport"
	"github.com/hdds-team/hdds/internal/wire"
)

// maxParticipantProbe bounds the sequential participant-id probe (spec
// §4.10) so a misconfigured host cannot spin forever.
const maxParticipantProbe = 120

// Participant owns every running subsystem for one RTPS domain
// participant: the metatraffic and user-data listeners, the router, the
// discovery engine, and the reliability engine.
type Participant struct {
	log *zap.SugaredLogger
	cfg *config.Config

	GUIDPrefix    wire.GUIDPrefix
	DomainID      uint32
	ParticipantID int

	pool *pool.Pool

	metatrafficListener *transport.Listener
	userDataListener    *transport.Listener

	router *router.Router

	discovery   *discovery.Engine
	reliability *reliability.Engine
	lease       *discovery.LeaseTracker

	entityIDs *EntityIDAllocator

	// reassembler holds every in-progress DATA_FRAG reassembly for this
	// participant's readers (spec §4.8).
	reassembler *fragment.Reassembler

	// localAddrs are the host's non-loopback unicast addresses (spec §4.2,
	// §4.10), used to advertise reachable metatraffic/user-data locators
	// instead of the listener's wildcard bind address. Empty when
	// enumeration fails (e.g. no netlink access), in which case the
	// announcer falls back to the listener's own bound address.
	localAddrs []netip.Addr

	spdp *spdpAnnouncer

	sinkMu      sync.RWMutex
	readerSinks map[wire.GUID]func(reliability.Sample)
}

// New reserves a participant id, binds the metatraffic and user-data
// sockets, and wires every subsystem together. It does not start any
// goroutines; call Run for that.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Participant, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	prefix, err := NewGUIDPrefix()
	if err != nil {
		return nil, fmt.Errorf("generate guid prefix: %w", err)
	}

	participantID, metaConn, dataConn, err := reserveParticipant(cfg)
	if err != nil {
		return nil, fmt.Errorf("reserve participant id: %w", err)
	}

	p := &Participant{
		log:           log,
		cfg:           cfg,
		GUIDPrefix:    prefix,
		DomainID:      cfg.DomainID,
		ParticipantID: participantID,
		pool:          pool.New(pool.DefaultCapacity, int(cfg.MTU.Bytes())),
		entityIDs:     NewEntityIDAllocator(),
		reassembler:   fragment.NewReassembler(0),
		readerSinks:   make(map[wire.GUID]func(reliability.Sample)),
	}

	localGUID := wire.ParticipantGUID(prefix)
	p.reliability = reliability.NewEngine(reliability.WithLog(log))
	p.discovery = discovery.New(localGUID,
		discovery.WithLog(log),
		discovery.WithReplayRegistry(p.reliability),
		discovery.WithListener(p.reliability.OnMatch),
	)
	p.lease = discovery.NewLeaseTracker(p.discovery, cfg.LeaseDuration)

	p.router = router.New(p.pool, p.lookupReaders, p.handleControl, router.WithLog(log))

	// transport.New binds its own socket on each reserved port, so the probe
	// sockets that only reserved the ports are closed before it runs.
	metaAddr := metaConn.LocalAddr().(*net.UDPAddr)
	dataAddr := dataConn.LocalAddr().(*net.UDPAddr)
	metaConn.Close()
	dataConn.Close()

	p.metatrafficListener, err = transport.New(metaAddr, p.pool, p.router.Sink(), p.onDiscoveryPacket, transport.WithLog(log), transport.WithReusePort(cfg.ReusePort))
	if err != nil {
		return nil, fmt.Errorf("start metatraffic listener: %w", err)
	}

	p.userDataListener, err = transport.New(dataAddr, p.pool, p.router.Sink(), p.onDiscoveryPacket, transport.WithLog(log), transport.WithReusePort(cfg.ReusePort))
	if err != nil {
		p.metatrafficListener.Close()
		return nil, fmt.Errorf("start user-data listener: %w", err)
	}

	if addrs, err := discovery.LocalAddresses(cfg.Interface); err != nil {
		log.Debugw("local address enumeration failed, advertising bound address only", "error", err)
	} else {
		p.localAddrs = addrs
	}

	p.spdp = newSPDPAnnouncer(p)

	return p, nil
}

// reserveParticipant implements spec §4.10's three-tier participant-id
// reservation: explicit config value, then HDDS_PARTICIPANT_ID (already
// folded into cfg by internal/config), then a sequential probe that binds
// the metatraffic and user-data ports to find the first free id.
func reserveParticipant(cfg *config.Config) (id int, meta, data *net.UDPConn, err error) {
	if cfg.ParticipantID >= 0 {
		meta, data, err := bindParticipantPorts(cfg.DomainID, cfg.ParticipantID, cfg.ReusePort)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("bind configured participant id %d: %w", cfg.ParticipantID, err)
		}
		return cfg.ParticipantID, meta, data, nil
	}

	for candidate := 0; candidate < maxParticipantProbe; candidate++ {
		meta, data, err := bindParticipantPorts(cfg.DomainID, candidate, cfg.ReusePort)
		if err == nil {
			return candidate, meta, data, nil
		}
	}
	return 0, nil, nil, fmt.Errorf("no free participant id found in [0, %d)", maxParticipantProbe)
}

func bindParticipantPorts(domainID uint32, participantID int, reusePort bool) (meta, data *net.UDPConn, err error) {
	meta, err = transport.Listen(domainID, participantID, transport.RoleMetatraffic, reusePort)
	if err != nil {
		return nil, nil, err
	}
	data, err = transport.Listen(domainID, participantID, transport.RoleUserData, reusePort)
	if err != nil {
		meta.Close()
		return nil, nil, err
	}
	return meta, data, nil
}

// onDiscoveryPacket decodes every SPDP/SEDP DATA payload in pkt and feeds
// the discovery engine (spec §4.4 step 3, §4.6). HEARTBEAT submessages
// bundled into the same packet are ignored here; they reach the
// reliability engine through the router's control channel instead.
func (p *Participant) onDiscoveryPacket(src *net.UDPAddr, header wire.PacketHeader, pkt classify.Packet) {
	now := time.Now()
	for _, sub := range pkt.Submessages {
		switch sub.Kind {
		case classify.KindSPDP:
			data, err := discovery.DecodeSPDP(sub.Body[sub.PayloadOffset:])
			if err != nil {
				p.log.Debugw("failed to decode spdp payload", "error", err)
				continue
			}
			p.discovery.HandleSPDP(data, now)
		case classify.KindSEDP:
			data, err := discovery.DecodeSEDP(sub.Body[sub.PayloadOffset:])
			if err != nil {
				p.log.Debugw("failed to decode sedp payload", "error", err)
				continue
			}
			kind := discovery.EndpointWriter
			if sub.WriterID == wire.EntityIDSEDPSubWriter {
				kind = discovery.EndpointReader
			}
			p.discovery.HandleSEDP(data, kind, now)
		}
	}
}

// lookupReaders resolves a writer GUID to its matched local readers'
// delivery targets (spec §4.5 step 2). Delivery of matched DATA into a
// reader's reorder buffer is owned by internal/reliability, wired here
// through a thin adapter so the router package stays decoupled from it.
func (p *Participant) lookupReaders(writer wire.GUID) []router.ReaderDelivery {
	writerInfo, ok := p.discovery.Topics().Lookup(writer)
	if !ok {
		// SPDP/SEDP builtin writers (entity ids like EntityIDSPDPWriter)
		// are never registered in the TopicRegistry; their DATA is routed
		// to onDiscoveryPacket instead, not through this path.
		return nil
	}

	var out []router.ReaderDelivery
	for _, reader := range p.discovery.Topics().CompatibleReaders(writerInfo) {
		out = append(out, readerDeliveryAdapter{participant: p, engine: p.reliability, writer: writer, reader: reader})
	}
	return out
}

// RegisterReaderSink installs the delivery callback a local reader handle
// (internal/control) polls from on Take. Overwrites any previous sink for
// the same reader GUID.
func (p *Participant) RegisterReaderSink(readerGUID wire.GUID, sink func(reliability.Sample)) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	p.readerSinks[readerGUID] = sink
}

// UnregisterReaderSink removes a reader's delivery callback (on destroy).
func (p *Participant) UnregisterReaderSink(readerGUID wire.GUID) {
	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	delete(p.readerSinks, readerGUID)
}

func (p *Participant) readerSink(readerGUID wire.GUID) (func(reliability.Sample), bool) {
	p.sinkMu.RLock()
	defer p.sinkMu.RUnlock()
	sink, ok := p.readerSinks[readerGUID]
	return sink, ok
}

// handleControl dispatches a HEARTBEAT or ACKNACK submessage to the
// reliability engine (spec §4.5 control ring, §4.7). Other control kinds
// (NACK_FRAG, HEARTBEAT_FRAG) are ignored.
func (p *Participant) handleControl(msg transport.ControlMessage) {
	switch msg.Sub.Kind {
	case classify.KindHeartbeat:
		hb, err := wire.DecodeHeartbeat(msg.Sub.Header, msg.Sub.Body)
		if err != nil {
			return
		}
		writer := wire.NewGUID(msg.Header.Prefix, hb.WriterID)
		reader := wire.NewGUID(p.GUIDPrefix, hb.ReaderID)
		if an, ok := p.reliability.HandleHeartbeat(writer, reader, hb); ok {
			header := wire.PacketHeader{Version: wire.ProtocolVersion23, Vendor: wire.HDDSVendorID, Prefix: p.GUIDPrefix}
			packet := wire.AssemblePacket(header, wire.EncodeAckNack(an))
			if err := p.userDataListener.WriteTo(packet, msg.Source); err != nil {
				p.log.Debugw("acknack send failed", "error", err)
			} else {
				p.reliability.IncAckNacksSent()
			}
		}
	case classify.KindAckNack:
		an, err := wire.DecodeAckNack(msg.Sub.Header, msg.Sub.Body)
		if err != nil {
			return
		}
		writer := wire.NewGUID(p.GUIDPrefix, an.WriterID)
		reader := wire.NewGUID(msg.Header.Prefix, an.ReaderID)
		for _, sample := range p.reliability.HandleAckNack(writer, reader, an) {
			header := wire.PacketHeader{Version: wire.ProtocolVersion23, Vendor: wire.HDDSVendorID, Prefix: p.GUIDPrefix}
			sub := wire.EncodeData(an.ReaderID, an.WriterID, sample.SeqNum, sample.Payload, false)
			packet := wire.AssemblePacket(header, sub)
			if err := p.userDataListener.WriteTo(packet, msg.Source); err != nil {
				p.log.Debugw("retransmit send failed", "error", err)
			} else {
				p.reliability.IncRetransmitsSent()
			}
		}
	}
}

// readerDeliveryAdapter bridges router.ReaderDelivery to the reliability
// engine's per-writer reorder buffer (for RELIABLE readers) or direct,
// unordered delivery (for BestEffort readers, which have no HEARTBEAT/
// ACKNACK repair loop to ever close a gap), and on to the matched
// reader's registered take-queue sink.
type readerDeliveryAdapter struct {
	participant *Participant
	engine      *reliability.Engine
	writer      wire.GUID
	reader      discovery.EndpointInfo
}

func (a readerDeliveryAdapter) Deliver(sub classify.Submessage, source wire.GUIDPrefix) {
	payload := sub.Body[sub.PayloadOffset:]

	if sub.Kind == classify.KindDataFrag {
		reassembled, complete := a.participant.reassembler.Insert(a.writer, wire.DataFragHeader{
			WriterSeqNum: sub.WriterSeqNum,
			Fragment: wire.FragmentMeta{
				StartingFragmentNumber: sub.Fragment.StartingFragmentNumber,
				FragmentsInSubmessage:  sub.Fragment.FragmentsInSubmessage,
				FragmentSize:           sub.Fragment.FragmentSize,
				SampleSize:             sub.Fragment.SampleSize,
			},
		}, payload, time.Now())
		if !complete {
			return
		}
		payload = reassembled
	}

	var delivered []reliability.Sample
	if a.reader.QoS.Reliability == discovery.ReliabilityReliable {
		delivered = a.engine.ReaderState(a.writer).Insert(sub.WriterSeqNum, payload)
	} else {
		delivered = []reliability.Sample{{SeqNum: sub.WriterSeqNum, Payload: payload}}
	}
	if len(delivered) == 0 {
		return
	}

	sink, ok := a.participant.readerSink(a.reader.EndpointGUID)
	if !ok {
		return
	}
	for _, s := range delivered {
		sink(s)
	}
}

// Run starts the metatraffic/user-data listeners, the router, and the
// lease tracker, and blocks until ctx is canceled (spec §4.2, §4.4, §4.5,
// §4.6).
func (p *Participant) Run(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error { return p.metatrafficListener.Run(ctx) })
	wg.Go(func() error { return p.userDataListener.Run(ctx) })
	wg.Go(func() error { return p.router.Run(ctx) })
	wg.Go(func() error { return p.lease.Run(ctx) })
	wg.Go(func() error { return p.spdp.Run(ctx) })
	wg.Go(func() error { return p.reapFragments(ctx) })

	return wg.Wait()
}

// reapFragments periodically evicts abandoned DATA_FRAG reassemblies
// (spec §4.8, §9: bounded reassembly-buffer lifetime).
func (p *Participant) reapFragments(ctx context.Context) error {
	ticker := time.NewTicker(fragment.DefaultReassemblyTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := p.reassembler.Reap(time.Now()); n > 0 {
				p.log.Debugw("reaped abandoned fragment reassemblies", "count", n)
			}
		}
	}
}

// Close releases the bound sockets.
func (p *Participant) Close() error {
	err1 := p.metatrafficListener.Close()
	err2 := p.userDataListener.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Discovery exposes the discovery engine for the control-plane API and
// metrics collection.
func (p *Participant) Discovery() *discovery.Engine { return p.discovery }

// Reliability exposes the reliability engine for the control-plane API.
func (p *Participant) Reliability() *reliability.Engine { return p.reliability }

// Pool exposes the RX buffer pool for metrics collection.
func (p *Participant) Pool() *pool.Pool { return p.pool }

// Metrics aggregates every subsystem's counters into one snapshot (spec
// §6 "graph visitors", §8 observability scenarios). The metatraffic and
// user-data listeners' drop counters are summed into a single Listener
// field; callers needing the per-socket breakdown can still reach each
// listener's own Counters through the transport package directly.
func (p *Participant) Metrics() metrics.Snapshot {
	meta := p.metatrafficListener.Counters()
	data := p.userDataListener.Counters()
	rel := p.reliability.Metrics()

	return metrics.Snapshot{
		Discovery: p.discovery.Metrics(),
		Listener: transport.Counters{
			Invalid:       meta.Invalid + data.Invalid,
			ControlDrop:   meta.ControlDrop + data.ControlDrop,
			PoolExhausted: meta.PoolExhausted + data.PoolExhausted,
			RingFull:      meta.RingFull + data.RingFull,
		},
		PoolDropped:      p.pool.Dropped(),
		FragmentsPending: p.reassembler.Pending(),
		RetransmitsSent:  rel.RetransmitsSent,
		AckNacksSent:     rel.AckNacksSent,
		HeartbeatsSent:   rel.HeartbeatsSent,
	}
}

// UserDataAddr returns the bound user-data unicast address, advertised in
// SEDP endpoint announcements as a local writer/reader's locator.
func (p *Participant) UserDataAddr() netip.AddrPort { return p.userDataListener.Addr().AddrPort() }

// UserDataLocators returns every locator a remote participant could dial
// to reach this participant's user-data socket: one per local unicast
// address when enumeration succeeded, or the bound (possibly wildcard)
// address otherwise. Used when announcing a local writer/reader's
// endpoint over SEDP.
func (p *Participant) UserDataLocators() []netip.AddrPort {
	return p.advertisedLocators(p.userDataListener.Addr().AddrPort())
}

// advertisedLocators turns a socket's own bound address (often the
// wildcard 0.0.0.0, since Listen binds without a specific IP) into the
// set of locators a remote participant could actually dial: one per
// local unicast address discovered at startup, each carrying bound's
// port. Falls back to bound itself when no local addresses were found.
func (p *Participant) advertisedLocators(bound netip.AddrPort) []netip.AddrPort {
	if len(p.localAddrs) == 0 {
		return []netip.AddrPort{bound}
	}
	out := make([]netip.AddrPort, 0, len(p.localAddrs))
	for _, addr := range p.localAddrs {
		out = append(out, netip.AddrPortFrom(addr, bound.Port()))
	}
	return out
}

// NextWriterID allocates an entity id for a newly created local writer
// (internal/control's CreateWriter).
func (p *Participant) NextWriterID(keyed bool) wire.EntityID { return p.entityIDs.NextWriter(keyed) }

// NextReaderID allocates an entity id for a newly created local reader
// (internal/control's CreateReader).
func (p *Participant) NextReaderID(keyed bool) wire.EntityID { return p.entityIDs.NextReader(keyed) }

// AnnounceEndpoint multicasts a single SEDP announcement for a local
// endpoint over the metatraffic socket (spec §4.6). Called once at
// creation time. The announcement is kept in the SEDP writer's retransmit
// cache, so an incoming ACKNACK naming it triggers a resend; no HEARTBEAT
// is emitted for the SEDP writers.
func (p *Participant) AnnounceEndpoint(kind discovery.EndpointKind, ep discovery.EndpointInfo) error {
	writerID := wire.EntityIDSEDPPubWriter
	if kind == discovery.EndpointReader {
		writerID = wire.EntityIDSEDPSubWriter
	}

	payload := discovery.EncodeSEDP(ep)
	cache := p.reliability.WriterCache(wire.NewGUID(p.GUIDPrefix, writerID), 0)
	sample := cache.Push(payload)

	sub := wire.EncodeData(wire.EntityID{}, writerID, sample.SeqNum, payload, false)
	header := wire.PacketHeader{Version: wire.ProtocolVersion23, Vendor: wire.HDDSVendorID, Prefix: p.GUIDPrefix}
	packet := wire.AssemblePacket(header, sub)

	return p.metatrafficListener.WriteTo(packet, transport.SPDPMulticastUDPAddr())
}

// PublishSample pushes payload onto the writer's retransmit cache and
// sends it to every currently matched reader's unicast locator, as one
// DATA submessage or, when payload exceeds the configured MTU budget, a
// sequence of DATA_FRAG submessages (spec §4.5, §4.7, §4.8). writer
// describes the local endpoint (topic/type/QoS), used to look up matched
// readers in the topic registry.
func (p *Participant) PublishSample(writer discovery.EndpointInfo, payload []byte) error {
	cache := p.reliability.WriterCache(writer.EndpointGUID, DefaultWriterHistoryDepth)
	sample := cache.Push(payload)

	header := wire.PacketHeader{Version: wire.ProtocolVersion23, Vendor: wire.HDDSVendorID, Prefix: p.GUIDPrefix}

	var firstErr error
	for _, reader := range p.discovery.Topics().CompatibleReaders(writer) {
		packets := p.encodeSamplePackets(header, reader.EndpointGUID.EntityID, writer.EndpointGUID.EntityID, sample.SeqNum, payload)
		for _, locator := range reader.UnicastLocators {
			addr := net.UDPAddrFromAddrPort(locator)
			for _, packet := range packets {
				if err := p.userDataListener.WriteTo(packet, addr); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// dataSubmessageOverhead and dataFragSubmessageOverhead bound how much of
// an MTU-sized datagram is consumed by header bytes rather than payload
// (spec §4.1, §4.3, §4.8).
const (
	dataSubmessageOverhead     = wire.HeaderSize + wire.SubmessageHeaderSize + 20 + wire.CDREncapsulationHeaderSize
	dataFragSubmessageOverhead = wire.HeaderSize + wire.SubmessageHeaderSize + 32
)

// encodeSamplePackets builds the wire packets carrying one sample: a
// single DATA submessage when it fits in one MTU-sized datagram, or a
// DATA_FRAG sequence otherwise (spec §4.8: "fragment_size-based,
// MTU-budget-aware split").
func (p *Participant) encodeSamplePackets(header wire.PacketHeader, reader, writer wire.EntityID, seq wire.SequenceNumber, payload []byte) [][]byte {
	mtu := int(p.cfg.MTU.Bytes())
	if len(payload)+dataSubmessageOverhead <= mtu {
		sub := wire.EncodeData(reader, writer, seq, payload, false)
		return [][]byte{wire.AssemblePacket(header, sub)}
	}

	fragmentSize := mtu - dataFragSubmessageOverhead
	fragments := fragment.Split(payload, fragmentSize)
	packets := make([][]byte, 0, len(fragments))
	for _, f := range fragments {
		sub := wire.EncodeDataFrag(reader, writer, seq, f.Meta, f.Payload)
		packets = append(packets, wire.AssemblePacket(header, sub))
	}
	return packets
}

// DefaultWriterHistoryDepth bounds a writer's retransmit cache when no
// explicit QoS history depth is configured (spec §4.7).
const DefaultWriterHistoryDepth = 64

// HeartbeatSender returns a reliability.HeartbeatSender that encodes hb and
// unicasts it to every reader currently matched with writer (spec §4.7).
// The reader entity id inside hb is left zero (wildcard): one HEARTBEAT
// announces a writer's retained range to all of its matched readers, not
// to a single one.
func (p *Participant) HeartbeatSender(writer discovery.EndpointInfo) reliability.HeartbeatSender {
	header := wire.PacketHeader{Version: wire.ProtocolVersion23, Vendor: wire.HDDSVendorID, Prefix: p.GUIDPrefix}
	return func(hb wire.Heartbeat) {
		packet := wire.AssemblePacket(header, wire.EncodeHeartbeat(hb))
		for _, reader := range p.discovery.Topics().CompatibleReaders(writer) {
			for _, locator := range reader.UnicastLocators {
				if err := p.userDataListener.WriteTo(packet, net.UDPAddrFromAddrPort(locator)); err != nil {
					p.log.Debugw("heartbeat send failed", "error", err)
				}
			}
		}
		p.reliability.IncHeartbeatsSent()
	}
}

// StartWriterHeartbeat launches a HeartbeatEmitter for writer that runs
// until ctx is canceled, periodically announcing writer's retained
// sequence range to its matched readers so they can ACKNACK any gap
// (spec §4.7). Only RELIABLE writers need this; BestEffort writers have
// no repair loop to drive.
func (p *Participant) StartWriterHeartbeat(ctx context.Context, writer discovery.EndpointInfo) {
	cache := p.reliability.WriterCache(writer.EndpointGUID, DefaultWriterHistoryDepth)
	emitter := reliability.NewHeartbeatEmitter(writer.EndpointGUID.EntityID, wire.EntityID{}, cache, p.HeartbeatSender(writer))

	go func() {
		if err := emitter.Run(ctx); err != nil && ctx.Err() == nil {
			p.log.Debugw("heartbeat emitter exited", "error", err)
		}
	}()
}
