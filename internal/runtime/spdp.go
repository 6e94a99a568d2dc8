package runtime

import (
	"context"
	"net"
	"net/netip"
	"time"

	"github.com/hdds-team/hdds/internal/discovery"
	"github.com/hdds-team/hdds/internal/transport"
	"github.com/hdds-team/hdds/internal/wire"
)

// DefaultSPDPPeriod is the announcer's fallback interval when the config
// leaves SPDPPeriod unset (spec §4.10, §5: "100 ms default").
const DefaultSPDPPeriod = 100 * time.Millisecond

// spdpAnnouncer periodically publishes this participant's SPDP
// announcement to the well-known multicast group over the metatraffic
// socket (spec §4.6, §4.10).
type spdpAnnouncer struct {
	p      *Participant
	period time.Duration
	dest   *net.UDPAddr
	seq    int64
}

func newSPDPAnnouncer(p *Participant) *spdpAnnouncer {
	period := p.cfg.SPDPPeriod
	if period <= 0 {
		period = DefaultSPDPPeriod
	}
	return &spdpAnnouncer{
		p:      p,
		period: period,
		dest:   transport.SPDPMulticastUDPAddr(),
	}
}

func (a *spdpAnnouncer) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.period)
	defer ticker.Stop()

	a.announce()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.announce()
		}
	}
}

func (a *spdpAnnouncer) announce() {
	p := a.p

	meta := p.advertisedLocators(p.metatrafficListener.Addr().AddrPort())
	userData := p.advertisedLocators(p.userDataListener.Addr().AddrPort())

	metatrafficMulticast := []netip.AddrPort{netip.AddrPortFrom(transport.SPDPMulticastAddr, transport.SPDPMulticastPort)}
	payload := discovery.EncodeSPDP(wire.ParticipantGUID(p.GUIDPrefix), p.DomainID, p.cfg.LeaseDuration, meta, userData, metatrafficMulticast, nil)

	a.seq++
	sub := wire.EncodeData(wire.EntityID{}, wire.EntityIDSPDPWriter, wire.SequenceNumber(a.seq), payload, false)
	header := wire.PacketHeader{Version: wire.ProtocolVersion23, Vendor: wire.HDDSVendorID, Prefix: p.GUIDPrefix}
	packet := wire.AssemblePacket(header, sub)

	if err := p.metatrafficListener.WriteTo(packet, a.dest); err != nil {
		p.log.Debugw("spdp announce failed", "error", err)
	}
}
