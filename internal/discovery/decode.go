package discovery

import (
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/hdds-team/hdds/internal/wire"
)

// SpdpData is the decoded parameter list of an SPDP participant
// announcement (spec §4.6).
type SpdpData struct {
	ParticipantGUID      wire.GUID
	LeaseDuration        time.Duration
	DomainID             uint32
	MetatrafficUnicast   []netip.AddrPort
	DefaultUnicast       []netip.AddrPort
	MetatrafficMulticast []netip.AddrPort
	DefaultMulticast     []netip.AddrPort
	IdentityToken        []byte
}

// DecodeSPDP parses an SPDP DATA payload's parameter list into an
// SpdpData. Missing optional PIDs are left at their zero value, except
// the lease duration, which defaults to 30s.
func DecodeSPDP(payload []byte) (SpdpData, error) {
	order := binary.LittleEndian
	list, _, err := wire.DecodeParameterList(payload, order)
	if err != nil {
		return SpdpData{}, err
	}

	var data SpdpData
	data.LeaseDuration = 30 * time.Second // spec §5 default

	if raw, ok := list.Get(wire.PIDParticipantGUID); ok {
		if guid, err := wire.GUIDFromBytes(raw); err == nil {
			data.ParticipantGUID = guid
		}
	}
	if raw, ok := list.Get(wire.PIDDomainID); ok {
		if v, err := wire.DecodeCDRUint32(raw, order); err == nil {
			data.DomainID = v
		}
	}
	if raw, ok := list.Get(wire.PIDLeaseDuration); ok {
		if seconds, nanos, err := wire.DecodeCDRDuration(raw, order); err == nil {
			data.LeaseDuration = time.Duration(seconds)*time.Second + time.Duration(nanos)*time.Nanosecond
		}
	}
	for _, raw := range list.GetAll(wire.PIDMetatrafficUnicast) {
		if loc, err := wire.DecodeCDRLocator(raw, order); err == nil {
			if addr, ok := locatorToAddrPort(loc); ok {
				data.MetatrafficUnicast = append(data.MetatrafficUnicast, addr)
			}
		}
	}
	for _, raw := range list.GetAll(wire.PIDDefaultUnicast) {
		if loc, err := wire.DecodeCDRLocator(raw, order); err == nil {
			if addr, ok := locatorToAddrPort(loc); ok {
				data.DefaultUnicast = append(data.DefaultUnicast, addr)
			}
		}
	}
	for _, raw := range list.GetAll(wire.PIDMetatrafficMulticastLocator) {
		if loc, err := wire.DecodeCDRLocator(raw, order); err == nil {
			if addr, ok := locatorToAddrPort(loc); ok {
				data.MetatrafficMulticast = append(data.MetatrafficMulticast, addr)
			}
		}
	}
	for _, raw := range list.GetAll(wire.PIDDefaultMulticastLocator) {
		if loc, err := wire.DecodeCDRLocator(raw, order); err == nil {
			if addr, ok := locatorToAddrPort(loc); ok {
				data.DefaultMulticast = append(data.DefaultMulticast, addr)
			}
		}
	}

	return data, nil
}

// SedpData is the decoded parameter list of a SEDP endpoint announcement
// (spec §4.6).
type SedpData struct {
	EndpointGUID    wire.GUID
	TopicName       string
	TypeName        string
	QoS             QoS
	UnicastLocators []netip.AddrPort
	TypeHash        *wire.TypeHash
}

// DecodeSEDP parses a SEDP DATA payload's parameter list into a SedpData,
// falling back to DefaultQoS for any absent QoS PID (spec §4.6).
func DecodeSEDP(payload []byte) (SedpData, error) {
	order := binary.LittleEndian
	list, _, err := wire.DecodeParameterList(payload, order)
	if err != nil {
		return SedpData{}, err
	}

	data := SedpData{QoS: DefaultQoS()}

	if raw, ok := list.Get(wire.PIDEndpointGUID); ok {
		if guid, err := wire.GUIDFromBytes(raw); err == nil {
			data.EndpointGUID = guid
		}
	}
	if raw, ok := list.Get(wire.PIDTopicName); ok {
		if s, _, err := wire.DecodeCDRString(raw, order); err == nil {
			data.TopicName = s
		}
	}
	if raw, ok := list.Get(wire.PIDTypeName); ok {
		if s, _, err := wire.DecodeCDRString(raw, order); err == nil {
			data.TypeName = s
		}
	}
	if raw, ok := list.Get(wire.PIDReliability); ok && len(raw) >= 4 {
		if order.Uint32(raw[0:4]) == 1 {
			data.QoS.Reliability = ReliabilityReliable
		}
	}
	if raw, ok := list.Get(wire.PIDDurability); ok && len(raw) >= 4 {
		data.QoS.Durability = DurabilityKind(order.Uint32(raw[0:4]))
	}
	for _, raw := range list.GetAll(wire.PIDPartition) {
		if s, _, err := wire.DecodeCDRString(raw, order); err == nil && s != "" {
			data.QoS.Partitions = append(data.QoS.Partitions, s)
		}
	}
	for _, raw := range list.GetAll(wire.PIDDefaultUnicast) {
		if loc, err := wire.DecodeCDRLocator(raw, order); err == nil {
			if addr, ok := locatorToAddrPort(loc); ok {
				data.UnicastLocators = append(data.UnicastLocators, addr)
			}
		}
	}
	if raw, ok := list.Get(wire.PIDTypeObjectHash); ok && len(raw) >= wire.TypeHashSize {
		var hash wire.TypeHash
		copy(hash[:], raw[:wire.TypeHashSize])
		data.TypeHash = &hash
	}
	if raw, ok := list.Get(wire.PIDDeadline); ok {
		if d, err := wire.DecodeCDRDurationGo(raw, order); err == nil {
			data.QoS.DeadlineMillis = d.Milliseconds()
		}
	}
	if raw, ok := list.Get(wire.PIDLifespan); ok {
		if d, err := wire.DecodeCDRDurationGo(raw, order); err == nil {
			data.QoS.LifespanMillis = d.Milliseconds()
		}
	}
	if raw, ok := list.Get(wire.PIDLiveliness); ok {
		if d, err := wire.DecodeCDRDurationGo(raw, order); err == nil {
			data.QoS.Liveliness = d
		}
	}
	if raw, ok := list.Get(wire.PIDUserData); ok {
		if b, _, err := wire.DecodeCDROctets(raw, order); err == nil {
			data.QoS.UserData = b
		}
	}

	return data, nil
}

func locatorToAddrPort(loc wire.Locator) (netip.AddrPort, bool) {
	if loc.Kind != wire.LocatorKindUDPv4 {
		return netip.AddrPort{}, false
	}
	var b [4]byte
	copy(b[:], loc.Address[12:16])
	addr := netip.AddrFrom4(b)
	return netip.AddrPortFrom(addr, uint16(loc.Port)), true
}
