package discovery

import (
	"net/netip"
	"time"

	"github.com/hdds-team/hdds/internal/wire"
)

// EncodeSPDP serializes an outbound SPDP participant announcement's
// parameter list, the mirror of DecodeSPDP (spec §4.6).
func EncodeSPDP(guid wire.GUID, domainID uint32, leaseDuration time.Duration, metatraffic, defaultUnicast, metatrafficMulticast, defaultMulticast []netip.AddrPort) []byte {
	var list wire.ParameterList

	guidBytes := guid.Bytes()
	list = append(list, wire.Parameter{ID: wire.PIDParticipantGUID, Value: guidBytes[:]})
	list = append(list, wire.Parameter{ID: wire.PIDDomainID, Value: wire.EncodeCDRUint32(domainID)})

	seconds := int32(leaseDuration / time.Second)
	nanos := uint32((leaseDuration % time.Second).Nanoseconds())
	list = append(list, wire.Parameter{ID: wire.PIDLeaseDuration, Value: wire.EncodeCDRDuration(seconds, nanos)})

	for _, addr := range metatraffic {
		list = append(list, wire.Parameter{ID: wire.PIDMetatrafficUnicast, Value: wire.EncodeCDRLocator(addrPortToLocator(addr))})
	}
	for _, addr := range defaultUnicast {
		list = append(list, wire.Parameter{ID: wire.PIDDefaultUnicast, Value: wire.EncodeCDRLocator(addrPortToLocator(addr))})
	}
	for _, addr := range metatrafficMulticast {
		list = append(list, wire.Parameter{ID: wire.PIDMetatrafficMulticastLocator, Value: wire.EncodeCDRLocator(addrPortToLocator(addr))})
	}
	for _, addr := range defaultMulticast {
		list = append(list, wire.Parameter{ID: wire.PIDDefaultMulticastLocator, Value: wire.EncodeCDRLocator(addrPortToLocator(addr))})
	}

	return wire.EncodeParameterList(list)
}

// EncodeSEDP serializes an outbound SEDP endpoint announcement's parameter
// list, the mirror of DecodeSEDP (spec §4.6).
func EncodeSEDP(endpoint EndpointInfo) []byte {
	var list wire.ParameterList

	guidBytes := endpoint.EndpointGUID.Bytes()
	list = append(list, wire.Parameter{ID: wire.PIDEndpointGUID, Value: guidBytes[:]})
	list = append(list, wire.NewStringParameter(wire.PIDTopicName, endpoint.TopicName))
	list = append(list, wire.NewStringParameter(wire.PIDTypeName, endpoint.TypeName))

	reliable := uint32(0)
	if endpoint.QoS.Reliability == ReliabilityReliable {
		reliable = 1
	}
	list = append(list, wire.Parameter{ID: wire.PIDReliability, Value: wire.EncodeCDRUint32(reliable)})
	list = append(list, wire.Parameter{ID: wire.PIDDurability, Value: wire.EncodeCDRUint32(uint32(endpoint.QoS.Durability))})

	for _, p := range endpoint.QoS.Partitions {
		list = append(list, wire.NewStringParameter(wire.PIDPartition, p))
	}
	for _, addr := range endpoint.UnicastLocators {
		list = append(list, wire.Parameter{ID: wire.PIDDefaultUnicast, Value: wire.EncodeCDRLocator(addrPortToLocator(addr))})
	}
	if endpoint.TypeHash != nil {
		hash := *endpoint.TypeHash
		list = append(list, wire.Parameter{ID: wire.PIDTypeObjectHash, Value: hash[:]})
	}
	if endpoint.QoS.DeadlineMillis != 0 {
		d := time.Duration(endpoint.QoS.DeadlineMillis) * time.Millisecond
		list = append(list, wire.Parameter{ID: wire.PIDDeadline, Value: wire.EncodeCDRDurationGo(d)})
	}
	if endpoint.QoS.LifespanMillis != 0 {
		d := time.Duration(endpoint.QoS.LifespanMillis) * time.Millisecond
		list = append(list, wire.Parameter{ID: wire.PIDLifespan, Value: wire.EncodeCDRDurationGo(d)})
	}
	if endpoint.QoS.Liveliness != 0 {
		list = append(list, wire.Parameter{ID: wire.PIDLiveliness, Value: wire.EncodeCDRDurationGo(endpoint.QoS.Liveliness)})
	}
	if endpoint.QoS.UserData != nil {
		list = append(list, wire.Parameter{ID: wire.PIDUserData, Value: wire.EncodeCDROctets(endpoint.QoS.UserData)})
	}

	return wire.EncodeParameterList(list)
}

func addrPortToLocator(addr netip.AddrPort) wire.Locator {
	var loc wire.Locator
	loc.Kind = wire.LocatorKindUDPv4
	loc.Port = uint32(addr.Port())
	a4 := addr.Addr().As4()
	copy(loc.Address[12:16], a4[:])
	return loc
}
