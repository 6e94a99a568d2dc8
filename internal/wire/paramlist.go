package wire

import (
	"encoding/binary"
	"fmt"
)

// ParameterID identifies a member of an RTPS parameter list (spec §6).
type ParameterID uint16

const (
	PIDSentinel           ParameterID = 0x0001
	PIDTopicName          ParameterID = 0x0005
	PIDTypeName           ParameterID = 0x0007
	PIDKeyHash            ParameterID = 0x0070
	PIDDefaultUnicast     ParameterID = 0x0031
	PIDMetatrafficUnicast ParameterID = 0x0032
	PIDParticipantGUID    ParameterID = 0x0050
	PIDEndpointGUID       ParameterID = 0x005a
	PIDReliability        ParameterID = 0x001a
	PIDDurability         ParameterID = 0x001d
	PIDPartition          ParameterID = 0x0029
	PIDTypeObjectHash     ParameterID = 0x0075
	PIDLeaseDuration      ParameterID = 0x0002
	PIDBuiltinEndpoints   ParameterID = 0x0058
	PIDDomainID           ParameterID = 0x000f
	PIDVendorID           ParameterID = 0x0016
	PIDProtocolVersion    ParameterID = 0x0015

	// The remaining PIDs round-trip for spec §6 completeness; only the
	// ones above this line feed endpoint matching or locator selection.
	PIDDeadline                    ParameterID = 0x0023
	PIDLiveliness                  ParameterID = 0x001b
	PIDLifespan                    ParameterID = 0x002b
	PIDUserData                    ParameterID = 0x002c
	PIDMetatrafficMulticastLocator ParameterID = 0x0033
	PIDDefaultMulticastLocator     ParameterID = 0x0048
)

func (p ParameterID) String() string {
	switch p {
	case PIDSentinel:
		return "PID_SENTINEL"
	case PIDTopicName:
		return "PID_TOPIC_NAME"
	case PIDTypeName:
		return "PID_TYPE_NAME"
	case PIDKeyHash:
		return "PID_KEY_HASH"
	case PIDDefaultUnicast:
		return "PID_DEFAULT_UNICAST_LOCATOR"
	case PIDMetatrafficUnicast:
		return "PID_METATRAFFIC_UNICAST_LOCATOR"
	case PIDParticipantGUID:
		return "PID_PARTICIPANT_GUID"
	case PIDEndpointGUID:
		return "PID_ENDPOINT_GUID"
	case PIDReliability:
		return "PID_RELIABILITY"
	case PIDDurability:
		return "PID_DURABILITY"
	case PIDPartition:
		return "PID_PARTITION"
	case PIDTypeObjectHash:
		return "PID_TYPE_OBJECT_HASH"
	case PIDLeaseDuration:
		return "PID_PARTICIPANT_LEASE_DURATION"
	case PIDBuiltinEndpoints:
		return "PID_BUILTIN_ENDPOINT_SET"
	case PIDDomainID:
		return "PID_DOMAIN_ID"
	case PIDVendorID:
		return "PID_VENDOR_ID"
	case PIDProtocolVersion:
		return "PID_PROTOCOL_VERSION"
	case PIDDeadline:
		return "PID_DEADLINE"
	case PIDLiveliness:
		return "PID_LIVELINESS"
	case PIDLifespan:
		return "PID_LIFESPAN"
	case PIDUserData:
		return "PID_USER_DATA"
	case PIDMetatrafficMulticastLocator:
		return "PID_METATRAFFIC_MULTICAST_LOCATOR"
	case PIDDefaultMulticastLocator:
		return "PID_DEFAULT_MULTICAST_LOCATOR"
	default:
		return fmt.Sprintf("PID(0x%04x)", uint16(p))
	}
}

// Parameter is a single decoded (id, raw value) pair from a parameter list.
// Values are not further interpreted here; callers type-assert by PID the
// way the SPDP/SEDP decoders do (spec §4.5, §4.6).
type Parameter struct {
	ID    ParameterID
	Value []byte
}

// ParameterList is a decoded sequence of Parameters, terminated on the wire
// by PID_SENTINEL (spec §6).
type ParameterList []Parameter

// Get returns the first parameter with the given id, if present.
func (pl ParameterList) Get(id ParameterID) ([]byte, bool) {
	for _, p := range pl {
		if p.ID == id {
			return p.Value, true
		}
	}
	return nil, false
}

// GetAll returns every parameter with the given id, in wire order. SEDP
// partition QoS can repeat PID_PARTITION entries for multiple names.
func (pl ParameterList) GetAll(id ParameterID) [][]byte {
	var out [][]byte
	for _, p := range pl {
		if p.ID == id {
			out = append(out, p.Value)
		}
	}
	return out
}

// parameterHeaderSize is the 4-byte (id, length) prefix of each parameter
// entry.
const parameterHeaderSize = 4

// DecodeParameterList parses a CDR parameter list starting at the beginning
// of body, stopping at PID_SENTINEL. Returns the list and the number of
// bytes consumed, including the sentinel's own header.
func DecodeParameterList(body []byte, order binary.ByteOrder) (ParameterList, int, error) {
	var list ParameterList
	off := 0

	for {
		if len(body)-off < parameterHeaderSize {
			return nil, 0, fmt.Errorf("parameter list truncated at offset %d", off)
		}

		id := ParameterID(order.Uint16(body[off : off+2]))
		length := order.Uint16(body[off+2 : off+4])
		off += parameterHeaderSize

		if id == PIDSentinel {
			return list, off, nil
		}

		if off+int(length) > len(body) {
			return nil, 0, fmt.Errorf("parameter %s value (%d bytes) overruns list", id, length)
		}

		list = append(list, Parameter{ID: id, Value: body[off : off+int(length)]})
		off += int(length)
	}
}

// skipParameterList scans a parameter list purely to find its length,
// without allocating Parameter entries. Used by DecodeData for the inline
// QoS list, which the core never inspects (spec §4.1, §4.3).
func skipParameterList(body []byte, order binary.ByteOrder) (int, error) {
	off := 0
	for {
		if len(body)-off < parameterHeaderSize {
			return 0, fmt.Errorf("parameter list truncated at offset %d", off)
		}

		id := ParameterID(order.Uint16(body[off : off+2]))
		length := order.Uint16(body[off+2 : off+4])
		off += parameterHeaderSize

		if id == PIDSentinel {
			return off, nil
		}

		if off+int(length) > len(body) {
			return 0, fmt.Errorf("parameter %s value (%d bytes) overruns list", id, length)
		}
		off += int(length)
	}
}

// EncodeParameterList serializes a parameter list, appending PID_SENTINEL.
// Every parameter value must already be padded to a 4-byte boundary by the
// caller, matching CDR alignment rules (spec §6).
func EncodeParameterList(list ParameterList) []byte {
	size := 0
	for _, p := range list {
		size += parameterHeaderSize + len(p.Value)
	}
	size += parameterHeaderSize // sentinel

	buf := make([]byte, size)
	off := 0
	for _, p := range list {
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(p.ID))
		binary.LittleEndian.PutUint16(buf[off+2:off+4], uint16(len(p.Value)))
		off += parameterHeaderSize
		copy(buf[off:off+len(p.Value)], p.Value)
		off += len(p.Value)
	}
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(PIDSentinel))
	binary.LittleEndian.PutUint16(buf[off+2:off+4], 0)

	return buf
}

// NewStringParameter encodes a CDR string (4-byte length incl. NUL,
// contents, NUL terminator) padded to a 4-byte boundary, as used for
// PID_TOPIC_NAME / PID_TYPE_NAME (spec §4.5, §6).
func NewStringParameter(id ParameterID, s string) Parameter {
	return Parameter{ID: id, Value: EncodeCDRString(s)}
}
