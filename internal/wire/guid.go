// Package wire implements the RTPS 2.x wire codec: packet header,
// submessage framing, CDR parameter lists, and the GUID/EntityId types the
// rest of the core keys its state off of (spec §3, §4.1, §6).
package wire

import (
	"encoding/binary"
	"fmt"
)

// GUIDPrefixSize is the size, in bytes, of a participant GUID prefix.
const GUIDPrefixSize = 12

// EntityIDSize is the size, in bytes, of an entity id.
const EntityIDSize = 4

// EntityKind identifies the role and provenance of an entity id's low byte.
type EntityKind byte

const (
	EntityKindUnknown       EntityKind = 0x00
	EntityKindWriterWithKey EntityKind = 0x02
	EntityKindWriterNoKey   EntityKind = 0x03
	EntityKindReaderWithKey EntityKind = 0x04
	EntityKindReaderNoKey   EntityKind = 0x07
	EntityKindSPDPBuiltin   EntityKind = 0xC1
	EntityKindSEDPPubWriter EntityKind = 0xC2
	EntityKindSEDPSubWriter EntityKind = 0xC3
	EntityKindSEDPReader    EntityKind = 0xC7
)

func (k EntityKind) IsWriter() bool {
	switch k {
	case EntityKindWriterWithKey, EntityKindWriterNoKey, EntityKindSEDPPubWriter, EntityKindSEDPSubWriter:
		return true
	default:
		return false
	}
}

func (k EntityKind) IsReader() bool {
	switch k {
	case EntityKindReaderWithKey, EntityKindReaderNoKey, EntityKindSEDPReader:
		return true
	default:
		return false
	}
}

// GUIDPrefix is the 12-byte participant prefix portion of a GUID.
type GUIDPrefix [GUIDPrefixSize]byte

func (p GUIDPrefix) String() string {
	return fmt.Sprintf("%x", [GUIDPrefixSize]byte(p))
}

// EntityID is the 4-byte entity portion of a GUID: a 24-bit little-endian
// key followed by a 1-byte kind (spec §3).
type EntityID [EntityIDSize]byte

// NewEntityID packs a 24-bit key and a kind byte into an EntityID.
func NewEntityID(key uint32, kind EntityKind) EntityID {
	var id EntityID
	id[0] = byte(key)
	id[1] = byte(key >> 8)
	id[2] = byte(key >> 16)
	id[3] = byte(kind)
	return id
}

// Key returns the 24-bit little-endian key.
func (e EntityID) Key() uint32 {
	return uint32(e[0]) | uint32(e[1])<<8 | uint32(e[2])<<16
}

// Kind returns the entity kind byte.
func (e EntityID) Kind() EntityKind {
	return EntityKind(e[3])
}

func (e EntityID) String() string {
	return fmt.Sprintf("%06x.%02x", e.Key(), byte(e.Kind()))
}

// Well-known builtin entity ids (spec §4.3).
var (
	EntityIDSPDPWriter            = NewEntityID(0x000100, EntityKindSPDPBuiltin)
	EntityIDSEDPPubWriter         = NewEntityID(0x000003, EntityKindSEDPPubWriter)
	EntityIDSEDPSubWriter         = NewEntityID(0x000004, EntityKindSEDPSubWriter)
	EntityIDTypeLookupReqWriter   = NewEntityID(0x000200, EntityKindWriterNoKey)
	EntityIDTypeLookupReplyWriter = NewEntityID(0x000201, EntityKindWriterNoKey)
)

// GUID is a 16-byte globally unique entity identifier: a 12-byte
// participant prefix plus a 4-byte entity id (spec §3).
type GUID struct {
	Prefix   GUIDPrefix
	EntityID EntityID
}

func NewGUID(prefix GUIDPrefix, entity EntityID) GUID {
	return GUID{Prefix: prefix, EntityID: entity}
}

// ParticipantGUID builds the participant's own "self" GUID: the
// participant prefix with the reserved participant entity key/kind.
func ParticipantGUID(prefix GUIDPrefix) GUID {
	return GUID{Prefix: prefix, EntityID: NewEntityID(0x000001, 0xC1)}
}

func (g GUID) String() string {
	return fmt.Sprintf("%s:%s", g.Prefix, g.EntityID)
}

// Bytes returns the 16-byte wire representation.
func (g GUID) Bytes() [16]byte {
	var out [16]byte
	copy(out[:12], g.Prefix[:])
	copy(out[12:], g.EntityID[:])
	return out
}

// GUIDFromBytes parses a 16-byte GUID.
func GUIDFromBytes(b []byte) (GUID, error) {
	if len(b) < 16 {
		return GUID{}, fmt.Errorf("guid requires 16 bytes, got %d", len(b))
	}
	var g GUID
	copy(g.Prefix[:], b[:12])
	copy(g.EntityID[:], b[12:16])
	return g, nil
}

// SequenceNumber is an RTPS 64-bit sample sequence number, wire-encoded as
// a high/low 32-bit pair.
type SequenceNumber int64

func SequenceNumberFromWire(high int32, low uint32) SequenceNumber {
	return SequenceNumber(int64(high)<<32 | int64(low))
}

func (s SequenceNumber) Wire() (high int32, low uint32) {
	return int32(int64(s) >> 32), uint32(int64(s))
}

// encoding helpers shared by submessage/paramlist codecs.

func putUint16(b []byte, order binary.ByteOrder, v uint16) {
	order.PutUint16(b, v)
}

func putUint32(b []byte, order binary.ByteOrder, v uint32) {
	order.PutUint32(b, v)
}
