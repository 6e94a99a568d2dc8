package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of the RTPS packet header (spec §4.1):
// 4-byte magic, 2-byte protocol version, 2-byte vendor id, 12-byte GUID
// prefix.
const HeaderSize = 4 + 2 + 2 + GUIDPrefixSize

var rtpsMagic = [4]byte{'R', 'T', 'P', 'S'}

// ProtocolVersion is the {major, minor} RTPS wire version.
type ProtocolVersion struct {
	Major, Minor byte
}

// VendorID identifies the implementation that produced a packet.
type VendorID struct {
	High, Low byte
}

// HDDSVendorID is the vendor id this runtime stamps on emitted packets.
// Unassigned per the OMG vendor registry; chosen to be unlikely to collide
// with a registered vendor in test fixtures.
var HDDSVendorID = VendorID{High: 0x01, Low: 0xFF}

// PacketHeader mirrors the wire layout exactly: magic, version, vendor,
// participant prefix.
type PacketHeader struct {
	Version ProtocolVersion
	Vendor  VendorID
	Prefix  GUIDPrefix
}

// DecodeHeader parses the fixed RTPS header from the start of buf.
func DecodeHeader(buf []byte) (PacketHeader, error) {
	if len(buf) < HeaderSize {
		return PacketHeader{}, fmt.Errorf("packet too short for RTPS header: %d bytes", len(buf))
	}
	if buf[0] != rtpsMagic[0] || buf[1] != rtpsMagic[1] || buf[2] != rtpsMagic[2] || buf[3] != rtpsMagic[3] {
		return PacketHeader{}, fmt.Errorf("bad RTPS magic %q", buf[0:4])
	}

	var h PacketHeader
	h.Version = ProtocolVersion{Major: buf[4], Minor: buf[5]}
	h.Vendor = VendorID{High: buf[6], Low: buf[7]}
	copy(h.Prefix[:], buf[8:8+GUIDPrefixSize])
	return h, nil
}

// EncodeHeader writes the fixed RTPS header into buf, which must be at
// least HeaderSize bytes. Encoders always emit little-endian per submessage
// (spec §4.1); the fixed header itself has no endianness-sensitive fields
// beyond the magic/version/vendor bytes, which are written in wire order.
func EncodeHeader(buf []byte, h PacketHeader) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("buffer too small for RTPS header: %d bytes", len(buf))
	}
	copy(buf[0:4], rtpsMagic[:])
	buf[4], buf[5] = h.Version.Major, h.Version.Minor
	buf[6], buf[7] = h.Vendor.High, h.Vendor.Low
	copy(buf[8:8+GUIDPrefixSize], h.Prefix[:])
	return nil
}

// ProtocolVersion23 is the default wire version this runtime emits.
var ProtocolVersion23 = ProtocolVersion{Major: 2, Minor: 3}

// byteOrderFor returns the decoder byte order for a submessage flags byte,
// honoring the endianness bit (spec §4.1, §9).
func byteOrderFor(flags byte) binary.ByteOrder {
	if flags&flagEndianness != 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
