package wire

import (
	"encoding/binary"
	"fmt"
	"time"
)

// align4 rounds n up to the next multiple of 4, the alignment CDR requires
// for every field wider than a byte (spec §6).
func align4(n int) int {
	return (n + 3) &^ 3
}

// EncodeCDRString encodes s as a CDR string: a 4-byte little-endian length
// (including the trailing NUL), the bytes of s, a NUL terminator, and
// zero-padding out to a 4-byte boundary.
func EncodeCDRString(s string) []byte {
	contentLen := len(s) + 1 // + NUL
	total := align4(4 + contentLen)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(contentLen))
	copy(buf[4:4+len(s)], s)
	// buf[4+len(s)] is already the NUL terminator; remaining bytes are
	// padding, already zero.
	return buf
}

// DecodeCDRString decodes a CDR string starting at the beginning of buf,
// returning the string (without its NUL terminator) and the number of
// bytes consumed, including padding.
func DecodeCDRString(buf []byte, order binary.ByteOrder) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, fmt.Errorf("cdr string length header truncated")
	}
	contentLen := int(order.Uint32(buf[0:4]))
	if contentLen == 0 {
		return "", align4(4), nil
	}
	if 4+contentLen > len(buf) {
		return "", 0, fmt.Errorf("cdr string content (%d bytes) overruns buffer", contentLen)
	}
	// contentLen includes the trailing NUL.
	s := string(buf[4 : 4+contentLen-1])
	return s, align4(4 + contentLen), nil
}

// EncodeCDRKeyHash encodes a raw 16-byte key hash as used for
// PID_KEY_HASH / PID_ENDPOINT_GUID (spec §4.5, §6): no length prefix, the
// value already has natural 4-byte alignment.
func EncodeCDRKeyHash(b [16]byte) []byte {
	out := make([]byte, 16)
	copy(out, b[:])
	return out
}

// EncodeCDRUint32 encodes a single little-endian uint32 parameter value.
func EncodeCDRUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// DecodeCDRUint32 decodes a single uint32 parameter value.
func DecodeCDRUint32(buf []byte, order binary.ByteOrder) (uint32, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("cdr uint32 truncated")
	}
	return order.Uint32(buf[0:4]), nil
}

// EncodeCDRDuration encodes an RTPS Duration_t (seconds + fraction-of-a-
// second nanos), used for PID_PARTICIPANT_LEASE_DURATION (spec §4.5, §6).
func EncodeCDRDuration(seconds int32, nanos uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(seconds))
	binary.LittleEndian.PutUint32(buf[4:8], nanos)
	return buf
}

// DecodeCDRDuration decodes an RTPS Duration_t.
func DecodeCDRDuration(buf []byte, order binary.ByteOrder) (seconds int32, nanos uint32, err error) {
	if len(buf) < 8 {
		return 0, 0, fmt.Errorf("cdr duration truncated")
	}
	return int32(order.Uint32(buf[0:4])), order.Uint32(buf[4:8]), nil
}

// EncodeCDRDurationGo encodes a time.Duration as an RTPS Duration_t,
// splitting it into seconds and fraction-of-a-second nanos the way
// PID_PARTICIPANT_LEASE_DURATION already does inline; used for
// PID_DEADLINE/PID_LIFESPAN/PID_LIVELINESS (spec §6).
func EncodeCDRDurationGo(d time.Duration) []byte {
	seconds := int32(d / time.Second)
	nanos := uint32((d % time.Second).Nanoseconds())
	return EncodeCDRDuration(seconds, nanos)
}

// DecodeCDRDurationGo decodes an RTPS Duration_t into a time.Duration.
func DecodeCDRDurationGo(buf []byte, order binary.ByteOrder) (time.Duration, error) {
	seconds, nanos, err := DecodeCDRDuration(buf, order)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds)*time.Second + time.Duration(nanos)*time.Nanosecond, nil
}

// EncodeCDROctets encodes an arbitrary byte sequence as a CDR octet
// sequence: a 4-byte little-endian length, the bytes themselves, and
// zero-padding out to a 4-byte boundary. Used for PID_USER_DATA (spec §6).
func EncodeCDROctets(b []byte) []byte {
	total := align4(4 + len(b))
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(b)))
	copy(buf[4:4+len(b)], b)
	return buf
}

// DecodeCDROctets decodes a CDR octet sequence, returning a copy of its
// content bytes and the number of bytes consumed, including padding.
func DecodeCDROctets(buf []byte, order binary.ByteOrder) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("cdr octet sequence length header truncated")
	}
	contentLen := int(order.Uint32(buf[0:4]))
	if 4+contentLen > len(buf) {
		return nil, 0, fmt.Errorf("cdr octet sequence content (%d bytes) overruns buffer", contentLen)
	}
	out := make([]byte, contentLen)
	copy(out, buf[4:4+contentLen])
	return out, align4(4 + contentLen), nil
}

// Locator is an RTPS Locator_t: a transport kind, port, and a 16-byte
// address (IPv4 addresses are stored in the last 4 bytes, per RTPS
// convention) (spec §3, §4.5).
type Locator struct {
	Kind    int32
	Port    uint32
	Address [16]byte
}

const (
	LocatorKindInvalid int32 = -1
	LocatorKindUDPv4    int32 = 1
	LocatorKindUDPv6    int32 = 2
)

const locatorSize = 4 + 4 + 16

// EncodeCDRLocator encodes a single Locator_t.
func EncodeCDRLocator(l Locator) []byte {
	buf := make([]byte, locatorSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(l.Kind))
	binary.LittleEndian.PutUint32(buf[4:8], l.Port)
	copy(buf[8:24], l.Address[:])
	return buf
}

// DecodeCDRLocator decodes a single Locator_t.
func DecodeCDRLocator(buf []byte, order binary.ByteOrder) (Locator, error) {
	if len(buf) < locatorSize {
		return Locator{}, fmt.Errorf("cdr locator truncated")
	}
	var l Locator
	l.Kind = int32(order.Uint32(buf[0:4]))
	l.Port = order.Uint32(buf[4:8])
	copy(l.Address[:], buf[8:24])
	return l, nil
}
