package wire

import (
	"encoding/binary"
	"fmt"
)

// SubmessageHeaderSize is the fixed 4-byte submessage header: id, flags,
// 2-byte length (spec §4.1).
const SubmessageHeaderSize = 4

// SubmessageID identifies the kind of an RTPS submessage on the wire.
type SubmessageID byte

const (
	SubPad           SubmessageID = 0x01
	SubAckNack       SubmessageID = 0x06
	SubHeartbeat     SubmessageID = 0x07
	SubGap           SubmessageID = 0x08
	SubInfoTS        SubmessageID = 0x09
	SubInfoSrc       SubmessageID = 0x0c
	SubInfoReply     SubmessageID = 0x0d
	SubInfoDst       SubmessageID = 0x0e
	SubNackFrag      SubmessageID = 0x12
	SubHeartbeatFrag SubmessageID = 0x13
	SubData          SubmessageID = 0x15
	SubDataFrag      SubmessageID = 0x16
)

func (id SubmessageID) String() string {
	switch id {
	case SubPad:
		return "PAD"
	case SubAckNack:
		return "ACKNACK"
	case SubHeartbeat:
		return "HEARTBEAT"
	case SubGap:
		return "GAP"
	case SubInfoTS:
		return "INFO_TS"
	case SubInfoSrc:
		return "INFO_SRC"
	case SubInfoReply:
		return "INFO_REPLY"
	case SubInfoDst:
		return "INFO_DST"
	case SubNackFrag:
		return "NACK_FRAG"
	case SubHeartbeatFrag:
		return "HEARTBEAT_FRAG"
	case SubData:
		return "DATA"
	case SubDataFrag:
		return "DATA_FRAG"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(id))
	}
}

// flagEndianness is bit 0 of every submessage's flags byte: set means the
// submessage body (including its length field) is little-endian.
const flagEndianness = 0x01

// SubmessageHeader is the 4-byte header preceding every submessage body.
type SubmessageHeader struct {
	ID     SubmessageID
	Flags  byte
	Length uint16 // length of the body that follows, in bytes
}

func (h SubmessageHeader) LittleEndian() bool {
	return h.Flags&flagEndianness != 0
}

// RawSubmessage is a decoded submessage header plus its raw, not-yet
// type-parsed body slice (aliases the original packet buffer).
type RawSubmessage struct {
	Header SubmessageHeader
	Body   []byte
}

// IterSubmessages walks every submessage in an RTPS packet body (the bytes
// following the fixed 20-byte header), calling fn for each one in wire
// order. It stops and returns an error on the first malformed submessage
// header, matching the classifier's "stop on Invalid" rule (spec §4.3).
func IterSubmessages(body []byte, fn func(RawSubmessage) error) error {
	off := 0
	for off < len(body) {
		if len(body)-off < SubmessageHeaderSize {
			return fmt.Errorf("truncated submessage header at offset %d", off)
		}

		id := SubmessageID(body[off])
		flags := body[off+1]
		order := byteOrderFor(flags)
		length := order.Uint16(body[off+2 : off+4])

		bodyStart := off + SubmessageHeaderSize
		bodyEnd := bodyStart + int(length)
		if bodyEnd > len(body) {
			return fmt.Errorf("submessage %s body (%d bytes) overruns packet", id, length)
		}

		sub := RawSubmessage{
			Header: SubmessageHeader{ID: id, Flags: flags, Length: length},
			Body:   body[bodyStart:bodyEnd],
		}
		if err := fn(sub); err != nil {
			return err
		}

		off = bodyEnd
	}
	return nil
}

// EncodeSubmessageHeader writes a 4-byte submessage header into buf
// (little-endian, per the encoder policy in spec §4.1/§9).
func EncodeSubmessageHeader(buf []byte, id SubmessageID, flags byte, length uint16) {
	buf[0] = byte(id)
	buf[1] = flags | flagEndianness
	binary.LittleEndian.PutUint16(buf[2:4], length)
}

// --- INFO_DST / INFO_TS / INFO_SRC -----------------------------------------

// InfoDST carries the destination GUID prefix for subsequent submessages
// in the same packet (spec §4.1, §4.3).
type InfoDST struct {
	Prefix GUIDPrefix
}

func DecodeInfoDST(body []byte, order binary.ByteOrder) (InfoDST, error) {
	if len(body) < GUIDPrefixSize {
		return InfoDST{}, fmt.Errorf("INFO_DST body too short: %d bytes", len(body))
	}
	var dst InfoDST
	copy(dst.Prefix[:], body[:GUIDPrefixSize])
	return dst, nil
}

func EncodeInfoDST(dst InfoDST) []byte {
	buf := make([]byte, SubmessageHeaderSize+GUIDPrefixSize)
	EncodeSubmessageHeader(buf, SubInfoDst, 0, GUIDPrefixSize)
	copy(buf[SubmessageHeaderSize:], dst.Prefix[:])
	return buf
}

// Timestamp is an RTPS NTP-ish timestamp: seconds since epoch plus a
// fraction expressed in 2^-32 units.
type Timestamp struct {
	Seconds  uint32
	Fraction uint32
}

// InfoTS carries the source timestamp for subsequent submessages (spec §4.1).
type InfoTS struct {
	Timestamp Timestamp
	Invalid   bool
}

const flagInfoTSInvalid = 0x02

func DecodeInfoTS(header SubmessageHeader, body []byte, order binary.ByteOrder) (InfoTS, error) {
	if header.Flags&flagInfoTSInvalid != 0 {
		return InfoTS{Invalid: true}, nil
	}
	if len(body) < 8 {
		return InfoTS{}, fmt.Errorf("INFO_TS body too short: %d bytes", len(body))
	}
	return InfoTS{
		Timestamp: Timestamp{
			Seconds:  order.Uint32(body[0:4]),
			Fraction: order.Uint32(body[4:8]),
		},
	}, nil
}

func EncodeInfoTS(ts Timestamp) []byte {
	buf := make([]byte, SubmessageHeaderSize+8)
	EncodeSubmessageHeader(buf, SubInfoTS, 0, 8)
	binary.LittleEndian.PutUint32(buf[SubmessageHeaderSize:SubmessageHeaderSize+4], ts.Seconds)
	binary.LittleEndian.PutUint32(buf[SubmessageHeaderSize+4:SubmessageHeaderSize+8], ts.Fraction)
	return buf
}

// --- DATA -------------------------------------------------------------------

const (
	flagDataInlineQos = 0x02
	flagDataHasKey    = 0x04
)

// DataHeader is the fixed-layout prefix of a DATA submessage, preceding the
// optional inline-QoS parameter list and the serialized payload.
type DataHeader struct {
	ReaderID       EntityID
	WriterID       EntityID
	WriterSeqNum   SequenceNumber
	HasInlineQos   bool
	HasKeyOnlyData bool
}

// DecodeData parses a DATA submessage body up to (but not including) the
// CDR-encapsulated payload, returning the offset at which the payload
// begins within body. Inline QoS parameter lists are skipped, not parsed,
// since the core never needs to act on them (spec §4.1/§4.3: the
// classifier only needs the payload offset).
func DecodeData(header SubmessageHeader, body []byte) (DataHeader, int, error) {
	order := byteOrderFor(header.Flags)

	// extraFlags(2) + octetsToInlineQos(2) + readerId(4) + writerId(4) + seqNum(8)
	const fixedLen = 2 + 2 + 4 + 4 + 8
	if len(body) < fixedLen {
		return DataHeader{}, 0, fmt.Errorf("DATA body too short: %d bytes", len(body))
	}

	octetsToInlineQos := order.Uint16(body[2:4])
	var reader, writer EntityID
	copy(reader[:], body[4:8])
	copy(writer[:], body[8:12])
	seqHigh := int32(order.Uint32(body[12:16]))
	seqLow := order.Uint32(body[16:20])

	dh := DataHeader{
		ReaderID:       reader,
		WriterID:       writer,
		WriterSeqNum:   SequenceNumberFromWire(seqHigh, seqLow),
		HasInlineQos:   header.Flags&flagDataInlineQos != 0,
		HasKeyOnlyData: header.Flags&flagDataHasKey != 0,
	}

	// octetsToInlineQos is measured from right after that field itself.
	payloadOff := 4 + int(octetsToInlineQos)
	if payloadOff > len(body) {
		return dh, 0, fmt.Errorf("DATA octetsToInlineQos overruns body")
	}

	if dh.HasInlineQos {
		consumed, err := skipParameterList(body[payloadOff:], order)
		if err != nil {
			return dh, 0, fmt.Errorf("DATA inline qos: %w", err)
		}
		payloadOff += consumed
	}

	return dh, payloadOff, nil
}

// cdrEncapsulationLE is the 4-byte PL_CDR_LE encapsulation prefix this
// runtime stamps on every DATA submessage it emits (spec §4.1): scheme id
// 0x0003 (little-endian), 2 reserved option bytes.
var cdrEncapsulationLE = [4]byte{0x00, 0x03, 0x00, 0x00}

// EncodeData builds a DATA submessage with no inline QoS, carrying payload
// as its CDR-encapsulated serialized data (spec §4.1, §4.3). keyOnly marks
// a dispose/unregister DATA carrying only the instance key.
func EncodeData(reader, writer EntityID, seq SequenceNumber, payload []byte, keyOnly bool) []byte {
	const fixedLen = 2 + 2 + 4 + 4 + 8
	bodyLen := fixedLen + len(cdrEncapsulationLE) + len(payload)
	buf := make([]byte, SubmessageHeaderSize+bodyLen)

	flags := byte(0)
	if keyOnly {
		flags |= flagDataHasKey
	}
	EncodeSubmessageHeader(buf, SubData, flags, uint16(bodyLen))

	b := buf[SubmessageHeaderSize:]
	// extraFlags(2) left zero; octetsToInlineQos measures from right after
	// itself to the start of the payload, and with no inline QoS that is
	// exactly the readerId+writerId+seqNum fields below.
	binary.LittleEndian.PutUint16(b[2:4], uint16(4+4+8))
	copy(b[4:8], reader[:])
	copy(b[8:12], writer[:])
	high, low := seq.Wire()
	binary.LittleEndian.PutUint32(b[12:16], uint32(high))
	binary.LittleEndian.PutUint32(b[16:20], low)
	off := 20
	copy(b[off:off+4], cdrEncapsulationLE[:])
	off += 4
	copy(b[off:], payload)
	return buf
}

// CDREncapsulationHeaderSize is the 4-byte encapsulation prefix preceding
// the CDR-serialized user payload of a DATA submessage (spec §4.1, §4.3).
const CDREncapsulationHeaderSize = 4

// PayloadOffsetAfterEncapsulation advances past the 4-byte CDR
// encapsulation header that precedes the actual user payload.
func PayloadOffsetAfterEncapsulation(off int, bodyLen int) (int, error) {
	next := off + CDREncapsulationHeaderSize
	if next > bodyLen {
		return 0, fmt.Errorf("not enough bytes for CDR encapsulation header")
	}
	return next, nil
}

// --- DATA_FRAG ---------------------------------------------------------------

// FragmentMeta describes a DATA_FRAG submessage's fragmentation geometry
// (spec §4.3, §4.8).
type FragmentMeta struct {
	StartingFragmentNumber uint32
	FragmentsInSubmessage  uint16
	FragmentSize           uint16
	SampleSize             uint32
}

// DataFragHeader is the fixed-layout prefix of a DATA_FRAG submessage.
type DataFragHeader struct {
	ReaderID     EntityID
	WriterID     EntityID
	WriterSeqNum SequenceNumber
	Fragment     FragmentMeta
}

// EncodeDataFrag builds one DATA_FRAG submessage carrying a single
// fragment of an oversized sample (spec §4.3, §4.8). fragmentPayload is
// the raw slice of the original serialized sample covered by
// meta.StartingFragmentNumber; unlike EncodeData it carries no CDR
// encapsulation prefix of its own, since that prefix belongs to fragment
// 1 of the reassembled whole, not to each wire submessage.
func EncodeDataFrag(reader, writer EntityID, seq SequenceNumber, meta FragmentMeta, fragmentPayload []byte) []byte {
	const fixedLen = 2 + 2 + 4 + 4 + 8 + 4 + 2 + 2 + 4
	bodyLen := fixedLen + len(fragmentPayload)
	buf := make([]byte, SubmessageHeaderSize+bodyLen)

	EncodeSubmessageHeader(buf, SubDataFrag, 0, uint16(bodyLen))

	b := buf[SubmessageHeaderSize:]
	binary.LittleEndian.PutUint16(b[2:4], uint16(4+4+8+4+2+2+4))
	copy(b[4:8], reader[:])
	copy(b[8:12], writer[:])
	high, low := seq.Wire()
	binary.LittleEndian.PutUint32(b[12:16], uint32(high))
	binary.LittleEndian.PutUint32(b[16:20], low)
	binary.LittleEndian.PutUint32(b[20:24], meta.StartingFragmentNumber)
	binary.LittleEndian.PutUint16(b[24:26], meta.FragmentsInSubmessage)
	binary.LittleEndian.PutUint16(b[26:28], meta.FragmentSize)
	binary.LittleEndian.PutUint32(b[28:32], meta.SampleSize)
	copy(b[32:], fragmentPayload)
	return buf
}

func DecodeDataFrag(header SubmessageHeader, body []byte) (DataFragHeader, int, error) {
	order := byteOrderFor(header.Flags)

	// extraFlags(2) + octetsToInlineQos(2) + readerId(4) + writerId(4) +
	// seqNum(8) + fragmentStartingNum(4) + fragmentsInSubmessage(2) +
	// fragmentSize(2) + sampleSize(4)
	const fixedLen = 2 + 2 + 4 + 4 + 8 + 4 + 2 + 2 + 4
	if len(body) < fixedLen {
		return DataFragHeader{}, 0, fmt.Errorf("DATA_FRAG body too short: %d bytes", len(body))
	}

	var reader, writer EntityID
	copy(reader[:], body[4:8])
	copy(writer[:], body[8:12])
	seqHigh := int32(order.Uint32(body[12:16]))
	seqLow := order.Uint32(body[16:20])

	dfh := DataFragHeader{
		ReaderID:     reader,
		WriterID:     writer,
		WriterSeqNum: SequenceNumberFromWire(seqHigh, seqLow),
		Fragment: FragmentMeta{
			StartingFragmentNumber: order.Uint32(body[20:24]),
			FragmentsInSubmessage:  order.Uint16(body[24:26]),
			FragmentSize:           order.Uint16(body[26:28]),
			SampleSize:             order.Uint32(body[28:32]),
		},
	}

	return dfh, fixedLen, nil
}

// --- HEARTBEAT / ACKNACK / GAP / NACK_FRAG / HEARTBEAT_FRAG -----------------

const flagFinal = 0x02

// Heartbeat is a decoded HEARTBEAT submessage (spec §4.7).
type Heartbeat struct {
	ReaderID  EntityID
	WriterID  EntityID
	FirstSeq  SequenceNumber
	LastSeq   SequenceNumber
	Count     int32
	IsFinal   bool
}

func DecodeHeartbeat(header SubmessageHeader, body []byte) (Heartbeat, error) {
	order := byteOrderFor(header.Flags)
	const fixedLen = 4 + 4 + 8 + 8 + 4
	if len(body) < fixedLen {
		return Heartbeat{}, fmt.Errorf("HEARTBEAT body too short: %d bytes", len(body))
	}

	var reader, writer EntityID
	copy(reader[:], body[0:4])
	copy(writer[:], body[4:8])

	firstHigh := int32(order.Uint32(body[8:12]))
	firstLow := order.Uint32(body[12:16])
	lastHigh := int32(order.Uint32(body[16:20]))
	lastLow := order.Uint32(body[20:24])
	count := int32(order.Uint32(body[24:28]))

	return Heartbeat{
		ReaderID: reader,
		WriterID: writer,
		FirstSeq: SequenceNumberFromWire(firstHigh, firstLow),
		LastSeq:  SequenceNumberFromWire(lastHigh, lastLow),
		Count:    count,
		IsFinal:  header.Flags&flagFinal != 0,
	}, nil
}

func EncodeHeartbeat(hb Heartbeat) []byte {
	const bodyLen = 4 + 4 + 8 + 8 + 4
	buf := make([]byte, SubmessageHeaderSize+bodyLen)

	flags := byte(0)
	if hb.IsFinal {
		flags |= flagFinal
	}
	EncodeSubmessageHeader(buf, SubHeartbeat, flags, bodyLen)

	b := buf[SubmessageHeaderSize:]
	copy(b[0:4], hb.ReaderID[:])
	copy(b[4:8], hb.WriterID[:])
	firstHigh, firstLow := hb.FirstSeq.Wire()
	lastHigh, lastLow := hb.LastSeq.Wire()
	binary.LittleEndian.PutUint32(b[8:12], uint32(firstHigh))
	binary.LittleEndian.PutUint32(b[12:16], firstLow)
	binary.LittleEndian.PutUint32(b[16:20], uint32(lastHigh))
	binary.LittleEndian.PutUint32(b[20:24], lastLow)
	binary.LittleEndian.PutUint32(b[24:28], uint32(hb.Count))
	return buf
}

// AckNack is a decoded ACKNACK submessage (spec §4.7).
type AckNack struct {
	ReaderID    EntityID
	WriterID    EntityID
	BitmapBase  SequenceNumber
	Missing     []uint32 // offsets from BitmapBase of missing sequence numbers
	Count       int32
	Final       bool
}

func DecodeAckNack(header SubmessageHeader, body []byte) (AckNack, error) {
	order := byteOrderFor(header.Flags)
	const fixedLen = 4 + 4 + 8 + 4 // readerId + writerId + bitmapBase + numBits
	if len(body) < fixedLen {
		return AckNack{}, fmt.Errorf("ACKNACK body too short: %d bytes", len(body))
	}

	var reader, writer EntityID
	copy(reader[:], body[0:4])
	copy(writer[:], body[4:8])

	baseHigh := int32(order.Uint32(body[8:12]))
	baseLow := order.Uint32(body[12:16])
	numBits := order.Uint32(body[16:20])

	numWords := int((numBits + 31) / 32)
	off := 20
	missing := make([]uint32, 0, numBits)
	for w := 0; w < numWords; w++ {
		if off+4 > len(body) {
			return AckNack{}, fmt.Errorf("ACKNACK bitmap truncated")
		}
		word := order.Uint32(body[off : off+4])
		off += 4
		for bit := 0; bit < 32; bit++ {
			idx := uint32(w*32 + bit)
			if idx >= numBits {
				break
			}
			if word&(1<<(31-uint(bit))) != 0 {
				missing = append(missing, idx)
			}
		}
	}

	count := int32(0)
	if off+4 <= len(body) {
		count = int32(order.Uint32(body[off : off+4]))
	}

	return AckNack{
		ReaderID:   reader,
		WriterID:   writer,
		BitmapBase: SequenceNumberFromWire(baseHigh, baseLow),
		Missing:    missing,
		Count:      count,
		Final:      header.Flags&flagFinal != 0,
	}, nil
}

func EncodeAckNack(an AckNack) []byte {
	maxOffset := uint32(0)
	for _, m := range an.Missing {
		if m+1 > maxOffset {
			maxOffset = m + 1
		}
	}
	numWords := int((maxOffset + 31) / 32)
	bodyLen := 4 + 4 + 8 + 4 + numWords*4 + 4

	buf := make([]byte, SubmessageHeaderSize+bodyLen)
	flags := byte(0)
	if an.Final {
		flags |= flagFinal
	}
	EncodeSubmessageHeader(buf, SubAckNack, flags, uint16(bodyLen))

	b := buf[SubmessageHeaderSize:]
	copy(b[0:4], an.ReaderID[:])
	copy(b[4:8], an.WriterID[:])
	baseHigh, baseLow := an.BitmapBase.Wire()
	binary.LittleEndian.PutUint32(b[8:12], uint32(baseHigh))
	binary.LittleEndian.PutUint32(b[12:16], baseLow)
	binary.LittleEndian.PutUint32(b[16:20], maxOffset)

	words := make([]uint32, numWords)
	for _, m := range an.Missing {
		words[m/32] |= 1 << (31 - (m % 32))
	}
	off := 20
	for _, w := range words {
		binary.LittleEndian.PutUint32(b[off:off+4], w)
		off += 4
	}
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(an.Count))

	return buf
}

// Gap is a decoded GAP submessage: the writer declares [GapStart, GapEnd)
// as permanently unavailable (spec §4.7).
type Gap struct {
	ReaderID EntityID
	WriterID EntityID
	GapStart SequenceNumber
	GapEnd   SequenceNumber // exclusive
}

func DecodeGap(header SubmessageHeader, body []byte) (Gap, error) {
	order := byteOrderFor(header.Flags)
	const fixedLen = 4 + 4 + 8 + 8
	if len(body) < fixedLen {
		return Gap{}, fmt.Errorf("GAP body too short: %d bytes", len(body))
	}

	var reader, writer EntityID
	copy(reader[:], body[0:4])
	copy(writer[:], body[4:8])
	startHigh := int32(order.Uint32(body[8:12]))
	startLow := order.Uint32(body[12:16])
	endHigh := int32(order.Uint32(body[16:20]))
	endLow := order.Uint32(body[20:24])

	return Gap{
		ReaderID: reader,
		WriterID: writer,
		GapStart: SequenceNumberFromWire(startHigh, startLow),
		GapEnd:   SequenceNumberFromWire(endHigh, endLow),
	}, nil
}

func EncodeGap(g Gap) []byte {
	const bodyLen = 4 + 4 + 8 + 8
	buf := make([]byte, SubmessageHeaderSize+bodyLen)
	EncodeSubmessageHeader(buf, SubGap, 0, bodyLen)

	b := buf[SubmessageHeaderSize:]
	copy(b[0:4], g.ReaderID[:])
	copy(b[4:8], g.WriterID[:])
	startHigh, startLow := g.GapStart.Wire()
	endHigh, endLow := g.GapEnd.Wire()
	binary.LittleEndian.PutUint32(b[8:12], uint32(startHigh))
	binary.LittleEndian.PutUint32(b[12:16], startLow)
	binary.LittleEndian.PutUint32(b[16:20], uint32(endHigh))
	binary.LittleEndian.PutUint32(b[20:24], endLow)
	return buf
}

// NackFrag is a decoded NACK_FRAG submessage (spec §4.8).
type NackFrag struct {
	ReaderID       EntityID
	WriterID       EntityID
	WriterSeqNum   SequenceNumber
	MissingFrags   []uint32
	Count          int32
}

func DecodeNackFrag(header SubmessageHeader, body []byte) (NackFrag, error) {
	order := byteOrderFor(header.Flags)
	const fixedLen = 4 + 4 + 8 + 4
	if len(body) < fixedLen {
		return NackFrag{}, fmt.Errorf("NACK_FRAG body too short: %d bytes", len(body))
	}

	var reader, writer EntityID
	copy(reader[:], body[0:4])
	copy(writer[:], body[4:8])
	seqHigh := int32(order.Uint32(body[8:12]))
	seqLow := order.Uint32(body[12:16])
	numBits := order.Uint32(body[16:20])

	numWords := int((numBits + 31) / 32)
	off := 20
	missing := make([]uint32, 0, numBits)
	for w := 0; w < numWords; w++ {
		if off+4 > len(body) {
			return NackFrag{}, fmt.Errorf("NACK_FRAG bitmap truncated")
		}
		word := order.Uint32(body[off : off+4])
		off += 4
		for bit := 0; bit < 32; bit++ {
			idx := uint32(w*32 + bit)
			if idx >= numBits {
				break
			}
			if word&(1<<(31-uint(bit))) != 0 {
				missing = append(missing, idx+1) // fragment numbers are 1-based
			}
		}
	}

	count := int32(0)
	if off+4 <= len(body) {
		count = int32(order.Uint32(body[off : off+4]))
	}

	return NackFrag{
		ReaderID:     reader,
		WriterID:     writer,
		WriterSeqNum: SequenceNumberFromWire(seqHigh, seqLow),
		MissingFrags: missing,
		Count:        count,
	}, nil
}

func EncodeNackFrag(nf NackFrag) []byte {
	maxOffset := uint32(0)
	for _, m := range nf.MissingFrags {
		if m > maxOffset {
			maxOffset = m
		}
	}
	numWords := int((maxOffset + 31) / 32)
	bodyLen := 4 + 4 + 8 + 4 + numWords*4 + 4

	buf := make([]byte, SubmessageHeaderSize+bodyLen)
	EncodeSubmessageHeader(buf, SubNackFrag, 0, uint16(bodyLen))

	b := buf[SubmessageHeaderSize:]
	copy(b[0:4], nf.ReaderID[:])
	copy(b[4:8], nf.WriterID[:])
	seqHigh, seqLow := nf.WriterSeqNum.Wire()
	binary.LittleEndian.PutUint32(b[8:12], uint32(seqHigh))
	binary.LittleEndian.PutUint32(b[12:16], seqLow)
	binary.LittleEndian.PutUint32(b[16:20], maxOffset)

	words := make([]uint32, numWords)
	for _, m := range nf.MissingFrags {
		idx := m - 1
		words[idx/32] |= 1 << (31 - (idx % 32))
	}
	off := 20
	for _, w := range words {
		binary.LittleEndian.PutUint32(b[off:off+4], w)
		off += 4
	}
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(nf.Count))

	return buf
}

// HeartbeatFrag is a decoded HEARTBEAT_FRAG submessage (spec §4.8).
type HeartbeatFrag struct {
	ReaderID        EntityID
	WriterID        EntityID
	WriterSeqNum    SequenceNumber
	LastFragmentNum uint32
	Count           int32
}

func DecodeHeartbeatFrag(header SubmessageHeader, body []byte) (HeartbeatFrag, error) {
	order := byteOrderFor(header.Flags)
	const fixedLen = 4 + 4 + 8 + 4 + 4
	if len(body) < fixedLen {
		return HeartbeatFrag{}, fmt.Errorf("HEARTBEAT_FRAG body too short: %d bytes", len(body))
	}

	var reader, writer EntityID
	copy(reader[:], body[0:4])
	copy(writer[:], body[4:8])
	seqHigh := int32(order.Uint32(body[8:12]))
	seqLow := order.Uint32(body[12:16])
	lastFrag := order.Uint32(body[16:20])
	count := int32(order.Uint32(body[20:24]))

	return HeartbeatFrag{
		ReaderID:        reader,
		WriterID:        writer,
		WriterSeqNum:    SequenceNumberFromWire(seqHigh, seqLow),
		LastFragmentNum: lastFrag,
		Count:           count,
	}, nil
}
