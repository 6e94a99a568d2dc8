package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds/internal/wire"
)

func samplePacket(t *testing.T, submessages ...[]byte) []byte {
	t.Helper()
	var prefix wire.GUIDPrefix
	for i := range prefix {
		prefix[i] = byte(i + 1)
	}
	header := wire.PacketHeader{Version: wire.ProtocolVersion23, Vendor: wire.HDDSVendorID, Prefix: prefix}

	buf := make([]byte, wire.HeaderSize)
	require.NoError(t, wire.EncodeHeader(buf, header))
	for _, sub := range submessages {
		buf = append(buf, sub...)
	}
	return buf
}

func Test_ClassifyDeterministic(t *testing.T) {
	hb := wire.EncodeHeartbeat(wire.Heartbeat{
		ReaderID: wire.NewEntityID(1, wire.EntityKindReaderWithKey),
		WriterID: wire.NewEntityID(2, wire.EntityKindWriterWithKey),
		FirstSeq: 1,
		LastSeq:  5,
	})
	buf := samplePacket(t, hb)

	a := Classify(buf)
	b := Classify(buf)
	assert.Equal(t, a, b)
}

func Test_ClassifyHeartbeat(t *testing.T) {
	hb := wire.EncodeHeartbeat(wire.Heartbeat{
		ReaderID: wire.NewEntityID(1, wire.EntityKindReaderWithKey),
		WriterID: wire.NewEntityID(2, wire.EntityKindWriterWithKey),
		FirstSeq: 1,
		LastSeq:  5,
	})
	buf := samplePacket(t, hb)

	pkt := Classify(buf)
	require.Len(t, pkt.Submessages, 1)
	assert.Equal(t, KindHeartbeat, pkt.Submessages[0].Kind)
}

func Test_ClassifyInvalidHeader(t *testing.T) {
	pkt := Classify([]byte("not an rtps packet at all"))
	require.Len(t, pkt.Submessages, 1)
	assert.Equal(t, KindInvalid, pkt.Submessages[0].Kind)
}

func Test_ClassifyInfoDstAccumulatesContext(t *testing.T) {
	var dstPrefix wire.GUIDPrefix
	for i := range dstPrefix {
		dstPrefix[i] = byte(0x80 + i)
	}
	infoDst := wire.EncodeInfoDST(wire.InfoDST{Prefix: dstPrefix})
	hb := wire.EncodeHeartbeat(wire.Heartbeat{
		ReaderID: wire.NewEntityID(1, wire.EntityKindReaderWithKey),
		WriterID: wire.NewEntityID(2, wire.EntityKindWriterWithKey),
	})
	buf := samplePacket(t, infoDst, hb)

	pkt := Classify(buf)
	require.Len(t, pkt.Submessages, 2)
	require.NotNil(t, pkt.Submessages[1].Context.DestinationPrefix)
	assert.Equal(t, dstPrefix, *pkt.Submessages[1].Context.DestinationPrefix)
}

func Test_ClassifyRefinesSPDP(t *testing.T) {
	bodyLen := uint16(20 + 4) // fixed DATA fields + empty CDR encapsulation
	dataHeader := make([]byte, 4+int(bodyLen))
	// flags: littleEndian only, no inline qos/key
	dataHeader[0] = byte(wire.SubData)
	dataHeader[1] = 0x01
	dataHeader[2] = byte(bodyLen)
	dataHeader[3] = byte(bodyLen >> 8)

	body := dataHeader[4:]
	// extraFlags(2) + octetsToInlineQos(2)
	body[2] = 16
	body[3] = 0
	readerID := wire.NewEntityID(0, wire.EntityKindUnknown)
	writerID := wire.NewEntityID(0x000100, wire.EntityKindSEDPPubWriter)
	copy(body[4:8], readerID[:])
	copy(body[8:12], writerID[:])
	// seq num high/low left zero
	// 4-byte CDR encapsulation header (zeroed) follows within bodyLen

	buf := samplePacket(t, dataHeader)
	pkt := Classify(buf)
	require.Len(t, pkt.Submessages, 1)
	assert.Equal(t, KindSPDP, pkt.Submessages[0].Kind)
}

func Test_ClassifyRefinesTypeLookup(t *testing.T) {
	bodyLen := uint16(20 + 4) // fixed DATA fields + empty CDR encapsulation
	dataHeader := make([]byte, 4+int(bodyLen))
	// flags: littleEndian only, no inline qos/key
	dataHeader[0] = byte(wire.SubData)
	dataHeader[1] = 0x01
	dataHeader[2] = byte(bodyLen)
	dataHeader[3] = byte(bodyLen >> 8)

	body := dataHeader[4:]
	// extraFlags(2) + octetsToInlineQos(2)
	body[2] = 16
	body[3] = 0
	readerID := wire.NewEntityID(0, wire.EntityKindUnknown)
	writerID := wire.EntityIDTypeLookupReqWriter
	copy(body[4:8], readerID[:])
	copy(body[8:12], writerID[:])
	// seq num high/low left zero
	// 4-byte CDR encapsulation header (zeroed) follows within bodyLen

	buf := samplePacket(t, dataHeader)
	pkt := Classify(buf)
	require.Len(t, pkt.Submessages, 1)
	assert.Equal(t, KindTypeLookup, pkt.Submessages[0].Kind)
}
