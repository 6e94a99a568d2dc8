package wire

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EncodeDataRoundTripsThroughDecodeData(t *testing.T) {
	reader := NewEntityID(0x11, EntityKindReaderNoKey)
	writer := NewEntityID(0x12, EntityKindWriterNoKey)
	payload := []byte("hello")

	buf := EncodeData(reader, writer, SequenceNumber(42), payload, false)

	header, err := parseOneSubmessageHeader(buf)
	require.NoError(t, err)

	dh, payloadOff, err := DecodeData(header, buf[SubmessageHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, reader, dh.ReaderID)
	assert.Equal(t, writer, dh.WriterID)
	assert.Equal(t, SequenceNumber(42), dh.WriterSeqNum)
	assert.False(t, dh.HasKeyOnlyData)

	payloadOff, err = PayloadOffsetAfterEncapsulation(payloadOff, len(buf[SubmessageHeaderSize:]))
	require.NoError(t, err)
	assert.Equal(t, payload, buf[SubmessageHeaderSize:][payloadOff:])
}

func Test_AssemblePacketConcatenatesHeaderAndSubmessages(t *testing.T) {
	header := PacketHeader{Version: ProtocolVersion23, Vendor: HDDSVendorID}
	sub := EncodeInfoDST(InfoDST{Prefix: GUIDPrefix{1, 2, 3}})

	packet := AssemblePacket(header, sub)

	assert.Len(t, packet, HeaderSize+len(sub))
	got, err := DecodeHeader(packet)
	require.NoError(t, err)
	assert.Equal(t, header, got)
	assert.Equal(t, sub, packet[HeaderSize:])
}

func parseOneSubmessageHeader(buf []byte) (SubmessageHeader, error) {
	if len(buf) < SubmessageHeaderSize {
		return SubmessageHeader{}, fmt.Errorf("submessage header truncated")
	}
	id := SubmessageID(buf[0])
	flags := buf[1]
	length := byteOrderFor(flags).Uint16(buf[2:4])
	return SubmessageHeader{ID: id, Flags: flags, Length: length}, nil
}
