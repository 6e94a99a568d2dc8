package wire

// AssemblePacket concatenates a fixed RTPS header followed by each already
// wire-encoded submessage, in order, into one packet ready to hand to a
// UDP socket (spec §4.1). Each element of submessages is expected to be
// the output of one of the EncodeXxx functions (header bytes included).
func AssemblePacket(header PacketHeader, submessages ...[]byte) []byte {
	total := HeaderSize
	for _, s := range submessages {
		total += len(s)
	}

	buf := make([]byte, total)
	_ = EncodeHeader(buf, header)

	off := HeaderSize
	for _, s := range submessages {
		off += copy(buf[off:], s)
	}
	return buf
}
