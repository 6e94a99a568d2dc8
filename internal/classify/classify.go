// Package classify implements the packet classifier (spec §4.3): a pure
// function from an RTPS packet slice to a kind tag, CDR payload offset,
// fragment metadata, and accumulated INFO_DST/INFO_TS context.
package classify

import (
	"encoding/binary"

	"github.com/hdds-team/hdds/internal/wire"
)

// Kind is the classifier's output tag for one submessage within a packet.
type Kind int

const (
	KindUnknown Kind = iota
	KindData
	KindDataFrag
	KindHeartbeat
	KindAckNack
	KindGap
	KindNackFrag
	KindHeartbeatFrag
	KindInfoTS
	KindInfoSrc
	KindInfoDst
	KindInfoReply
	KindPad
	KindSPDP
	KindSEDP
	KindTypeLookup
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "Data"
	case KindDataFrag:
		return "DataFrag"
	case KindHeartbeat:
		return "Heartbeat"
	case KindAckNack:
		return "AckNack"
	case KindGap:
		return "Gap"
	case KindNackFrag:
		return "NackFrag"
	case KindHeartbeatFrag:
		return "HeartbeatFrag"
	case KindInfoTS:
		return "InfoTs"
	case KindInfoSrc:
		return "InfoSrc"
	case KindInfoDst:
		return "InfoDst"
	case KindInfoReply:
		return "InfoReply"
	case KindPad:
		return "Pad"
	case KindSPDP:
		return "SPDP"
	case KindSEDP:
		return "SEDP"
	case KindTypeLookup:
		return "TypeLookup"
	case KindInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// Well-known writer entity keys that refine a DATA submessage's kind into
// SPDP, SEDP, or TypeLookup (spec §4.3).
const (
	spdpWriterKey        = 0x000100
	sedpPublicationsKey  = 0x000003
	sedpSubscriptionsKey = 0x000004
	typeLookupRequestKey = 0x000200
	typeLookupReplyKey   = 0x000201
)

// FragmentMetadata mirrors wire.FragmentMeta for a classified DATA_FRAG
// submessage.
type FragmentMetadata struct {
	StartingFragmentNumber uint32
	FragmentsInSubmessage  uint16
	FragmentSize           uint16
	SampleSize             uint32
}

// Context accumulates INFO_DST/INFO_TS state seen earlier in the same
// packet (spec §4.3: "stateful only within one packet").
type Context struct {
	DestinationPrefix *wire.GUIDPrefix
	SourceTimestamp   *wire.Timestamp
}

// Submessage is one classified submessage from a packet.
type Submessage struct {
	Kind Kind

	// WriterID/ReaderID are populated for DATA/DATA_FRAG/HEARTBEAT/ACKNACK/
	// GAP/NACK_FRAG/HEARTBEAT_FRAG; zero value otherwise.
	WriterID wire.EntityID
	ReaderID wire.EntityID

	// PayloadOffset points into sub.Body at the start of the user payload:
	// past the DATA submessage header and the 4-byte CDR encapsulation
	// prefix for KindData, or past the DATA_FRAG header (fragments carry
	// no per-fragment encapsulation prefix) for KindDataFrag.
	PayloadOffset int

	// Fragment is populated for KindDataFrag.
	Fragment FragmentMetadata

	// WriterSeqNum is populated for DATA, DATA_FRAG, HEARTBEAT, NACK_FRAG,
	// HEARTBEAT_FRAG.
	WriterSeqNum wire.SequenceNumber

	// Body is the raw submessage body, for decoders further down the
	// pipeline (reliability engine, fragment reassembler) that need the
	// full submessage rather than just its classified summary.
	Body []byte

	// Header is the raw submessage header, carried alongside Body so a
	// downstream decoder (reliability engine, fragment reassembler) can
	// re-run the full wire.DecodeXxx for fields the classifier's summary
	// doesn't carry (e.g. HEARTBEAT's FirstSeq, ACKNACK's BitmapBase/
	// Missing bitmap).
	Header wire.SubmessageHeader

	// Context is the INFO_DST/INFO_TS state accumulated up to and
	// including this submessage.
	Context Context
}

// Packet is the classifier's result for an entire RTPS packet: its header
// plus every submessage it contains, in wire order.
type Packet struct {
	Header      wire.PacketHeader
	Submessages []Submessage
}

// Classify parses buf as one RTPS packet and classifies every submessage
// within it. On a malformed header or any malformed submessage it returns
// a single Submessage of KindInvalid and stops — the packet is dropped in
// its entirety (spec §4.3: "on Invalid the classifier stops").
//
// Classify is a pure function: Classify(P) == Classify(P) for the same
// bytes, independent of call order or prior state (spec §8 "Classifier
// determinism").
func Classify(buf []byte) Packet {
	header, err := wire.DecodeHeader(buf)
	if err != nil {
		return Packet{Submessages: []Submessage{{Kind: KindInvalid}}}
	}

	body := buf[wire.HeaderSize:]
	pkt := Packet{Header: header}

	var ctx Context
	walkErr := wire.IterSubmessages(body, func(sub wire.RawSubmessage) error {
		classified, nextCtx, err := classifyOne(sub, ctx)
		if err != nil {
			pkt.Submessages = append(pkt.Submessages, Submessage{Kind: KindInvalid})
			return err
		}
		ctx = nextCtx
		classified.Context = ctx
		pkt.Submessages = append(pkt.Submessages, classified)
		return nil
	})
	if walkErr != nil {
		return Packet{Submessages: []Submessage{{Kind: KindInvalid}}}
	}

	return pkt
}

func classifyOne(sub wire.RawSubmessage, ctx Context) (Submessage, Context, error) {
	switch sub.Header.ID {
	case wire.SubInfoDst:
		dst, err := wire.DecodeInfoDST(sub.Body, byteOrder(sub.Header))
		if err != nil {
			return Submessage{}, ctx, err
		}
		ctx.DestinationPrefix = &dst.Prefix
		return Submessage{Kind: KindInfoDst, Body: sub.Body, Header: sub.Header}, ctx, nil

	case wire.SubInfoTS:
		ts, err := wire.DecodeInfoTS(sub.Header, sub.Body, byteOrder(sub.Header))
		if err != nil {
			return Submessage{}, ctx, err
		}
		if !ts.Invalid {
			ctx.SourceTimestamp = &ts.Timestamp
		}
		return Submessage{Kind: KindInfoTS, Body: sub.Body, Header: sub.Header}, ctx, nil

	case wire.SubInfoSrc:
		return Submessage{Kind: KindInfoSrc, Body: sub.Body, Header: sub.Header}, ctx, nil

	case wire.SubInfoReply:
		return Submessage{Kind: KindInfoReply, Body: sub.Body, Header: sub.Header}, ctx, nil

	case wire.SubPad:
		return Submessage{Kind: KindPad, Body: sub.Body, Header: sub.Header}, ctx, nil

	case wire.SubData:
		dh, payloadOff, err := wire.DecodeData(sub.Header, sub.Body)
		if err != nil {
			return Submessage{}, ctx, err
		}
		payloadOff, err = wire.PayloadOffsetAfterEncapsulation(payloadOff, len(sub.Body))
		if err != nil {
			return Submessage{}, ctx, err
		}

		kind := refineDataKind(dh.WriterID)
		return Submessage{
			Kind:          kind,
			WriterID:      dh.WriterID,
			ReaderID:      dh.ReaderID,
			WriterSeqNum:  dh.WriterSeqNum,
			PayloadOffset: payloadOff,
			Body:          sub.Body,
			Header:        sub.Header,
		}, ctx, nil

	case wire.SubDataFrag:
		dfh, payloadOff, err := wire.DecodeDataFrag(sub.Header, sub.Body)
		if err != nil {
			return Submessage{}, ctx, err
		}
		return Submessage{
			Kind:         KindDataFrag,
			WriterID:     dfh.WriterID,
			ReaderID:     dfh.ReaderID,
			WriterSeqNum: dfh.WriterSeqNum,
			Fragment: FragmentMetadata{
				StartingFragmentNumber: dfh.Fragment.StartingFragmentNumber,
				FragmentsInSubmessage:  dfh.Fragment.FragmentsInSubmessage,
				FragmentSize:           dfh.Fragment.FragmentSize,
				SampleSize:             dfh.Fragment.SampleSize,
			},
			PayloadOffset: payloadOff,
			Body:          sub.Body,
			Header:        sub.Header,
		}, ctx, nil

	case wire.SubHeartbeat:
		hb, err := wire.DecodeHeartbeat(sub.Header, sub.Body)
		if err != nil {
			return Submessage{}, ctx, err
		}
		return Submessage{
			Kind:         KindHeartbeat,
			WriterID:     hb.WriterID,
			ReaderID:     hb.ReaderID,
			WriterSeqNum: hb.LastSeq,
			Body:         sub.Body,
			Header:       sub.Header,
		}, ctx, nil

	case wire.SubAckNack:
		an, err := wire.DecodeAckNack(sub.Header, sub.Body)
		if err != nil {
			return Submessage{}, ctx, err
		}
		return Submessage{Kind: KindAckNack, WriterID: an.WriterID, ReaderID: an.ReaderID, Body: sub.Body, Header: sub.Header}, ctx, nil

	case wire.SubGap:
		g, err := wire.DecodeGap(sub.Header, sub.Body)
		if err != nil {
			return Submessage{}, ctx, err
		}
		return Submessage{Kind: KindGap, WriterID: g.WriterID, ReaderID: g.ReaderID, Body: sub.Body, Header: sub.Header}, ctx, nil

	case wire.SubNackFrag:
		nf, err := wire.DecodeNackFrag(sub.Header, sub.Body)
		if err != nil {
			return Submessage{}, ctx, err
		}
		return Submessage{
			Kind:         KindNackFrag,
			WriterID:     nf.WriterID,
			ReaderID:     nf.ReaderID,
			WriterSeqNum: nf.WriterSeqNum,
			Body:         sub.Body,
			Header:       sub.Header,
		}, ctx, nil

	case wire.SubHeartbeatFrag:
		hf, err := wire.DecodeHeartbeatFrag(sub.Header, sub.Body)
		if err != nil {
			return Submessage{}, ctx, err
		}
		return Submessage{
			Kind:         KindHeartbeatFrag,
			WriterID:     hf.WriterID,
			ReaderID:     hf.ReaderID,
			WriterSeqNum: hf.WriterSeqNum,
			Body:         sub.Body,
			Header:       sub.Header,
		}, ctx, nil

	default:
		return Submessage{Kind: KindUnknown, Body: sub.Body, Header: sub.Header}, ctx, nil
	}
}

// refineDataKind distinguishes SPDP/SEDP announcements from plain user
// DATA based on the writer entity id (spec §4.3).
func refineDataKind(writer wire.EntityID) Kind {
	switch writer.Key() {
	case spdpWriterKey:
		return KindSPDP
	case sedpPublicationsKey, sedpSubscriptionsKey:
		return KindSEDP
	case typeLookupRequestKey, typeLookupReplyKey:
		return KindTypeLookup
	default:
		return KindData
	}
}

func byteOrder(h wire.SubmessageHeader) binary.ByteOrder {
	if h.LittleEndian() {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
