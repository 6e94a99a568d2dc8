package discovery

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds/internal/wire"
)

func guidFromBytes(b ...byte) wire.GUID {
	var full [16]byte
	copy(full[:], b)
	g, err := wire.GUIDFromBytes(full[:])
	if err != nil {
		panic(err)
	}
	return g
}

func Test_SPDPRoundTrip(t *testing.T) {
	local := guidFromBytes(0xff)
	e := New(local)

	p1 := guidFromBytes(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 0, 0, 1, 0xc1)
	e.HandleSPDP(SpdpData{
		ParticipantGUID:    p1,
		LeaseDuration:      30 * time.Second,
		MetatrafficUnicast: []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:7410")},
	}, time.Now())

	_, ok := e.Participants().Get(p1)
	require.True(t, ok)

	dest, ok := e.Endpoints().Lookup(p1)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:7410", dest.String())
	assert.Equal(t, uint64(1), e.Metrics().ParticipantsDiscovered)
}

func Test_SPDPIgnoresSelf(t *testing.T) {
	local := guidFromBytes(0xaa)
	e := New(local)

	e.HandleSPDP(SpdpData{ParticipantGUID: local, LeaseDuration: time.Second}, time.Now())

	assert.Equal(t, 0, e.Participants().Len())
	assert.Equal(t, uint64(0), e.Metrics().ParticipantsDiscovered)
}

func Test_SEDPWithoutPriorSPDPIsIgnored(t *testing.T) {
	local := guidFromBytes(0xaa)
	e := New(local)

	remotePrefix := [12]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	endpointGUID := wire.NewGUID(remotePrefix, wire.NewEntityID(1, wire.EntityKindWriterWithKey))

	e.HandleSEDP(SedpData{EndpointGUID: endpointGUID, TopicName: "chatter"}, EndpointWriter, time.Now())

	assert.Empty(t, e.Topics().CompatibleWriters(EndpointInfo{TopicName: "chatter"}))
	assert.Equal(t, uint64(1), e.Metrics().SEDPReceived)
}

func Test_EndpointMatchingNotifiesListener(t *testing.T) {
	local := guidFromBytes(0x01)
	var matched [][2]EndpointInfo

	e := New(local, WithListener(func(writer, reader EndpointInfo) {
		matched = append(matched, [2]EndpointInfo{writer, reader})
	}))

	remotePrefix := [12]byte{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}
	remoteGUID := wire.ParticipantGUID(remotePrefix)
	e.HandleSPDP(SpdpData{ParticipantGUID: remoteGUID, LeaseDuration: 30 * time.Second}, time.Now())

	writerGUID := wire.NewGUID(local.Prefix, wire.NewEntityID(1, wire.EntityKindWriterWithKey))
	e.HandleSEDP(SedpData{EndpointGUID: writerGUID, TopicName: "chatter", QoS: DefaultQoS()}, EndpointWriter, time.Now())

	readerGUID := wire.NewGUID(remotePrefix, wire.NewEntityID(2, wire.EntityKindReaderWithKey))
	e.HandleSEDP(SedpData{EndpointGUID: readerGUID, TopicName: "chatter", QoS: DefaultQoS()}, EndpointReader, time.Now())

	require.Len(t, matched, 1)
	assert.Equal(t, writerGUID, matched[0][0].EndpointGUID)
	assert.Equal(t, readerGUID, matched[0][1].EndpointGUID)
}

func Test_EndpointMatchingSurvivesPanicInOneListener(t *testing.T) {
	local := guidFromBytes(0x01)
	var matched [][2]EndpointInfo

	e := New(local,
		WithListener(func(EndpointInfo, EndpointInfo) { panic("boom") }),
		WithListener(func(writer, reader EndpointInfo) {
			matched = append(matched, [2]EndpointInfo{writer, reader})
		}),
	)

	remotePrefix := [12]byte{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}
	remoteGUID := wire.ParticipantGUID(remotePrefix)
	e.HandleSPDP(SpdpData{ParticipantGUID: remoteGUID, LeaseDuration: 30 * time.Second}, time.Now())

	writerGUID := wire.NewGUID(local.Prefix, wire.NewEntityID(1, wire.EntityKindWriterWithKey))
	e.HandleSEDP(SedpData{EndpointGUID: writerGUID, TopicName: "chatter", QoS: DefaultQoS()}, EndpointWriter, time.Now())

	readerGUID := wire.NewGUID(remotePrefix, wire.NewEntityID(2, wire.EntityKindReaderWithKey))
	e.HandleSEDP(SedpData{EndpointGUID: readerGUID, TopicName: "chatter", QoS: DefaultQoS()}, EndpointReader, time.Now())

	// The panicking first listener must not stop the second from running.
	require.Len(t, matched, 1)
}

func Test_QoSCompatibility(t *testing.T) {
	reliable := QoS{Reliability: ReliabilityReliable}
	bestEffort := QoS{Reliability: ReliabilityBestEffort}

	assert.True(t, qosCompatible(reliable, reliable))
	assert.True(t, qosCompatible(reliable, bestEffort))
	assert.False(t, qosCompatible(bestEffort, reliable))
	assert.True(t, qosCompatible(bestEffort, bestEffort))
}

func Test_DurabilityCompatibility(t *testing.T) {
	writerVolatile := QoS{Durability: DurabilityVolatile}
	readerTransientLocal := QoS{Durability: DurabilityTransientLocal}
	writerPersistent := QoS{Durability: DurabilityPersistent}

	assert.False(t, qosCompatible(writerVolatile, readerTransientLocal))
	assert.True(t, qosCompatible(writerPersistent, readerTransientLocal))
}

func Test_PartitionCompatibility(t *testing.T) {
	assert.True(t, partitionsIntersect(nil, nil))
	assert.False(t, partitionsIntersect([]string{"a"}, []string{"b"}))
	assert.True(t, partitionsIntersect([]string{"a", "b"}, []string{"b", "c"}))
	assert.True(t, partitionsIntersect([]string{"sensor.*"}, []string{"sensor.temp"}))
}

func Test_LeaseExpiry(t *testing.T) {
	local := guidFromBytes(0xaa)
	e := New(local)

	remote := wire.ParticipantGUID([12]byte{3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3})
	start := time.Now()
	e.HandleSPDP(SpdpData{ParticipantGUID: remote, LeaseDuration: 100 * time.Millisecond}, start)

	tracker := NewLeaseTracker(e, 100*time.Millisecond)
	tracker.tick(start.Add(150 * time.Millisecond))

	_, ok := e.Participants().Get(remote)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), e.Metrics().ParticipantsExpired)
}

func Test_NoSelfDiscoveryAcrossMultipleAnnouncements(t *testing.T) {
	local := guidFromBytes(0x01)
	e := New(local)

	for i := 0; i < 3; i++ {
		e.HandleSPDP(SpdpData{ParticipantGUID: local, LeaseDuration: time.Second}, time.Now())
	}
	assert.Equal(t, 0, e.Participants().Len())
}
