package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds/internal/discovery"
	"github.com/hdds-team/hdds/internal/wire"
)

func Test_EngineHandleHeartbeatProducesAckNackWithMissingOffsets(t *testing.T) {
	e := NewEngine()

	writer := wire.GUID{EntityID: wire.NewEntityID(1, wire.EntityKindWriterWithKey)}
	reader := wire.GUID{EntityID: wire.NewEntityID(2, wire.EntityKindReaderWithKey)}

	e.ReaderState(writer).Insert(2, []byte("b")) // 1 missing

	hb := wire.Heartbeat{WriterID: writer.EntityID, FirstSeq: 1, LastSeq: 2, Count: 1}
	an, ok := e.HandleHeartbeat(writer, reader, hb)
	require.True(t, ok)
	assert.Equal(t, []uint32{0}, an.Missing)
	assert.False(t, an.Final)

	m, ok := e.Match(writer, reader)
	require.True(t, ok)
	assert.Equal(t, StateSynchronizing, m.State())
}

func Test_EngineHandleHeartbeatRateLimitsRepeatedCount(t *testing.T) {
	e := NewEngine()
	writer := wire.GUID{EntityID: wire.NewEntityID(1, wire.EntityKindWriterWithKey)}
	reader := wire.GUID{EntityID: wire.NewEntityID(2, wire.EntityKindReaderWithKey)}

	hb := wire.Heartbeat{WriterID: writer.EntityID, FirstSeq: 1, LastSeq: 1, Count: 5}
	_, ok := e.HandleHeartbeat(writer, reader, hb)
	require.True(t, ok)

	_, ok = e.HandleHeartbeat(writer, reader, hb)
	assert.False(t, ok)
}

func Test_EngineHandleAckNackPureAckTrimsCache(t *testing.T) {
	e := NewEngine()
	writer := wire.GUID{EntityID: wire.NewEntityID(1, wire.EntityKindWriterWithKey)}
	reader := wire.GUID{EntityID: wire.NewEntityID(2, wire.EntityKindReaderWithKey)}

	cache := e.WriterCache(writer, 0)
	cache.Push([]byte("a"))
	cache.Push([]byte("b"))
	cache.Push([]byte("c"))

	out := e.HandleAckNack(writer, reader, wire.AckNack{BitmapBase: 3})
	assert.Empty(t, out)

	first, _, ok := cache.Range()
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(3), first)
}

func Test_EngineHandleAckNackReturnsMissingSamplesForRetransmit(t *testing.T) {
	e := NewEngine()
	writer := wire.GUID{EntityID: wire.NewEntityID(1, wire.EntityKindWriterWithKey)}
	reader := wire.GUID{EntityID: wire.NewEntityID(2, wire.EntityKindReaderWithKey)}

	cache := e.WriterCache(writer, 0)
	cache.Push([]byte("a"))
	cache.Push([]byte("b"))

	out := e.HandleAckNack(writer, reader, wire.AckNack{BitmapBase: 1, Missing: []uint32{0}})
	require.Len(t, out, 1)
	assert.Equal(t, []byte("a"), out[0].Payload)
}

func Test_EngineAckNackDrivesWriterSideStateMachine(t *testing.T) {
	e := NewEngine()
	writer := wire.GUID{EntityID: wire.NewEntityID(1, wire.EntityKindWriterWithKey)}
	reader := wire.GUID{EntityID: wire.NewEntityID(2, wire.EntityKindReaderWithKey)}

	m, ok := e.Match(writer, reader)
	assert.False(t, ok, "no match exists before any HEARTBEAT/ACKNACK exchange")

	e.HandleAckNack(writer, reader, wire.AckNack{BitmapBase: 1, Missing: []uint32{0}})
	m, ok = e.Match(writer, reader)
	require.True(t, ok)
	assert.Equal(t, StateSynchronizing, m.State())

	e.HandleAckNack(writer, reader, wire.AckNack{BitmapBase: 1})
	assert.Equal(t, StateSynchronized, m.State())
}

func Test_EngineHeartbeatReopensSynchronizedMatchOnHigherLastSeq(t *testing.T) {
	e := NewEngine()
	writer := wire.GUID{EntityID: wire.NewEntityID(1, wire.EntityKindWriterWithKey)}
	reader := wire.GUID{EntityID: wire.NewEntityID(2, wire.EntityKindReaderWithKey)}

	// First HEARTBEAT covers an empty range: nothing missing, straight to
	// Synchronized.
	hb1 := wire.Heartbeat{WriterID: writer.EntityID, FirstSeq: 1, LastSeq: 0, Count: 1}
	_, ok := e.HandleHeartbeat(writer, reader, hb1)
	require.True(t, ok)
	m, ok := e.Match(writer, reader)
	require.True(t, ok)
	assert.Equal(t, StateSynchronized, m.State())

	// A later HEARTBEAT announcing new, unacknowledged samples reopens
	// the match (spec §4.7: Synchronized -> Synchronizing on a HB with a
	// higher last_seq).
	hb2 := wire.Heartbeat{WriterID: writer.EntityID, FirstSeq: 1, LastSeq: 1, Count: 2}
	_, ok = e.HandleHeartbeat(writer, reader, hb2)
	require.True(t, ok)
	assert.Equal(t, StateSynchronizing, m.State())
}

func Test_EngineOnMatchIgnoresBestEffortWriters(t *testing.T) {
	e := NewEngine()
	writer := discovery.EndpointInfo{
		EndpointGUID: wire.GUID{EntityID: wire.NewEntityID(1, wire.EntityKindWriterNoKey)},
		QoS:          discovery.QoS{Reliability: discovery.ReliabilityBestEffort},
	}
	reader := discovery.EndpointInfo{EndpointGUID: wire.GUID{EntityID: wire.NewEntityID(2, wire.EntityKindReaderNoKey)}}

	e.OnMatch(writer, reader)

	assert.Empty(t, e.matches)
}

func Test_EngineReplayToSendsEveryRetainedSample(t *testing.T) {
	var sent []Sample
	e := NewEngine(WithReplaySender(func(dest discovery.EndpointInfo, s Sample) {
		sent = append(sent, s)
	}))

	writer := wire.GUID{EntityID: wire.NewEntityID(1, wire.EntityKindWriterWithKey)}
	cache := e.WriterCache(writer, 0)
	cache.Push([]byte("a"))
	cache.Push([]byte("b"))

	err := e.ReplayTo(writer, discovery.EndpointInfo{})
	require.NoError(t, err)
	require.Len(t, sent, 2)
}
