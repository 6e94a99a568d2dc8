package reliability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds/internal/wire"
)

func Test_HeartbeatEmitterSendsRetainedRangeAndResetsBackoffOnNewSample(t *testing.T) {
	writer := wire.NewEntityID(1, wire.EntityKindWriterWithKey)
	cache := NewWriterCache(0)
	cache.Push([]byte("a"))

	var mu sync.Mutex
	var got []wire.Heartbeat
	emitter := NewHeartbeatEmitter(writer, wire.EntityID{}, cache, func(hb wire.Heartbeat) {
		mu.Lock()
		got = append(got, hb)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go emitter.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	first := got[0]
	mu.Unlock()
	assert.Equal(t, writer, first.WriterID)
	assert.Equal(t, wire.SequenceNumber(1), first.FirstSeq)
	assert.Equal(t, wire.SequenceNumber(1), first.LastSeq)

	// A newly pushed sample changes the retained range, so the next wait
	// drops back to the base period instead of continuing to back off.
	cache.Push([]byte("b"))
	assert.Equal(t, DefaultHeartbeatPeriod, emitter.nextInterval())
}

func Test_EngineMetricsCountsSendsAcrossCallSites(t *testing.T) {
	e := NewEngine()
	assert.Zero(t, e.Metrics())

	e.IncHeartbeatsSent()
	e.IncAckNacksSent()
	e.IncAckNacksSent()
	e.IncRetransmitsSent()

	m := e.Metrics()
	assert.Equal(t, uint64(1), m.HeartbeatsSent)
	assert.Equal(t, uint64(2), m.AckNacksSent)
	assert.Equal(t, uint64(1), m.RetransmitsSent)
}
