package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds/internal/classify"
	"github.com/hdds-team/hdds/internal/pool"
	"github.com/hdds-team/hdds/internal/transport"
	"github.com/hdds-team/hdds/internal/wire"
)

type fakeDelivery struct {
	mu  sync.Mutex
	got []classify.Submessage
}

func (f *fakeDelivery) Deliver(sub classify.Submessage, _ wire.GUIDPrefix) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, sub)
}

func (f *fakeDelivery) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func Test_RouterDeliversDataAndReleasesBuffer(t *testing.T) {
	p := pool.New(4, 1024)
	idx, ok := p.Acquire()
	require.True(t, ok)

	delivery := &fakeDelivery{}
	r := New(p,
		func(wire.GUID) []ReaderDelivery { return []ReaderDelivery{delivery} },
		func(transport.ControlMessage) {},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	msg := transport.DataMessage{
		BufferIndex: idx,
		Packet: classify.Packet{
			Submessages: []classify.Submessage{{Kind: classify.KindData}},
		},
	}
	require.True(t, r.Sink().PushData(msg))
	r.Sink().Notify()

	require.Eventually(t, func() bool { return delivery.count() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.InFlight() == 0 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func Test_RouterRoutesControlMessages(t *testing.T) {
	p := pool.New(2, 64)

	var handled int
	var mu sync.Mutex
	r := New(p,
		func(wire.GUID) []ReaderDelivery { return nil },
		func(transport.ControlMessage) {
			mu.Lock()
			handled++
			mu.Unlock()
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.True(t, r.Sink().PushControl(transport.ControlMessage{}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 1
	}, time.Second, time.Millisecond)
}

type panickingDelivery struct{}

func (panickingDelivery) Deliver(classify.Submessage, wire.GUIDPrefix) {
	panic("boom")
}

func Test_RouterSurvivesPanicInReaderDelivery(t *testing.T) {
	p := pool.New(2, 1024)
	idx, ok := p.Acquire()
	require.True(t, ok)

	r := New(p,
		func(wire.GUID) []ReaderDelivery { return []ReaderDelivery{panickingDelivery{}} },
		func(transport.ControlMessage) {},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	msg := transport.DataMessage{
		BufferIndex: idx,
		Packet: classify.Packet{
			Submessages: []classify.Submessage{{Kind: classify.KindData}},
		},
	}
	require.True(t, r.Sink().PushData(msg))
	r.Sink().Notify()

	// The data ring worker must keep running after the panicking Deliver
	// call: the buffer still gets released and a second message still
	// gets through.
	require.Eventually(t, func() bool { return p.InFlight() == 0 }, time.Second, time.Millisecond)

	idx2, ok := p.Acquire()
	require.True(t, ok)
	require.True(t, r.Sink().PushData(transport.DataMessage{BufferIndex: idx2, Packet: classify.Packet{}}))
	r.Sink().Notify()
	require.Eventually(t, func() bool { return p.InFlight() == 0 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func Test_RouterDataRingFullRejectsPush(t *testing.T) {
	p := pool.New(1, 64)
	r := New(p,
		func(wire.GUID) []ReaderDelivery { return nil },
		func(transport.ControlMessage) {},
		WithDataRingCapacity(1),
	)

	assert.True(t, r.Sink().PushData(transport.DataMessage{}))
	assert.False(t, r.Sink().PushData(transport.DataMessage{}), "second push should see a full ring")
}
