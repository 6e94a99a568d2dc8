package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hdds-team/hdds/internal/classify"
	"github.com/hdds-team/hdds/internal/pool"
	"github.com/hdds-team/hdds/internal/wire"
)

func Test_DispatchInvalidPacketCounted(t *testing.T) {
	p := pool.New(2, 128)
	l := &Listener{pool: p, log: zap.NewNop().Sugar()}

	l.dispatch(nil, []byte("garbage"))
	assert.Equal(t, uint64(1), l.counters.Invalid)
}

func Test_DispatchDataRoutesThroughPoolAndRing(t *testing.T) {
	p := pool.New(2, 1024)

	var pushed []DataMessage
	l := &Listener{
		pool: p,
		log:  zap.NewNop().Sugar(),
		sink: Sink{
			PushData: func(m DataMessage) bool {
				pushed = append(pushed, m)
				return true
			},
			Notify: func() {},
		},
	}

	hb := wire.EncodeHeartbeat(wire.Heartbeat{
		ReaderID: wire.NewEntityID(1, wire.EntityKindReaderWithKey),
		WriterID: wire.NewEntityID(2, wire.EntityKindWriterWithKey),
	})
	buf := make([]byte, wire.HeaderSize)
	require.NoError(t, wire.EncodeHeader(buf, wire.PacketHeader{Version: wire.ProtocolVersion23, Vendor: wire.HDDSVendorID}))
	buf = append(buf, hb...)

	l.dispatch(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7410}, buf)

	require.Len(t, pushed, 1)
	assert.Equal(t, 1, p.InFlight())
}

func Test_DispatchRingFullReleasesBuffer(t *testing.T) {
	p := pool.New(2, 1024)
	l := &Listener{
		pool: p,
		log:  zap.NewNop().Sugar(),
		sink: Sink{
			PushData: func(DataMessage) bool { return false },
		},
	}

	hb := wire.EncodeHeartbeat(wire.Heartbeat{
		ReaderID: wire.NewEntityID(1, wire.EntityKindReaderWithKey),
		WriterID: wire.NewEntityID(2, wire.EntityKindWriterWithKey),
	})
	buf := make([]byte, wire.HeaderSize)
	require.NoError(t, wire.EncodeHeader(buf, wire.PacketHeader{Version: wire.ProtocolVersion23}))
	buf = append(buf, hb...)

	l.dispatch(&net.UDPAddr{}, buf)

	assert.Equal(t, uint64(1), l.counters.RingFull)
	assert.Equal(t, 0, p.InFlight(), "buffer must be released back to the pool")
}

func Test_DispatchControlBypassesPool(t *testing.T) {
	p := pool.New(2, 1024)

	var controlMsgs []ControlMessage
	l := &Listener{
		pool: p,
		log:  zap.NewNop().Sugar(),
		sink: Sink{
			PushControl: func(m ControlMessage) bool {
				controlMsgs = append(controlMsgs, m)
				return true
			},
		},
	}

	hb := wire.EncodeHeartbeat(wire.Heartbeat{
		ReaderID: wire.NewEntityID(1, wire.EntityKindReaderWithKey),
		WriterID: wire.NewEntityID(2, wire.EntityKindWriterWithKey),
	})
	buf := make([]byte, wire.HeaderSize)
	require.NoError(t, wire.EncodeHeader(buf, wire.PacketHeader{Version: wire.ProtocolVersion23}))
	buf = append(buf, hb...)

	l.dispatch(&net.UDPAddr{}, buf)

	require.Len(t, controlMsgs, 1)
	assert.Equal(t, classify.KindHeartbeat, controlMsgs[0].Sub.Kind)
	assert.Equal(t, 0, p.InFlight(), "control path must not touch the pool")
}
