// Package transport implements the UDP listener (spec §4.4): one thread
// per bound socket, edge-triggered readiness, drain-to-EAGAIN,
// classification, and dispatch to the data ring, control channel, or
// discovery callback.
package transport

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/hdds-team/hdds/internal/classify"
	"github.com/hdds-team/hdds/internal/pool"
	"github.com/hdds-team/hdds/internal/wire"
)

// Option configures a Listener.
type Option func(*options)

// WithLog attaches a logger to the listener.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.Log = log }
}

// WithReusePort enables SO_REUSEPORT on the bound socket, per the
// HDDS_REUSEPORT environment override (spec §6).
func WithReusePort(enabled bool) Option {
	return func(o *options) { o.ReusePort = enabled }
}

type options struct {
	Log       *zap.SugaredLogger
	ReusePort bool
}

func newOptions() *options {
	return &options{Log: zap.NewNop().Sugar()}
}

// ControlMessage is a classified HEARTBEAT/ACKNACK/NACK_FRAG submessage
// handed to the control channel, bypassing the pool entirely (spec §4.4
// step 2).
type ControlMessage struct {
	Source *net.UDPAddr
	Header wire.PacketHeader
	Sub    classify.Submessage
}

// DataMessage is a classified DATA/DATA_FRAG/HEARTBEAT/HEARTBEAT_FRAG
// packet handed to the data ring by (meta, pool buffer index) (spec §4.4
// step 4).
type DataMessage struct {
	Source *net.UDPAddr
	Header wire.PacketHeader
	Packet classify.Packet
	// BufferIndex is the pool slot index holding a copy of the raw packet
	// bytes. Ownership transfers to the ring/router on push; the listener
	// never touches it again.
	BufferIndex int
	Length      int
}

// DiscoveryCallback is invoked, within a panic-safe boundary, for every
// Data/DataFrag/SPDP/SEDP/TypeLookup submessage, and for a Heartbeat
// submessage that was not handed to the control channel (spec §4.4
// step 3).
type DiscoveryCallback func(src *net.UDPAddr, header wire.PacketHeader, pkt classify.Packet)

// Sink receives dispatched messages from one or more listeners.
type Sink struct {
	// PushData attempts to enqueue a data-ring entry; false means the ring
	// was full and the caller must release the buffer itself.
	PushData func(DataMessage) bool
	// PushControl attempts to enqueue a control-channel entry; false means
	// the channel was full.
	PushControl func(ControlMessage) bool
	// Notify wakes a parked router after a successful push.
	Notify func()
}

// Counters tracks the listener's drop/error statistics (spec §4.4, §8).
type Counters struct {
	Invalid       uint64
	ControlDrop   uint64
	PoolExhausted uint64
	RingFull      uint64
}

// Listener owns one bound UDP socket and the thread that drains it.
type Listener struct {
	log  *zap.SugaredLogger
	conn *net.UDPConn
	pool *pool.Pool
	sink Sink
	disc DiscoveryCallback

	counters Counters
}

// New binds a UDP socket at addr and constructs a Listener around it. The
// caller owns running Run in its own goroutine (typically via
// errgroup.Group, matching the participant runtime's worker model, spec
// §5).
func New(addr *net.UDPAddr, p *pool.Pool, sink Sink, disc DiscoveryCallback, opts ...Option) (*Listener, error) {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	conn, err := listen(addr, o.ReusePort)
	if err != nil {
		return nil, fmt.Errorf("failed to bind udp listener on %s: %w", addr, err)
	}

	return &Listener{
		log:  o.Log,
		conn: conn,
		pool: p,
		sink: sink,
		disc: disc,
	}, nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() *net.UDPAddr {
	return l.conn.LocalAddr().(*net.UDPAddr)
}

// WriteTo sends buf to dest over the listener's own bound socket. RTPS
// participants send and receive on the same unicast port, so the listener
// socket doubles as the writer-side and control-handler-side send path
// (spec §4.4, §4.7, §4.10).
func (l *Listener) WriteTo(buf []byte, dest *net.UDPAddr) error {
	_, err := l.conn.WriteToUDP(buf, dest)
	return err
}

// Counters returns a snapshot of the listener's drop/error counters.
func (l *Listener) Counters() Counters {
	return l.counters
}

// Close releases the underlying socket.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Run drains the socket until ctx is canceled.
//
// Each call into the raw-read callback drains the socket with MSG_DONTWAIT
// reads until EAGAIN, matching the edge-triggered contract of spec §4.4:
// the Go runtime's netpoller (epoll on Linux) parks the goroutine and wakes
// it exactly on readiness transitions, so re-entering the callback always
// means "at least one more datagram might be pending".
func (l *Listener) Run(ctx context.Context) error {
	l.log.Debugf("starting udp listener on %s", l.Addr())
	defer l.log.Debugf("stopped udp listener on %s", l.Addr())

	rawConn, err := l.conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to get raw conn: %w", err)
	}

	done := ctx.Done()
	buf := make([]byte, 65536)

	for {
		select {
		case <-done:
			return ctx.Err()
		default:
		}

		// Deadline bounds each wait so the ctx.Done() case above is polled
		// promptly even with no traffic, approximating spec §5's "1 ms
		// epoll_wait timeout" for the shutdown flag.
		_ = l.conn.SetReadDeadline(deadlineSoon())

		readErr := rawConn.Read(func(fd uintptr) bool {
			l.drain(fd, buf)
			return true
		})
		if readErr != nil && !isTimeout(readErr) {
			return fmt.Errorf("listener raw read: %w", readErr)
		}
	}
}

// drain reads from fd with MSG_DONTWAIT until EAGAIN, classifying and
// dispatching each datagram (spec §4.4).
func (l *Listener) drain(fd uintptr, buf []byte) {
	for {
		n, from, err := unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			l.log.Debugw("listener recv error", "error", err)
			return
		}

		addr := sockaddrToUDPAddr(from)
		l.dispatch(addr, buf[:n])
	}
}

func (l *Listener) dispatch(addr *net.UDPAddr, raw []byte) {
	pkt := classify.Classify(raw)
	if len(pkt.Submessages) == 0 {
		return
	}
	if pkt.Submessages[0].Kind == classify.KindInvalid {
		l.counters.Invalid++
		return
	}

	notified := false
	for _, sub := range pkt.Submessages {
		switch sub.Kind {
		case classify.KindHeartbeat, classify.KindAckNack, classify.KindNackFrag:
			if l.sink.PushControl != nil {
				if !l.sink.PushControl(ControlMessage{Source: addr, Header: pkt.Header, Sub: sub}) {
					l.counters.ControlDrop++
				}
				continue
			}
		}

		switch sub.Kind {
		case classify.KindData, classify.KindDataFrag, classify.KindSPDP, classify.KindSEDP, classify.KindTypeLookup, classify.KindHeartbeat:
			if l.disc != nil {
				l.invokeDiscoverySafely(addr, pkt.Header, pkt)
			}
		}

		switch sub.Kind {
		case classify.KindData, classify.KindDataFrag, classify.KindHeartbeat, classify.KindHeartbeatFrag, classify.KindAckNack:
			idx, ok := l.pool.Acquire()
			if !ok {
				l.counters.PoolExhausted++
				l.pool.IncDropped()
				continue
			}
			copy(l.pool.Buffer(idx), raw)

			if l.sink.PushData == nil || !l.sink.PushData(DataMessage{
				Source:      addr,
				Header:      pkt.Header,
				Packet:      pkt,
				BufferIndex: idx,
				Length:      len(raw),
			}) {
				l.pool.Release(idx)
				l.counters.RingFull++
				continue
			}
			notified = true
		}
	}

	if notified && l.sink.Notify != nil {
		l.sink.Notify()
	}
}

// invokeDiscoverySafely calls the discovery callback within a recover
// boundary so a panic in user-supplied discovery logic never brings down
// the listener thread (spec §4.4, §7 "panic-safe boundary").
func (l *Listener) invokeDiscoverySafely(addr *net.UDPAddr, header wire.PacketHeader, pkt classify.Packet) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorw("discovery callback panicked", "panic", r)
		}
	}()
	l.disc(addr, header, pkt)
}
