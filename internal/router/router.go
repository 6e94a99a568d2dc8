// Package router implements the two-ring router (spec §4.5): a dedicated
// worker thread pops classified packets off a bounded data ring (hot path,
// pooled buffers) and a bounded control channel (HEARTBEAT/ACKNACK/
// NACK_FRAG, stack-sized), dispatching each to the matched readers.
package router

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hdds-team/hdds/internal/classify"
	"github.com/hdds-team/hdds/internal/pool"
	"github.com/hdds-team/hdds/internal/transport"
	"github.com/hdds-team/hdds/internal/wire"
	"github.com/hdds-team/hdds/internal/xrun"
)

// DefaultDataRingCapacity and DefaultControlRingCapacity size the two
// rings (spec §4.5). The control ring is intentionally much smaller:
// HEARTBEAT/ACKNACK/NACK_FRAG are fixed, small structs, never pooled
// buffers.
const (
	DefaultDataRingCapacity    = 4096
	DefaultControlRingCapacity = 1024
)

// Option configures a Router.
type Option func(*options)

// WithLog attaches a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.Log = log }
}

// WithDataRingCapacity overrides the data ring's bound.
func WithDataRingCapacity(n int) Option {
	return func(o *options) { o.DataCapacity = n }
}

// WithControlRingCapacity overrides the control channel's bound.
func WithControlRingCapacity(n int) Option {
	return func(o *options) { o.ControlCapacity = n }
}

type options struct {
	Log             *zap.SugaredLogger
	DataCapacity    int
	ControlCapacity int
}

func newOptions() *options {
	return &options{
		Log:             zap.NewNop().Sugar(),
		DataCapacity:    DefaultDataRingCapacity,
		ControlCapacity: DefaultControlRingCapacity,
	}
}

// ReaderDelivery is the target for a matched DATA/DATA_FRAG delivery: one
// entry per (writer, reader) pair maintained by the reliability engine.
type ReaderDelivery interface {
	// Deliver hands the classified submessage to the reader's reorder
	// buffer or best-effort queue. It is not given the pool buffer index;
	// the router releases the buffer itself after dispatch.
	Deliver(sub classify.Submessage, source wire.GUIDPrefix)
}

// ReaderLookup resolves the readers matched to a given writer GUID, per
// the endpoint registry (spec §4.5 step 2).
type ReaderLookup func(writer wire.GUID) []ReaderDelivery

// ControlHandler processes a control-channel message (HEARTBEAT/ACKNACK/
// NACK_FRAG), typically the reliability engine.
type ControlHandler func(transport.ControlMessage)

// Router owns the data ring and control channel and the single worker
// goroutine pair that drains them (spec §4.5, §5: "one router, one
// control-handler").
type Router struct {
	log *zap.SugaredLogger

	pool *pool.Pool

	dataCh    chan transport.DataMessage
	controlCh chan transport.ControlMessage

	wake chan struct{}

	lookupReaders ReaderLookup
	handleControl ControlHandler
}

// New constructs a Router. lookupReaders and handleControl must be
// non-nil; they are typically backed by the discovery/reliability engine.
func New(p *pool.Pool, lookupReaders ReaderLookup, handleControl ControlHandler, opts ...Option) *Router {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Router{
		log:           o.Log,
		pool:          p,
		dataCh:        make(chan transport.DataMessage, o.DataCapacity),
		controlCh:     make(chan transport.ControlMessage, o.ControlCapacity),
		wake:          make(chan struct{}, 1),
		lookupReaders: lookupReaders,
		handleControl: handleControl,
	}
}

// Sink returns the transport.Sink this router exposes to listeners.
func (r *Router) Sink() transport.Sink {
	return transport.Sink{
		PushData: func(m transport.DataMessage) bool {
			select {
			case r.dataCh <- m:
				return true
			default:
				return false
			}
		},
		PushControl: func(m transport.ControlMessage) bool {
			select {
			case r.controlCh <- m:
				return true
			default:
				return false
			}
		},
		Notify: r.notify,
	}
}

func (r *Router) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run drains both the data ring and control channel until ctx is
// canceled. The control worker is a dedicated goroutine so a burst of
// HEARTBEAT/ACKNACK traffic can never starve user-data delivery, matching
// spec §4.5/§5's "two-ring ... so HEARTBEAT/ACKNACK floods cannot starve
// user data".
func (r *Router) Run(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return r.runData(ctx)
	})
	wg.Go(func() error {
		return r.runControl(ctx)
	})

	return wg.Wait()
}

func (r *Router) runData(ctx context.Context) error {
	r.log.Debugf("starting data ring worker")
	defer r.log.Debugf("stopped data ring worker")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-r.dataCh:
			r.processData(msg)
		case <-r.wake:
			// Drain opportunistically; the channel receive above already
			// covers the common case, this just avoids parking past a
			// notify when nothing is in dataCh yet.
		}
	}
}

func (r *Router) runControl(ctx context.Context) error {
	r.log.Debugf("starting control worker")
	defer r.log.Debugf("stopped control worker")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-r.controlCh:
			r.dispatchControl(msg)
		}
	}
}

// dispatchControl runs handleControl under xrun.Supervise: a malformed or
// unexpected control message must never take down the control worker, the
// same boundary rule applied to per-reader delivery in processData.
func (r *Router) dispatchControl(msg transport.ControlMessage) {
	xrun.Supervise(r.log, "control handler", func() {
		r.handleControl(msg)
	})
}

// processData implements spec §4.5 steps 1-6 for one dispatched packet:
// matches each DATA/DATA_FRAG submessage to its readers and delivers it,
// then releases the pool buffer once every submessage has been consumed.
func (r *Router) processData(msg transport.DataMessage) {
	defer r.pool.Release(msg.BufferIndex)

	for _, sub := range msg.Packet.Submessages {
		switch sub.Kind {
		case classify.KindData, classify.KindDataFrag:
			writerGUID := wire.NewGUID(msg.Packet.Header.Prefix, sub.WriterID)
			for _, reader := range r.lookupReaders(writerGUID) {
				reader := reader
				xrun.Supervise(r.log, "reader delivery", func() {
					reader.Deliver(sub, msg.Packet.Header.Prefix)
				})
			}
		case classify.KindHeartbeat, classify.KindHeartbeatFrag, classify.KindAckNack:
			// These can also appear bundled in a data-ring packet when the
			// listener chose not to route them to the control channel
			// (e.g. no control sender registered yet); hand them to the
			// same control handler for consistent processing.
			r.dispatchControl(transport.ControlMessage{Header: msg.Packet.Header, Sub: sub})
		}
	}
}
