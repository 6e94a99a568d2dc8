package reliability

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hdds-team/hdds/internal/discovery"
	"github.com/hdds-team/hdds/internal/wire"
)

// MatchState is the per-(writer,reader) reliability state machine (spec
// §4.7): Initial until the first HEARTBEAT/ACKNACK exchange completes,
// Synchronizing while gaps remain outstanding, Synchronized once the
// reader has acknowledged the writer's full retained range.
type MatchState int

const (
	StateInitial MatchState = iota
	StateSynchronizing
	StateSynchronized
)

func (s MatchState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateSynchronizing:
		return "synchronizing"
	case StateSynchronized:
		return "synchronized"
	default:
		return "unknown"
	}
}

// AckNackSender delivers an encoded ACKNACK submessage from a reader back
// to a writer. Implemented by the participant runtime's transport layer.
type AckNackSender func(an wire.AckNack)

// ReplaySender unicasts one retained sample directly to a newly matched
// TransientLocal+ reader (spec §4.6 history replay). Implemented by the
// participant runtime's transport layer.
type ReplaySender func(dest discovery.EndpointInfo, sample Sample)

// WriterMatch tracks one writer/reader pair: the match's state machine
// position and the highest HEARTBEAT LastSeq seen for it. The retransmit
// cache is the Engine's per-writer WriterCache, not part of the match.
type WriterMatch struct {
	mu      sync.Mutex
	state   MatchState
	lastSeq wire.SequenceNumber
}

// State returns the match's current state machine position.
func (m *WriterMatch) State() MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// observeHeartbeat applies the reader-side transitions of spec §4.7: the
// first HEARTBEAT moves a match out of Initial (straight to Synchronized
// if it already covers the reader's full range, otherwise Synchronizing);
// a later HEARTBEAT whose LastSeq exceeds everything seen so far reopens
// a Synchronized match back to Synchronizing, since the writer now has
// data the reader hasn't acknowledged yet.
func (m *WriterMatch) observeHeartbeat(lastSeq wire.SequenceNumber, final bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateInitial:
		if final {
			m.state = StateSynchronized
		} else {
			m.state = StateSynchronizing
		}
	case StateSynchronized:
		if lastSeq > m.lastSeq {
			m.state = StateSynchronizing
		}
	case StateSynchronizing:
		if final {
			m.state = StateSynchronized
		}
	}
	if lastSeq > m.lastSeq {
		m.lastSeq = lastSeq
	}
}

// observeAckNack applies the writer-side transitions of spec §4.7: an
// ACKNACK with no missing offsets means the reader is fully caught up
// (Synchronized); any missing offset means repair is still outstanding
// (Synchronizing).
func (m *WriterMatch) observeAckNack(hasMissing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hasMissing {
		m.state = StateSynchronizing
	} else {
		m.state = StateSynchronized
	}
}

// Engine coordinates every writer and reader reliability session for one
// participant (spec §4.7). It is the bridge between discovery's endpoint
// matching and the per-endpoint retransmit/reorder state.
type Engine struct {
	log *zap.SugaredLogger

	mu       sync.Mutex
	writers  map[wire.GUID]*WriterCache
	readers  map[wire.GUID]*ReaderState
	matches  map[[2]wire.GUID]*WriterMatch

	sendHeartbeat HeartbeatSender
	sendAckNack   AckNackSender
	sendReplay    ReplaySender

	retransmitsSent atomic.Uint64
	ackNacksSent    atomic.Uint64
	heartbeatsSent  atomic.Uint64
}

// Metrics is the set of reliability-engine counters reported in a
// participant-wide metrics.Snapshot (spec §8).
type Metrics struct {
	RetransmitsSent uint64
	AckNacksSent    uint64
	HeartbeatsSent  uint64
}

// Metrics returns a consistent snapshot of this engine's send counters.
func (e *Engine) Metrics() Metrics {
	return Metrics{
		RetransmitsSent: e.retransmitsSent.Load(),
		AckNacksSent:    e.ackNacksSent.Load(),
		HeartbeatsSent:  e.heartbeatsSent.Load(),
	}
}

// IncRetransmitsSent records one DATA resend triggered by an incoming
// ACKNACK. Called by the participant runtime's transport layer after a
// successful send.
func (e *Engine) IncRetransmitsSent() { e.retransmitsSent.Add(1) }

// IncAckNacksSent records one ACKNACK sent back to a writer in response
// to a HEARTBEAT.
func (e *Engine) IncAckNacksSent() { e.ackNacksSent.Add(1) }

// IncHeartbeatsSent records one HEARTBEAT announcement sent by a local
// writer's HeartbeatEmitter.
func (e *Engine) IncHeartbeatsSent() { e.heartbeatsSent.Add(1) }

// Option configures an Engine.
type Option func(*Engine)

// WithLog attaches a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithHeartbeatSender stores a HEARTBEAT transport hook on the Engine.
// The Engine never calls it; HEARTBEATs are sent by each writer's
// HeartbeatEmitter through its own send function.
func WithHeartbeatSender(send HeartbeatSender) Option {
	return func(e *Engine) { e.sendHeartbeat = send }
}

// WithAckNackSender stores an ACKNACK transport hook on the Engine. The
// Engine never calls it; HandleHeartbeat returns the ACKNACK for the
// caller to send.
func WithAckNackSender(send AckNackSender) Option {
	return func(e *Engine) { e.sendAckNack = send }
}

// WithReplaySender installs the transport hook used to unicast replayed
// history samples to a newly matched TransientLocal+ reader.
func WithReplaySender(send ReplaySender) Option {
	return func(e *Engine) { e.sendReplay = send }
}

// NewEngine constructs a reliability Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:     zap.NewNop().Sugar(),
		writers: make(map[wire.GUID]*WriterCache),
		readers: make(map[wire.GUID]*ReaderState),
		matches: make(map[[2]wire.GUID]*WriterMatch),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WriterCache returns (creating if absent) the retransmit cache for a
// local writer entity.
func (e *Engine) WriterCache(writer wire.GUID, historyDepth int) *WriterCache {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.writers[writer]
	if !ok {
		c = NewWriterCache(historyDepth)
		e.writers[writer] = c
	}
	return c
}

// ReaderState returns (creating if absent) the reorder buffer tracking a
// remote writer as seen by a local reader.
func (e *Engine) ReaderState(writer wire.GUID) *ReaderState {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.readers[writer]
	if !ok {
		s = NewReaderState()
		e.readers[writer] = s
	}
	return s
}

// OnMatch wires a newly matched (writer, reader) pair into the reliability
// engine (spec §4.6 Listener callback -> spec §4.7 state machine). Intended
// to be passed as discovery.WithListener's callback.
func (e *Engine) OnMatch(writer, reader discovery.EndpointInfo) {
	if writer.QoS.Reliability != discovery.ReliabilityReliable {
		return
	}
	e.matchFor(writer.EndpointGUID, reader.EndpointGUID)
}

// Match returns the (writer, reader) state machine if one has been
// created (by OnMatch, or lazily by the first HEARTBEAT/ACKNACK seen for
// the pair), for inspection by callers that need the §4.7 state (e.g. the
// SEDP pure-ACK-no-HB rule: a reader that only ever sends a positive
// ACKNACK for a pair already Synchronized needs no further reminder HB).
func (e *Engine) Match(writer, reader wire.GUID) (*WriterMatch, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches[[2]wire.GUID{writer, reader}]
	return m, ok
}

// matchFor returns (creating if absent) the state machine tracking writer
// and reader's reliability progress.
func (e *Engine) matchFor(writer, reader wire.GUID) *WriterMatch {
	key := [2]wire.GUID{writer, reader}
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.matches[key]
	if !ok {
		m = &WriterMatch{state: StateInitial}
		e.matches[key] = m
	}
	return m
}

// HandleHeartbeat updates reader-side state on receipt of a HEARTBEAT
// and, if ShouldRespond allows it, returns an ACKNACK to send back (spec
// §4.7 reader-side rules).
func (e *Engine) HandleHeartbeat(writer wire.GUID, reader wire.GUID, hb wire.Heartbeat) (wire.AckNack, bool) {
	state := e.ReaderState(writer)
	if !state.ShouldRespond(uint32(hb.Count)) {
		return wire.AckNack{}, false
	}

	base := state.NextExpected()
	if base < hb.FirstSeq {
		base = hb.FirstSeq
	}
	missing := state.Missing(hb.LastSeq)
	final := len(missing) == 0

	e.matchFor(writer, reader).observeHeartbeat(hb.LastSeq, final)

	an := wire.AckNack{
		ReaderID:   reader.EntityID,
		WriterID:   hb.WriterID,
		BitmapBase: base,
		Missing:    missing,
		Count:      hb.Count,
		Final:      final,
	}
	return an, true
}

// HandleAckNack applies an incoming ACKNACK to a writer's retransmit
// cache: trims on a pure positive ack, returns the samples to retransmit
// otherwise (spec §4.7 writer-side rules).
func (e *Engine) HandleAckNack(writer wire.GUID, reader wire.GUID, an wire.AckNack) []Sample {
	cache := e.WriterCache(writer, 0)
	e.matchFor(writer, reader).observeAckNack(len(an.Missing) > 0)

	if len(an.Missing) == 0 {
		if an.BitmapBase > 0 {
			cache.AckPositive(reader, an.BitmapBase-1)
		}
		return nil
	}

	var out []Sample
	for _, offset := range an.Missing {
		seq := an.BitmapBase + wire.SequenceNumber(offset)
		if s, ok := cache.Get(seq); ok {
			out = append(out, s)
		}
	}
	return out
}

// ReplayTo implements discovery.ReplayRegistry: it hands the caller every
// sample still retained in writer's cache so the transport layer can push
// it directly to dest's unicast locator (spec §4.6 TransientLocal+
// replay).
func (e *Engine) ReplayTo(writer wire.GUID, dest discovery.EndpointInfo) error {
	if e.sendReplay == nil {
		return nil
	}

	e.mu.Lock()
	cache, ok := e.writers[writer]
	e.mu.Unlock()
	if !ok {
		return nil
	}

	first, last, ok := cache.Range()
	if !ok {
		return nil
	}
	for _, s := range cache.GetRange(first, last) {
		e.sendReplay(dest, s)
	}
	return nil
}
