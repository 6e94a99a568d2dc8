package discovery

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hdds-team/hdds/internal/wire"
	"github.com/hdds-team/hdds/internal/xrun"
)

// Metrics counts the events spec §4.6 and §8 require observability for.
type Metrics struct {
	ParticipantsDiscovered uint64
	ParticipantsExpired    uint64
	SecurityErrors         uint64
	SEDPReceived           uint64
}

// engineMetrics is Metrics' live, concurrency-safe counterpart: the
// callback installed as onDiscoveryPacket runs on both the metatraffic
// and user-data listener goroutines, and RemoveParticipant runs on the
// lease-tracker goroutine, while Metrics() is read from the control
// plane — the same multi-writer/one-reader shape internal/reliability's
// send counters already use atomics for.
type engineMetrics struct {
	participantsDiscovered atomic.Uint64
	participantsExpired    atomic.Uint64
	securityErrors         atomic.Uint64
	sedpReceived           atomic.Uint64
}

func (m *engineMetrics) snapshot() Metrics {
	return Metrics{
		ParticipantsDiscovered: m.participantsDiscovered.Load(),
		ParticipantsExpired:    m.participantsExpired.Load(),
		SecurityErrors:         m.securityErrors.Load(),
		SEDPReceived:           m.sedpReceived.Load(),
	}
}

// SecurityValidator validates an identity token presented in an SPDP
// announcement (spec §4.6). Out of scope per spec §1 ("security
// (auth/access/crypto) plugins"); the engine only calls through this
// interface when one is installed.
type SecurityValidator interface {
	Validate(token []byte) error
}

// ReplayRegistry triggers history replay to a newly-matched TransientLocal
// (or stronger) reader, per spec §4.6. Implemented by the reliability
// engine's retransmit cache.
type ReplayRegistry interface {
	ReplayTo(writer wire.GUID, dest EndpointInfo) error
}

// Listener is notified whenever a new endpoint is discovered and matched,
// letting the outer participant runtime wire up matched readers (spec
// §4.6 "Listeners").
type Listener func(writer, reader EndpointInfo)

// Engine owns the participant DB, topic registry, and endpoint registry,
// and implements the SPDP/SEDP handlers and lease tracker (spec §4.6).
type Engine struct {
	log *zap.SugaredLogger

	localGUID wire.GUID

	participants *ParticipantDB
	topics       *TopicRegistry
	endpoints    *EndpointRegistry

	security           SecurityValidator
	requireAuth        bool
	replay             ReplayRegistry

	metrics engineMetrics

	listeners []Listener
}

// Option configures an Engine.
type Option func(*Engine)

// WithLog attaches a logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithSecurityValidator installs a validator and (optionally) requires
// every SPDP announcement to carry a verifiable identity token (spec
// §4.6).
func WithSecurityValidator(v SecurityValidator, requireAuthentication bool) Option {
	return func(e *Engine) {
		e.security = v
		e.requireAuth = requireAuthentication
	}
}

// WithReplayRegistry installs the history-replay trigger used for
// TransientLocal-or-stronger readers (spec §4.6).
func WithReplayRegistry(r ReplayRegistry) Option {
	return func(e *Engine) { e.replay = r }
}

// WithListener registers a callback invoked on every new endpoint match.
func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// New constructs an Engine for the participant identified by localGUID.
func New(localGUID wire.GUID, opts ...Option) *Engine {
	e := &Engine{
		log:          zap.NewNop().Sugar(),
		localGUID:    localGUID,
		participants: NewParticipantDB(),
		topics:       NewTopicRegistry(),
		endpoints:    NewEndpointRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Participants returns the participant database, for tests and the graph
// visitor (spec §6 "graph visitors").
func (e *Engine) Participants() *ParticipantDB { return e.participants }

// Topics returns the topic registry.
func (e *Engine) Topics() *TopicRegistry { return e.topics }

// Endpoints returns the endpoint registry.
func (e *Engine) Endpoints() *EndpointRegistry { return e.endpoints }

// Metrics returns a snapshot of the engine's counters.
func (e *Engine) Metrics() Metrics { return e.metrics.snapshot() }

// HandleSPDP processes one decoded SPDP announcement (spec §4.6).
func (e *Engine) HandleSPDP(data SpdpData, now time.Time) {
	if data.ParticipantGUID == e.localGUID {
		return
	}

	if e.security != nil {
		if len(data.IdentityToken) > 0 || e.requireAuth {
			if err := e.security.Validate(data.IdentityToken); err != nil {
				e.metrics.securityErrors.Add(1)
				e.log.Debugw("spdp identity validation failed", "participant", data.ParticipantGUID, "error", err)
				return
			}
		}
	}

	result := e.participants.Upsert(ParticipantInfo{
		GUID:                 data.ParticipantGUID,
		MetatrafficUnicast:   data.MetatrafficUnicast,
		DefaultUnicast:       data.DefaultUnicast,
		MetatrafficMulticast: data.MetatrafficMulticast,
		DefaultMulticast:     data.DefaultMulticast,
		LeaseDuration:        data.LeaseDuration,
		LastSeen:             now,
		IdentityToken:        data.IdentityToken,
	})
	if result == UpsertRefreshed {
		return
	}

	Register(e.endpoints, data.ParticipantGUID, data.DefaultUnicast, data.MetatrafficUnicast)
	e.metrics.participantsDiscovered.Add(1)
}

// HandleSEDP processes one decoded SEDP announcement (spec §4.6).
func (e *Engine) HandleSEDP(data SedpData, kind EndpointKind, now time.Time) {
	e.metrics.sedpReceived.Add(1)

	prefix := data.EndpointGUID.Prefix
	if prefix != e.localGUID.Prefix {
		if _, ok := e.participants.Get(wire.ParticipantGUID(prefix)); !ok {
			return
		}
	}

	ep := EndpointInfo{
		ParticipantGUID: wire.ParticipantGUID(prefix),
		EndpointGUID:    data.EndpointGUID,
		Kind:            kind,
		TopicName:       data.TopicName,
		TypeName:        data.TypeName,
		QoS:             data.QoS,
		UnicastLocators: data.UnicastLocators,
		TypeHash:        data.TypeHash,
		LastSeen:        now,
	}
	e.topics.Upsert(ep)

	switch kind {
	case EndpointWriter:
		for _, reader := range e.topics.CompatibleReaders(ep) {
			e.notifyMatch(ep, reader)
		}
	case EndpointReader:
		for _, writer := range e.topics.CompatibleWriters(ep) {
			e.notifyMatch(writer, ep)
			e.maybeReplay(writer, ep)
		}
	}
}

func (e *Engine) notifyMatch(writer, reader EndpointInfo) {
	for _, l := range e.listeners {
		l := l
		xrun.Supervise(e.log, "discovery match listener", func() {
			l(writer, reader)
		})
	}
}

func (e *Engine) maybeReplay(writer, reader EndpointInfo) {
	if e.replay == nil {
		return
	}
	if reader.QoS.Durability < DurabilityTransientLocal {
		return
	}
	if len(reader.UnicastLocators) == 0 {
		return
	}
	if err := e.replay.ReplayTo(writer.EndpointGUID, reader); err != nil {
		e.log.Debugw("history replay failed", "writer", writer.EndpointGUID, "reader", reader.EndpointGUID, "error", err)
	}
}

// RemoveParticipant removes guid's participant, every endpoint it
// published, and its endpoint-registry entry (spec §4.6 lease tracker
// steps a-d).
func (e *Engine) RemoveParticipant(guid wire.GUID) {
	e.participants.Remove(guid)
	e.topics.Remove(guid.Prefix)
	e.endpoints.Remove(guid)
	e.metrics.participantsExpired.Add(1)
}
