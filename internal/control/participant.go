package control

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hdds-team/hdds/internal/config"
	"github.com/hdds-team/hdds/internal/runtime"
	"github.com/hdds-team/hdds/internal/xerr"
)

// participantEntry bundles a running participant with the machinery
// needed to stop it and the sub-handle registries scoped to it (topics,
// writers, readers), mirroring the cyclic "participant owns everything"
// ownership rule of spec §9 ("all lifetimes are owned by the
// participant; deletes cascade through the maps").
type participantEntry struct {
	p      *runtime.Participant
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	topics map[Handle]topicEntry
	writers map[Handle]*writerEntry
	readers map[Handle]*readerEntry
}

// Manager owns every live participant and their descendant handles. One
// Manager is typically constructed per process; a language binding holds
// it behind a single opaque pointer and addresses everything else
// through the Handles it returns.
type Manager struct {
	log          *zap.SugaredLogger
	participants *registry[*participantEntry]

	// writerIndex/readerIndex let Publish/Take resolve a handle directly
	// instead of scanning every participant's nested map; the nested maps
	// on participantEntry remain the owning, cascade-deleted storage.
	mu          sync.Mutex
	writerIndex map[Handle]*writerEntry
	readerIndex map[Handle]*readerEntry

	waitsets *registry[*WaitSet]
	guards   *registry[*Condition]
}

// NewManager constructs an empty control-plane Manager.
func NewManager(log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		log:          log,
		participants: newRegistry[*participantEntry](),
		writerIndex:  make(map[Handle]*writerEntry),
		readerIndex:  make(map[Handle]*readerEntry),
		waitsets:     newRegistry[*WaitSet](),
		guards:       newRegistry[*Condition](),
	}
}

// CreateParticipant binds a new domain participant and starts its
// listener/router/discovery/reliability/SPDP/lease threads (spec §4.2,
// §6 "participant create/destroy").
func (m *Manager) CreateParticipant(cfg *config.Config) (Handle, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	p, err := runtime.New(cfg, m.log)
	if err != nil {
		return 0, xerr.Wrap(xerr.ConfigError, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &participantEntry{
		p:       p,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		topics:  make(map[Handle]topicEntry),
		writers: make(map[Handle]*writerEntry),
		readers: make(map[Handle]*readerEntry),
	}

	go func() {
		defer close(entry.done)
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			m.log.Errorw("participant run exited unexpectedly", "error", err)
		}
	}()

	return m.participants.insert(entry), nil
}

// DestroyParticipant stops the participant's threads, closes its
// sockets, and releases every writer/reader/topic handle still open
// under it (spec §6 "releases are explicit"; spec §9 "deletes cascade").
func (m *Manager) DestroyParticipant(h Handle) error {
	value, ok := m.participants.release(h)
	if !ok {
		return xerr.Wrap(xerr.NotFound, nil)
	}

	value.mu.Lock()
	for rh, re := range value.readers {
		value.p.UnregisterReaderSink(re.ep.EndpointGUID)
		m.deleteReaderIndex(rh)
	}
	for wh := range value.writers {
		m.deleteWriterIndex(wh)
	}
	value.mu.Unlock()

	value.cancel()
	<-value.done
	if err := value.p.Close(); err != nil {
		return xerr.Wrap(xerr.IoError, err)
	}
	return nil
}

func (m *Manager) deleteWriterIndex(h Handle) {
	m.mu.Lock()
	delete(m.writerIndex, h)
	m.mu.Unlock()
}

func (m *Manager) deleteReaderIndex(h Handle) {
	m.mu.Lock()
	delete(m.readerIndex, h)
	m.mu.Unlock()
}

func (m *Manager) participant(h Handle) (*participantEntry, error) {
	return m.participants.get(h)
}
